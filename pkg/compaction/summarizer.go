package compaction

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roundup/pkg/conversation"
	"github.com/go-go-golems/roundup/pkg/llm"
	"github.com/go-go-golems/roundup/pkg/tools"
)

// TemplateKind selects the prompt template used by a Renderer.
type TemplateKind string

const TemplateConversationSummary TemplateKind = "conversation-summary"

// Rendered is a prompt ready to be sent to an endpoint.
type Rendered struct {
	Messages   []llm.Message
	TokenCount int
}

// Renderer turns a virtual context into model messages. Errors should be
// *RenderError where the failing turn/round is known.
type Renderer interface {
	Render(ctx context.Context, endpoint llm.Descriptor, kind TemplateKind, vctx *VirtualContext) (*Rendered, error)
}

// Result is the outcome of a successful attempt. It is never applied to the
// conversation by the Summarizer; see Commit. Empty flags a blank model
// reply, which usually points at a prompt or model defect.
type Result struct {
	SessionID       string        `json:"session_id"`
	BoundaryRoundID string        `json:"boundary_round_id"`
	Summary         string        `json:"summary"`
	Empty           bool          `json:"empty"`
	Boundary        Boundary      `json:"boundary"`
	Model           string        `json:"model"`
	PromptTokens    int           `json:"prompt_tokens"`
	Usage           *llm.Usage    `json:"usage,omitempty"`
	InjectTools     bool          `json:"inject_tools"`
	Duration        time.Duration `json:"duration"`
}

type Summarizer struct {
	renderer Renderer
	endpoint llm.Endpoint
	registry tools.Registry
	events   EventPublisher
}

type SummarizerOption func(*Summarizer)

func WithToolRegistry(r tools.Registry) SummarizerOption {
	return func(s *Summarizer) { s.registry = r }
}

func WithEventPublisher(p EventPublisher) SummarizerOption {
	return func(s *Summarizer) { s.events = p }
}

func NewSummarizer(renderer Renderer, endpoint llm.Endpoint, opts ...SummarizerOption) (*Summarizer, error) {
	if renderer == nil {
		return nil, errors.New("summarizer: renderer is nil")
	}
	if endpoint == nil {
		return nil, errors.New("summarizer: endpoint is nil")
	}
	s := &Summarizer{renderer: renderer, endpoint: endpoint}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// AttemptCompaction runs one attempt: select boundary, build the virtual
// context, render, call the model once, validate. The conversation is only
// read. Errors are ErrNothingToSummarize, *RenderError, *ModelError or a
// context error.
func (s *Summarizer) AttemptCompaction(ctx context.Context, conv *conversation.Conversation, opts Options) (*Result, error) {
	if conv == nil {
		return nil, errors.New("attempt compaction: nil conversation")
	}
	start := time.Now()
	res, err := s.attempt(ctx, conv, opts)
	d := time.Since(start)
	if res != nil {
		res.Duration = d
	}

	outcome := attemptOutcome(res, err)
	observeAttempt(outcome, d)

	ev := Event{
		Kind:        EventKindAttempt,
		SessionID:   conv.SessionID(),
		Outcome:     outcome,
		InjectTools: opts.InjectTools,
		Model:       s.endpoint.Descriptor().Model,
		DurationMs:  d.Milliseconds(),
	}
	if res != nil {
		ev.BoundaryRoundID = res.BoundaryRoundID
		ev.SummaryLength = len(res.Summary)
		ev.Empty = res.Empty
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.publish(ctx, ev)

	return res, err
}

func (s *Summarizer) attempt(ctx context.Context, conv *conversation.Conversation, opts Options) (*Result, error) {
	logger := log.With().Str("session_id", conv.SessionID()).Logger()
	level := zerolog.DebugLevel
	if opts.Verbose {
		level = zerolog.InfoLevel
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "compaction cancelled before boundary selection")
	}
	boundary, err := SelectSplitPointForConversation(conv, opts.Policy)
	if err != nil {
		logger.WithLevel(level).Err(err).Msg("compaction: no boundary")
		return nil, err
	}
	logger.WithLevel(level).
		Str("boundary_round_id", boundary.SummarizedRoundID).
		Str("prior_summary_round_id", boundary.PriorSummaryRoundID).
		Int("span_rounds", boundary.SpanRounds).
		Int("kept_rounds", boundary.KeptRounds).
		Msg("compaction: boundary selected")

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "compaction cancelled before building context")
	}
	vctx, err := BuildVirtualContext(conv, boundary.SummarizedRoundID, tools.List(s.registry))
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "compaction cancelled before rendering")
	}
	desc := s.endpoint.Descriptor()
	rendered, err := s.renderer.Render(ctx, desc, TemplateConversationSummary, vctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(ctxErr, "compaction cancelled during rendering")
		}
		var re *RenderError
		if !errors.As(err, &re) {
			re = &RenderError{TurnIndex: -1, RoundIndex: -1, Cause: err}
		}
		logger.Error().Err(re).Str("boundary_round_id", boundary.SummarizedRoundID).Msg("compaction: render failed")
		return nil, re
	}
	PromptTokens.WithLabelValues(desc.Model).Observe(float64(rendered.TokenCount))
	logger.WithLevel(level).
		Int("messages", len(rendered.Messages)).
		Int("tokens", rendered.TokenCount).
		Int("history_turns", len(vctx.History)).
		Int("tool_call_rounds", len(vctx.ToolCallRounds)).
		Msg("compaction: prompt rendered")
	if opts.Verbose {
		for i, m := range rendered.Messages {
			logger.Debug().Int("index", i).Str("role", string(m.Role)).Str("content", m.Content).Msg("compaction: rendered message")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "compaction cancelled before model call")
	}
	invokeOpts := llm.InvokeOptions{Temperature: 0, Stream: false}
	if opts.InjectTools {
		invokeOpts.Tools = tools.Schemas(s.registry)
		invokeOpts.ToolChoice = llm.ToolChoiceNone
	}
	resp, err := s.endpoint.Invoke(ctx, rendered.Messages, invokeOpts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(ctxErr, "compaction cancelled during model call")
		}
		return nil, &ModelError{Status: llm.StatusError, Cause: err}
	}
	if resp == nil {
		return nil, &ModelError{Status: llm.StatusError, Reason: "no response"}
	}
	if resp.Status != llm.StatusSuccess {
		return nil, &ModelError{Status: resp.Status, Reason: resp.Reason}
	}

	res := &Result{
		SessionID:       conv.SessionID(),
		BoundaryRoundID: boundary.SummarizedRoundID,
		Summary:         resp.Text,
		Empty:           strings.TrimSpace(resp.Text) == "",
		Boundary:        boundary,
		Model:           desc.Model,
		PromptTokens:    rendered.TokenCount,
		Usage:           resp.Usage,
		InjectTools:     opts.InjectTools,
	}
	if res.Empty {
		logger.Warn().
			Bool("empty", true).
			Bool("inject_tools", opts.InjectTools).
			Str("model", desc.Model).
			Str("boundary_round_id", res.BoundaryRoundID).
			Msg("compaction: model returned an empty summary")
	} else {
		logger.WithLevel(level).
			Str("boundary_round_id", res.BoundaryRoundID).
			Int("summary_len", len(res.Summary)).
			Msg("compaction: summary produced")
	}
	return res, nil
}

func (s *Summarizer) publish(ctx context.Context, ev Event) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishCompactionEvent(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn().Err(err).Str("session_id", ev.SessionID).Msg("compaction: failed to publish event")
	}
}

func attemptOutcome(res *Result, err error) string {
	var re *RenderError
	var me *ModelError
	switch {
	case err == nil && res != nil && res.Empty:
		return OutcomeEmpty
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrNothingToSummarize):
		return OutcomeNothingToSummarize
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case errors.As(err, &re):
		return OutcomeRenderError
	case errors.As(err, &me):
		return OutcomeModelError
	default:
		return OutcomeError
	}
}
