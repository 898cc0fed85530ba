package debugapi

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roundup/pkg/compaction"
	"github.com/go-go-golems/roundup/pkg/conversation"
	"github.com/go-go-golems/roundup/pkg/persistence/chatstore"
	"github.com/go-go-golems/roundup/pkg/tools"
)

// LatestSession selects the most recently updated stored conversation.
const LatestSession = "latest"

const requestPreviewLength = 100

// NothingToSummarizeHint explains an ErrNothingToSummarize outcome.
const NothingToSummarizeHint = "need at least 2 unsummarized rounds"

// ErrSummarizerUnavailable is returned when no endpoint was configured.
var ErrSummarizerUnavailable = errors.New("summarizer not configured")

// Service implements the debugging operations shared by the CLI and the
// HTTP routes.
type Service struct {
	store      chatstore.Store
	summarizer *compaction.Summarizer
	registry   tools.Registry
	flags      *compaction.DebugFlags
	policy     compaction.SplitPolicy
	events     compaction.EventPublisher
}

type ServiceOption func(*Service)

func WithSummarizer(s *compaction.Summarizer) ServiceOption {
	return func(svc *Service) { svc.summarizer = s }
}

func WithToolRegistry(r tools.Registry) ServiceOption {
	return func(svc *Service) { svc.registry = r }
}

// WithFlags replaces the process-wide debug flags, mostly for tests.
func WithFlags(f *compaction.DebugFlags) ServiceOption {
	return func(svc *Service) { svc.flags = f }
}

// WithEventPublisher publishes a commit event for every Compact call that
// reached the commit step.
func WithEventPublisher(p compaction.EventPublisher) ServiceOption {
	return func(svc *Service) { svc.events = p }
}

func WithSplitPolicy(p compaction.SplitPolicy) ServiceOption {
	return func(svc *Service) { svc.policy = p }
}

func NewService(store chatstore.Store, opts ...ServiceOption) *Service {
	svc := &Service{
		store:  store,
		flags:  compaction.Flags(),
		policy: compaction.DefaultSplitPolicy(),
	}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

func (s *Service) Flags() *compaction.DebugFlags { return s.flags }

// Options snapshots the debug flags into per-attempt options.
func (s *Service) Options() compaction.Options {
	return s.flags.Apply(compaction.Options{Policy: s.policy})
}

// Load fetches a stored conversation, "" or "latest" meaning the most
// recent one, and drops whitespace-only summaries.
func (s *Service) Load(ctx context.Context, sessionID string) (*conversation.Conversation, error) {
	if s.store == nil {
		return nil, errors.New("no conversation store configured")
	}
	var (
		conv *conversation.Conversation
		err  error
	)
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || sessionID == LatestSession {
		conv, err = s.store.Latest(ctx)
	} else {
		conv, err = s.store.Load(ctx, sessionID)
	}
	if err != nil {
		return nil, err
	}
	if n := conv.NormalizeSummaries(); n > 0 {
		log.Debug().Str("session_id", conv.SessionID()).Int("count", n).Msg("dropped blank summaries")
	}
	return conv, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]chatstore.ConversationRecord, error) {
	if s.store == nil {
		return nil, errors.New("no conversation store configured")
	}
	return s.store.List(ctx, limit)
}

type RoundInfo struct {
	ID         string   `json:"id"`
	ToolNames  []string `json:"tool_names"`
	HasSummary bool     `json:"has_summary"`
}

type TurnInfo struct {
	Index          int                 `json:"index"`
	ID             string              `json:"id"`
	RequestPreview string              `json:"request_preview"`
	Status         conversation.Status `json:"status"`
	RoundCount     int                 `json:"round_count"`
	Rounds         []RoundInfo         `json:"rounds"`
}

type InspectReport struct {
	SessionID   string     `json:"session_id"`
	TotalRounds int        `json:"total_rounds"`
	Turns       []TurnInfo `json:"turns"`
}

func Inspect(conv *conversation.Conversation) InspectReport {
	rep := InspectReport{SessionID: conv.SessionID(), Turns: []TurnInfo{}}
	for i, t := range conv.Turns() {
		rounds := t.Rounds()
		ti := TurnInfo{
			Index:          i,
			ID:             t.ID(),
			RequestPreview: preview(t.Request(), requestPreviewLength),
			Status:         t.Status(),
			RoundCount:     len(rounds),
			Rounds:         make([]RoundInfo, 0, len(rounds)),
		}
		for _, r := range rounds {
			ti.Rounds = append(ti.Rounds, RoundInfo{ID: r.ID(), ToolNames: r.ToolNames(), HasSummary: r.HasSummary()})
		}
		rep.TotalRounds += len(rounds)
		rep.Turns = append(rep.Turns, ti)
	}
	return rep
}

func preview(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "..."
}

type SplitReport struct {
	SessionID      string                     `json:"session_id"`
	Boundary       compaction.Boundary        `json:"boundary"`
	HistoricTurns  int                        `json:"historic_turns"`
	HistoricRounds int                        `json:"historic_rounds"`
	HistoryTurns   int                        `json:"history_turns"`
	ToolCallRounds int                        `json:"tool_call_rounds"`
	IsContinuation bool                       `json:"is_continuation"`
	Context        *compaction.VirtualContext `json:"context"`
}

// Split runs selection and the virtual context build without a model call.
func Split(conv *conversation.Conversation, policy compaction.SplitPolicy, registry tools.Registry) (*SplitReport, error) {
	b, err := compaction.SelectSplitPointForConversation(conv, policy)
	if err != nil {
		return nil, err
	}
	v, err := compaction.BuildVirtualContext(conv, b.SummarizedRoundID, tools.List(registry))
	if err != nil {
		return nil, err
	}
	return &SplitReport{
		SessionID:      conv.SessionID(),
		Boundary:       b,
		HistoricTurns:  v.HistoricTurnCount(),
		HistoricRounds: v.HistoricRoundCount(),
		HistoryTurns:   len(v.History),
		ToolCallRounds: len(v.ToolCallRounds),
		IsContinuation: v.IsContinuation,
		Context:        v,
	}, nil
}

func (s *Service) Split(ctx context.Context, sessionID string) (*SplitReport, error) {
	conv, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Split(conv, s.policy, s.registry)
}

type DryRunReport struct {
	SessionID          string             `json:"session_id"`
	InputTurns         int                `json:"input_turns"`
	InputRounds        int                `json:"input_rounds"`
	NothingToSummarize bool               `json:"nothing_to_summarize"`
	Hint               string             `json:"hint,omitempty"`
	Result             *compaction.Result `json:"result,omitempty"`
	DurationMs         int64              `json:"duration_ms"`
}

// DryRun runs one attempt and never commits.
func (s *Service) DryRun(ctx context.Context, conv *conversation.Conversation) (*DryRunReport, error) {
	if s.summarizer == nil {
		return nil, ErrSummarizerUnavailable
	}
	rep := &DryRunReport{
		SessionID:   conv.SessionID(),
		InputTurns:  conv.TurnCount(),
		InputRounds: conv.RoundCount(),
	}
	start := time.Now()
	res, err := s.summarizer.AttemptCompaction(ctx, conv, s.Options())
	rep.DurationMs = time.Since(start).Milliseconds()
	if errors.Is(err, compaction.ErrNothingToSummarize) {
		rep.NothingToSummarize = true
		rep.Hint = NothingToSummarizeHint
		return rep, nil
	}
	if err != nil {
		return nil, err
	}
	rep.Result = res
	return rep, nil
}

func (s *Service) DryRunSession(ctx context.Context, sessionID string) (*DryRunReport, error) {
	conv, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.DryRun(ctx, conv)
}

type CompactReport struct {
	DryRunReport
	Committed bool   `json:"committed"`
	Conflict  bool   `json:"conflict,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Compact attempts, then commits to memory and the store. Losing the commit
// race is reported, not treated as an error.
func (s *Service) Compact(ctx context.Context, sessionID string) (*CompactReport, error) {
	conv, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	dry, err := s.DryRun(ctx, conv)
	if err != nil {
		return nil, err
	}
	rep := &CompactReport{DryRunReport: *dry}
	if dry.Result == nil {
		rep.Reason = dry.Hint
		return rep, nil
	}
	if dry.Result.Empty {
		rep.Reason = "empty summary not committed"
		return rep, nil
	}

	err = compaction.CommitAndPersist(ctx, s.store, conv, dry.Result)
	outcome := compaction.CommitCommitted
	switch {
	case err == nil:
		rep.Committed = true
	case compaction.IsBenignCommitConflict(err):
		rep.Conflict = true
		rep.Reason = "round already summarized by another writer"
		outcome = compaction.CommitAlreadySummarized
		log.Info().Str("session_id", conv.SessionID()).Str("round_id", dry.Result.BoundaryRoundID).Msg("compaction lost commit race")
	default:
		outcome = compaction.CommitRejected
	}
	s.publishCommit(ctx, dry.Result, outcome, err)
	if outcome == compaction.CommitRejected {
		return nil, err
	}
	return rep, nil
}

func (s *Service) publishCommit(ctx context.Context, res *compaction.Result, outcome string, err error) {
	if s.events == nil {
		return
	}
	ev := compaction.Event{
		Kind:            compaction.EventKindCommit,
		SessionID:       res.SessionID,
		BoundaryRoundID: res.BoundaryRoundID,
		Outcome:         outcome,
		SummaryLength:   len(res.Summary),
		Model:           res.Model,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if perr := s.events.PublishCompactionEvent(context.WithoutCancel(ctx), ev); perr != nil {
		log.Warn().Err(perr).Str("session_id", res.SessionID).Msg("failed to publish commit event")
	}
}

// ClearSummaries clears one round's summary, or every summary when roundID
// is empty. It returns how many summaries were removed.
func (s *Service) ClearSummaries(ctx context.Context, sessionID, roundID string) (int, error) {
	conv, err := s.Load(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if roundID == "" {
		n, err := s.store.ClearAllSummaries(ctx, conv.SessionID())
		if err != nil {
			return 0, err
		}
		log.Info().Str("session_id", conv.SessionID()).Int("count", n).Msg("cleared all summaries")
		return n, nil
	}
	cleared, err := s.store.ClearSummary(ctx, conv.SessionID(), roundID)
	if err != nil {
		return 0, err
	}
	if !cleared {
		return 0, nil
	}
	log.Info().Str("session_id", conv.SessionID()).Str("round_id", roundID).Msg("cleared summary")
	return 1, nil
}
