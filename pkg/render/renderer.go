package render

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/go-go-golems/glazed/pkg/helpers/templating"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/go-go-golems/roundup/pkg/compaction"
	"github.com/go-go-golems/roundup/pkg/llm"
)

// DefaultMaxToolResultLength caps rendered tool-call arguments, in runes.
const DefaultMaxToolResultLength = 2000

// perMessageOverhead approximates the role and framing tokens of one message.
const perMessageOverhead = 4

var (
	ErrPromptTooLarge      = errors.New("prompt exceeds the endpoint token budget")
	ErrInvalidToolArgument = errors.New("tool call arguments are not valid JSON")
)

const defaultSystemPrompt = `You are compacting the history of a coding agent conversation so the agent can keep working with less context.
{{- if .IsContinuation }}
The conversation continues after this point; write the summary so the agent can pick up where it left off.
{{- end }}
{{- if .HasPriorSummary }}
A summary of the earliest part of the conversation is provided between <previous-summary> tags. Fold it into your summary.
{{- end }}
{{- if .Tools }}

Tools available to the agent: {{ range $i, $t := .Tools }}{{ if $i }}, {{ end }}{{ $t }}{{ end }}.
Tool calls are shown for context only. Do not call any tool.
{{- end }}

Write a structured summary covering:
1. The user's goals and explicit requests, in order.
2. Key technical decisions, facts and code locations discovered.
3. Files read or modified and what was learned from each.
4. Errors hit and how they were resolved.
5. The work in progress at the end of the summarized span and the next step.

The summary covers {{ .HistoricTurns }} turn(s) and {{ .HistoricRounds }} tool-call round(s). Reply with the summary text only.`

const finalInstruction = "Summarize the conversation above following the instructions. Reply with the summary only."

type systemData struct {
	IsContinuation  bool
	HasPriorSummary bool
	Tools           []string
	HistoricTurns   int
	HistoricRounds  int
	Model           string
}

// TemplateRenderer renders the conversation-summary prompt from a virtual
// context and enforces the endpoint's prompt token budget.
type TemplateRenderer struct {
	system              *template.Template
	counter             TokenCounter
	maxToolResultLength int
}

var _ compaction.Renderer = (*TemplateRenderer)(nil)

type Option func(*TemplateRenderer) error

// WithSystemPrompt replaces the built-in system prompt template.
func WithSystemPrompt(text string) Option {
	return func(r *TemplateRenderer) error {
		t, err := templating.CreateTemplate("system-prompt").Parse(text)
		if err != nil {
			return errors.Wrap(err, "parse system prompt template")
		}
		r.system = t
		return nil
	}
}

func WithTokenCounter(c TokenCounter) Option {
	return func(r *TemplateRenderer) error {
		r.counter = c
		return nil
	}
}

func WithMaxToolResultLength(n int) Option {
	return func(r *TemplateRenderer) error {
		if n <= 0 {
			return errors.Errorf("max tool result length must be positive, got %d", n)
		}
		r.maxToolResultLength = n
		return nil
	}
}

func NewTemplateRenderer(opts ...Option) (*TemplateRenderer, error) {
	r := &TemplateRenderer{maxToolResultLength: DefaultMaxToolResultLength}
	if err := WithSystemPrompt(defaultSystemPrompt)(r); err != nil {
		return nil, err
	}
	for _, o := range opts {
		if err := o(r); err != nil {
			return nil, err
		}
	}
	if r.counter == nil {
		c, err := NewTokenCounter(BackendTokenizer, "cl100k_base")
		if err != nil {
			return nil, err
		}
		r.counter = c
	}
	return r, nil
}

// builder accumulates messages and their token cost.
type builder struct {
	counter  TokenCounter
	budget   int
	messages []llm.Message
	tokens   int
}

func (b *builder) add(role llm.Role, content string, turn, round int) error {
	n, err := b.counter.Count(content)
	if err != nil {
		return &compaction.RenderError{TurnIndex: turn, RoundIndex: round, Cause: errors.Wrap(err, "count tokens")}
	}
	b.tokens += n + perMessageOverhead
	if b.budget > 0 && b.tokens > b.budget {
		return &compaction.RenderError{
			TurnIndex:  turn,
			RoundIndex: round,
			Cause:      errors.Wrapf(ErrPromptTooLarge, "%d tokens, budget %d", b.tokens, b.budget),
		}
	}
	b.messages = append(b.messages, llm.Message{Role: role, Content: content})
	return nil
}

func (r *TemplateRenderer) Render(ctx context.Context, endpoint llm.Descriptor, kind compaction.TemplateKind, vctx *compaction.VirtualContext) (*compaction.Rendered, error) {
	if kind != compaction.TemplateConversationSummary {
		return nil, &compaction.RenderError{TurnIndex: -1, RoundIndex: -1, Cause: errors.Errorf("unknown template %q", kind)}
	}
	if vctx == nil {
		return nil, &compaction.RenderError{TurnIndex: -1, RoundIndex: -1, Cause: errors.New("nil virtual context")}
	}

	b := &builder{counter: r.counter, budget: endpoint.MaxPromptTokens}

	data := systemData{
		IsContinuation:  vctx.IsContinuation,
		HasPriorSummary: vctx.PriorSummary != nil,
		HistoricTurns:   vctx.HistoricTurnCount(),
		HistoricRounds:  vctx.HistoricRoundCount(),
		Model:           endpoint.Model,
	}
	if vctx.Tools != nil {
		for _, t := range vctx.Tools.Available {
			data.Tools = append(data.Tools, t.Name)
		}
	}
	var sys strings.Builder
	if err := r.system.Execute(&sys, data); err != nil {
		return nil, &compaction.RenderError{TurnIndex: -1, RoundIndex: -1, Cause: errors.Wrap(err, "execute system prompt")}
	}
	if err := b.add(llm.RoleSystem, strings.TrimSpace(sys.String()), -1, -1); err != nil {
		return nil, err
	}

	if vctx.PriorSummary != nil {
		text := "<previous-summary>\n" + vctx.PriorSummary.Text + "\n</previous-summary>"
		if err := b.add(llm.RoleUser, text, -1, -1); err != nil {
			return nil, err
		}
	}

	for _, turn := range vctx.History {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.add(llm.RoleUser, turn.Request, turn.Index, -1); err != nil {
			return nil, err
		}
		if vctx.Tools == nil {
			continue
		}
		for _, round := range turn.Rounds {
			if err := r.addRound(b, round); err != nil {
				return nil, err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.add(llm.RoleUser, vctx.Query, vctx.QueryTurnIndex, -1); err != nil {
		return nil, err
	}
	if vctx.Tools != nil {
		for _, round := range vctx.ToolCallRounds {
			if err := r.addRound(b, round); err != nil {
				return nil, err
			}
		}
	}

	if err := b.add(llm.RoleUser, finalInstruction, -1, -1); err != nil {
		return nil, err
	}
	return &compaction.Rendered{Messages: b.messages, TokenCount: b.tokens}, nil
}

func (r *TemplateRenderer) addRound(b *builder, round compaction.RoundView) error {
	var sb strings.Builder
	sb.WriteString(round.Response)
	for _, call := range round.ToolCalls {
		args := call.Arguments
		if args == "" {
			args = "{}"
		}
		if !gjson.Valid(args) {
			return &compaction.RenderError{
				TurnIndex:  round.TurnIndex,
				RoundIndex: round.RoundIndex,
				Cause:      errors.Wrapf(ErrInvalidToolArgument, "tool %s call %s", call.Name, call.ID),
			}
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[tool call] %s %s", call.Name, truncate(args, r.maxToolResultLength))
	}
	return b.add(llm.RoleAssistant, sb.String(), round.TurnIndex, round.RoundIndex)
}

func truncate(s string, max int) string {
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	return string(rs[:max]) + "...[truncated]"
}
