// Package geppettochat adapts a geppetto inference engine to llm.Endpoint.
package geppettochat

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/geppetto/pkg/inference/engine"
	"github.com/go-go-golems/geppetto/pkg/inference/engine/factory"
	"github.com/go-go-golems/geppetto/pkg/steps/ai/settings"
	"github.com/go-go-golems/geppetto/pkg/turns"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roundup/pkg/llm"
)

// Endpoint runs one inference on a geppetto engine per Invoke.
//
// Geppetto engines have no tool_choice knob, so tools are always disabled on
// the turn. When tools are passed they are described in the system prompt.
type Endpoint struct {
	eng  engine.Engine
	desc llm.Descriptor
}

var _ llm.Endpoint = (*Endpoint)(nil)

func New(eng engine.Engine, desc llm.Descriptor) (*Endpoint, error) {
	if eng == nil {
		return nil, errors.New("geppetto endpoint: engine is nil")
	}
	if desc.Provider == "" {
		desc.Provider = "geppetto"
	}
	return &Endpoint{eng: eng, desc: desc}, nil
}

// NewFromParsedValues builds the engine from the geppetto sections with the
// sampling temperature pinned to zero.
func NewFromParsedValues(parsed *values.Values, maxPromptTokens int) (*Endpoint, error) {
	stepSettings, err := settings.NewStepSettingsFromParsedValues(parsed)
	if err != nil {
		return nil, errors.Wrap(err, "geppetto endpoint: step settings")
	}
	temperature := 0.0
	stepSettings.Chat.Temperature = &temperature

	eng, err := factory.NewEngineFromStepSettings(stepSettings)
	if err != nil {
		return nil, errors.Wrap(err, "geppetto endpoint: create engine")
	}

	desc := llm.Descriptor{Provider: "geppetto", MaxPromptTokens: maxPromptTokens}
	if stepSettings.Chat.Engine != nil {
		desc.Model = *stepSettings.Chat.Engine
	}
	if stepSettings.Chat.ApiType != nil {
		desc.Provider = string(*stepSettings.Chat.ApiType)
	}
	return New(eng, desc)
}

func (e *Endpoint) Descriptor() llm.Descriptor { return e.desc }

func (e *Endpoint) Invoke(ctx context.Context, messages []llm.Message, opts llm.InvokeOptions) (*llm.Response, error) {
	if opts.Stream {
		return nil, errors.New("geppetto endpoint: streaming is not supported for summarization")
	}
	t := BuildTurn(messages, opts.Tools)

	out, err := e.eng.RunInference(ctx, t)
	if err != nil {
		return nil, errors.Wrap(err, "geppetto endpoint: run inference")
	}
	text := lastAssistantText(out)
	log.Debug().
		Str("model", e.desc.Model).
		Int("blocks", len(out.Blocks)).
		Int("text_len", len(text)).
		Msg("geppetto: summarization inference done")
	return &llm.Response{Status: llm.StatusSuccess, Text: text}, nil
}

// BuildTurn converts rendered messages to a geppetto turn with tool use disabled.
func BuildTurn(messages []llm.Message, tools []llm.ToolSchema) *turns.Turn {
	t := &turns.Turn{ID: uuid.NewString()}
	system, rest := llm.SplitSystem(messages)
	if desc := describeTools(tools); desc != "" {
		if system != "" {
			system += "\n\n"
		}
		system += desc
	}
	if system != "" {
		turns.AppendBlock(t, turns.NewSystemTextBlock(system))
	}
	for _, m := range rest {
		switch m.Role {
		case llm.RoleAssistant:
			turns.AppendBlock(t, turns.NewAssistantTextBlock(m.Content))
		default:
			turns.AppendBlock(t, turns.NewUserTextBlock(m.Content))
		}
	}
	_ = engine.KeyToolConfig.Set(&t.Data, engine.ToolConfig{Enabled: false})
	return t
}

func describeTools(tools []llm.ToolSchema) string {
	if len(tools) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("The agent had these tools available. Do not call any of them:\n")
	for _, tool := range tools {
		_, _ = fmt.Fprintf(&sb, "- %s: %s\n", tool.Name, tool.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func lastAssistantText(t *turns.Turn) string {
	if t == nil {
		return ""
	}
	for i := len(t.Blocks) - 1; i >= 0; i-- {
		b := t.Blocks[i]
		if b.Kind != turns.BlockKindLLMText || b.Payload == nil {
			continue
		}
		if s, ok := b.Payload[turns.PayloadKeyText].(string); ok {
			return s
		}
	}
	return ""
}
