// Package anthropicchat implements llm.Endpoint on top of the Anthropic SDK.
package anthropicchat

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roundup/pkg/llm"
)

const (
	defaultMaxTokens    = 4096
	stopReasonRefusal   = "refusal"
	contentTypeText     = "text"
	schemaPropertiesKey = "properties"
)

type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	MaxPromptTokens int
	MaxRetries      int
}

type Endpoint struct {
	client anthropic.Client
	desc   llm.Descriptor
}

var _ llm.Endpoint = (*Endpoint)(nil)

func New(cfg Config) (*Endpoint, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("anthropic endpoint: model is empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Endpoint{
		client: anthropic.NewClient(opts...),
		desc: llm.Descriptor{
			Provider:        "anthropic",
			Model:           cfg.Model,
			MaxPromptTokens: cfg.MaxPromptTokens,
		},
	}, nil
}

func (e *Endpoint) Descriptor() llm.Descriptor { return e.desc }

func (e *Endpoint) Invoke(ctx context.Context, messages []llm.Message, opts llm.InvokeOptions) (*llm.Response, error) {
	if opts.Stream {
		return nil, errors.New("anthropic endpoint: streaming is not supported for summarization")
	}
	system, rest := llm.SplitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(e.desc.Model),
		MaxTokens:   int64(defaultMaxTokens),
		Messages:    buildMessages(rest),
		Temperature: anthropic.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = int64(opts.MaxTokens)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(opts.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(opts.Tools))
		for _, tool := range opts.Tools {
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.Parameters[schemaPropertiesKey],
				},
			}
			if required, ok := tool.Parameters["required"].([]any); ok {
				for _, r := range required {
					if s, ok := r.(string); ok {
						toolParam.InputSchema.Required = append(toolParam.InputSchema.Required, s)
					}
				}
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
		if opts.ToolChoice == llm.ToolChoiceNone {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
		}
	}

	log.Debug().
		Str("model", e.desc.Model).
		Int("messages", len(rest)).
		Int("tools", len(opts.Tools)).
		Msg("anthropic: sending summarization request")

	msg, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic endpoint: create message")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == contentTypeText {
			sb.WriteString(block.Text)
		}
	}
	ret := &llm.Response{
		Status: llm.StatusSuccess,
		Text:   sb.String(),
		Usage: &llm.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
	}
	if string(msg.StopReason) == stopReasonRefusal {
		ret.Status = llm.StatusFiltered
		ret.Reason = "model refused"
	}
	return ret, nil
}

func buildMessages(messages []llm.Message) []anthropic.MessageParam {
	ret := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == llm.RoleAssistant {
			ret = append(ret, anthropic.NewAssistantMessage(block))
			continue
		}
		ret = append(ret, anthropic.NewUserMessage(block))
	}
	return ret
}
