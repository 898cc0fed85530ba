// Package openaichat implements llm.Endpoint on top of the official OpenAI SDK.
package openaichat

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roundup/pkg/llm"
)

const finishReasonContentFilter = "content_filter"

type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	MaxPromptTokens int
	MaxRetries      int
}

type Endpoint struct {
	client openai.Client
	desc   llm.Descriptor
}

var _ llm.Endpoint = (*Endpoint)(nil)

func New(cfg Config) (*Endpoint, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("openai endpoint: model is empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Endpoint{
		client: openai.NewClient(opts...),
		desc: llm.Descriptor{
			Provider:        "openai",
			Model:           cfg.Model,
			MaxPromptTokens: cfg.MaxPromptTokens,
		},
	}, nil
}

func (e *Endpoint) Descriptor() llm.Descriptor { return e.desc }

func (e *Endpoint) Invoke(ctx context.Context, messages []llm.Message, opts llm.InvokeOptions) (*llm.Response, error) {
	if opts.Stream {
		return nil, errors.New("openai endpoint: streaming is not supported for summarization")
	}
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(e.desc.Model),
		Messages:    buildMessages(messages),
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if len(opts.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(opts.Tools))
		for _, tool := range opts.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  shared.FunctionParameters(tool.Parameters),
				},
			})
		}
		params.Tools = tools
		if opts.ToolChoice != llm.ToolChoiceAuto {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(string(opts.ToolChoice)),
			}
		}
	}

	log.Debug().
		Str("model", e.desc.Model).
		Int("messages", len(messages)).
		Int("tools", len(opts.Tools)).
		Msg("openai: sending summarization request")

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "openai endpoint: chat completion")
	}

	ret := &llm.Response{
		Status: llm.StatusSuccess,
		Usage: &llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}
	if len(resp.Choices) == 0 {
		ret.Status = llm.StatusError
		ret.Reason = "no choices in response"
		return ret, nil
	}
	choice := resp.Choices[0]
	switch {
	case string(choice.FinishReason) == finishReasonContentFilter:
		ret.Status = llm.StatusFiltered
		ret.Reason = "content filtered"
	case choice.Message.Refusal != "":
		ret.Status = llm.StatusFiltered
		ret.Reason = choice.Message.Refusal
	}
	ret.Text = choice.Message.Content
	return ret, nil
}

func buildMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	ret := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			ret = append(ret, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			ret = append(ret, openai.AssistantMessage(m.Content))
		default:
			ret = append(ret, openai.UserMessage(m.Content))
		}
	}
	return ret
}
