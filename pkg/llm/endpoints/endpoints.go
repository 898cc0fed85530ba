// Package endpoints builds the summarization endpoint from command flags.
package endpoints

import (
	"os"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"

	"github.com/go-go-golems/roundup/pkg/llm"
	"github.com/go-go-golems/roundup/pkg/llm/anthropicchat"
	"github.com/go-go-golems/roundup/pkg/llm/breaker"
	"github.com/go-go-golems/roundup/pkg/llm/geppettochat"
	"github.com/go-go-golems/roundup/pkg/llm/openaichat"
)

const SectionSlug = "summarizer"

const (
	ProviderGeppetto  = "geppetto"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Settings struct {
	Provider        string `glazed:"summarizer-provider"`
	Model           string `glazed:"summarizer-model"`
	APIKey          string `glazed:"summarizer-api-key"`
	BaseURL         string `glazed:"summarizer-base-url"`
	MaxPromptTokens int    `glazed:"max-prompt-tokens"`
	MaxRetries      int    `glazed:"summarizer-max-retries"`
	Breaker         bool   `glazed:"summarizer-breaker"`
}

func NewSection() (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"Summarization endpoint",
		schema.WithFields(
			fields.New("summarizer-provider", fields.TypeChoice,
				fields.WithChoices(ProviderGeppetto, ProviderOpenAI, ProviderAnthropic),
				fields.WithDefault(ProviderGeppetto),
				fields.WithHelp("Endpoint used for summaries; geppetto uses the ai-* flags")),
			fields.New("summarizer-model", fields.TypeString, fields.WithDefault(""),
				fields.WithHelp("Model id for the openai and anthropic providers")),
			fields.New("summarizer-api-key", fields.TypeString, fields.WithDefault(""),
				fields.WithHelp("API key; falls back to OPENAI_API_KEY or ANTHROPIC_API_KEY")),
			fields.New("summarizer-base-url", fields.TypeString, fields.WithDefault(""),
				fields.WithHelp("Override the provider base URL")),
			fields.New("max-prompt-tokens", fields.TypeInteger, fields.WithDefault(100000),
				fields.WithHelp("Prompt token budget of the summarization endpoint")),
			fields.New("summarizer-max-retries", fields.TypeInteger, fields.WithDefault(2),
				fields.WithHelp("SDK-level retries for the openai and anthropic providers")),
			fields.New("summarizer-breaker", fields.TypeBool, fields.WithDefault(true),
				fields.WithHelp("Wrap the endpoint in a circuit breaker")),
		),
	)
}

// FromParsedValues decodes Settings and builds the endpoint. parsed must also
// carry the geppetto sections when the geppetto provider is selected.
func FromParsedValues(parsed *values.Values) (llm.Endpoint, Settings, error) {
	s := Settings{}
	if err := parsed.DecodeSectionInto(SectionSlug, &s); err != nil {
		return nil, s, errors.Wrap(err, "decode summarizer settings")
	}
	ep, err := Build(s, parsed)
	return ep, s, err
}

func Build(s Settings, parsed *values.Values) (llm.Endpoint, error) {
	var (
		ep  llm.Endpoint
		err error
	)
	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case "", ProviderGeppetto:
		if parsed == nil {
			return nil, errors.New("geppetto provider needs parsed geppetto sections")
		}
		ep, err = geppettochat.NewFromParsedValues(parsed, s.MaxPromptTokens)
	case ProviderOpenAI:
		ep, err = openaichat.New(openaichat.Config{
			APIKey:          firstNonEmpty(s.APIKey, os.Getenv("OPENAI_API_KEY")),
			BaseURL:         s.BaseURL,
			Model:           s.Model,
			MaxPromptTokens: s.MaxPromptTokens,
			MaxRetries:      s.MaxRetries,
		})
	case ProviderAnthropic:
		ep, err = anthropicchat.New(anthropicchat.Config{
			APIKey:          firstNonEmpty(s.APIKey, os.Getenv("ANTHROPIC_API_KEY")),
			BaseURL:         s.BaseURL,
			Model:           s.Model,
			MaxPromptTokens: s.MaxPromptTokens,
			MaxRetries:      s.MaxRetries,
		})
	default:
		return nil, errors.Errorf("unknown summarizer provider %q", s.Provider)
	}
	if err != nil {
		return nil, err
	}
	if s.Breaker {
		ep = breaker.Wrap(ep, breaker.DefaultConfig("summarizer-"+ep.Descriptor().Provider))
	}
	return ep, nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
