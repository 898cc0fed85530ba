package cmds

import (
	"os"
	"path/filepath"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/roundup/pkg/compaction"
	"github.com/go-go-golems/roundup/pkg/llm/endpoints"
	"github.com/go-go-golems/roundup/pkg/tools"
)

const defaultFlagsFile = "~/.roundup/debug-flags.yaml"

// NewToolRegistry returns the tool catalogue described to the summarizer.
func NewToolRegistry() (tools.Registry, error) {
	reg, err := tools.NewBuiltinRegistry()
	if err != nil {
		return nil, err
	}
	return tools.FromGeppetto(reg), nil
}

// NewSummarizer builds the summarizer from the summarizer and compaction
// sections.
func NewSummarizer(parsed *values.Values, registry tools.Registry, opts ...compaction.SummarizerOption) (*compaction.Summarizer, error) {
	cs, err := decodeCompactionSettings(parsed)
	if err != nil {
		return nil, err
	}
	ep, es, err := endpoints.FromParsedValues(parsed)
	if err != nil {
		return nil, errors.Wrap(err, "build summarizer endpoint")
	}
	renderer, err := cs.NewRenderer(ep.Descriptor())
	if err != nil {
		return nil, errors.Wrap(err, "build prompt renderer")
	}
	log.Debug().
		Str("provider", es.Provider).
		Str("model", ep.Descriptor().Model).
		Int("max_prompt_tokens", ep.Descriptor().MaxPromptTokens).
		Str("token_counter", cs.TokenCounter).
		Msg("summarizer configured")
	opts = append([]compaction.SummarizerOption{compaction.WithToolRegistry(registry)}, opts...)
	return compaction.NewSummarizer(renderer, ep, opts...)
}

// LoadFlagsFile restores persisted debug flags into f. A missing file leaves
// f untouched.
func LoadFlagsFile(path string, f *compaction.DebugFlags) error {
	p, err := flagsFilePath(path)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "read debug flags %s", p)
	}
	s := compaction.DebugSettings{}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return errors.Wrapf(err, "parse debug flags %s", p)
	}
	f.Set(s)
	return nil
}

func SaveFlagsFile(path string, s compaction.DebugSettings) error {
	p, err := flagsFilePath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, "create flags directory")
	}
	b, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshal debug flags")
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return errors.Wrapf(err, "write debug flags %s", p)
	}
	return nil
}

func flagsFileFlag() *fields.Definition {
	return fields.New(
		"flags-file",
		fields.TypeString,
		fields.WithDefault(defaultFlagsFile),
		fields.WithHelp("YAML file holding the persisted debug flags"),
	)
}

func flagsFilePath(path string) (string, error) {
	if path == "" {
		path = defaultFlagsFile
	}
	return expandHome(path)
}
