package cmds

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"

	"github.com/go-go-golems/roundup/pkg/compaction"
	"github.com/go-go-golems/roundup/pkg/llm"
	"github.com/go-go-golems/roundup/pkg/persistence/chatstore"
	"github.com/go-go-golems/roundup/pkg/render"
)

const (
	StoreSectionSlug      = "store"
	CompactionSectionSlug = "compaction"
)

const defaultStoreDB = "~/.roundup/roundup.db"

type StoreSettings struct {
	DB  string `glazed:"store-db"`
	DSN string `glazed:"store-dsn"`
}

func NewStoreSection() (schema.Section, error) {
	return schema.NewSection(
		StoreSectionSlug,
		"Conversation store",
		schema.WithFields(
			fields.New(
				"store-dsn",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("SQLite DSN for the conversation store (preferred over store-db)"),
			),
			fields.New(
				"store-db",
				fields.TypeString,
				fields.WithDefault(defaultStoreDB),
				fields.WithHelp("SQLite file path for the conversation store"),
			),
		),
	)
}

// OpenStore opens the SQLite store described by the store section.
func OpenStore(parsed *values.Values) (*chatstore.SQLiteStore, error) {
	s := StoreSettings{}
	if err := parsed.DecodeSectionInto(StoreSectionSlug, &s); err != nil {
		return nil, errors.Wrap(err, "decode store settings")
	}
	dsn, err := resolveDSN(s)
	if err != nil {
		return nil, err
	}
	return chatstore.NewSQLiteStore(dsn)
}

func resolveDSN(s StoreSettings) (string, error) {
	if dsn := strings.TrimSpace(s.DSN); dsn != "" {
		return dsn, nil
	}
	path, err := expandHome(strings.TrimSpace(s.DB))
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", errors.New("store-dsn or store-db is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "create store directory")
	}
	return chatstore.SQLiteDSNForFile(path)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

type CompactionSettings struct {
	KeepVerbatim        int    `glazed:"keep-verbatim"`
	InjectTools         bool   `glazed:"inject-tools"`
	Verbose             bool   `glazed:"verbose-compaction"`
	MaxToolResultLength int    `glazed:"max-tool-result-length"`
	TokenCounter        string `glazed:"token-counter"`
	TokenEncoding       string `glazed:"token-encoding"`
	SystemPrompt        string `glazed:"system-prompt"`
}

func NewCompactionSection() (schema.Section, error) {
	return schema.NewSection(
		CompactionSectionSlug,
		"Compaction",
		schema.WithFields(
			fields.New("keep-verbatim", fields.TypeInteger,
				fields.WithDefault(compaction.DefaultKeepVerbatim),
				fields.WithHelp("Most recent unsummarized rounds left out of the summary")),
			fields.New("inject-tools", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Force the inject-tools debug flag on for this run")),
			fields.New("verbose-compaction", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Force the verbose debug flag on for this run")),
			fields.New("max-tool-result-length", fields.TypeInteger,
				fields.WithDefault(render.DefaultMaxToolResultLength),
				fields.WithHelp("Truncate tool arguments longer than this many characters")),
			fields.New("token-counter", fields.TypeChoice,
				fields.WithChoices(render.BackendTokenizer, render.BackendTiktoken, render.BackendChars),
				fields.WithDefault(render.BackendTokenizer),
				fields.WithHelp("Token counting backend used for the prompt budget")),
			fields.New("token-encoding", fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Encoding name; derived from the model when empty")),
			fields.New("system-prompt", fields.TypeStringFromFile,
				fields.WithHelp("File with a custom system prompt template")),
		),
	)
}

func decodeCompactionSettings(parsed *values.Values) (CompactionSettings, error) {
	s := CompactionSettings{}
	if err := parsed.DecodeSectionInto(CompactionSectionSlug, &s); err != nil {
		return s, errors.Wrap(err, "decode compaction settings")
	}
	return s, nil
}

// Policy returns the split policy for the settings.
func (s CompactionSettings) Policy() compaction.SplitPolicy {
	return compaction.SplitPolicy{KeepVerbatim: s.KeepVerbatim}
}

// ApplyOverrides turns on the debug flags that were forced from the command
// line. Flags already on stay on.
func (s CompactionSettings) ApplyOverrides(f *compaction.DebugFlags) {
	if s.InjectTools {
		f.SetInjectTools(true)
	}
	if s.Verbose {
		f.SetVerbose(true)
	}
}

// NewRenderer builds the prompt renderer for an endpoint.
func (s CompactionSettings) NewRenderer(desc llm.Descriptor) (*render.TemplateRenderer, error) {
	enc := s.TokenEncoding
	if enc == "" {
		enc = render.EncodingForModel(desc.Model)
	}
	counter, err := render.NewTokenCounter(s.TokenCounter, enc)
	if err != nil {
		return nil, err
	}
	opts := []render.Option{render.WithTokenCounter(counter)}
	if s.MaxToolResultLength > 0 {
		opts = append(opts, render.WithMaxToolResultLength(s.MaxToolResultLength))
	}
	if strings.TrimSpace(s.SystemPrompt) != "" {
		opts = append(opts, render.WithSystemPrompt(s.SystemPrompt))
	}
	return render.NewTemplateRenderer(opts...)
}
