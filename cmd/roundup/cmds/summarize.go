package cmds

import (
	"context"
	"io"

	geppettosections "github.com/go-go-golems/geppetto/pkg/sections"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"

	"github.com/go-go-golems/roundup/pkg/compaction"
	"github.com/go-go-golems/roundup/pkg/conversation"
	"github.com/go-go-golems/roundup/pkg/debugapi"
	"github.com/go-go-golems/roundup/pkg/llm/endpoints"
	"github.com/go-go-golems/roundup/pkg/persistence/chatstore"
)

type SummarizeSettings struct {
	Session   string `glazed:"session"`
	Mock      bool   `glazed:"mock"`
	Format    string `glazed:"format"`
	FlagsFile string `glazed:"flags-file"`
}

// summarizerSections returns the sections every command that calls the
// summarization model needs.
func summarizerSections() ([]schema.Section, error) {
	geSections, err := geppettosections.CreateGeppettoSections()
	if err != nil {
		return nil, errors.Wrap(err, "create geppetto sections")
	}
	endpointSection, err := endpoints.NewSection()
	if err != nil {
		return nil, err
	}
	compactionSection, err := NewCompactionSection()
	if err != nil {
		return nil, err
	}
	storeSection, err := NewStoreSection()
	if err != nil {
		return nil, err
	}
	return append(geSections, endpointSection, compactionSection, storeSection), nil
}

// newSummarizingService wires the store, the summarizer and the debug flags
// for a single CLI attempt. In mock mode the store only holds the mock
// conversation.
func newSummarizingService(
	ctx context.Context,
	parsed *values.Values,
	s *SummarizeSettings,
	opts ...compaction.SummarizerOption,
) (*debugapi.Service, string, func(), error) {
	cs, err := decodeCompactionSettings(parsed)
	if err != nil {
		return nil, "", nil, err
	}
	flags := compaction.Flags()
	if err := LoadFlagsFile(s.FlagsFile, flags); err != nil {
		return nil, "", nil, err
	}
	cs.ApplyOverrides(flags)

	registry, err := NewToolRegistry()
	if err != nil {
		return nil, "", nil, err
	}
	summarizer, err := NewSummarizer(parsed, registry, opts...)
	if err != nil {
		return nil, "", nil, err
	}

	var (
		store   chatstore.Store
		session = s.Session
	)
	if s.Mock {
		mem := chatstore.NewInMemoryStore(1)
		if err := mem.Save(ctx, conversation.NewMock()); err != nil {
			return nil, "", nil, err
		}
		store = mem
		session = conversation.MockSessionID
	} else {
		sqlStore, err := OpenStore(parsed)
		if err != nil {
			return nil, "", nil, err
		}
		store = sqlStore
	}

	svc := debugapi.NewService(store,
		debugapi.WithSummarizer(summarizer),
		debugapi.WithToolRegistry(registry),
		debugapi.WithFlags(flags),
		debugapi.WithSplitPolicy(cs.Policy()),
	)
	return svc, session, func() { _ = store.Close() }, nil
}

func summarizeFlags() []*fields.Definition {
	return []*fields.Definition{mockFlag(), formatFlag(), flagsFileFlag()}
}

type DryRunCommand struct {
	*glazed_cmds.CommandDescription
}

var _ glazed_cmds.WriterCommand = (*DryRunCommand)(nil)

func NewDryRunCommand() (*DryRunCommand, error) {
	sections, err := summarizerSections()
	if err != nil {
		return nil, err
	}
	return &DryRunCommand{
		CommandDescription: glazed_cmds.NewCommandDescription(
			"dry-run",
			glazed_cmds.WithShort("Run one compaction attempt and print the summary without committing it"),
			glazed_cmds.WithFlags(summarizeFlags()...),
			glazed_cmds.WithArguments(sessionArgument()),
			glazed_cmds.WithSections(sections...),
		),
	}, nil
}

func (c *DryRunCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s := &SummarizeSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	svc, session, closeStore, err := newSummarizingService(ctx, parsed, s)
	if err != nil {
		return err
	}
	defer closeStore()

	rep, err := svc.DryRunSession(ctx, session)
	if err != nil {
		return err
	}
	if ok, err := writeStructured(w, s.Format, rep); ok || err != nil {
		return err
	}
	writeDryRunReport(w, rep)
	return nil
}

type CompactCommand struct {
	*glazed_cmds.CommandDescription
}

var _ glazed_cmds.WriterCommand = (*CompactCommand)(nil)

func NewCompactCommand() (*CompactCommand, error) {
	sections, err := summarizerSections()
	if err != nil {
		return nil, err
	}
	return &CompactCommand{
		CommandDescription: glazed_cmds.NewCommandDescription(
			"compact",
			glazed_cmds.WithShort("Run one compaction attempt and commit the summary to the store"),
			glazed_cmds.WithLong("Run one compaction attempt. A non-empty summary is written onto the boundary round, "+
				"in memory and in the store. Empty summaries are reported and never committed."),
			glazed_cmds.WithFlags(summarizeFlags()...),
			glazed_cmds.WithArguments(sessionArgument()),
			glazed_cmds.WithSections(sections...),
		),
	}, nil
}

func (c *CompactCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s := &SummarizeSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	if s.Mock {
		return errors.New("compact does not support --mock, use dry-run")
	}
	svc, session, closeStore, err := newSummarizingService(ctx, parsed, s)
	if err != nil {
		return err
	}
	defer closeStore()

	rep, err := svc.Compact(ctx, session)
	if err != nil {
		return err
	}
	if ok, err := writeStructured(w, s.Format, rep); ok || err != nil {
		return err
	}
	writeCompactReport(w, rep)
	return nil
}
