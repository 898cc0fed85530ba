package cmds

import (
	"context"
	"io"

	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"

	"github.com/go-go-golems/roundup/pkg/debugapi"
)

type SplitCommand struct {
	*glazed_cmds.CommandDescription
}

type SplitSettings struct {
	Session string `glazed:"session"`
	Mock    bool   `glazed:"mock"`
	Format  string `glazed:"format"`
}

var _ glazed_cmds.WriterCommand = (*SplitCommand)(nil)

func NewSplitCommand() (*SplitCommand, error) {
	storeSection, err := NewStoreSection()
	if err != nil {
		return nil, err
	}
	compactionSection, err := NewCompactionSection()
	if err != nil {
		return nil, err
	}
	return &SplitCommand{
		CommandDescription: glazed_cmds.NewCommandDescription(
			"split",
			glazed_cmds.WithShort("Show the split point and virtual context without calling a model"),
			glazed_cmds.WithFlags(mockFlag(), formatFlag()),
			glazed_cmds.WithArguments(sessionArgument()),
			glazed_cmds.WithSections(storeSection, compactionSection),
		),
	}, nil
}

func (c *SplitCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s := &SplitSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	cs, err := decodeCompactionSettings(parsed)
	if err != nil {
		return err
	}
	registry, err := NewToolRegistry()
	if err != nil {
		return err
	}
	conv, closeStore, err := loadConversation(ctx, parsed, &SessionSettings{Session: s.Session, Mock: s.Mock})
	if err != nil {
		return err
	}
	defer closeStore()

	rep, err := debugapi.Split(conv, cs.Policy(), registry)
	if err != nil {
		return err
	}
	if ok, err := writeStructured(w, s.Format, rep); ok || err != nil {
		return err
	}
	writeSplitReport(w, rep)
	return nil
}
