package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/roundup/pkg/conversation"
)

type ImportCommand struct {
	*glazed_cmds.CommandDescription
}

type ImportSettings struct {
	File      string `glazed:"file"`
	SessionID string `glazed:"session-id"`
	Mock      bool   `glazed:"mock"`
}

var _ glazed_cmds.WriterCommand = (*ImportCommand)(nil)

func NewImportCommand() (*ImportCommand, error) {
	storeSection, err := NewStoreSection()
	if err != nil {
		return nil, err
	}
	return &ImportCommand{
		CommandDescription: glazed_cmds.NewCommandDescription(
			"import",
			glazed_cmds.WithShort("Import a YAML conversation fixture into the store"),
			glazed_cmds.WithLong("Import a YAML conversation snapshot. Summaries already stored for the same "+
				"rounds are kept. A fixture without session id gets a random one."),
			glazed_cmds.WithFlags(
				fields.New("session-id", fields.TypeString, fields.WithDefault(""),
					fields.WithHelp("Override the fixture's session id")),
				fields.New("mock", fields.TypeBool, fields.WithDefault(false),
					fields.WithHelp("Import the built-in mock conversation")),
			),
			glazed_cmds.WithArguments(
				fields.New("file", fields.TypeString, fields.WithDefault(""),
					fields.WithHelp("YAML fixture, - for stdin")),
			),
			glazed_cmds.WithSections(storeSection),
		),
	}, nil
}

func (c *ImportCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s := &ImportSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	conv, err := readFixture(s)
	if err != nil {
		return err
	}

	store, err := OpenStore(parsed)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Save(ctx, conv); err != nil {
		return err
	}
	log.Info().Str("session_id", conv.SessionID()).Int("turns", conv.TurnCount()).Int("rounds", conv.RoundCount()).Msg("conversation imported")
	_, _ = fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("Imported %s (%d turns, %d rounds)", conv.SessionID(), conv.TurnCount(), conv.RoundCount())))
	return nil
}

func readFixture(s *ImportSettings) (*conversation.Conversation, error) {
	var snap conversation.Snapshot
	switch {
	case s.Mock:
		snap = conversation.NewMock().Snapshot()
	case s.File == "":
		return nil, errors.New("a fixture file or --mock is required")
	default:
		var (
			b   []byte
			err error
		)
		if s.File == "-" {
			b, err = io.ReadAll(os.Stdin)
		} else {
			b, err = os.ReadFile(s.File)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read fixture %s", s.File)
		}
		if err := yaml.Unmarshal(b, &snap); err != nil {
			return nil, errors.Wrapf(err, "parse fixture %s", s.File)
		}
	}
	if s.SessionID != "" {
		snap.SessionID = s.SessionID
	}
	if strings.TrimSpace(snap.SessionID) == "" {
		snap.SessionID = uuid.NewString()
	}
	return conversation.FromSnapshot(snap)
}

type ExportCommand struct {
	*glazed_cmds.CommandDescription
}

var _ glazed_cmds.WriterCommand = (*ExportCommand)(nil)

func NewExportCommand() (*ExportCommand, error) {
	storeSection, err := NewStoreSection()
	if err != nil {
		return nil, err
	}
	return &ExportCommand{
		CommandDescription: glazed_cmds.NewCommandDescription(
			"export",
			glazed_cmds.WithShort("Print a stored conversation as a YAML fixture"),
			glazed_cmds.WithFlags(mockFlag()),
			glazed_cmds.WithArguments(sessionArgument()),
			glazed_cmds.WithSections(storeSection),
		),
	}, nil
}

func (c *ExportCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s := &SessionSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	conv, closeStore, err := loadConversation(ctx, parsed, s)
	if err != nil {
		return err
	}
	defer closeStore()

	b, err := conversation.ToYAML(conv)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return errors.Wrap(err, "write fixture")
}
