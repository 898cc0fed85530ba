package cmds

import (
	"context"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"

	"github.com/go-go-golems/roundup/pkg/conversation"
	"github.com/go-go-golems/roundup/pkg/debugapi"
)

type InspectCommand struct {
	*glazed_cmds.CommandDescription
}

type SessionSettings struct {
	Session string `glazed:"session"`
	Mock    bool   `glazed:"mock"`
}

var _ glazed_cmds.GlazeCommand = (*InspectCommand)(nil)

func sessionArgument() *fields.Definition {
	return fields.New(
		"session",
		fields.TypeString,
		fields.WithDefault(debugapi.LatestSession),
		fields.WithHelp("Session id, or latest"),
	)
}

func mockFlag() *fields.Definition {
	return fields.New(
		"mock",
		fields.TypeBool,
		fields.WithDefault(false),
		fields.WithHelp("Use the built-in mock conversation instead of the store"),
	)
}

func NewInspectCommand() (*InspectCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}
	storeSection, err := NewStoreSection()
	if err != nil {
		return nil, err
	}

	desc := glazed_cmds.NewCommandDescription(
		"inspect",
		glazed_cmds.WithShort("Show the turns and rounds of a conversation"),
		glazed_cmds.WithLong("List every round of a stored conversation with its tools and whether it carries a summary."),
		glazed_cmds.WithFlags(mockFlag()),
		glazed_cmds.WithArguments(sessionArgument()),
		glazed_cmds.WithSections(glazedSection, commandSettingsSection, storeSection),
	)
	return &InspectCommand{CommandDescription: desc}, nil
}

func (c *InspectCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsed *values.Values,
	gp middlewares.Processor,
) error {
	s := &SessionSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	conv, closeStore, err := loadConversation(ctx, parsed, s)
	if err != nil {
		return err
	}
	defer closeStore()

	rep := debugapi.Inspect(conv)
	for _, t := range rep.Turns {
		if len(t.Rounds) == 0 {
			row := types.NewRow(
				types.MRP("session_id", rep.SessionID),
				types.MRP("turn", t.Index),
				types.MRP("turn_id", t.ID),
				types.MRP("status", string(t.Status)),
				types.MRP("request", t.RequestPreview),
				types.MRP("round_id", ""),
				types.MRP("tools", ""),
				types.MRP("has_summary", false),
			)
			if err := gp.AddRow(ctx, row); err != nil {
				return err
			}
			continue
		}
		for _, r := range t.Rounds {
			row := types.NewRow(
				types.MRP("session_id", rep.SessionID),
				types.MRP("turn", t.Index),
				types.MRP("turn_id", t.ID),
				types.MRP("status", string(t.Status)),
				types.MRP("request", t.RequestPreview),
				types.MRP("round_id", r.ID),
				types.MRP("tools", strings.Join(r.ToolNames, ",")),
				types.MRP("has_summary", r.HasSummary),
			)
			if err := gp.AddRow(ctx, row); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadConversation returns the mock or a stored conversation. The returned
// func closes the store, if one was opened.
func loadConversation(ctx context.Context, parsed *values.Values, s *SessionSettings) (*conversation.Conversation, func(), error) {
	if s.Mock {
		return conversation.NewMock(), func() {}, nil
	}
	store, err := OpenStore(parsed)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() { _ = store.Close() }
	conv, err := debugapi.NewService(store).Load(ctx, s.Session)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return conv, closeStore, nil
}
