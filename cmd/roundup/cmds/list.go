package cmds

import (
	"context"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
)

type ListCommand struct {
	*glazed_cmds.CommandDescription
}

type ListSettings struct {
	Limit int `glazed:"limit"`
}

var _ glazed_cmds.GlazeCommand = (*ListCommand)(nil)

func NewListCommand() (*ListCommand, error) {
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
		"list",
		glazed_cmds.WithShort("List stored conversations"),
		glazed_cmds.WithLong("List stored conversations, most recently updated first, with round and summary counts."),
		glazed_cmds.WithFlags(
			fields.New(
				"limit",
				fields.TypeInteger,
				fields.WithDefault(50),
				fields.WithHelp("Limit number of conversations (0 = no limit)"),
			),
		),
		glazed_cmds.WithSections(glazedSection, commandSettingsSection, storeSection),
	)
	return &ListCommand{CommandDescription: desc}, nil
}

func (c *ListCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsed *values.Values,
	gp middlewares.Processor,
) error {
	s := &ListSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	store, err := OpenStore(parsed)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(ctx, s.Limit)
	if err != nil {
		return err
	}
	for _, r := range records {
		row := types.NewRow(
			types.MRP("session_id", r.SessionID),
			types.MRP("turns", r.TurnCount),
			types.MRP("rounds", r.RoundCount),
			types.MRP("summarized_rounds", r.SummarizedRounds),
			types.MRP("latest_summary_round_id", r.LatestSummaryRoundID),
			types.MRP("updated_at", time.UnixMilli(r.UpdatedAtMs).Format(time.RFC3339)),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
