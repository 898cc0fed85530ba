package cmds

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/go-go-golems/roundup/pkg/conversation"
	"github.com/go-go-golems/roundup/pkg/debugapi"
)

const clearAllChoice = "*"

type ClearSummaryCommand struct {
	*glazed_cmds.CommandDescription
}

type ClearSummarySettings struct {
	Session string `glazed:"session"`
	RoundID string `glazed:"round-id"`
	All     bool   `glazed:"all"`
}

var _ glazed_cmds.WriterCommand = (*ClearSummaryCommand)(nil)

func NewClearSummaryCommand() (*ClearSummaryCommand, error) {
	storeSection, err := NewStoreSection()
	if err != nil {
		return nil, err
	}
	return &ClearSummaryCommand{
		CommandDescription: glazed_cmds.NewCommandDescription(
			"clear-summary",
			glazed_cmds.WithShort("Remove committed summaries from a stored conversation"),
			glazed_cmds.WithLong("Remove one round's summary with --round-id, or every summary with --all. "+
				"Without either flag an interactive picker is shown when running in a terminal."),
			glazed_cmds.WithFlags(
				fields.New("round-id", fields.TypeString, fields.WithDefault(""),
					fields.WithHelp("Round whose summary should be removed")),
				fields.New("all", fields.TypeBool, fields.WithDefault(false),
					fields.WithHelp("Remove every summary of the conversation")),
			),
			glazed_cmds.WithArguments(sessionArgument()),
			glazed_cmds.WithSections(storeSection),
		),
	}, nil
}

func (c *ClearSummaryCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s := &ClearSummarySettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	if s.All && s.RoundID != "" {
		return errors.New("--all and --round-id are mutually exclusive")
	}
	store, err := OpenStore(parsed)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	svc := debugapi.NewService(store)

	conv, err := svc.Load(ctx, s.Session)
	if err != nil {
		return err
	}
	summarized := conv.SummarizedRounds()
	if len(summarized) == 0 {
		_, _ = fmt.Fprintln(w, warnStyle.Render("No summaries found in "+conv.SessionID()))
		return nil
	}

	roundID := s.RoundID
	if !s.All && roundID == "" {
		if !isatty.IsTerminal(os.Stdin.Fd()) {
			return errors.New("pass --round-id or --all when not running in a terminal")
		}
		choice, err := pickSummary(summarized)
		if err != nil {
			return err
		}
		if choice != clearAllChoice {
			roundID = choice
		}
	}

	n, err := svc.ClearSummaries(ctx, conv.SessionID(), roundID)
	if err != nil {
		return err
	}
	if n == 0 {
		_, _ = fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Round %s has no summary", roundID)))
		return nil
	}
	_, _ = fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("Cleared %d summary(s) from %s", n, conv.SessionID())))
	return nil
}

func pickSummary(rounds []*conversation.Round) (string, error) {
	opts := make([]huh.Option[string], 0, len(rounds)+1)
	for _, r := range rounds {
		opts = append(opts, huh.NewOption(fmt.Sprintf("%s: %s", r.ID(), firstLine(r.Summary(), 60)), r.ID()))
	}
	opts = append(opts, huh.NewOption("Clear all summaries", clearAllChoice))

	var choice string
	err := huh.NewSelect[string]().
		Title("Select the summary to clear").
		Options(opts...).
		Value(&choice).
		Run()
	if err != nil {
		return "", errors.Wrap(err, "select summary")
	}
	return choice, nil
}

func firstLine(s string, n int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	rs := []rune(s)
	if len(rs) > n {
		return string(rs[:n]) + "..."
	}
	return s
}
