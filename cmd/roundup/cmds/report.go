package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/roundup/pkg/compaction"
	"github.com/go-go-golems/roundup/pkg/debugapi"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	summaryStyle = lipgloss.NewStyle().MarginLeft(2)
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("118"))
)

func formatFlag() *fields.Definition {
	return fields.New(
		"format",
		fields.TypeChoice,
		fields.WithChoices(formatText, formatJSON, formatYAML),
		fields.WithDefault(formatText),
		fields.WithHelp("Output format"),
	)
}

// writeStructured writes v as JSON or YAML. It reports false for the text
// format so callers fall back to their own rendering.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, errors.Wrap(enc.Encode(v), "encode json")
	case formatYAML:
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return true, errors.Wrap(enc.Encode(v), "encode yaml")
	default:
		return false, nil
	}
}

func writeKV(w io.Writer, key string, value any) {
	_, _ = fmt.Fprintf(w, "%s %v\n", keyStyle.Render(key+":"), value)
}

func writeSplitReport(w io.Writer, rep *debugapi.SplitReport) {
	_, _ = fmt.Fprintln(w, headerStyle.Render("Split point"))
	writeKV(w, "session", rep.SessionID)
	writeKV(w, "boundary round", rep.Boundary.SummarizedRoundID)
	writeKV(w, "position", fmt.Sprintf("turn %d round %d (flat %d)",
		rep.Boundary.Position.TurnIndex, rep.Boundary.Position.RoundIndex, rep.Boundary.Position.Index))
	if rep.Boundary.PriorSummaryRoundID != "" {
		writeKV(w, "prior summary round", rep.Boundary.PriorSummaryRoundID)
	}
	writeKV(w, "span rounds", rep.Boundary.SpanRounds)
	writeKV(w, "kept rounds", rep.Boundary.KeptRounds)
	writeKV(w, "historic turns", rep.HistoricTurns)
	writeKV(w, "historic rounds", rep.HistoricRounds)

	v := rep.Context
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, headerStyle.Render("Virtual context"))
	if v.PriorSummary != nil {
		writeKV(w, "prior summary", v.PriorSummary.Text)
	}
	for _, t := range v.History {
		writeKV(w, fmt.Sprintf("history turn %d", t.Index), fmt.Sprintf("%s (%d rounds)", t.ID, len(t.Rounds)))
	}
	writeKV(w, "query", v.Query)
	ids := make([]string, 0, len(v.ToolCallRounds))
	for _, r := range v.ToolCallRounds {
		ids = append(ids, r.ID)
	}
	writeKV(w, "tool call rounds", strings.Join(ids, ", "))
	retained := make([]string, 0, len(v.Retained))
	for _, r := range v.Retained {
		retained = append(retained, r.ID)
	}
	writeKV(w, "retained", strings.Join(retained, ", "))
	names := make([]string, 0)
	if v.Tools != nil {
		for _, t := range v.Tools.Available {
			names = append(names, t.Name)
		}
	}
	writeKV(w, "tools", strings.Join(names, ", "))
}

func writeDryRunReport(w io.Writer, rep *debugapi.DryRunReport) {
	_, _ = fmt.Fprintln(w, headerStyle.Render("Compaction dry run"))
	writeKV(w, "session", rep.SessionID)
	writeKV(w, "input", fmt.Sprintf("%d turns, %d rounds", rep.InputTurns, rep.InputRounds))
	writeKV(w, "duration", fmt.Sprintf("%dms", rep.DurationMs))
	if rep.NothingToSummarize {
		_, _ = fmt.Fprintln(w, warnStyle.Render("Nothing to summarize: "+rep.Hint))
		return
	}
	writeResult(w, rep.Result)
}

func writeResult(w io.Writer, res *compaction.Result) {
	if res == nil {
		return
	}
	writeKV(w, "boundary round", res.BoundaryRoundID)
	writeKV(w, "model", res.Model)
	writeKV(w, "prompt tokens", res.PromptTokens)
	if res.Usage != nil {
		writeKV(w, "usage", fmt.Sprintf("%d in / %d out", res.Usage.PromptTokens, res.Usage.CompletionTokens))
	}
	writeKV(w, "inject tools", res.InjectTools)
	if res.Empty {
		_, _ = fmt.Fprintln(w, warnStyle.Render("The model returned an empty summary."))
		if !res.InjectTools {
			_, _ = fmt.Fprintln(w, warnStyle.Render("Try again with the inject-tools debug flag on."))
		}
		return
	}
	_, _ = fmt.Fprintln(w, headerStyle.Render("Summary"))
	_, _ = fmt.Fprintln(w, summaryStyle.Render(res.Summary))
}

func writeCompactReport(w io.Writer, rep *debugapi.CompactReport) {
	writeDryRunReport(w, &rep.DryRunReport)
	switch {
	case rep.Committed:
		_, _ = fmt.Fprintln(w, okStyle.Render("Summary committed on "+rep.Result.BoundaryRoundID))
	case rep.Reason != "" && !rep.NothingToSummarize:
		_, _ = fmt.Fprintln(w, warnStyle.Render("Not committed: "+rep.Reason))
	}
}
