package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roundup/pkg/compaction"
	"github.com/go-go-golems/roundup/pkg/debugapi"
)

const (
	switchOn  = "on"
	switchOff = "off"
)

type FlagsCommand struct {
	*glazed_cmds.CommandDescription
}

type FlagsSettings struct {
	InjectTools string `glazed:"set-inject-tools"`
	Verbose     string `glazed:"set-verbose"`
	Interactive bool   `glazed:"interactive"`
	FlagsFile   string `glazed:"flags-file"`
	Server      string `glazed:"server"`
}

var _ glazed_cmds.WriterCommand = (*FlagsCommand)(nil)

func switchFlag(name, help string) *fields.Definition {
	return fields.New(name, fields.TypeChoice,
		fields.WithChoices("", switchOn, switchOff),
		fields.WithDefault(""),
		fields.WithHelp(help))
}

func NewFlagsCommand() (*FlagsCommand, error) {
	return &FlagsCommand{
		CommandDescription: glazed_cmds.NewCommandDescription(
			"flags",
			glazed_cmds.WithShort("Show or change the summarization debug flags"),
			glazed_cmds.WithLong("Show or change the inject-tools and verbose debug flags. Changes are saved to the flags file "+
				"and, with --server, pushed to a running roundup serve process."),
			glazed_cmds.WithFlags(
				switchFlag("set-inject-tools", "Attach tool schemas to the summarization call (on/off)"),
				switchFlag("set-verbose", "Verbose compaction logging (on/off)"),
				fields.New("interactive", fields.TypeBool, fields.WithDefault(false),
					fields.WithHelp("Edit the flags with an interactive form")),
				flagsFileFlag(),
				fields.New("server", fields.TypeString, fields.WithDefault(""),
					fields.WithHelp("Base URL of a running roundup serve, e.g. http://localhost:8089")),
			),
		),
	}, nil
}

func (c *FlagsCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s := &FlagsSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	flags := &compaction.DebugFlags{}
	if err := LoadFlagsFile(s.FlagsFile, flags); err != nil {
		return err
	}
	before := flags.Snapshot()

	upd := debugapi.FlagsUpdate{
		InjectTools: parseSwitch(s.InjectTools),
		Verbose:     parseSwitch(s.Verbose),
	}
	if s.Interactive {
		if !isatty.IsTerminal(os.Stdin.Fd()) {
			return errors.New("--interactive needs a terminal")
		}
		next, err := editFlags(before)
		if err != nil {
			return err
		}
		upd = debugapi.FlagsUpdate{InjectTools: &next.InjectTools, Verbose: &next.Verbose}
	}
	if upd.InjectTools != nil {
		flags.SetInjectTools(*upd.InjectTools)
	}
	if upd.Verbose != nil {
		flags.SetVerbose(*upd.Verbose)
	}
	after := flags.Snapshot()

	if after != before {
		if err := SaveFlagsFile(s.FlagsFile, after); err != nil {
			return err
		}
		log.Info().Bool("inject_tools", after.InjectTools).Bool("verbose", after.Verbose).Msg("debug flags saved")
	}
	if s.Server != "" {
		remote, err := pushFlags(ctx, s.Server, upd)
		if err != nil {
			return err
		}
		after = remote
	}

	writeKV(w, "inject tools", onOff(after.InjectTools))
	writeKV(w, "verbose", onOff(after.Verbose))
	return nil
}

func parseSwitch(v string) *bool {
	switch v {
	case switchOn:
		b := true
		return &b
	case switchOff:
		b := false
		return &b
	default:
		return nil
	}
}

func onOff(b bool) string {
	if b {
		return switchOn
	}
	return switchOff
}

func editFlags(cur compaction.DebugSettings) (compaction.DebugSettings, error) {
	next := cur
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Inject tool schemas into the summarization call?").
				Value(&next.InjectTools),
			huh.NewConfirm().
				Title("Verbose compaction logging?").
				Value(&next.Verbose),
		),
	)
	if err := form.Run(); err != nil {
		return cur, errors.Wrap(err, "edit debug flags")
	}
	return next, nil
}

// pushFlags applies upd on a running server and returns the server's view.
// An empty update only reads the flags.
func pushFlags(ctx context.Context, server string, upd debugapi.FlagsUpdate) (compaction.DebugSettings, error) {
	url := strings.TrimRight(server, "/") + "/api/debug/summarization/flags"
	method := http.MethodGet
	var body io.Reader
	if upd.InjectTools != nil || upd.Verbose != nil {
		b, err := json.Marshal(upd)
		if err != nil {
			return compaction.DebugSettings{}, errors.Wrap(err, "marshal flags update")
		}
		method = http.MethodPut
		body = bytes.NewReader(b)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return compaction.DebugSettings{}, errors.Wrap(err, "build flags request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return compaction.DebugSettings{}, errors.Wrapf(err, "%s %s", method, url)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return compaction.DebugSettings{}, errors.Errorf("%s %s: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	ret := compaction.DebugSettings{}
	if err := json.NewDecoder(resp.Body).Decode(&ret); err != nil {
		return compaction.DebugSettings{}, errors.Wrap(err, "decode server flags")
	}
	log.Debug().Str("server", server).Str("method", method).Bool("inject_tools", ret.InjectTools).Bool("verbose", ret.Verbose).Msg("debug flags synced")
	return ret, nil
}
