package cmds

import (
	"context"
	"fmt"
	"io"

	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"

	"github.com/go-go-golems/roundup/pkg/render"
)

type CountTokensCommand struct {
	*glazed_cmds.CommandDescription
}

type CountTokensSettings struct {
	Model    string `glazed:"model"`
	Encoding string `glazed:"encoding"`
	Backend  string `glazed:"backend"`
	Input    string `glazed:"input"`
}

var _ glazed_cmds.WriterCommand = (*CountTokensCommand)(nil)

func NewCountTokensCommand() (*CountTokensCommand, error) {
	return &CountTokensCommand{
		CommandDescription: glazed_cmds.NewCommandDescription(
			"count-tokens",
			glazed_cmds.WithShort("Count tokens the way the prompt budget does"),
			glazed_cmds.WithFlags(
				fields.New("model", fields.TypeString,
					fields.WithHelp("Model whose encoding is used"),
					fields.WithDefault("gpt-4")),
				fields.New("encoding", fields.TypeString,
					fields.WithHelp("Encoding name, overrides the model's")),
				fields.New("backend", fields.TypeChoice,
					fields.WithChoices(render.BackendTokenizer, render.BackendTiktoken, render.BackendChars),
					fields.WithDefault(render.BackendTokenizer),
					fields.WithHelp("Token counting backend")),
			),
			glazed_cmds.WithArguments(
				fields.New("input", fields.TypeStringFromFiles,
					fields.WithHelp("Input file")),
			),
		),
	}, nil
}

func (c *CountTokensCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s := &CountTokensSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	enc := s.Encoding
	if enc == "" {
		enc = render.EncodingForModel(s.Model)
	}
	counter, err := render.NewTokenCounter(s.Backend, enc)
	if err != nil {
		return err
	}
	n, err := counter.Count(s.Input)
	if err != nil {
		return errors.Wrap(err, "error counting tokens")
	}

	writeKV(w, "Model", s.Model)
	writeKV(w, "Encoding", fmt.Sprintf("%s (%s)", enc, s.Backend))
	writeKV(w, "Total tokens", n)
	return nil
}
