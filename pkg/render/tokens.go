package render

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
	"github.com/weaviate/tiktoken-go"
)

// TokenCounter counts tokens in a piece of prompt text.
type TokenCounter interface {
	Count(text string) (int, error)
}

// Counter backends.
const (
	BackendTokenizer = "tokenizer"
	BackendTiktoken  = "tiktoken"
	BackendChars     = "chars"
)

// EncodingForModel picks a BPE encoding name for a model id. Non-OpenAI
// models get cl100k_base as an approximation.
func EncodingForModel(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4.1"), strings.HasPrefix(m, "gpt-5"),
		strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return "o200k_base"
	case strings.HasPrefix(m, "text-davinci-002"), strings.HasPrefix(m, "text-davinci-003"):
		return "p50k_base"
	case strings.HasPrefix(m, "davinci"), strings.HasPrefix(m, "curie"):
		return "r50k_base"
	default:
		return "cl100k_base"
	}
}

// NewTokenCounter builds a counter for the given backend and encoding. An
// empty backend means BackendTokenizer.
func NewTokenCounter(backend, encoding string) (TokenCounter, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	switch backend {
	case "", BackendTokenizer:
		codec, err := tokenizer.Get(tokenizer.Encoding(encoding))
		if err != nil {
			return nil, errors.Wrapf(err, "load tokenizer encoding %s", encoding)
		}
		return &codecCounter{codec: codec}, nil
	case BackendTiktoken:
		enc, err := tiktoken.GetEncoding(encoding)
		if err != nil {
			return nil, errors.Wrapf(err, "load tiktoken encoding %s", encoding)
		}
		return &tiktokenCounter{enc: enc}, nil
	case BackendChars:
		return CharCounter{}, nil
	default:
		return nil, errors.Errorf("unknown token counter backend %q", backend)
	}
}

type codecCounter struct {
	codec tokenizer.Codec
}

func (c *codecCounter) Count(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, errors.Wrap(err, "encode")
	}
	return len(ids), nil
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) (int, error) {
	return len(c.enc.Encode(text, nil, nil)), nil
}

// CharCounter estimates four characters per token. It needs no encoding
// tables and is used in tests and as a last resort.
type CharCounter struct{}

func (CharCounter) Count(text string) (int, error) {
	n := len([]rune(text))
	return (n + 3) / 4, nil
}
