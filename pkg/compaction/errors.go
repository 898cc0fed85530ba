package compaction

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/go-go-golems/roundup/pkg/conversation"
	"github.com/go-go-golems/roundup/pkg/llm"
)

var (
	// ErrNothingToSummarize means fewer than two unsummarized rounds exist.
	// The caller must skip compaction this cycle.
	ErrNothingToSummarize = errors.New("nothing to summarize")
	// ErrBoundaryCompacted means the requested boundary lies inside the
	// already compacted prefix.
	ErrBoundaryCompacted = errors.New("boundary round is already compacted")

	ErrAlreadySummarized = conversation.ErrAlreadySummarized
	ErrEmptySummary      = conversation.ErrEmptySummary
	ErrUnknownRound      = conversation.ErrUnknownRound
)

// RenderError reports a prompt assembly failure. TurnIndex and RoundIndex
// point at the element being rendered, or are -1 when unknown.
type RenderError struct {
	TurnIndex  int
	RoundIndex int
	Cause      error
}

func (e *RenderError) Error() string {
	if e.TurnIndex < 0 {
		return fmt.Sprintf("render summarization prompt: %v", e.Cause)
	}
	if e.RoundIndex < 0 {
		return fmt.Sprintf("render summarization prompt at turn %d: %v", e.TurnIndex, e.Cause)
	}
	return fmt.Sprintf("render summarization prompt at turn %d round %d: %v", e.TurnIndex, e.RoundIndex, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// ModelError carries a non-success model response or a failed call,
// classified by the endpoint.
type ModelError struct {
	Status llm.Status
	Reason string
	Cause  error
}

func (e *ModelError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("summarization model call %s: %v", e.Status, e.Cause)
	case e.Reason != "":
		return fmt.Sprintf("summarization model call %s: %s", e.Status, e.Reason)
	default:
		return fmt.Sprintf("summarization model call %s", e.Status)
	}
}

func (e *ModelError) Unwrap() error { return e.Cause }

// IsBenignCommitConflict reports whether a commit lost the race to another writer.
func IsBenignCommitConflict(err error) bool {
	return errors.Is(err, ErrAlreadySummarized)
}
