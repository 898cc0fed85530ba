package conversation

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrAlreadySummarized is returned when a commit targets a round that
	// already carries a summary. Another writer won; its value is authoritative.
	ErrAlreadySummarized = errors.New("round already summarized")
	// ErrEmptySummary is returned when committing an empty summary text.
	ErrEmptySummary = errors.New("summary text is empty")
	// ErrUnknownRound is returned when a round id is not part of the conversation.
	ErrUnknownRound = errors.New("unknown round")
)

// CommitSummary sets the summary of the given round exactly once.
//
// The transition from "no summary" to "has summary" is a compare-and-swap:
// concurrent callers race, one wins and all others get ErrAlreadySummarized.
func (c *Conversation) CommitSummary(roundID, summary string) error {
	if strings.TrimSpace(summary) == "" {
		return ErrEmptySummary
	}
	r, _, ok := c.FindRound(roundID)
	if !ok {
		return errors.Wrapf(ErrUnknownRound, "commit summary for %q", roundID)
	}
	if !r.casSummary(summary) {
		return errors.Wrapf(ErrAlreadySummarized, "commit summary for %q", roundID)
	}
	return nil
}

// ClearSummary removes the summary of one round so it can be compacted again.
// It reports whether a summary was present.
func (c *Conversation) ClearSummary(roundID string) (bool, error) {
	r, _, ok := c.FindRound(roundID)
	if !ok {
		return false, errors.Wrapf(ErrUnknownRound, "clear summary for %q", roundID)
	}
	return r.clearSummary(), nil
}

// ClearAllSummaries removes every summary and returns how many were cleared.
func (c *Conversation) ClearAllSummaries() int {
	n := 0
	for _, r := range c.Rounds() {
		if r.clearSummary() {
			n++
		}
	}
	return n
}

// SummarizedRounds returns the rounds that currently carry a summary.
func (c *Conversation) SummarizedRounds() []*Round {
	var ret []*Round
	for _, r := range c.Rounds() {
		if r.HasSummary() {
			ret = append(ret, r)
		}
	}
	return ret
}

// NormalizeSummaries drops whitespace-only summaries so they do not count as
// compacted. It returns the number of rounds that were reset.
func (c *Conversation) NormalizeSummaries() int {
	n := 0
	for _, r := range c.Rounds() {
		p := r.summary.Load()
		if p == nil || strings.TrimSpace(*p) != "" {
			continue
		}
		if r.summary.CompareAndSwap(p, nil) {
			n++
		}
	}
	return n
}
