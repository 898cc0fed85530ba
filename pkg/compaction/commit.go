package compaction

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roundup/pkg/conversation"
)

// SummaryStore persists committed summaries. Implementations must make the
// write conditional so only the first summary for a round sticks, and report
// a lost race as ErrAlreadySummarized.
type SummaryStore interface {
	CommitSummary(ctx context.Context, sessionID, roundID, summary string) error
}

// Commit writes a result's summary onto the boundary round. Empty results
// are rejected with ErrEmptySummary. A round that already carries a summary
// yields ErrAlreadySummarized and the existing text is kept.
func Commit(conv *conversation.Conversation, res *Result) error {
	if conv == nil || res == nil {
		return errors.New("commit summary: nil conversation or result")
	}
	if res.SessionID != "" && res.SessionID != conv.SessionID() {
		return errors.Errorf("commit summary: result for session %q applied to %q", res.SessionID, conv.SessionID())
	}
	err := conv.CommitSummary(res.BoundaryRoundID, res.Summary)
	recordCommit(conv.SessionID(), res.BoundaryRoundID, err)
	return err
}

// CommitAndPersist commits in memory first and then through the store. A
// store conflict is reported as-is; the in-memory summary stays in place
// since the stored one was written by the same contract.
func CommitAndPersist(ctx context.Context, store SummaryStore, conv *conversation.Conversation, res *Result) error {
	if err := Commit(conv, res); err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	if err := store.CommitSummary(ctx, conv.SessionID(), res.BoundaryRoundID, res.Summary); err != nil {
		return errors.Wrap(err, "persist summary")
	}
	return nil
}

func recordCommit(sessionID, roundID string, err error) {
	result := CommitCommitted
	switch {
	case err == nil:
	case IsBenignCommitConflict(err):
		result = CommitAlreadySummarized
	default:
		result = CommitRejected
	}
	CommitsTotal.WithLabelValues(result).Inc()

	ev := log.Debug()
	if err != nil {
		ev = log.Info().Err(err)
	}
	ev.Str("session_id", sessionID).Str("round_id", roundID).Str("result", result).Msg("compaction: commit")
}
