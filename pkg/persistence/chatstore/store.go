package chatstore

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/roundup/pkg/compaction"
	"github.com/go-go-golems/roundup/pkg/conversation"
)

// ErrNotFound is returned when a session is not stored.
var ErrNotFound = errors.New("conversation not found")

// ConversationRecord is the listing view of a stored conversation.
type ConversationRecord struct {
	SessionID            string `json:"session_id"`
	CreatedAtMs          int64  `json:"created_at_ms"`
	UpdatedAtMs          int64  `json:"updated_at_ms"`
	TurnCount            int    `json:"turn_count"`
	RoundCount           int    `json:"round_count"`
	SummarizedRounds     int    `json:"summarized_rounds"`
	LatestSummaryRoundID string `json:"latest_summary_round_id,omitempty"`
}

// Store persists conversations and their round summaries.
//
// Save never overwrites an existing summary; summaries only change through
// CommitSummary (write-once) and the Clear calls.
type Store interface {
	compaction.SummaryStore

	Save(ctx context.Context, conv *conversation.Conversation) error
	Load(ctx context.Context, sessionID string) (*conversation.Conversation, error)
	Latest(ctx context.Context) (*conversation.Conversation, error)
	List(ctx context.Context, limit int) ([]ConversationRecord, error)
	ClearSummary(ctx context.Context, sessionID, roundID string) (bool, error)
	ClearAllSummaries(ctx context.Context, sessionID string) (int, error)
	Close() error
}

func recordFromSnapshot(s conversation.Snapshot, createdAtMs, updatedAtMs int64) ConversationRecord {
	r := ConversationRecord{
		SessionID:   s.SessionID,
		CreatedAtMs: createdAtMs,
		UpdatedAtMs: updatedAtMs,
		TurnCount:   len(s.Turns),
	}
	for _, t := range s.Turns {
		for _, rs := range t.Rounds {
			r.RoundCount++
			if blankToEmpty(rs.Summary) != "" {
				r.SummarizedRounds++
				r.LatestSummaryRoundID = rs.ID
			}
		}
	}
	return r
}

// blankToEmpty maps whitespace-only summaries to "", the unsummarized value.
func blankToEmpty(summary string) string {
	if strings.TrimSpace(summary) == "" {
		return ""
	}
	return summary
}
