package compaction

import (
	"github.com/pkg/errors"

	"github.com/go-go-golems/roundup/pkg/conversation"
)

// DefaultKeepVerbatim is the number of trailing unsummarized rounds left out
// of a new summary.
const DefaultKeepVerbatim = 2

// SplitPolicy tunes boundary selection.
type SplitPolicy struct {
	// KeepVerbatim is the number of most recent unsummarized rounds kept out
	// of the summarized span. Non-positive means DefaultKeepVerbatim. It is
	// clamped so at least one round is kept and at least one is summarized.
	KeepVerbatim int `json:"keep_verbatim" yaml:"keep_verbatim"`
}

func DefaultSplitPolicy() SplitPolicy {
	return SplitPolicy{KeepVerbatim: DefaultKeepVerbatim}
}

func (p SplitPolicy) keep(unsummarized int) int {
	k := p.KeepVerbatim
	if k <= 0 {
		k = DefaultKeepVerbatim
	}
	if k > unsummarized-1 {
		k = unsummarized - 1
	}
	if k < 1 {
		k = 1
	}
	return k
}

// Boundary is the result of split-point selection.
type Boundary struct {
	// SummarizedRoundID is the last round of the span to summarize.
	SummarizedRoundID string `json:"summarized_round_id"`
	// Position locates SummarizedRoundID. Turn and round indices are -1 when
	// selection ran on a bare round list.
	Position conversation.Position `json:"position"`
	// PriorSummaryRoundID is the latest already summarized round, "" if none.
	// Its summary covers every round up to and including it.
	PriorSummaryRoundID string `json:"prior_summary_round_id,omitempty"`
	// SpanRounds is the number of unsummarized rounds in the new span.
	SpanRounds int `json:"span_rounds"`
	// KeptRounds is the number of unsummarized rounds left verbatim.
	KeptRounds int `json:"kept_rounds"`
}

// SelectSplitPoint picks the boundary round for the next compaction.
//
// Rounds up to and including the last summarized round are compacted and
// skipped. Of the remaining rounds, all but the trailing KeepVerbatim ones
// form the new span. Fewer than two unsummarized rounds yields
// ErrNothingToSummarize.
func SelectSplitPoint(rounds []*conversation.Round, policy SplitPolicy) (Boundary, error) {
	lastSummarized := -1
	for i, r := range rounds {
		if r.HasSummary() {
			lastSummarized = i
		}
	}

	unsummarized := len(rounds) - lastSummarized - 1
	if unsummarized < 2 {
		return Boundary{}, errors.Wrapf(ErrNothingToSummarize, "%d unsummarized round(s), need at least 2", unsummarized)
	}

	keep := policy.keep(unsummarized)
	idx := len(rounds) - keep - 1
	b := Boundary{
		SummarizedRoundID: rounds[idx].ID(),
		Position:          conversation.Position{TurnIndex: -1, RoundIndex: -1, Index: idx},
		SpanRounds:        idx - lastSummarized,
		KeptRounds:        keep,
	}
	if lastSummarized >= 0 {
		b.PriorSummaryRoundID = rounds[lastSummarized].ID()
	}
	return b, nil
}

// SelectSplitPointForConversation runs SelectSplitPoint over every round of
// the conversation and resolves the boundary's turn position.
func SelectSplitPointForConversation(conv *conversation.Conversation, policy SplitPolicy) (Boundary, error) {
	if conv == nil {
		return Boundary{}, errors.New("select split point: nil conversation")
	}
	b, err := SelectSplitPoint(conv.Rounds(), policy)
	if err != nil {
		return Boundary{}, err
	}
	if _, pos, ok := conv.FindRound(b.SummarizedRoundID); ok {
		b.Position = pos
	}
	return b, nil
}
