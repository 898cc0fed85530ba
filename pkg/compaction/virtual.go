package compaction

import (
	"github.com/pkg/errors"

	"github.com/go-go-golems/roundup/pkg/conversation"
	"github.com/go-go-golems/roundup/pkg/tools"
)

// ToolsDescriptor lists the tools available to the agent. The virtual
// context always carries one, possibly empty: renderers skip tool-call
// rounds entirely when it is nil.
type ToolsDescriptor struct {
	Available []tools.Tool `json:"available"`
}

// SummaryEntry stands in for the compacted prefix of the conversation.
type SummaryEntry struct {
	RoundID string `json:"round_id"`
	Text    string `json:"text"`
}

type RoundView struct {
	ID         string                  `json:"id"`
	Response   string                  `json:"response,omitempty"`
	ToolCalls  []conversation.ToolCall `json:"tool_calls,omitempty"`
	TurnIndex  int                     `json:"turn_index"`
	RoundIndex int                     `json:"round_index"`
}

type TurnView struct {
	ID      string              `json:"id"`
	Index   int                 `json:"index"`
	Request string              `json:"request"`
	Status  conversation.Status `json:"status"`
	Rounds  []RoundView         `json:"rounds,omitempty"`
}

// VirtualContext is a disposable projection of a conversation for rendering
// the summarization prompt. Building one never touches the conversation.
//
// The span to summarize is History followed by ToolCallRounds, which are the
// leading rounds of the turn holding the boundary. Query is that turn's
// request. Rounds already covered by an earlier summary are replaced by
// PriorSummary. Retained lists the rounds after the boundary that stay
// verbatim and are not part of the prompt.
type VirtualContext struct {
	SessionID         string           `json:"session_id"`
	SummarizedRoundID string           `json:"summarized_round_id"`
	Query             string           `json:"query"`
	QueryTurnIndex    int              `json:"query_turn_index"`
	PriorSummary      *SummaryEntry    `json:"prior_summary,omitempty"`
	History           []TurnView       `json:"history"`
	ToolCallRounds    []RoundView      `json:"tool_call_rounds"`
	Retained          []RoundView      `json:"retained"`
	IsContinuation    bool             `json:"is_continuation"`
	Tools             *ToolsDescriptor `json:"tools"`
}

// HistoricTurnCount is the number of turns touched by the summarized span.
func (v *VirtualContext) HistoricTurnCount() int {
	return len(v.History) + 1
}

// HistoricRoundCount is the number of rounds in the summarized span.
func (v *VirtualContext) HistoricRoundCount() int {
	n := len(v.ToolCallRounds)
	for _, t := range v.History {
		n += len(t.Rounds)
	}
	return n
}

// BuildVirtualContext projects conv around the given boundary round.
// It only reads through getters, so concurrent builds are safe.
func BuildVirtualContext(conv *conversation.Conversation, boundaryRoundID string, available []tools.Tool) (*VirtualContext, error) {
	if conv == nil {
		return nil, errors.New("build virtual context: nil conversation")
	}

	type turnRounds struct {
		turn   *conversation.Turn
		rounds []*conversation.Round
	}
	var ts []turnRounds
	boundaryTurn, boundaryFlat := -1, -1
	prior := -1
	var priorRound *conversation.Round
	flat := 0
	for i, t := range conv.Turns() {
		rounds := t.Rounds()
		for _, r := range rounds {
			if r.HasSummary() {
				prior, priorRound = flat, r
			}
			if r.ID() == boundaryRoundID {
				boundaryTurn, boundaryFlat = i, flat
			}
			flat++
		}
		ts = append(ts, turnRounds{turn: t, rounds: rounds})
	}
	if boundaryTurn < 0 {
		return nil, errors.Wrapf(ErrUnknownRound, "build virtual context: boundary %q", boundaryRoundID)
	}
	if prior >= boundaryFlat {
		return nil, errors.Wrapf(ErrBoundaryCompacted, "build virtual context: boundary %q, latest summary on %q", boundaryRoundID, priorRound.ID())
	}

	v := &VirtualContext{
		SessionID:         conv.SessionID(),
		SummarizedRoundID: boundaryRoundID,
		QueryTurnIndex:    boundaryTurn,
		History:           []TurnView{},
		ToolCallRounds:    []RoundView{},
		Retained:          []RoundView{},
		IsContinuation:    true,
		Tools:             &ToolsDescriptor{Available: append([]tools.Tool{}, available...)},
	}
	if priorRound != nil {
		v.PriorSummary = &SummaryEntry{RoundID: priorRound.ID(), Text: priorRound.Summary()}
	}

	flat = 0
	for i, tr := range ts {
		turnStart := flat
		var kept []RoundView
		for j, r := range tr.rounds {
			rv := roundView(r, i, j)
			switch {
			case flat <= prior:
				// covered by PriorSummary
			case flat <= boundaryFlat:
				kept = append(kept, rv)
			default:
				v.Retained = append(v.Retained, rv)
			}
			flat++
		}

		switch {
		case i < boundaryTurn:
			if len(kept) == 0 && (len(tr.rounds) > 0 || turnStart <= prior) {
				continue
			}
			v.History = append(v.History, TurnView{
				ID:      tr.turn.ID(),
				Index:   i,
				Request: tr.turn.Request(),
				Status:  tr.turn.Status(),
				Rounds:  kept,
			})
		case i == boundaryTurn:
			v.Query = tr.turn.Request()
			v.ToolCallRounds = append(v.ToolCallRounds, kept...)
		}
	}
	return v, nil
}

func roundView(r *conversation.Round, turnIndex, roundIndex int) RoundView {
	return RoundView{
		ID:         r.ID(),
		Response:   r.Response(),
		ToolCalls:  r.ToolCalls(),
		TurnIndex:  turnIndex,
		RoundIndex: roundIndex,
	}
}
