package conversation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConversation_AddTurnIndexesRounds(t *testing.T) {
	c := New("sess-1")
	require.NoError(t, c.AddTurn(NewTurn("t0", "first", NewRound("r0", "a"), NewRound("r1", "b"))))
	require.NoError(t, c.AddTurn(NewTurn("t1", "second", NewRound("r2", "c"))))

	r, pos, ok := c.FindRound("r2")
	require.True(t, ok)
	require.Equal(t, "c", r.Response())
	require.Equal(t, Position{TurnIndex: 1, RoundIndex: 0, Index: 2}, pos)

	require.Equal(t, 3, c.RoundCount())
	require.Equal(t, "t1", c.LatestTurn().ID())
}

func TestConversation_RejectsDuplicateRoundIDs(t *testing.T) {
	c := New("sess-1")
	require.NoError(t, c.AddTurn(NewTurn("t0", "first", NewRound("r0", "a"))))

	require.Error(t, c.AddTurn(NewTurn("t1", "second", NewRound("r0", "dup"))))
	require.Error(t, c.AddTurn(NewTurn("t1", "second", NewRound("x", ""), NewRound("x", ""))))
	require.Error(t, c.AppendRound(NewRound("r0", "dup")))
	require.Error(t, c.AppendRound(NewRound("  ", "blank")))
	require.Equal(t, 1, c.TurnCount())
}

func TestConversation_AppendRoundGoesToLatestTurn(t *testing.T) {
	c := New("sess-1")
	require.Error(t, c.AppendRound(NewRound("r0", "")))

	require.NoError(t, c.AddTurn(NewTurn("t0", "first", NewRound("r0", ""))))
	require.NoError(t, c.AddTurn(NewTurn("t1", "second")))
	require.NoError(t, c.AppendRound(NewRound("r1", "", ToolCall{ID: "tc", Name: "grep"})))

	_, pos, ok := c.FindRound("r1")
	require.True(t, ok)
	require.Equal(t, Position{TurnIndex: 1, RoundIndex: 0, Index: 1}, pos)
	require.Equal(t, []string{"grep"}, c.LatestTurn().Rounds()[0].ToolNames())
}

func TestRound_ToolCallsAreCopied(t *testing.T) {
	r := NewRound("r0", "", ToolCall{ID: "tc", Name: "read_file", Arguments: "{}"})
	calls := r.ToolCalls()
	calls[0].Name = "changed"
	require.Equal(t, "read_file", r.ToolCalls()[0].Name)
}

func TestNewMock_Shape(t *testing.T) {
	c := NewMock()
	require.Equal(t, 4, c.TurnCount())
	require.Equal(t, 8, c.RoundCount())
	require.Equal(t, StatusInProgress, c.LatestTurn().Status())
	require.Equal(t, StatusSuccess, c.Turns()[0].Status())
	for _, r := range c.Rounds() {
		require.False(t, r.HasSummary())
		require.Equal(t, []string{"read_file"}, r.ToolNames())
	}
}
