package conversation

import "fmt"

// MockSessionID is the session id of the conversation built by NewMock.
const MockSessionID = "mock-session"

// NewMock builds a conversation with three finished turns of two rounds each
// and an in-progress turn with two more rounds. Every round calls read_file.
func NewMock() *Conversation {
	c := New(MockSessionID)
	for i := 0; i < 3; i++ {
		turnID := fmt.Sprintf("turn%d", i)
		t := NewTurn(turnID, fmt.Sprintf("Mock request for %s", turnID),
			mockRound(fmt.Sprintf("%s-round0", turnID)),
			mockRound(fmt.Sprintf("%s-round1", turnID)),
		)
		t.SetStatus(StatusSuccess)
		// ids are unique by construction
		_ = c.AddTurn(t)
	}
	_ = c.AddTurn(NewTurn("current", "Mock summarization request",
		mockRound("current-round0"),
		mockRound("current-round1"),
	))
	return c
}

func mockRound(id string) *Round {
	return NewRound(id, "Response for "+id, ToolCall{
		ID:        "tc-" + id,
		Name:      "read_file",
		Arguments: `{"path": "/test.txt"}`,
	})
}
