package compaction

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/roundup/pkg/conversation"
)

// buildConversation makes nTurns finished turns with nRounds rounds each,
// round ids "tI-rJ".
func buildConversation(t *testing.T, nTurns, nRounds int) *conversation.Conversation {
	t.Helper()
	c := conversation.New("s1")
	for i := 0; i < nTurns; i++ {
		var rounds []*conversation.Round
		for j := 0; j < nRounds; j++ {
			id := fmt.Sprintf("t%d-r%d", i, j)
			rounds = append(rounds, conversation.NewRound(id, "resp "+id, conversation.ToolCall{
				ID:        "call-" + id,
				Name:      "read_file",
				Arguments: `{"path":"/a.txt"}`,
			}))
		}
		turn := conversation.NewTurn(fmt.Sprintf("t%d", i), fmt.Sprintf("request %d", i), rounds...)
		turn.SetStatus(conversation.StatusSuccess)
		require.NoError(t, c.AddTurn(turn))
	}
	return c
}

func roundIDs(rs []RoundView) []string {
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return ids
}
