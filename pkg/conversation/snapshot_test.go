package conversation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
session_id: sess-yaml
turns:
  - id: t0
    request: "refactor the parser"
    rounds:
      - id: r0
        response: "reading"
        tool_calls:
          - {id: tc0, name: read_file, arguments: '{"path":"parser.go"}'}
        summary: "user asked for a parser refactor"
      - id: r1
        response: "done"
  - id: t1
    request: "now add tests"
    rounds:
      - id: r2
        response: "writing tests"
`

func TestFromYAML_RestoresStateAndDefaults(t *testing.T) {
	c, err := FromYAML([]byte(fixtureYAML))
	require.NoError(t, err)

	require.Equal(t, "sess-yaml", c.SessionID())
	require.Equal(t, StatusSuccess, c.Turns()[0].Status())
	require.Equal(t, StatusInProgress, c.Turns()[1].Status())

	r0, _, ok := c.FindRound("r0")
	require.True(t, ok)
	require.Equal(t, "user asked for a parser refactor", r0.Summary())
	require.Equal(t, []string{"read_file"}, r0.ToolNames())

	out, err := ToYAML(c)
	require.NoError(t, err)
	again, err := FromYAML(out)
	require.NoError(t, err)
	require.Equal(t, c.Snapshot(), again.Snapshot())
}

func TestFromSnapshot_Validation(t *testing.T) {
	_, err := FromSnapshot(Snapshot{})
	require.Error(t, err)

	_, err = FromSnapshot(Snapshot{
		SessionID: "s",
		Turns: []TurnSnapshot{
			{ID: "t0", Rounds: []RoundSnapshot{{ID: "r0"}}},
			{ID: "t1", Rounds: []RoundSnapshot{{ID: "r0"}}},
		},
	})
	require.Error(t, err)

	_, err = FromYAML([]byte("session_id: [unterminated"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 3, c.RoundCount())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
