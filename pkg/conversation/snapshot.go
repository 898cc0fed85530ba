package conversation

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Snapshot is a plain-value copy of a conversation, used for fixtures,
// persistence and structural comparison.
type Snapshot struct {
	SessionID string         `json:"session_id" yaml:"session_id"`
	Turns     []TurnSnapshot `json:"turns" yaml:"turns"`
}

type TurnSnapshot struct {
	ID      string          `json:"id" yaml:"id"`
	Request string          `json:"request" yaml:"request"`
	Status  Status          `json:"status,omitempty" yaml:"status,omitempty"`
	Rounds  []RoundSnapshot `json:"rounds,omitempty" yaml:"rounds,omitempty"`
}

type RoundSnapshot struct {
	ID        string     `json:"id" yaml:"id"`
	Response  string     `json:"response,omitempty" yaml:"response,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	Summary   string     `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Snapshot copies the current state of the conversation.
func (c *Conversation) Snapshot() Snapshot {
	ret := Snapshot{SessionID: c.sessionID}
	for _, t := range c.Turns() {
		ts := TurnSnapshot{ID: t.ID(), Request: t.Request(), Status: t.Status()}
		for _, r := range t.Rounds() {
			ts.Rounds = append(ts.Rounds, RoundSnapshot{
				ID:        r.ID(),
				Response:  r.Response(),
				ToolCalls: r.ToolCalls(),
				Summary:   r.Summary(),
			})
		}
		ret.Turns = append(ret.Turns, ts)
	}
	return ret
}

// FromSnapshot rebuilds a conversation. Turns without status default to
// success, except the last one which defaults to in-progress.
func FromSnapshot(s Snapshot) (*Conversation, error) {
	if strings.TrimSpace(s.SessionID) == "" {
		return nil, errors.New("conversation snapshot: empty session id")
	}
	c := New(s.SessionID)
	for i, ts := range s.Turns {
		rounds := make([]*Round, 0, len(ts.Rounds))
		for _, rs := range ts.Rounds {
			rounds = append(rounds, NewRound(rs.ID, rs.Response, rs.ToolCalls...).WithSummary(rs.Summary))
		}
		t := NewTurn(ts.ID, ts.Request, rounds...)
		switch {
		case ts.Status != "":
			t.SetStatus(ts.Status)
		case i < len(s.Turns)-1:
			t.SetStatus(StatusSuccess)
		}
		if err := c.AddTurn(t); err != nil {
			return nil, errors.Wrapf(err, "conversation snapshot: turn %d", i)
		}
	}
	return c, nil
}

// FromYAML decodes a conversation from its YAML snapshot form.
func FromYAML(b []byte) (*Conversation, error) {
	var s Snapshot
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrap(err, "conversation snapshot: parse yaml")
	}
	return FromSnapshot(s)
}

// ToYAML encodes the conversation snapshot as YAML.
func ToYAML(c *Conversation) ([]byte, error) {
	b, err := yaml.Marshal(c.Snapshot())
	if err != nil {
		return nil, errors.Wrap(err, "conversation snapshot: marshal yaml")
	}
	return b, nil
}

// LoadFile reads a YAML conversation fixture from disk.
func LoadFile(path string) (*Conversation, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return FromYAML(b)
}
