package conversation

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Status is the response lifecycle state of a turn.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusSuccess    Status = "success"
	StatusCancelled  Status = "cancelled"
	StatusError      Status = "error"
)

// ToolCall is one tool invocation issued by the model inside a round.
type ToolCall struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Arguments string `json:"arguments" yaml:"arguments"`
}

// Round is one model step: a response plus the tool calls it issued.
//
// All fields are read through getters. The summary slot can only be changed
// through the owning Conversation (CommitSummary, ClearSummary).
type Round struct {
	id        string
	response  string
	toolCalls []ToolCall
	summary   atomic.Pointer[string]
}

// NewRound creates a round without a summary.
func NewRound(id, response string, toolCalls ...ToolCall) *Round {
	r := &Round{
		id:        id,
		response:  response,
		toolCalls: append([]ToolCall(nil), toolCalls...),
	}
	return r
}

// WithSummary is used when restoring a round that was compacted earlier.
func (r *Round) WithSummary(summary string) *Round {
	if r == nil {
		return nil
	}
	if summary != "" {
		s := summary
		r.summary.Store(&s)
	}
	return r
}

func (r *Round) ID() string       { return r.id }
func (r *Round) Response() string { return r.response }

// ToolCalls returns a copy of the round's tool calls.
func (r *Round) ToolCalls() []ToolCall {
	return append([]ToolCall(nil), r.toolCalls...)
}

// ToolNames returns the tool names in call order.
func (r *Round) ToolNames() []string {
	ret := make([]string, 0, len(r.toolCalls))
	for _, tc := range r.toolCalls {
		ret = append(ret, tc.Name)
	}
	return ret
}

// Summary returns the cached summary, or "" when the round is not compacted.
func (r *Round) Summary() string {
	if p := r.summary.Load(); p != nil {
		return *p
	}
	return ""
}

// HasSummary reports whether the round is already compacted.
func (r *Round) HasSummary() bool {
	return r.Summary() != ""
}

func (r *Round) casSummary(text string) bool {
	return r.summary.CompareAndSwap(nil, &text)
}

func (r *Round) clearSummary() bool {
	return r.summary.Swap(nil) != nil
}

// Turn is one user request and the rounds produced while answering it.
type Turn struct {
	id      string
	request string

	mu     sync.RWMutex
	status Status
	rounds []*Round
}

func NewTurn(id, request string, rounds ...*Round) *Turn {
	return &Turn{
		id:      id,
		request: request,
		status:  StatusInProgress,
		rounds:  append([]*Round(nil), rounds...),
	}
}

func (t *Turn) ID() string      { return t.id }
func (t *Turn) Request() string { return t.request }

func (t *Turn) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Turn) SetStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// Rounds returns a copy of the round list. The rounds themselves are shared.
func (t *Turn) Rounds() []*Round {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Round(nil), t.rounds...)
}

func (t *Turn) RoundCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rounds)
}

func (t *Turn) appendRound(r *Round) {
	t.mu.Lock()
	t.rounds = append(t.rounds, r)
	t.mu.Unlock()
}

// Position locates a round inside a conversation.
type Position struct {
	TurnIndex  int `json:"turn_index" yaml:"turn_index"`
	RoundIndex int `json:"round_index" yaml:"round_index"`
	// Index is the position in the flattened round sequence.
	Index int `json:"index" yaml:"index"`
}

// Conversation is the ordered, append-only list of turns of one session.
type Conversation struct {
	sessionID string

	mu    sync.RWMutex
	turns []*Turn
	index map[string]Position
}

func New(sessionID string) *Conversation {
	return &Conversation{
		sessionID: sessionID,
		index:     map[string]Position{},
	}
}

func (c *Conversation) SessionID() string { return c.sessionID }

// Turns returns a copy of the turn list.
func (c *Conversation) Turns() []*Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Turn(nil), c.turns...)
}

func (c *Conversation) TurnCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// LatestTurn returns the in-progress turn, or nil for an empty conversation.
func (c *Conversation) LatestTurn() *Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.turns) == 0 {
		return nil
	}
	return c.turns[len(c.turns)-1]
}

// AddTurn appends a turn. Round ids must be unique across the conversation.
func (c *Conversation) AddTurn(t *Turn) error {
	if t == nil {
		return errors.New("conversation: nil turn")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rounds := t.Rounds()
	seen := map[string]struct{}{}
	for _, r := range rounds {
		if err := c.checkRoundIDLocked(r); err != nil {
			return err
		}
		if _, ok := seen[r.id]; ok {
			return errors.Errorf("conversation: duplicate round id %q", r.id)
		}
		seen[r.id] = struct{}{}
	}

	ti := len(c.turns)
	flat := c.roundCountLocked()
	for ri, r := range rounds {
		c.index[r.id] = Position{TurnIndex: ti, RoundIndex: ri, Index: flat + ri}
	}
	c.turns = append(c.turns, t)
	return nil
}

// AppendRound adds a round to the latest turn.
func (c *Conversation) AppendRound(r *Round) error {
	if r == nil {
		return errors.New("conversation: nil round")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.turns) == 0 {
		return errors.New("conversation: no turn to append to")
	}
	if err := c.checkRoundIDLocked(r); err != nil {
		return err
	}
	ti := len(c.turns) - 1
	t := c.turns[ti]
	c.index[r.id] = Position{TurnIndex: ti, RoundIndex: t.RoundCount(), Index: c.roundCountLocked()}
	t.appendRound(r)
	return nil
}

func (c *Conversation) checkRoundIDLocked(r *Round) error {
	if r == nil {
		return errors.New("conversation: nil round")
	}
	if strings.TrimSpace(r.id) == "" {
		return errors.New("conversation: round id is empty")
	}
	if _, ok := c.index[r.id]; ok {
		return errors.Errorf("conversation: duplicate round id %q", r.id)
	}
	return nil
}

func (c *Conversation) roundCountLocked() int {
	n := 0
	for _, t := range c.turns {
		n += t.RoundCount()
	}
	return n
}

// Rounds returns every round in conversation order.
func (c *Conversation) Rounds() []*Round {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ret []*Round
	for _, t := range c.turns {
		ret = append(ret, t.Rounds()...)
	}
	return ret
}

func (c *Conversation) RoundCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roundCountLocked()
}

// FindRound looks up a round by id.
func (c *Conversation) FindRound(id string) (*Round, Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.index[id]
	if !ok {
		return nil, Position{}, false
	}
	rounds := c.turns[pos.TurnIndex].Rounds()
	return rounds[pos.RoundIndex], pos, true
}
