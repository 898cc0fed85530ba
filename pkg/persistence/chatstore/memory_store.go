package chatstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/roundup/pkg/conversation"
)

// InMemoryStore is a size-limited Store. It mirrors the SQLite store's
// summary semantics so both can back the debug server.
type InMemoryStore struct {
	mu               sync.Mutex
	maxConversations int
	convs            map[string]*inMemConversation
	now              func() time.Time
}

type inMemConversation struct {
	snap        conversation.Snapshot
	createdAtMs int64
	updatedAtMs int64
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore(maxConversations int) *InMemoryStore {
	if maxConversations <= 0 {
		maxConversations = 1000
	}
	return &InMemoryStore{
		maxConversations: maxConversations,
		convs:            map[string]*inMemConversation{},
		now:              time.Now,
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Save(_ context.Context, conv *conversation.Conversation) error {
	if conv == nil {
		return errors.New("in-memory store: nil conversation")
	}
	snap := conv.Snapshot()
	for ti := range snap.Turns {
		for ri := range snap.Turns[ti].Rounds {
			snap.Turns[ti].Rounds[ri].Summary = blankToEmpty(snap.Turns[ti].Rounds[ri].Summary)
		}
	}
	nowMs := s.now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.convs[snap.SessionID]
	if !ok {
		existing = &inMemConversation{createdAtMs: nowMs}
		s.convs[snap.SessionID] = existing
	} else {
		keepStoredSummaries(&snap, existing.snap)
	}
	existing.snap = snap
	if nowMs > existing.updatedAtMs {
		existing.updatedAtMs = nowMs
	}
	s.evictLocked()
	return nil
}

func keepStoredSummaries(next *conversation.Snapshot, stored conversation.Snapshot) {
	summaries := map[string]string{}
	for _, t := range stored.Turns {
		for _, r := range t.Rounds {
			if r.Summary != "" {
				summaries[r.ID] = r.Summary
			}
		}
	}
	for ti := range next.Turns {
		for ri := range next.Turns[ti].Rounds {
			if s, ok := summaries[next.Turns[ti].Rounds[ri].ID]; ok {
				next.Turns[ti].Rounds[ri].Summary = s
			}
		}
	}
}

func (s *InMemoryStore) evictLocked() {
	for len(s.convs) > s.maxConversations {
		oldestID := ""
		var oldest int64
		for id, c := range s.convs {
			if oldestID == "" || c.updatedAtMs < oldest || (c.updatedAtMs == oldest && id < oldestID) {
				oldestID, oldest = id, c.updatedAtMs
			}
		}
		delete(s.convs, oldestID)
	}
}

func (s *InMemoryStore) Load(_ context.Context, sessionID string) (*conversation.Conversation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("in-memory store: sessionID is empty")
	}
	s.mu.Lock()
	c, ok := s.convs[sessionID]
	var snap conversation.Snapshot
	if ok {
		snap = c.snap
	}
	s.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "session %q", sessionID)
	}
	return conversation.FromSnapshot(snap)
}

func (s *InMemoryStore) Latest(ctx context.Context) (*conversation.Conversation, error) {
	records, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.Wrap(ErrNotFound, "no conversations stored")
	}
	return s.Load(ctx, records[0].SessionID)
}

func (s *InMemoryStore) List(_ context.Context, limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	s.mu.Lock()
	out := make([]ConversationRecord, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, recordFromSnapshot(c.snap, c.createdAtMs, c.updatedAtMs))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAtMs != out[j].UpdatedAtMs {
			return out[i].UpdatedAtMs > out[j].UpdatedAtMs
		}
		return out[i].SessionID < out[j].SessionID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// findRoundLocked returns the stored round, or nil.
func (s *InMemoryStore) findRoundLocked(sessionID, roundID string) (*inMemConversation, *conversation.RoundSnapshot) {
	c, ok := s.convs[sessionID]
	if !ok {
		return nil, nil
	}
	for ti := range c.snap.Turns {
		for ri := range c.snap.Turns[ti].Rounds {
			if c.snap.Turns[ti].Rounds[ri].ID == roundID {
				return c, &c.snap.Turns[ti].Rounds[ri]
			}
		}
	}
	return c, nil
}

func (s *InMemoryStore) CommitSummary(_ context.Context, sessionID, roundID, summary string) error {
	if strings.TrimSpace(summary) == "" {
		return errors.Wrapf(conversation.ErrEmptySummary, "round %s", roundID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, r := s.findRoundLocked(sessionID, roundID)
	if r == nil {
		return errors.Wrapf(conversation.ErrUnknownRound, "session %s round %s", sessionID, roundID)
	}
	if blankToEmpty(r.Summary) != "" {
		return errors.Wrapf(conversation.ErrAlreadySummarized, "session %s round %s", sessionID, roundID)
	}
	r.Summary = summary
	if nowMs := s.now().UnixMilli(); nowMs > c.updatedAtMs {
		c.updatedAtMs = nowMs
	}
	return nil
}

func (s *InMemoryStore) ClearSummary(_ context.Context, sessionID, roundID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, r := s.findRoundLocked(sessionID, roundID)
	if r == nil {
		return false, errors.Wrapf(conversation.ErrUnknownRound, "session %s round %s", sessionID, roundID)
	}
	had := blankToEmpty(r.Summary) != ""
	r.Summary = ""
	return had, nil
}

func (s *InMemoryStore) ClearAllSummaries(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[sessionID]
	if !ok {
		return 0, nil
	}
	n := 0
	for ti := range c.snap.Turns {
		for ri := range c.snap.Turns[ti].Rounds {
			if blankToEmpty(c.snap.Turns[ti].Rounds[ri].Summary) != "" {
				n++
			}
			c.snap.Turns[ti].Rounds[ri].Summary = ""
		}
	}
	return n, nil
}
