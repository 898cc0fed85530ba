package chatstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/roundup/pkg/compaction"
	"github.com/go-go-golems/roundup/pkg/conversation"
)

type storeFactory func(t *testing.T) Store

func newSQLiteTestStore(t *testing.T) Store {
	t.Helper()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "roundup.db"))
	require.NoError(t, err)
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newMemoryTestStore(t *testing.T) Store {
	return NewInMemoryStore(10)
}

var stores = map[string]storeFactory{
	"sqlite": newSQLiteTestStore,
	"memory": newMemoryTestStore,
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range stores {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		conv := conversation.NewMock()
		require.NoError(t, conv.CommitSummary("turn0-round1", "first summary"))
		require.NoError(t, s.Save(ctx, conv))

		loaded, err := s.Load(ctx, conversation.MockSessionID)
		require.NoError(t, err)
		require.Equal(t, conv.Snapshot(), loaded.Snapshot())

		_, err = s.Load(ctx, "missing")
		require.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestStore_SaveAppendsNewRounds(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		conv := conversation.NewMock()
		require.NoError(t, s.Save(ctx, conv))

		require.NoError(t, conv.AppendRound(conversation.NewRound("current-round2", "more")))
		require.NoError(t, s.Save(ctx, conv))

		loaded, err := s.Load(ctx, conversation.MockSessionID)
		require.NoError(t, err)
		require.Equal(t, 9, loaded.RoundCount())
		require.Equal(t, conv.Snapshot(), loaded.Snapshot())
	})
}

func TestStore_CommitSummaryIsWriteOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, conversation.NewMock()))

		require.NoError(t, s.CommitSummary(ctx, conversation.MockSessionID, "turn2-round1", "summary"))
		err := s.CommitSummary(ctx, conversation.MockSessionID, "turn2-round1", "other")
		require.True(t, compaction.IsBenignCommitConflict(err))

		err = s.CommitSummary(ctx, conversation.MockSessionID, "nope", "x")
		require.True(t, errors.Is(err, conversation.ErrUnknownRound))
		err = s.CommitSummary(ctx, conversation.MockSessionID, "turn1-round1", " \n")
		require.True(t, errors.Is(err, conversation.ErrEmptySummary))

		loaded, err := s.Load(ctx, conversation.MockSessionID)
		require.NoError(t, err)
		r, _, ok := loaded.FindRound("turn2-round1")
		require.True(t, ok)
		require.Equal(t, "summary", r.Summary())
		require.Len(t, loaded.SummarizedRounds(), 1)
	})
}

func TestStore_SaveKeepsStoredSummary(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		conv := conversation.NewMock()
		require.NoError(t, s.Save(ctx, conv))
		require.NoError(t, s.CommitSummary(ctx, conversation.MockSessionID, "turn2-round1", "stored"))

		require.NoError(t, conv.CommitSummary("turn2-round1", "local"))
		require.NoError(t, s.Save(ctx, conv))

		loaded, err := s.Load(ctx, conversation.MockSessionID)
		require.NoError(t, err)
		r, _, _ := loaded.FindRound("turn2-round1")
		require.Equal(t, "stored", r.Summary())
	})
}

func blankSummaryConversation(t *testing.T) *conversation.Conversation {
	t.Helper()
	conv := conversation.New("blank")
	require.NoError(t, conv.AddTurn(conversation.NewTurn("t0", "do it",
		conversation.NewRound("r0", "", conversation.ToolCall{Name: "read_file"}),
		conversation.NewRound("r1", "", conversation.ToolCall{Name: "read_file"}).WithSummary("   "),
		conversation.NewRound("r2", "", conversation.ToolCall{Name: "read_file"}),
		conversation.NewRound("r3", "done"),
	)))
	return conv
}

func TestStore_BlankSummaryCountsAsUnsummarized(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, blankSummaryConversation(t)))

		records, err := s.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, 0, records[0].SummarizedRounds)

		require.NoError(t, s.CommitSummary(ctx, "blank", "r1", "real summary"))
		loaded, err := s.Load(ctx, "blank")
		require.NoError(t, err)
		r, _, _ := loaded.FindRound("r1")
		require.Equal(t, "real summary", r.Summary())
	})
}

func TestSQLiteStore_CommitOverLegacyBlankSummary(t *testing.T) {
	s := newSQLiteTestStore(t).(*SQLiteStore)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, blankSummaryConversation(t)))
	_, err := s.db.ExecContext(ctx, `UPDATE rounds SET summary = ' ' || char(10) || ' ' WHERE round_id = 'r1'`)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, blankSummaryConversation(t)))
	cleared, err := s.ClearSummary(ctx, "blank", "r1")
	require.NoError(t, err)
	require.False(t, cleared)

	_, err = s.db.ExecContext(ctx, `UPDATE rounds SET summary = '   ' WHERE round_id = 'r1'`)
	require.NoError(t, err)
	require.NoError(t, s.CommitSummary(ctx, "blank", "r1", "real summary"))
	err = s.CommitSummary(ctx, "blank", "r1", "again")
	require.True(t, errors.Is(err, conversation.ErrAlreadySummarized))
}

func TestStore_ConcurrentCommitsOneWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, conversation.NewMock()))

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.CommitSummary(ctx, conversation.MockSessionID, "turn1-round0", "s")
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
					return
				}
				assert.True(t, compaction.IsBenignCommitConflict(err), "%v", err)
			}()
		}
		wg.Wait()
		require.Equal(t, 1, wins)
	})
}

func TestStore_ClearSummaries(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		conv := conversation.NewMock()
		require.NoError(t, conv.CommitSummary("turn0-round1", "a"))
		require.NoError(t, conv.CommitSummary("turn1-round1", "b"))
		require.NoError(t, s.Save(ctx, conv))

		cleared, err := s.ClearSummary(ctx, conversation.MockSessionID, "turn1-round1")
		require.NoError(t, err)
		require.True(t, cleared)
		cleared, err = s.ClearSummary(ctx, conversation.MockSessionID, "turn1-round1")
		require.NoError(t, err)
		require.False(t, cleared)
		_, err = s.ClearSummary(ctx, conversation.MockSessionID, "nope")
		require.True(t, errors.Is(err, conversation.ErrUnknownRound))

		require.NoError(t, s.CommitSummary(ctx, conversation.MockSessionID, "turn1-round1", "c"))
		n, err := s.ClearAllSummaries(ctx, conversation.MockSessionID)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		loaded, err := s.Load(ctx, conversation.MockSessionID)
		require.NoError(t, err)
		require.Empty(t, loaded.SummarizedRounds())
	})
}

func TestStore_ListAndLatest(t *testing.T) {
	for name, factory := range stores {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			clock := time.UnixMilli(1000)
			setClock(s, func() time.Time { return clock })
			ctx := context.Background()

			_, err := s.Latest(ctx)
			require.True(t, errors.Is(err, ErrNotFound))

			first := conversation.New("older")
			require.NoError(t, first.AddTurn(conversation.NewTurn("t", "q", conversation.NewRound("r", "a"))))
			require.NoError(t, s.Save(ctx, first))

			clock = time.UnixMilli(2000)
			mock := conversation.NewMock()
			require.NoError(t, mock.CommitSummary("turn0-round1", "x"))
			require.NoError(t, s.Save(ctx, mock))

			records, err := s.List(ctx, 10)
			require.NoError(t, err)
			require.Len(t, records, 2)
			require.Equal(t, conversation.MockSessionID, records[0].SessionID)
			require.Equal(t, 4, records[0].TurnCount)
			require.Equal(t, 8, records[0].RoundCount)
			require.Equal(t, 1, records[0].SummarizedRounds)
			require.Equal(t, "turn0-round1", records[0].LatestSummaryRoundID)
			require.Equal(t, int64(2000), records[0].UpdatedAtMs)
			require.Equal(t, "older", records[1].SessionID)

			latest, err := s.Latest(ctx)
			require.NoError(t, err)
			require.Equal(t, conversation.MockSessionID, latest.SessionID())

			limited, err := s.List(ctx, 1)
			require.NoError(t, err)
			require.Len(t, limited, 1)
		})
	}
}

func TestInMemoryStore_EvictsOldest(t *testing.T) {
	s := NewInMemoryStore(2)
	clock := int64(0)
	s.now = func() time.Time { clock++; return time.UnixMilli(clock) }
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, conversation.New(id)))
	}
	_, err := s.Load(ctx, "a")
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Load(ctx, "c")
	require.NoError(t, err)
}

func setClock(s Store, now func() time.Time) {
	switch st := s.(type) {
	case *SQLiteStore:
		st.now = now
	case *InMemoryStore:
		st.now = now
	}
}
