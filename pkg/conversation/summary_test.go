package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCommitSummary_SetsOnce(t *testing.T) {
	c := NewMock()

	require.NoError(t, c.CommitSummary("turn1-round1", "first summary"))
	r, _, _ := c.FindRound("turn1-round1")
	require.Equal(t, "first summary", r.Summary())

	err := c.CommitSummary("turn1-round1", "second summary")
	require.True(t, errors.Is(err, ErrAlreadySummarized))
	require.Equal(t, "first summary", r.Summary())
}

func TestCommitSummary_Rejections(t *testing.T) {
	c := NewMock()

	require.True(t, errors.Is(c.CommitSummary("turn0-round0", ""), ErrEmptySummary))
	require.True(t, errors.Is(c.CommitSummary("turn0-round0", " \n\t"), ErrEmptySummary))
	require.True(t, errors.Is(c.CommitSummary("nope", "text"), ErrUnknownRound))
	require.Empty(t, c.SummarizedRounds())
}

func TestCommitSummary_ConcurrentWritersOneWins(t *testing.T) {
	c := NewMock()

	const writers = 16
	var wg sync.WaitGroup
	results := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.CommitSummary("turn2-round1", fmt.Sprintf("summary %d", i))
		}(i)
	}
	wg.Wait()

	winners := 0
	winner := -1
	for i, err := range results {
		if err == nil {
			winners++
			winner = i
			continue
		}
		require.True(t, errors.Is(err, ErrAlreadySummarized))
	}
	require.Equal(t, 1, winners)

	r, _, _ := c.FindRound("turn2-round1")
	require.Equal(t, fmt.Sprintf("summary %d", winner), r.Summary())
}

func TestClearSummary(t *testing.T) {
	c := NewMock()
	require.NoError(t, c.CommitSummary("turn0-round1", "s0"))
	require.NoError(t, c.CommitSummary("turn1-round1", "s1"))

	cleared, err := c.ClearSummary("turn0-round1")
	require.NoError(t, err)
	require.True(t, cleared)

	cleared, err = c.ClearSummary("turn0-round1")
	require.NoError(t, err)
	require.False(t, cleared)

	_, err = c.ClearSummary("missing")
	require.True(t, errors.Is(err, ErrUnknownRound))

	// cleared rounds can be committed again
	require.NoError(t, c.CommitSummary("turn0-round1", "again"))
	require.Equal(t, 2, c.ClearAllSummaries())
	require.Empty(t, c.SummarizedRounds())
}

func TestNormalizeSummaries(t *testing.T) {
	c := New("sess")
	require.NoError(t, c.AddTurn(NewTurn("t0", "q",
		NewRound("r0", "").WithSummary("   "),
		NewRound("r1", "").WithSummary("real"),
		NewRound("r2", ""),
	)))

	require.Len(t, c.SummarizedRounds(), 2)
	require.Equal(t, 1, c.NormalizeSummaries())
	require.Len(t, c.SummarizedRounds(), 1)
	require.Equal(t, "r1", c.SummarizedRounds()[0].ID())
	require.Equal(t, 0, c.NormalizeSummaries())
}
