package debugapi

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/roundup/pkg/compaction"
	"github.com/go-go-golems/roundup/pkg/conversation"
	"github.com/go-go-golems/roundup/pkg/llm"
	"github.com/go-go-golems/roundup/pkg/persistence/chatstore"
	"github.com/go-go-golems/roundup/pkg/render"
	"github.com/go-go-golems/roundup/pkg/tools"
)

type stubEndpoint struct {
	mu    sync.Mutex
	reply string
	opts  []llm.InvokeOptions
}

func (e *stubEndpoint) Descriptor() llm.Descriptor {
	return llm.Descriptor{Provider: "stub", Model: "stub-model", MaxPromptTokens: 100000}
}

func (e *stubEndpoint) Invoke(_ context.Context, _ []llm.Message, opts llm.InvokeOptions) (*llm.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts = append(e.opts, opts)
	return &llm.Response{Status: llm.StatusSuccess, Text: e.reply}, nil
}

type fixture struct {
	store    *chatstore.InMemoryStore
	endpoint *stubEndpoint
	flags    *compaction.DebugFlags
	svc      *Service
}

func newFixture(t *testing.T, reply string) *fixture {
	t.Helper()
	store := chatstore.NewInMemoryStore(10)
	require.NoError(t, store.Save(context.Background(), conversation.NewMock()))

	renderer, err := render.NewTemplateRenderer(render.WithTokenCounter(render.CharCounter{}))
	require.NoError(t, err)
	registry := tools.Static{{Name: "read_file", Description: "Read a file"}}
	ep := &stubEndpoint{reply: reply}
	summarizer, err := compaction.NewSummarizer(renderer, ep, compaction.WithToolRegistry(registry))
	require.NoError(t, err)

	flags := &compaction.DebugFlags{}
	return &fixture{
		store:    store,
		endpoint: ep,
		flags:    flags,
		svc: NewService(store,
			WithSummarizer(summarizer),
			WithToolRegistry(registry),
			WithFlags(flags),
		),
	}
}

func TestInspect_Mock(t *testing.T) {
	conv := conversation.New("s")
	require.NoError(t, conv.AddTurn(conversation.NewTurn("t0", strings.Repeat("x", 150),
		conversation.NewRound("r0", "", conversation.ToolCall{Name: "read_file"}, conversation.ToolCall{Name: "list_dir"}).WithSummary("s"),
	)))

	rep := Inspect(conv)
	require.Equal(t, 1, rep.TotalRounds)
	require.Len(t, rep.Turns, 1)
	require.Equal(t, strings.Repeat("x", 100)+"...", rep.Turns[0].RequestPreview)
	require.Equal(t, []string{"read_file", "list_dir"}, rep.Turns[0].Rounds[0].ToolNames)
	require.True(t, rep.Turns[0].Rounds[0].HasSummary)
}

func TestService_SplitLatest(t *testing.T) {
	f := newFixture(t, "x")
	rep, err := f.svc.Split(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, conversation.MockSessionID, rep.SessionID)
	require.Equal(t, "turn2-round1", rep.Boundary.SummarizedRoundID)
	require.Equal(t, 2, rep.HistoryTurns)
	require.Equal(t, 2, rep.ToolCallRounds)
	require.Equal(t, 3, rep.HistoricTurns)
	require.True(t, rep.IsContinuation)
}

func TestService_DryRunNeverCommits(t *testing.T) {
	f := newFixture(t, "the summary")
	rep, err := f.svc.DryRunSession(context.Background(), conversation.MockSessionID)
	require.NoError(t, err)
	require.Equal(t, 4, rep.InputTurns)
	require.Equal(t, 8, rep.InputRounds)
	require.NotNil(t, rep.Result)
	require.Equal(t, "the summary", rep.Result.Summary)

	conv, err := f.store.Load(context.Background(), conversation.MockSessionID)
	require.NoError(t, err)
	require.Empty(t, conv.SummarizedRounds())
}

func TestService_DryRunUsesFlags(t *testing.T) {
	f := newFixture(t, "x")
	f.flags.SetInjectTools(true)
	_, err := f.svc.DryRunSession(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, f.endpoint.opts, 1)
	require.Equal(t, llm.ToolChoiceNone, f.endpoint.opts[0].ToolChoice)
	require.Len(t, f.endpoint.opts[0].Tools, 1)
}

func TestService_CompactCommitsAndPersists(t *testing.T) {
	f := newFixture(t, "compacted")
	ctx := context.Background()

	rep, err := f.svc.Compact(ctx, conversation.MockSessionID)
	require.NoError(t, err)
	require.True(t, rep.Committed)

	conv, err := f.store.Load(ctx, conversation.MockSessionID)
	require.NoError(t, err)
	r, _, _ := conv.FindRound("turn2-round1")
	require.Equal(t, "compacted", r.Summary())

	rep, err = f.svc.Compact(ctx, conversation.MockSessionID)
	require.NoError(t, err)
	require.True(t, rep.Committed)
	require.Equal(t, "current-round0", rep.Result.BoundaryRoundID)

	rep, err = f.svc.Compact(ctx, conversation.MockSessionID)
	require.NoError(t, err)
	require.False(t, rep.Committed)
	require.True(t, rep.NothingToSummarize)
	require.Equal(t, NothingToSummarizeHint, rep.Reason)
}

func TestService_CompactSkipsEmptySummary(t *testing.T) {
	f := newFixture(t, "   ")
	rep, err := f.svc.Compact(context.Background(), conversation.MockSessionID)
	require.NoError(t, err)
	require.False(t, rep.Committed)
	require.True(t, rep.Result.Empty)

	conv, err := f.store.Load(context.Background(), conversation.MockSessionID)
	require.NoError(t, err)
	require.Empty(t, conv.SummarizedRounds())
}

func TestService_ClearSummaries(t *testing.T) {
	f := newFixture(t, "x")
	ctx := context.Background()
	require.NoError(t, f.store.CommitSummary(ctx, conversation.MockSessionID, "turn0-round1", "a"))
	require.NoError(t, f.store.CommitSummary(ctx, conversation.MockSessionID, "turn2-round1", "b"))

	n, err := f.svc.ClearSummaries(ctx, conversation.MockSessionID, "turn0-round1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = f.svc.ClearSummaries(ctx, conversation.MockSessionID, "turn0-round1")
	require.NoError(t, err)
	require.Equal(t, 0, n)
	n, err = f.svc.ClearSummaries(ctx, LatestSession, "")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = f.svc.ClearSummaries(ctx, conversation.MockSessionID, "nope")
	require.True(t, errors.Is(err, compaction.ErrUnknownRound))
}

func TestService_WithoutSummarizer(t *testing.T) {
	svc := NewService(chatstore.NewInMemoryStore(1))
	_, err := svc.DryRun(context.Background(), conversation.NewMock())
	require.True(t, errors.Is(err, ErrSummarizerUnavailable))
}

type eventLog struct {
	mu     sync.Mutex
	events []compaction.Event
}

func (l *eventLog) PublishCompactionEvent(_ context.Context, ev compaction.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func TestService_CompactPublishesCommitEvent(t *testing.T) {
	f := newFixture(t, "compacted")
	events := &eventLog{}
	WithEventPublisher(events)(f.svc)

	_, err := f.svc.Compact(context.Background(), conversation.MockSessionID)
	require.NoError(t, err)

	require.Len(t, events.events, 1)
	ev := events.events[0]
	require.Equal(t, compaction.EventKindCommit, ev.Kind)
	require.Equal(t, compaction.CommitCommitted, ev.Outcome)
	require.Equal(t, "turn2-round1", ev.BoundaryRoundID)
	require.Equal(t, len("compacted"), ev.SummaryLength)
}

func TestService_CompactOverBlankStoredSummary(t *testing.T) {
	ctx := context.Background()
	dsn, err := chatstore.SQLiteDSNForFile(filepath.Join(t.TempDir(), "roundup.db"))
	require.NoError(t, err)
	store, err := chatstore.NewSQLiteStore(dsn)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	conv := conversation.New("blank")
	require.NoError(t, conv.AddTurn(conversation.NewTurn("t0", "do it",
		conversation.NewRound("r0", "", conversation.ToolCall{Name: "read_file"}),
		conversation.NewRound("r1", "", conversation.ToolCall{Name: "read_file"}).WithSummary("   "),
		conversation.NewRound("r2", "", conversation.ToolCall{Name: "read_file"}),
		conversation.NewRound("r3", "done"),
	)))
	require.NoError(t, store.Save(ctx, conv))

	renderer, err := render.NewTemplateRenderer(render.WithTokenCounter(render.CharCounter{}))
	require.NoError(t, err)
	summarizer, err := compaction.NewSummarizer(renderer, &stubEndpoint{reply: "compacted"})
	require.NoError(t, err)
	svc := NewService(store, WithSummarizer(summarizer))

	rep, err := svc.Compact(ctx, "blank")
	require.NoError(t, err)
	require.True(t, rep.Committed)
	require.False(t, rep.Conflict)
	require.Equal(t, "r1", rep.Result.BoundaryRoundID)

	loaded, err := store.Load(ctx, "blank")
	require.NoError(t, err)
	r, _, _ := loaded.FindRound("r1")
	require.Equal(t, "compacted", r.Summary())
}
