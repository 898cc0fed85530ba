package debugapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/roundup/pkg/compaction"
	"github.com/go-go-golems/roundup/pkg/conversation"
	"github.com/go-go-golems/roundup/pkg/llm"
	"github.com/go-go-golems/roundup/pkg/persistence/chatstore"
)

func doRequest(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestDebugAPI_Routes(t *testing.T) {
	f := newFixture(t, "route summary")
	srv := httptest.NewServer(NewHandler(f.svc))
	defer srv.Close()

	status, body := doRequest(t, srv, http.MethodGet, "/api/debug/conversations", "")
	require.Equal(t, http.StatusOK, status)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	require.Equal(t, conversation.MockSessionID, items[0].(map[string]any)["session_id"])

	status, body = doRequest(t, srv, http.MethodGet, "/api/debug/conversations/mock-session", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(8), body["total_rounds"])

	status, body = doRequest(t, srv, http.MethodPost, "/api/debug/conversations/latest/split", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "turn2-round1", body["boundary"].(map[string]any)["summarized_round_id"])

	status, body = doRequest(t, srv, http.MethodPost, "/api/debug/conversations/mock-session/dry-run", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "route summary", body["result"].(map[string]any)["summary"])

	status, body = doRequest(t, srv, http.MethodPost, "/api/debug/conversations/mock-session/compact", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["committed"])

	status, body = doRequest(t, srv, http.MethodDelete, "/api/debug/conversations/mock-session/summaries?round_id=turn2-round1", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(1), body["cleared"])

	status, _ = doRequest(t, srv, http.MethodGet, "/api/debug/conversations/unknown", "")
	require.Equal(t, http.StatusNotFound, status)

	status, _ = doRequest(t, srv, http.MethodPost, "/api/debug/conversations/mock-session", "")
	require.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestDebugAPI_Flags(t *testing.T) {
	f := newFixture(t, "x")
	srv := httptest.NewServer(NewHandler(f.svc))
	defer srv.Close()

	status, body := doRequest(t, srv, http.MethodGet, "/api/debug/summarization/flags", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, body["inject_tools"])

	status, body = doRequest(t, srv, http.MethodPut, "/api/debug/summarization/flags", `{"inject_tools": true}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["inject_tools"])
	require.Equal(t, false, body["verbose"])
	require.True(t, f.flags.InjectTools())

	status, _ = doRequest(t, srv, http.MethodPut, "/api/debug/summarization/flags", `{"bogus": 1}`)
	require.Equal(t, http.StatusBadRequest, status)

	// the next attempt picks up the live flag
	_, _ = doRequest(t, srv, http.MethodPost, "/api/debug/conversations/mock-session/dry-run", "")
	require.Len(t, f.endpoint.opts, 1)
	require.Equal(t, llm.ToolChoiceNone, f.endpoint.opts[0].ToolChoice)
}

func TestDebugAPI_Metrics(t *testing.T) {
	f := newFixture(t, "x")
	srv := httptest.NewServer(NewHandler(f.svc))
	defer srv.Close()

	_, _ = doRequest(t, srv, http.MethodPost, "/api/debug/conversations/mock-session/dry-run", "")
	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "roundup_compaction_attempts_total")
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusNotFound, StatusFor(errors.Wrap(chatstore.ErrNotFound, "x")))
	require.Equal(t, http.StatusConflict, StatusFor(compaction.ErrNothingToSummarize))
	require.Equal(t, http.StatusUnprocessableEntity, StatusFor(&compaction.RenderError{TurnIndex: -1, RoundIndex: -1}))
	require.Equal(t, http.StatusBadGateway, StatusFor(&compaction.ModelError{Status: llm.StatusFiltered}))
	require.Equal(t, http.StatusServiceUnavailable, StatusFor(ErrSummarizerUnavailable))
	require.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
