package openaichat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/roundup/pkg/llm"
)

func newTestServer(t *testing.T, finishReason string, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		req := map[string]any{}
		require.NoError(t, json.Unmarshal(body, &req))
		*captured = req

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4.1",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": finishReason,
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEndpoint_InvokeSendsDeterministicRequestWithToolsDisabled(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, "stop", "the summary", &captured)

	ep, err := New(Config{APIKey: "test", BaseURL: srv.URL + "/", Model: "gpt-4.1", MaxPromptTokens: 1000})
	require.NoError(t, err)

	resp, err := ep.Invoke(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "summarize"},
		{Role: llm.RoleUser, Content: "history"},
	}, llm.InvokeOptions{
		Temperature: 0,
		ToolChoice:  llm.ToolChoiceNone,
		Tools: []llm.ToolSchema{{
			Name:        "read_file",
			Description: "Read a file",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{"path": map[string]any{"type": "string"}}},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, llm.StatusSuccess, resp.Status)
	require.Equal(t, "the summary", resp.Text)
	require.Equal(t, &llm.Usage{PromptTokens: 120, CompletionTokens: 30}, resp.Usage)

	require.Equal(t, "gpt-4.1", captured["model"])
	require.EqualValues(t, 0, captured["temperature"])
	require.Equal(t, "none", captured["tool_choice"])
	require.Len(t, captured["tools"], 1)
	require.Len(t, captured["messages"], 2)
}

func TestEndpoint_InvokeWithoutToolsOmitsToolChoice(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, "stop", "", &captured)

	ep, err := New(Config{APIKey: "test", BaseURL: srv.URL + "/", Model: "gpt-4.1"})
	require.NoError(t, err)

	resp, err := ep.Invoke(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}}, llm.InvokeOptions{})
	require.NoError(t, err)
	require.Equal(t, llm.StatusSuccess, resp.Status)
	require.Equal(t, "", resp.Text)
	require.NotContains(t, captured, "tools")
	require.NotContains(t, captured, "tool_choice")
}

func TestEndpoint_ContentFilterIsFiltered(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, "content_filter", "", &captured)

	ep, err := New(Config{APIKey: "test", BaseURL: srv.URL + "/", Model: "gpt-4.1"})
	require.NoError(t, err)

	resp, err := ep.Invoke(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}}, llm.InvokeOptions{})
	require.NoError(t, err)
	require.Equal(t, llm.StatusFiltered, resp.Status)
}

func TestEndpoint_HTTPErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	ep, err := New(Config{APIKey: "test", BaseURL: srv.URL + "/", Model: "gpt-4.1"})
	require.NoError(t, err)

	_, err = ep.Invoke(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}}, llm.InvokeOptions{})
	require.Error(t, err)

	_, err = ep.Invoke(context.Background(), nil, llm.InvokeOptions{Stream: true})
	require.Error(t, err)
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	require.Error(t, err)
}
