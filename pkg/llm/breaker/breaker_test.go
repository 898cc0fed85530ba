package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/roundup/pkg/llm"
)

type flakyEndpoint struct {
	calls  int
	err    error
	status llm.Status
}

func (f *flakyEndpoint) Descriptor() llm.Descriptor { return llm.Descriptor{Model: "m"} }

func (f *flakyEndpoint) Invoke(context.Context, []llm.Message, llm.InvokeOptions) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.status != "" {
		return &llm.Response{Status: f.status, Reason: "upstream 500"}, nil
	}
	return &llm.Response{Status: llm.StatusSuccess, Text: "ok"}, nil
}

func TestBreaker_PassesThrough(t *testing.T) {
	inner := &flakyEndpoint{}
	ep := Wrap(inner, DefaultConfig("test"))

	resp, err := ep.Invoke(context.Background(), nil, llm.InvokeOptions{})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
	require.Equal(t, "m", ep.Descriptor().Model)
	require.Equal(t, gobreaker.StateClosed, ep.State())
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	boom := errors.New("boom")
	inner := &flakyEndpoint{err: boom}
	cfg := DefaultConfig("test")
	cfg.Timeout = time.Hour
	ep := Wrap(inner, cfg)

	for i := 0; i < 3; i++ {
		_, err := ep.Invoke(context.Background(), nil, llm.InvokeOptions{})
		require.True(t, errors.Is(err, boom))
	}
	require.Equal(t, gobreaker.StateOpen, ep.State())

	_, err := ep.Invoke(context.Background(), nil, llm.InvokeOptions{})
	require.True(t, errors.Is(err, gobreaker.ErrOpenState))
	require.Equal(t, 3, inner.calls)
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	inner := &flakyEndpoint{err: errors.Wrap(context.Canceled, "cancelled")}
	ep := Wrap(inner, DefaultConfig("test"))

	for i := 0; i < 5; i++ {
		_, err := ep.Invoke(context.Background(), nil, llm.InvokeOptions{})
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateClosed, ep.State())
}

func TestBreaker_ErrorStatusTrips(t *testing.T) {
	inner := &flakyEndpoint{status: llm.StatusError}
	cfg := DefaultConfig("test")
	cfg.Timeout = time.Hour
	ep := Wrap(inner, cfg)

	for i := 0; i < 3; i++ {
		resp, err := ep.Invoke(context.Background(), nil, llm.InvokeOptions{})
		require.NoError(t, err)
		require.Equal(t, llm.StatusError, resp.Status)
		require.Equal(t, "upstream 500", resp.Reason)
	}
	require.Equal(t, gobreaker.StateOpen, ep.State())

	_, err := ep.Invoke(context.Background(), nil, llm.InvokeOptions{})
	require.True(t, errors.Is(err, gobreaker.ErrOpenState))
	require.Equal(t, 3, inner.calls)
}

func TestBreaker_FilteredDoesNotTrip(t *testing.T) {
	inner := &flakyEndpoint{status: llm.StatusFiltered}
	ep := Wrap(inner, DefaultConfig("test"))

	for i := 0; i < 5; i++ {
		resp, err := ep.Invoke(context.Background(), nil, llm.InvokeOptions{})
		require.NoError(t, err)
		require.Equal(t, llm.StatusFiltered, resp.Status)
	}
	require.Equal(t, gobreaker.StateClosed, ep.State())
}
