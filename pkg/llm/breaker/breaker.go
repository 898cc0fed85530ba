// Package breaker wraps an llm.Endpoint with a circuit breaker so a failing
// provider is not hammered by repeated compaction attempts.
package breaker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/go-go-golems/roundup/pkg/llm"
)

type Config struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	MinRequests      uint32
	FailureThreshold float64
}

func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		MinRequests:      3,
		FailureThreshold: 0.6,
	}
}

type Endpoint struct {
	inner llm.Endpoint
	cb    *gobreaker.CircuitBreaker
}

var _ llm.Endpoint = (*Endpoint)(nil)

func Wrap(inner llm.Endpoint, cfg Config) *Endpoint {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= cfg.FailureThreshold {
				log.Warn().
					Str("breaker", cfg.Name).
					Uint32("requests", counts.Requests).
					Uint32("failures", counts.TotalFailures).
					Float64("ratio", ratio).
					Msg("circuit breaker tripping")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
		// a cancelled attempt says nothing about endpoint health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &Endpoint{inner: inner, cb: cb}
}

func (e *Endpoint) Descriptor() llm.Descriptor { return e.inner.Descriptor() }

func (e *Endpoint) State() gobreaker.State { return e.cb.State() }

// providerFailure carries a StatusError response through the breaker so it
// counts as a failure while the caller still gets the response.
type providerFailure struct {
	resp *llm.Response
}

func (p *providerFailure) Error() string {
	return "provider error: " + p.resp.Reason
}

// Invoke counts transport errors and StatusError responses as failures.
// Filtered responses are the provider working as intended.
func (e *Endpoint) Invoke(ctx context.Context, messages []llm.Message, opts llm.InvokeOptions) (*llm.Response, error) {
	result, err := e.cb.Execute(func() (interface{}, error) {
		resp, err := e.inner.Invoke(ctx, messages, opts)
		if err == nil && resp != nil && resp.Status == llm.StatusError {
			return resp, &providerFailure{resp: resp}
		}
		return resp, err
	})
	var pf *providerFailure
	if errors.As(err, &pf) {
		return pf.resp, nil
	}
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errors.Wrapf(err, "endpoint %s unavailable", e.inner.Descriptor().Model)
		}
		return nil, err
	}
	return result.(*llm.Response), nil
}
