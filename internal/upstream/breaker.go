// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package upstream

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/metrics"
)

// Breaker sheds load when the upstream is failing. It trips after at
// least 10 requests in the rolling interval with a 60%+ failure rate,
// then probes with up to 3 requests after a 2 minute cooldown.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[*http.Response]
}

// NewBreaker creates a named circuit breaker for upstream round trips.
func NewBreaker(name string) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))
	return &Breaker{cb: gobreaker.NewCircuitBreaker[*http.Response](settings)}
}

// Execute runs fn under the breaker's admission policy.
func (b *Breaker) Execute(fn func() (*http.Response, error)) (*http.Response, error) {
	return b.cb.Execute(fn)
}

// State reports the breaker's current state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
