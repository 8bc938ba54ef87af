// Package resilience wraps outbound provider calls with a circuit breaker,
// timeouts and optional retries, and tracks provider health for status reporting.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the circuit breaker in front of a provider.
type BreakerConfig struct {
	Name string

	// FailureThreshold is the number of consecutive failed calls that opens
	// the breaker (default: 3). Polls are minutes apart, so a ratio over a
	// request window would take too long to trip.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open before a single trial
	// call is let through (default: 2m).
	OpenTimeout time.Duration

	// OnStateChange is called when the breaker changes state.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultBreakerConfig returns the breaker settings used for the air quality provider.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 3,
		OpenTimeout:      2 * time.Minute,
	}
}

// ReadyToTrip reports whether counts should open the breaker.
func (c BreakerConfig) ReadyToTrip(counts gobreaker.Counts) bool {
	threshold := c.FailureThreshold
	if threshold == 0 {
		threshold = 3
	}
	return counts.ConsecutiveFailures >= threshold
}

// Cancelled reports whether err stems from the caller abandoning the call,
// e.g. the poller dropping a fetch for a coordinate that is no longer current.
// Such errors say nothing about the provider.
func Cancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

func newBreaker[T any](cfg BreakerConfig) *gobreaker.CircuitBreaker[T] {
	timeout := cfg.OpenTimeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   1,
		Timeout:       timeout,
		ReadyToTrip:   cfg.ReadyToTrip,
		OnStateChange: cfg.OnStateChange,
		IsSuccessful: func(err error) bool {
			return err == nil || Cancelled(err)
		},
	})
}
