// Package resilience provides circuit breaking for calls across the data
// provider boundary.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "options-analytics/internal/errors"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // calls pass through
	CircuitOpen     CircuitState = "OPEN"      // calls are rejected
	CircuitHalfOpen CircuitState = "HALF_OPEN" // probing whether the source recovered
)

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it again.
	SuccessThreshold int
	// Timeout is how long an open circuit rejects calls before probing.
	Timeout time.Duration

	// Clock defaults to time.Now.
	Clock func() time.Time
	// OnStateChange, when set, is called after every transition with the
	// breaker's lock released.
	OnStateChange func(name string, from, to CircuitState)
	// IsFailure reports whether err counts against the circuit. Errors it
	// rejects leave the failure and success counts untouched. Nil counts
	// every error.
	IsFailure func(err error) bool
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// ErrCircuitOpen is returned while the circuit rejects calls.
var ErrCircuitOpen = apperrors.ErrCircuitOpen

// CircuitBreaker stops calling a data source after repeated failures and
// lets a few probe calls through once Timeout has passed.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig

	mu        sync.Mutex
	state     CircuitState
	failures  int // consecutive, while closed
	successes int // while half-open
	openedAt  time.Time
	changedAt time.Time
	lastFail  time.Time
	counts    counters
}

type counters struct {
	requests  int64
	successes int64
	failures  int64
	rejected  int64
	timeouts  int64
	ignored   int64
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeIgnored
)

// NewCircuitBreaker creates a closed circuit breaker. Non-positive
// thresholds take their defaults.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &CircuitBreaker{
		name:      name,
		config:    config,
		state:     CircuitClosed,
		changedAt: config.Clock(),
	}
}

// Execute runs fn under the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	_, err := ExecuteWithResult(cb, ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// ExecuteWithResult runs fn under the breaker and returns its result. When
// ctx ends before fn returns, ctx.Err() is returned and classified like any
// other error; fn keeps running in the background until it returns.
func ExecuteWithResult[T any](cb *CircuitBreaker, ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := cb.admit(); err != nil {
		return zero, err
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		cb.record(cb.classify(r.err), false)
		return r.value, r.err
	case <-ctx.Done():
		err := ctx.Err()
		cb.record(cb.classify(err), errors.Is(err, context.DeadlineExceeded))
		return zero, err
	}
}

func (cb *CircuitBreaker) classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeSuccess
	case cb.config.IsFailure == nil || cb.config.IsFailure(err):
		return outcomeFailure
	default:
		return outcomeIgnored
	}
}

// admit counts the request, or rejects it while the circuit is open.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	var from CircuitState
	moved := false
	if cb.state == CircuitOpen {
		if cb.config.Clock().Sub(cb.openedAt) < cb.config.Timeout {
			cb.counts.rejected++
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		from, moved = cb.state, true
		cb.setState(CircuitHalfOpen)
	}
	cb.counts.requests++
	cb.mu.Unlock()

	if moved {
		cb.notify(from, CircuitHalfOpen)
	}
	return nil
}

func (cb *CircuitBreaker) record(result outcome, timedOut bool) {
	cb.mu.Lock()
	from := cb.state
	if timedOut {
		cb.counts.timeouts++
	}
	switch result {
	case outcomeIgnored:
		cb.counts.ignored++
	case outcomeSuccess:
		cb.counts.successes++
		switch cb.state {
		case CircuitHalfOpen:
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.setState(CircuitClosed)
			}
		case CircuitClosed:
			cb.failures = 0
		}
	case outcomeFailure:
		cb.counts.failures++
		cb.lastFail = cb.config.Clock()
		switch cb.state {
		case CircuitClosed:
			cb.failures++
			if cb.failures >= cb.config.FailureThreshold {
				cb.setState(CircuitOpen)
			}
		case CircuitHalfOpen:
			cb.setState(CircuitOpen)
		}
	}
	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(state CircuitState) {
	now := cb.config.Clock()
	if state == CircuitOpen {
		cb.openedAt = now
	}
	cb.state = state
	cb.changedAt = now
	cb.failures = 0
	cb.successes = 0
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, to)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the name of the source the breaker guards.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Stats returns circuit breaker statistics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		Name:            cb.name,
		State:           cb.state,
		TotalRequests:   cb.counts.requests,
		TotalSuccesses:  cb.counts.successes,
		TotalFailures:   cb.counts.failures,
		TotalRejected:   cb.counts.rejected,
		TotalTimeouts:   cb.counts.timeouts,
		TotalIgnored:    cb.counts.ignored,
		CurrentFailures: cb.failures,
		LastFailureTime: cb.lastFail,
		LastStateChange: cb.changedAt,
	}
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.setState(CircuitClosed)
	cb.mu.Unlock()

	if from != CircuitClosed {
		cb.notify(from, CircuitClosed)
	}
}

// CircuitBreakerStats holds circuit breaker statistics.
type CircuitBreakerStats struct {
	Name            string       `json:"name"`
	State           CircuitState `json:"state"`
	TotalRequests   int64        `json:"total_requests"`
	TotalSuccesses  int64        `json:"total_successes"`
	TotalFailures   int64        `json:"total_failures"`
	TotalRejected   int64        `json:"total_rejected"`
	TotalTimeouts   int64        `json:"total_timeouts"`
	TotalIgnored    int64        `json:"total_ignored"`
	CurrentFailures int          `json:"current_failures"`
	LastFailureTime time.Time    `json:"last_failure_time"`
	LastStateChange time.Time    `json:"last_state_change"`
}

// FailureRate returns the failure rate as a percentage.
func (s CircuitBreakerStats) FailureRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalFailures) / float64(s.TotalRequests) * 100
}
