package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swapfolio/swapfolio-go/internal/config"
)

// ErrCircuitOpen is returned by Execute while the breaker refuses calls.
// Callers detect it with errors.Is to tell "upstream is sick and we are
// backing off" apart from an ordinary request failure.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerState is the admission state of a circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerStats is a point-in-time snapshot for the admin status endpoint.
type BreakerStats struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	TotalRequests   int64     `json:"total_requests"`
	Successes       int64     `json:"successes"`
	Failures        int64     `json:"failures"`
	Rejections      int64     `json:"rejections"`
	StateChanges    int64     `json:"state_changes"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

// CircuitBreaker guards one upstream. Consecutive failures trip it open,
// after the reset timeout a half-open probe is admitted, and a successful
// probe closes it again. A failed probe reopens it immediately.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenProbes   int
	logger           *logrus.Logger

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	probeCount      int
	lastFailureTime time.Time
	openedAt        time.Time
	totalRequests   int64
	successes       int64
	failures        int64
	rejections      int64
	stateChanges    int64

	now func() time.Time
}

// NewCircuitBreaker builds a breaker from the upstream breaker settings.
// Zero config fields fall back to 5 consecutive failures and a 60s reset.
func NewCircuitBreaker(name string, cfg config.BreakerConfig, logger *logrus.Logger) *CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	reset := time.Duration(cfg.ResetTimeoutSeconds) * time.Second
	if reset <= 0 {
		reset = 60 * time.Second
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: threshold,
		resetTimeout:     reset,
		halfOpenProbes:   1,
		logger:           logger,
		state:            BreakerClosed,
		now:              time.Now,
	}
}

// Execute runs fn unless the breaker is open. The breaker lock is not held
// while fn runs, so concurrent calls to a healthy upstream do not serialize.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

// admit decides whether a call may proceed and advances open -> half-open
// when the reset timeout has elapsed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	switch cb.state {
	case BreakerClosed:
		return nil

	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
			cb.setState(BreakerHalfOpen)
			cb.probeCount = 1
			return nil
		}
		cb.rejections++
		return fmt.Errorf("upstream %s: %w", cb.name, ErrCircuitOpen)

	case BreakerHalfOpen:
		if cb.probeCount < cb.halfOpenProbes {
			cb.probeCount++
			return nil
		}
		cb.rejections++
		return fmt.Errorf("upstream %s: %w", cb.name, ErrCircuitOpen)

	default:
		cb.rejections++
		return fmt.Errorf("upstream %s: %w", cb.name, ErrCircuitOpen)
	}
}

// record applies the outcome of an admitted call.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.successes++
		switch cb.state {
		case BreakerClosed:
			cb.failureCount = 0
		case BreakerHalfOpen:
			cb.setState(BreakerClosed)
			cb.failureCount = 0
			cb.probeCount = 0
		}
		return
	}

	cb.failures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case BreakerClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.openLocked()
		}
	case BreakerHalfOpen:
		cb.openLocked()
	}

	cb.logger.WithFields(logrus.Fields{
		"breaker":       cb.name,
		"state":         cb.state.String(),
		"failure_count": cb.failureCount,
		"error":         err.Error(),
	}).Warn("Upstream call failed")
}

func (cb *CircuitBreaker) openLocked() {
	cb.setState(BreakerOpen)
	cb.openedAt = cb.now()
	cb.probeCount = 0
}

func (cb *CircuitBreaker) setState(next BreakerState) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.stateChanges++
	cb.logger.WithFields(logrus.Fields{
		"breaker":   cb.name,
		"old_state": prev.String(),
		"new_state": next.String(),
	}).Info("Circuit breaker state changed")
}

// State returns the current admission state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker counters.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		Name:            cb.name,
		State:           cb.state.String(),
		TotalRequests:   cb.totalRequests,
		Successes:       cb.successes,
		Failures:        cb.failures,
		Rejections:      cb.rejections,
		StateChanges:    cb.stateChanges,
		LastFailureTime: cb.lastFailureTime,
	}
}

// Reset force-closes the breaker and clears its failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(BreakerClosed)
	cb.failureCount = 0
	cb.probeCount = 0
	cb.logger.WithField("breaker", cb.name).Info("Circuit breaker manually reset")
}
