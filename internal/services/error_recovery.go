package services

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy defines retry behavior for one named operation.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// ErrorRecoveryManager retries transient failures with per-operation
// backoff policies. It covers startup dependencies (Postgres, Redis);
// Telegram delivery carries its own rate-limit-aware retry loop.
type ErrorRecoveryManager struct {
	logger   *logrus.Logger
	mu       sync.RWMutex
	policies map[string]*RetryPolicy
}

// NewErrorRecoveryManager creates a recovery manager seeded with the
// default policies.
func NewErrorRecoveryManager(logger *logrus.Logger) *ErrorRecoveryManager {
	erm := &ErrorRecoveryManager{
		logger:   logger,
		policies: make(map[string]*RetryPolicy),
	}
	for name, policy := range DefaultRetryPolicies() {
		erm.policies[name] = policy
	}
	return erm
}

// RegisterRetryPolicy sets or replaces the policy for an operation name.
func (erm *ErrorRecoveryManager) RegisterRetryPolicy(name string, policy *RetryPolicy) {
	erm.mu.Lock()
	defer erm.mu.Unlock()
	erm.policies[name] = policy
}

// ExecuteWithRetry runs operation until it succeeds, the policy is
// exhausted, or ctx is done. Unknown operation names get a conservative
// default policy rather than an error.
func (erm *ErrorRecoveryManager) ExecuteWithRetry(
	ctx context.Context,
	operationName string,
	operation func() error,
) error {
	start := time.Now()

	erm.mu.RLock()
	policy := erm.policies[operationName]
	erm.mu.RUnlock()

	if policy == nil {
		policy = &RetryPolicy{
			MaxRetries:    3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		}
	}

	delay := policy.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				erm.logger.WithFields(logrus.Fields{
					"operation": operationName,
					"attempts":  attempt + 1,
					"duration":  time.Since(start),
				}).Info("Operation recovered after retry")
			}
			return nil
		}
		lastErr = err

		if attempt == policy.MaxRetries {
			break
		}

		erm.logger.WithFields(logrus.Fields{
			"operation": operationName,
			"attempt":   attempt + 1,
			"error":     err.Error(),
			"delay":     delay,
		}).Warn("Operation failed, retrying")

		if err := sleepCtx(ctx, erm.withJitter(delay, policy)); err != nil {
			return err
		}
		delay = time.Duration(float64(delay) * policy.BackoffFactor)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	erm.logger.WithFields(logrus.Fields{
		"operation": operationName,
		"attempts":  policy.MaxRetries + 1,
		"duration":  time.Since(start),
		"error":     lastErr.Error(),
	}).Error("Operation failed after all retries")

	return lastErr
}

// withJitter spreads the delay by up to ±12.5% so restarting replicas do
// not hammer a recovering dependency in lockstep.
func (erm *ErrorRecoveryManager) withJitter(delay time.Duration, policy *RetryPolicy) time.Duration {
	if !policy.JitterEnabled {
		return delay
	}
	span := delay / 4
	if span <= 0 {
		return delay
	}
	return delay - span/2 + rand.N(span)
}

// DefaultRetryPolicies returns the policies for the operations the server
// retries during startup and background maintenance.
func DefaultRetryPolicies() map[string]*RetryPolicy {
	return map[string]*RetryPolicy{
		"database_connect": {
			MaxRetries:    5,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
		"redis_connect": {
			MaxRetries:    5,
			InitialDelay:  250 * time.Millisecond,
			MaxDelay:      3 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
		"notification_log_cleanup": {
			MaxRetries:    2,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: false,
		},
	}
}
