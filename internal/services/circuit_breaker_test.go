package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapfolio/swapfolio-go/internal/config"
)

func newTestBreaker() *CircuitBreaker {
	return NewCircuitBreaker("security", config.BreakerConfig{
		FailureThreshold:    3,
		ResetTimeoutSeconds: 60,
	}, quietLogger())
}

func failingCall(ctx context.Context) error { return errors.New("upstream 500") }

func okCall(ctx context.Context) error { return nil }

func TestBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Execute(context.Background(), okCall))
	}
	assert.Equal(t, BreakerClosed, cb.State())

	stats := cb.Stats()
	assert.Equal(t, int64(10), stats.TotalRequests)
	assert.Equal(t, int64(10), stats.Successes)
	assert.Zero(t, stats.Rejections)
}

func TestBreaker_OpensAtFailureThreshold(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 2; i++ {
		assert.Error(t, cb.Execute(context.Background(), failingCall))
		assert.Equal(t, BreakerClosed, cb.State())
	}
	assert.Error(t, cb.Execute(context.Background(), failingCall))
	assert.Equal(t, BreakerOpen, cb.State())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker()

	assert.Error(t, cb.Execute(context.Background(), failingCall))
	assert.Error(t, cb.Execute(context.Background(), failingCall))
	require.NoError(t, cb.Execute(context.Background(), okCall))

	// The streak restarted, so two more failures stay under the threshold.
	assert.Error(t, cb.Execute(context.Background(), failingCall))
	assert.Error(t, cb.Execute(context.Background(), failingCall))
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreaker_RejectsWhileOpen(t *testing.T) {
	cb := newTestBreaker()
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failingCall)
	}
	require.Equal(t, BreakerOpen, cb.State())

	calls := 0
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "security")
	assert.Zero(t, calls)
	assert.Equal(t, int64(1), cb.Stats().Rejections)
}

func TestBreaker_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	cb := newTestBreaker()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failingCall)
	}
	require.Equal(t, BreakerOpen, cb.State())

	// Before the reset timeout the breaker still rejects.
	cb.now = func() time.Time { return base.Add(30 * time.Second) }
	assert.ErrorIs(t, cb.Execute(context.Background(), okCall), ErrCircuitOpen)

	// After the timeout one probe is admitted and closes the breaker.
	cb.now = func() time.Time { return base.Add(61 * time.Second) }
	require.NoError(t, cb.Execute(context.Background(), okCall))
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreaker_HalfOpenProbeReopensOnFailure(t *testing.T) {
	cb := newTestBreaker()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failingCall)
	}

	cb.now = func() time.Time { return base.Add(61 * time.Second) }
	assert.Error(t, cb.Execute(context.Background(), failingCall))
	assert.Equal(t, BreakerOpen, cb.State())

	// The reopened breaker starts a fresh reset window.
	cb.now = func() time.Time { return base.Add(90 * time.Second) }
	assert.ErrorIs(t, cb.Execute(context.Background(), okCall), ErrCircuitOpen)
}

func TestBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	cb := newTestBreaker()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failingCall)
	}

	cb.now = func() time.Time { return base.Add(61 * time.Second) }

	// Admit the probe but do not record its outcome yet, as a concurrent
	// caller would observe.
	require.NoError(t, cb.admit())
	assert.Equal(t, BreakerHalfOpen, cb.State())
	assert.ErrorIs(t, cb.admit(), ErrCircuitOpen)
}

func TestBreaker_Reset(t *testing.T) {
	cb := newTestBreaker()
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failingCall)
	}
	require.Equal(t, BreakerOpen, cb.State())

	cb.Reset()
	assert.Equal(t, BreakerClosed, cb.State())
	require.NoError(t, cb.Execute(context.Background(), okCall))
}

func TestBreaker_DefaultsForZeroConfig(t *testing.T) {
	cb := NewCircuitBreaker("liquidity", config.BreakerConfig{}, quietLogger())

	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), failingCall)
		assert.Equal(t, BreakerClosed, cb.State())
	}
	_ = cb.Execute(context.Background(), failingCall)
	assert.Equal(t, BreakerOpen, cb.State())
}

func TestBreaker_StatsSnapshot(t *testing.T) {
	cb := newTestBreaker()
	_ = cb.Execute(context.Background(), okCall)
	_ = cb.Execute(context.Background(), failingCall)

	stats := cb.Stats()
	assert.Equal(t, "security", stats.Name)
	assert.Equal(t, "closed", stats.State)
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.Successes)
	assert.Equal(t, int64(1), stats.Failures)
	assert.False(t, stats.LastFailureTime.IsZero())
}
