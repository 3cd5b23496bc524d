package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapfolio/swapfolio-go/internal/config"
)

type sendResult struct {
	id  int
	err error
}

// scriptedBot answers SendMessage calls from a fixed script, repeating the
// last entry once the script runs out.
type scriptedBot struct {
	mu     sync.Mutex
	script []sendResult
	calls  int
	params []*bot.SendMessageParams
}

func (s *scriptedBot) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.params = append(s.params, params)

	idx := s.calls - 1
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	r := s.script[idx]
	if r.err != nil {
		return nil, r.err
	}
	return &tgmodels.Message{ID: r.id}, nil
}

func newScriptedDelivery(script ...sendResult) (*TelegramDelivery, *scriptedBot) {
	fake := &scriptedBot{script: script}
	return &TelegramDelivery{bot: fake, logger: quietLogger()}, fake
}

func TestTelegramSend_Success(t *testing.T) {
	delivery, fake := newScriptedDelivery(sendResult{id: 99})

	id, err := delivery.Send(context.Background(), 123456, "*hello*")
	require.NoError(t, err)
	assert.Equal(t, 99, id)
	require.Equal(t, 1, fake.calls)
	assert.Equal(t, int64(123456), fake.params[0].ChatID)
	assert.Equal(t, "*hello*", fake.params[0].Text)
	assert.Equal(t, tgmodels.ParseModeMarkdown, fake.params[0].ParseMode)
}

func TestTelegramSend_RetriesTransientFailure(t *testing.T) {
	delivery, fake := newScriptedDelivery(
		sendResult{err: errors.New("connection reset")},
		sendResult{id: 7},
	)

	id, err := delivery.Send(context.Background(), 1, "msg")
	require.NoError(t, err)
	assert.Equal(t, 7, id)
	assert.Equal(t, 2, fake.calls)
}

func TestTelegramSend_ExhaustsAttempts(t *testing.T) {
	delivery, fake := newScriptedDelivery(sendResult{err: errors.New("i/o timeout")})

	_, err := delivery.Send(context.Background(), 1, "msg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryExhausted)
	assert.Equal(t, deliveryMaxAttempts, fake.calls)
}

func TestTelegramSend_NonRetryableAbortsImmediately(t *testing.T) {
	delivery, fake := newScriptedDelivery(sendResult{err: bot.ErrorForbidden})

	start := time.Now()
	_, err := delivery.Send(context.Background(), 1, "msg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonRetryable)
	assert.Equal(t, 1, fake.calls)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTelegramSend_RateLimitHonorsRetryAfter(t *testing.T) {
	delivery, fake := newScriptedDelivery(
		sendResult{err: &bot.TooManyRequestsError{Message: "too many requests", RetryAfter: 1}},
		sendResult{id: 11},
	)

	start := time.Now()
	id, err := delivery.Send(context.Background(), 1, "msg")
	require.NoError(t, err)
	assert.Equal(t, 11, id)
	assert.Equal(t, 2, fake.calls)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestTelegramSend_RateLimitWaitCap(t *testing.T) {
	delivery, fake := newScriptedDelivery(
		sendResult{err: &bot.TooManyRequestsError{Message: "too many requests", RetryAfter: 1}},
	)

	_, err := delivery.Send(context.Background(), 1, "msg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	// The cap bounds waits, not calls: one call per wait plus the final one.
	assert.Equal(t, deliveryRateLimitCap+1, fake.calls)
}

func TestTelegramSend_ContextCancelledDuringBackoff(t *testing.T) {
	delivery, fake := newScriptedDelivery(sendResult{err: errors.New("connection reset")})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := delivery.Send(ctx, 1, "msg")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, fake.calls)
}

func TestTelegramSend_DryRun(t *testing.T) {
	delivery := &TelegramDelivery{logger: quietLogger(), dryRun: true}

	id, err := delivery.Send(context.Background(), 1, "msg")
	require.NoError(t, err)
	assert.Equal(t, dryRunMessageID, id)
}

func TestTelegramSend_NilBot(t *testing.T) {
	delivery := &TelegramDelivery{logger: quietLogger()}

	_, err := delivery.Send(context.Background(), 1, "msg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonRetryable)
}

func TestNewTelegramDelivery_EmptyToken(t *testing.T) {
	delivery, err := NewTelegramDelivery("", config.NotificationsConfig{}, quietLogger())
	require.NoError(t, err)
	require.NotNil(t, delivery)

	// Without a token the primitive is constructed but cannot deliver.
	_, err = delivery.Send(context.Background(), 1, "msg")
	assert.ErrorIs(t, err, ErrNonRetryable)
}
