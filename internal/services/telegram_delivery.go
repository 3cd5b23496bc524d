package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/swapfolio/swapfolio-go/internal/config"
	"github.com/swapfolio/swapfolio-go/internal/metrics"
)

var (
	// ErrNonRetryable wraps API rejections that retrying cannot fix, like a
	// user who blocked the bot or a malformed message.
	ErrNonRetryable = errors.New("non-retryable delivery error")
	// ErrDeliveryExhausted means every attempt failed with transient errors.
	ErrDeliveryExhausted = errors.New("delivery attempts exhausted")
	// ErrRateLimited means the API kept throttling past the wait cap.
	ErrRateLimited = errors.New("rate limited")
)

const (
	deliveryMaxAttempts  = 3
	deliveryInitialDelay = 1 * time.Second
	deliveryMaxDelay     = 5 * time.Second
	deliveryRateLimitCap = 3
	dryRunMessageID      = -1
)

// botAPI is the slice of go-telegram/bot the delivery primitive uses.
type botAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramDelivery sends Markdown messages over the Telegram Bot API with
// bounded retries. Transient failures back off exponentially; rate limits
// honor the API's retry-after hint without consuming the attempt budget,
// bounded by their own wait cap; hard rejections abort immediately.
type TelegramDelivery struct {
	bot    botAPI
	logger *logrus.Logger
	dryRun bool
}

func NewTelegramDelivery(botToken string, cfg config.NotificationsConfig, logger *logrus.Logger) (*TelegramDelivery, error) {
	var b *bot.Bot
	if botToken != "" {
		var err error
		b, err = bot.New(botToken)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
		}
	}

	return &TelegramDelivery{
		bot:    b,
		logger: logger,
		dryRun: cfg.DryRun,
	}, nil
}

// Send delivers text to the chat and returns the Telegram message id. In
// dry-run mode the message is logged instead and a synthetic id returned.
func (d *TelegramDelivery) Send(ctx context.Context, chatID int64, text string) (int, error) {
	if d.dryRun {
		d.logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"message": text,
		}).Info("Dry run: telegram message not sent")
		return dryRunMessageID, nil
	}
	if d.bot == nil {
		return 0, fmt.Errorf("%w: telegram bot not configured", ErrNonRetryable)
	}

	delay := deliveryInitialDelay
	rateLimitWaits := 0
	attempt := 0

	var lastErr error
	for {
		msg, err := d.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: tgmodels.ParseModeMarkdown,
		})
		if err == nil {
			return msg.ID, nil
		}
		lastErr = err

		var tooMany *bot.TooManyRequestsError
		if errors.As(err, &tooMany) {
			if rateLimitWaits >= deliveryRateLimitCap {
				return 0, fmt.Errorf("%w after %d waits: %v", ErrRateLimited, rateLimitWaits, err)
			}
			rateLimitWaits++
			metrics.DeliveryRateLimited.Inc()

			wait := delay
			if tooMany.RetryAfter > 0 {
				wait = time.Duration(tooMany.RetryAfter) * time.Second
			}
			d.logger.WithFields(logrus.Fields{
				"chat_id": chatID,
				"wait":    wait,
			}).Warn("Telegram rate limited, honoring retry-after")
			if err := sleepCtx(ctx, wait); err != nil {
				return 0, err
			}
			continue
		}

		if isNonRetryable(err) {
			return 0, fmt.Errorf("%w: %v", ErrNonRetryable, err)
		}

		attempt++
		if attempt >= deliveryMaxAttempts {
			break
		}
		metrics.DeliveryRetries.Inc()
		d.logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Warn("Telegram send failed, retrying")
		if err := sleepCtx(ctx, delay); err != nil {
			return 0, err
		}
		delay *= 2
		if delay > deliveryMaxDelay {
			delay = deliveryMaxDelay
		}
	}

	return 0, fmt.Errorf("%w after %d attempts: %v", ErrDeliveryExhausted, deliveryMaxAttempts, lastErr)
}

func isNonRetryable(err error) bool {
	return errors.Is(err, bot.ErrorForbidden) ||
		errors.Is(err, bot.ErrorBadRequest) ||
		errors.Is(err, bot.ErrorUnauthorized) ||
		errors.Is(err, bot.ErrorNotFound)
}

// sleepCtx waits for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
