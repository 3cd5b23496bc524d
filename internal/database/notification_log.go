package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/swapfolio/swapfolio-go/internal/models"
)

// NotificationLogRepository persists the audit trail of sent notifications.
type NotificationLogRepository struct {
	pool DBPool
}

func NewNotificationLogRepository(pool DBPool) *NotificationLogRepository {
	return &NotificationLogRepository{pool: pool}
}

// Insert records a delivered notification and returns its generated id.
func (r *NotificationLogRepository) Insert(ctx context.Context, entry *models.NotificationLogEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notification_log (
			id, wallet_address, chain_id, token_address, signal_type,
			severity, message_id, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.WalletAddress,
		entry.ChainID,
		entry.TokenAddress,
		entry.SignalType,
		entry.Severity.String(),
		entry.MessageID,
		entry.SentAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert notification log entry: %w", err)
	}

	return entry.ID, nil
}

// DeleteOlderThan removes audit rows older than the cutoff and returns how
// many were deleted. The sweeper calls this on its maintenance cycle.
func (r *NotificationLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM notification_log WHERE sent_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune notification log: %w", err)
	}

	return tag.RowsAffected(), nil
}
