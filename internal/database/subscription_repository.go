package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/swapfolio/swapfolio-go/internal/models"
)

// ErrSubscriptionNotFound is returned by updates that target a wallet with no
// subscription row.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionRepository reads and updates per-wallet notification settings.
type SubscriptionRepository struct {
	pool DBPool
}

func NewSubscriptionRepository(pool DBPool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

// GetByWallet returns the subscription for a wallet, or nil when the wallet
// has never linked a notification channel.
func (r *SubscriptionRepository) GetByWallet(ctx context.Context, walletAddress string) (*models.Subscription, error) {
	query := `
		SELECT wallet_address, telegram_chat_id, enabled, min_impact,
		       min_confidence, quiet_start_hour, quiet_end_hour, connected,
		       created_at, updated_at
		FROM notification_subscriptions
		WHERE wallet_address = $1`

	var sub models.Subscription
	err := r.pool.QueryRow(ctx, query, walletAddress).Scan(
		&sub.WalletAddress,
		&sub.TelegramChatID,
		&sub.Enabled,
		&sub.MinImpact,
		&sub.MinConfidence,
		&sub.QuietStartHour,
		&sub.QuietEndHour,
		&sub.Connected,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// UpdateSettings upserts the user-tunable fields. A wallet that saves
// settings before linking a channel gets a disconnected row so the settings
// survive until linking completes.
func (r *SubscriptionRepository) UpdateSettings(ctx context.Context, walletAddress string, req *models.SubscriptionUpdateRequest) (*models.Subscription, error) {
	minImpact, err := models.ParseImpactFilter(req.MinImpact)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO notification_subscriptions (
			wallet_address, enabled, min_impact, min_confidence,
			quiet_start_hour, quiet_end_hour, connected
		) VALUES ($1, TRUE, $2, $3, $4, $5, FALSE)
		ON CONFLICT (wallet_address) DO UPDATE SET
			min_impact = EXCLUDED.min_impact,
			min_confidence = EXCLUDED.min_confidence,
			quiet_start_hour = EXCLUDED.quiet_start_hour,
			quiet_end_hour = EXCLUDED.quiet_end_hour,
			updated_at = NOW()
		RETURNING wallet_address, telegram_chat_id, enabled, min_impact,
		          min_confidence, quiet_start_hour, quiet_end_hour, connected,
		          created_at, updated_at`

	var sub models.Subscription
	err = r.pool.QueryRow(ctx, query,
		walletAddress, minImpact, req.MinConfidence, req.QuietStartHour, req.QuietEndHour,
	).Scan(
		&sub.WalletAddress,
		&sub.TelegramChatID,
		&sub.Enabled,
		&sub.MinImpact,
		&sub.MinConfidence,
		&sub.QuietStartHour,
		&sub.QuietEndHour,
		&sub.Connected,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription settings: %w", err)
	}

	return &sub, nil
}

// SetEnabled flips the master notification switch for a wallet.
func (r *SubscriptionRepository) SetEnabled(ctx context.Context, walletAddress string, enabled bool) error {
	query := `
		UPDATE notification_subscriptions
		SET enabled = $2, updated_at = NOW()
		WHERE wallet_address = $1`

	tag, err := r.pool.Exec(ctx, query, walletAddress, enabled)
	if err != nil {
		return fmt.Errorf("failed to set subscription enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet %s: %w", walletAddress, ErrSubscriptionNotFound)
	}

	return nil
}

// LinkTelegram records the chat id issued by the channel linking flow and
// marks the subscription connected.
func (r *SubscriptionRepository) LinkTelegram(ctx context.Context, walletAddress, chatID string) error {
	query := `
		INSERT INTO notification_subscriptions (
			wallet_address, telegram_chat_id, enabled, min_impact,
			min_confidence, connected
		) VALUES ($1, $2, TRUE, 'high_medium', 0, TRUE)
		ON CONFLICT (wallet_address) DO UPDATE SET
			telegram_chat_id = EXCLUDED.telegram_chat_id,
			connected = TRUE,
			updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, walletAddress, chatID); err != nil {
		return fmt.Errorf("failed to link telegram chat: %w", err)
	}

	return nil
}
