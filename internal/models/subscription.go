package models

import (
	"fmt"
	"strings"
	"time"
)

// ImpactFilter is the subscription's minimum-impact setting.
type ImpactFilter string

const (
	// ImpactFilterHigh delivers only high-impact signals.
	ImpactFilterHigh ImpactFilter = "high"
	// ImpactFilterHighMedium delivers high- and medium-impact signals.
	ImpactFilterHighMedium ImpactFilter = "high_medium"
	// ImpactFilterAll delivers every impact level.
	ImpactFilterAll ImpactFilter = "all"
)

// IsValid reports whether the filter is one of the known values.
func (f ImpactFilter) IsValid() bool {
	switch f {
	case ImpactFilterHigh, ImpactFilterHighMedium, ImpactFilterAll:
		return true
	default:
		return false
	}
}

// Allows reports whether the filter admits the given impact level.
func (f ImpactFilter) Allows(level ImpactLevel) bool {
	switch f {
	case ImpactFilterHigh:
		return level.AtLeast(ImpactHigh)
	case ImpactFilterHighMedium:
		return level.AtLeast(ImpactMedium)
	case ImpactFilterAll:
		return true
	default:
		return false
	}
}

// ParseImpactFilter converts a filter name into its typed value.
func ParseImpactFilter(name string) (ImpactFilter, error) {
	f := ImpactFilter(strings.ToLower(strings.TrimSpace(name)))
	if !f.IsValid() {
		return "", fmt.Errorf("unknown impact filter %q", name)
	}
	return f, nil
}

// Subscription holds a wallet's notification settings. Rows are created by
// the channel linking flow; this engine reads them on every notification and
// updates the user-tunable fields.
type Subscription struct {
	WalletAddress  string       `json:"wallet_address" db:"wallet_address"`
	TelegramChatID *string      `json:"telegram_chat_id" db:"telegram_chat_id"`
	Enabled        bool         `json:"enabled" db:"enabled"`
	MinImpact      ImpactFilter `json:"min_impact" db:"min_impact"`
	MinConfidence  int          `json:"min_confidence" db:"min_confidence"`
	QuietStartHour *int         `json:"quiet_start_hour" db:"quiet_start_hour"`
	QuietEndHour   *int         `json:"quiet_end_hour" db:"quiet_end_hour"`
	Connected      bool         `json:"connected" db:"connected"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// HasQuietHours reports whether a usable quiet-hours window is configured.
// Equal start and end hours mean the window is disabled.
func (s *Subscription) HasQuietHours() bool {
	return s.QuietStartHour != nil && s.QuietEndHour != nil && *s.QuietStartHour != *s.QuietEndHour
}

// InQuietHours reports whether the given UTC instant falls inside the
// configured window. Windows may wrap midnight (22 → 9 covers 22:00-08:59).
func (s *Subscription) InQuietHours(now time.Time) bool {
	if !s.HasQuietHours() {
		return false
	}
	hour := now.UTC().Hour()
	start, end := *s.QuietStartHour, *s.QuietEndHour
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// SubscriptionUpdateRequest carries the user-tunable subscription fields.
type SubscriptionUpdateRequest struct {
	MinImpact      string `json:"min_impact" binding:"required"`
	MinConfidence  int    `json:"min_confidence" binding:"min=0,max=100"`
	QuietStartHour *int   `json:"quiet_start_hour"`
	QuietEndHour   *int   `json:"quiet_end_hour"`
}

// Validate checks field ranges that gin binding tags cannot express.
func (r *SubscriptionUpdateRequest) Validate() error {
	if _, err := ParseImpactFilter(r.MinImpact); err != nil {
		return err
	}
	if (r.QuietStartHour == nil) != (r.QuietEndHour == nil) {
		return fmt.Errorf("quiet hours require both start and end")
	}
	for _, h := range []*int{r.QuietStartHour, r.QuietEndHour} {
		if h != nil && (*h < 0 || *h > 23) {
			return fmt.Errorf("quiet hour %d out of range 0-23", *h)
		}
	}
	return nil
}

// NotificationLogEntry is the best-effort audit row written after a
// successful delivery.
type NotificationLogEntry struct {
	ID            string     `json:"id" db:"id"`
	WalletAddress string     `json:"wallet_address" db:"wallet_address"`
	ChainID       int        `json:"chain_id" db:"chain_id"`
	TokenAddress  string     `json:"token_address" db:"token_address"`
	SignalType    SignalType `json:"signal_type" db:"signal_type"`
	Severity      Severity   `json:"severity" db:"severity"`
	MessageID     int        `json:"message_id" db:"message_id"`
	SentAt        time.Time  `json:"sent_at" db:"sent_at"`
}
