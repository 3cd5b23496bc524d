package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/swapfolio/swapfolio-go/internal/config"
	"github.com/swapfolio/swapfolio-go/internal/metrics"
	"github.com/swapfolio/swapfolio-go/internal/models"
	"github.com/swapfolio/swapfolio-go/pkg/interfaces"
)

// SubscriptionStore is the slice of the subscription repository the trigger
// reads. Declared here so tests can substitute an in-memory fake.
type SubscriptionStore interface {
	GetByWallet(ctx context.Context, walletAddress string) (*models.Subscription, error)
}

// NotificationLogStore receives the best-effort audit rows.
type NotificationLogStore interface {
	Insert(ctx context.Context, entry *models.NotificationLogEntry) (string, error)
}

// NotificationResult reports what happened to one notification attempt.
type NotificationResult struct {
	Sent           bool   `json:"sent"`
	Reason         string `json:"reason,omitempty"`
	RetryInSeconds int    `json:"retry_in_seconds,omitempty"`
	MessageID      int    `json:"message_id,omitempty"`
}

var severityEmoji = map[models.Severity]string{
	models.SeverityCritical: "🚨",
	models.SeverityDanger:   "⚠️",
	models.SeverityWarning:  "🟡",
}

// NotificationTrigger applies a wallet's subscription gates to an escalated
// observation and, when every gate passes, formats and delivers the alert.
// State (channel cooldown, alert state, audit log) advances only after a
// successful delivery.
type NotificationTrigger struct {
	subscriptions SubscriptionStore
	sender        interfaces.MessageSender
	escalations   *EscalationDetector
	auditLog      NotificationLogStore
	cooldowns     *channelCooldowns
	logger        *logrus.Logger
	caser         cases.Caser
	now           func() time.Time
}

func NewNotificationTrigger(
	subscriptions SubscriptionStore,
	sender interfaces.MessageSender,
	escalations *EscalationDetector,
	auditLog NotificationLogStore,
	cfg config.NotificationsConfig,
	logger *logrus.Logger,
) *NotificationTrigger {
	return &NotificationTrigger{
		subscriptions: subscriptions,
		sender:        sender,
		escalations:   escalations,
		auditLog:      auditLog,
		cooldowns:     newChannelCooldowns(time.Duration(cfg.ChannelCooldownMinutes) * time.Minute),
		logger:        logger,
		caser:         cases.Title(language.English),
		now:           time.Now,
	}
}

// Notify runs the subscription gates and delivers on success. Rejections
// carry the reason; a channel cooldown rejection also carries the seconds
// until the channel reopens.
func (t *NotificationTrigger) Notify(ctx context.Context, walletAddress string, obs models.SignalObservation, decision EscalationDecision, info models.RecurrenceInfo) NotificationResult {
	sub, err := t.subscriptions.GetByWallet(ctx, walletAddress)
	if err != nil {
		t.logger.WithError(err).WithField("wallet", walletAddress).Error("Failed to load subscription")
		return t.reject("no_subscription", "subscription lookup failed")
	}
	if sub == nil || !sub.Connected || sub.TelegramChatID == nil || *sub.TelegramChatID == "" {
		return t.reject("no_subscription", "no notification channel linked")
	}
	if !sub.Enabled {
		return t.reject("disabled", "notifications disabled")
	}
	if !sub.MinImpact.Allows(obs.ImpactLevel) {
		return t.reject("impact_filter", fmt.Sprintf("impact %s below subscription filter %s", obs.ImpactLevel, sub.MinImpact))
	}
	// The first alert for a key is always worth surfacing; the confidence
	// floor binds repeat alerts only.
	if !decision.FirstAlert && int(math.Round(obs.Confidence*100)) < sub.MinConfidence {
		return t.reject("confidence_floor", fmt.Sprintf("confidence below user threshold %d%%", sub.MinConfidence))
	}

	now := t.now()
	if sub.InQuietHours(now) {
		return t.reject("quiet_hours", "inside quiet hours")
	}

	// An escalation cuts the channel throttle short the same way a higher
	// severity overrides the signal cooldown. Only non-escalating deliveries
	// wait out a recently used channel.
	key := notificationKeyFor(walletAddress, obs)
	if !decision.Escalate || decision.FirstAlert {
		if remaining := t.cooldowns.Remaining(key, now); remaining > 0 {
			result := t.reject("channel_cooldown", "channel cooldown active")
			result.RetryInSeconds = remaining
			return result
		}
	}

	chatID, err := strconv.ParseInt(*sub.TelegramChatID, 10, 64)
	if err != nil {
		t.logger.WithError(err).WithField("wallet", walletAddress).Error("Subscription has invalid chat id")
		return t.reject("no_subscription", "invalid chat id")
	}

	if t.sender == nil {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		t.logger.WithField("wallet", walletAddress).Warn("No delivery channel configured")
		return NotificationResult{Reason: "delivery unavailable"}
	}

	text := t.FormatMessage(obs, info, decision)
	messageID, err := t.sender.Send(ctx, chatID, text)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		t.logger.WithError(err).WithFields(logrus.Fields{
			"wallet": walletAddress,
			"token":  obs.TokenAddress,
		}).Warn("Notification delivery failed")
		return NotificationResult{Reason: "delivery failed"}
	}

	t.cooldowns.MarkSent(key, now)
	t.escalations.CommitAlert(walletAddress, obs, now)
	t.writeAuditLog(ctx, walletAddress, obs, messageID, now)

	metrics.NotificationsSent.WithLabelValues("sent").Inc()
	t.logger.WithFields(logrus.Fields{
		"wallet":     walletAddress,
		"token":      obs.TokenAddress,
		"signal":     obs.SignalType,
		"severity":   obs.Severity.String(),
		"message_id": messageID,
		"rule":       decision.Rule,
	}).Info("Notification delivered")
	return NotificationResult{Sent: true, MessageID: messageID}
}

func (t *NotificationTrigger) reject(reason, detail string) NotificationResult {
	metrics.NotificationsSent.WithLabelValues("rejected").Inc()
	metrics.NotificationsRejected.WithLabelValues(reason).Inc()
	return NotificationResult{Reason: detail}
}

func (t *NotificationTrigger) writeAuditLog(ctx context.Context, walletAddress string, obs models.SignalObservation, messageID int, now time.Time) {
	if t.auditLog == nil {
		return
	}
	entry := &models.NotificationLogEntry{
		WalletAddress: strings.ToLower(walletAddress),
		ChainID:       obs.ChainID,
		TokenAddress:  strings.ToLower(obs.TokenAddress),
		SignalType:    obs.SignalType,
		Severity:      obs.Severity,
		MessageID:     messageID,
		SentAt:        now,
	}
	if _, err := t.auditLog.Insert(ctx, entry); err != nil {
		t.logger.WithError(err).Warn("Failed to write notification log entry")
	}
}

// FormatMessage renders the Markdown alert body.
func (t *NotificationTrigger) FormatMessage(obs models.SignalObservation, info models.RecurrenceInfo, decision EscalationDecision) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s *%s %s Alert*\n\n",
		severityEmoji[obs.Severity],
		t.caser.String(obs.Severity.String()),
		t.caser.String(string(obs.SignalType)))
	fmt.Fprintf(&b, "🪙 Token: `%s` on %s\n", shortAddress(obs.TokenAddress), t.caser.String(models.ChainName(obs.ChainID)))
	fmt.Fprintf(&b, "📋 %s\n", obs.Reason)

	switch obs.SignalType {
	case models.SignalTypeRisk:
		if obs.Risk != nil && len(obs.Risk.Factors) > 0 {
			fmt.Fprintf(&b, "🔍 Factors: %s\n", strings.Join(obs.Risk.Factors, ", "))
		}
	case models.SignalTypeLiquidity:
		if obs.Liquidity != nil {
			fmt.Fprintf(&b, "💧 Liquidity: $%s (down %.1f%%)\n", obs.Liquidity.LiquidityUSD.StringFixed(0), obs.Liquidity.DropPct)
		}
	}

	fmt.Fprintf(&b, "🎯 Confidence: *%.0f%%*\n", obs.Confidence*100)

	if info.IsRepeat {
		fmt.Fprintf(&b, "📈 Trend: %s (%d earlier in the last 24h)\n", info.Trend, info.Occurrences24h)
	}
	if decision.Escalate && !decision.FirstAlert {
		b.WriteString("\n⚡ *Situation escalated since your last alert.*\n")
	}
	b.WriteString("\nReview your position in the app before acting.")

	return b.String()
}

// TestNotification renders a sample alert for the wallet and logs it instead
// of delivering, so users can verify channel linking and formatting without
// receiving a real alert.
func (t *NotificationTrigger) TestNotification(ctx context.Context, walletAddress string) (string, error) {
	sub, err := t.subscriptions.GetByWallet(ctx, walletAddress)
	if err != nil {
		return "", fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub == nil || !sub.Connected || sub.TelegramChatID == nil || *sub.TelegramChatID == "" {
		return "", fmt.Errorf("no notification channel linked for wallet %s", walletAddress)
	}

	sample := models.SignalObservation{
		ChainID:      1,
		TokenAddress: "0x000000000000000000000000000000000000dEaD",
		SignalType:   models.SignalTypeRisk,
		Risk: &models.RiskFacts{
			Factors:  []string{"mintable", "hidden_owner"},
			Honeypot: true,
		},
		HasSignal:   true,
		Severity:    models.SeverityCritical,
		Confidence:  0.95,
		ImpactScore: 72,
		ImpactLevel: models.ImpactHigh,
		Reason:      "honeypot flagged with 2 other risk factors",
		Status:      models.FetchOK,
		ObservedAt:  t.now(),
	}
	text := t.FormatMessage(sample, models.RecurrenceInfo{Trend: models.TrendNew}, EscalationDecision{Escalate: true, Rule: RuleFirstAlert, FirstAlert: true})

	t.logger.WithFields(logrus.Fields{
		"wallet":  walletAddress,
		"chat_id": *sub.TelegramChatID,
		"message": text,
	}).Info("Dry run: test notification formatted")
	return text, nil
}

// SweepCooldowns removes expired channel cooldown entries.
func (t *NotificationTrigger) SweepCooldowns(now time.Time) int {
	return t.cooldowns.SweepExpired(now)
}

func shortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}

func notificationKeyFor(walletAddress string, obs models.SignalObservation) models.NotificationKey {
	return models.NotificationKey{
		WalletAddress: strings.ToLower(walletAddress),
		ChainID:       obs.ChainID,
		TokenAddress:  strings.ToLower(obs.TokenAddress),
		SignalType:    obs.SignalType,
	}
}

// channelCooldowns throttles deliveries per (wallet, chain, token, signal
// type). Entries are written only after a successful send.
type channelCooldowns struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[models.NotificationKey]time.Time
}

func newChannelCooldowns(window time.Duration) *channelCooldowns {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &channelCooldowns{
		window:  window,
		entries: make(map[models.NotificationKey]time.Time),
	}
}

// Remaining returns whole seconds until the channel reopens, zero when free.
func (c *channelCooldowns) Remaining(key models.NotificationKey, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, ok := c.entries[key]
	if !ok || !now.Before(expiry) {
		return 0
	}
	return int(math.Ceil(expiry.Sub(now).Seconds()))
}

func (c *channelCooldowns) MarkSent(key models.NotificationKey, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = now.Add(c.window)
}

func (c *channelCooldowns) SweepExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, expiry := range c.entries {
		if !now.Before(expiry) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
