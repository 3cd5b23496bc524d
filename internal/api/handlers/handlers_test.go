package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/swapfolio/swapfolio-go/internal/config"
	"github.com/swapfolio/swapfolio-go/internal/middleware"
	"github.com/swapfolio/swapfolio-go/internal/models"
	"github.com/swapfolio/swapfolio-go/internal/services"
)

const (
	testWallet = "0xabcd00000000000000000000000000000000ef12"
	testToken  = "0x1111111111111111111111111111111111111111"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeRiskSource struct {
	mu    sync.Mutex
	facts *models.RiskFacts
	found bool
	err   error
}

func (f *fakeRiskSource) set(facts *models.RiskFacts, found bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facts, f.found, f.err = facts, found, err
}

func (f *fakeRiskSource) GetTokenSecurity(_ context.Context, _ int, _ string) (*models.RiskFacts, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.facts, f.found, f.err
}

type fakeLiquiditySource struct {
	mu    sync.Mutex
	facts *models.LiquidityFacts
	found bool
	err   error
}

func (f *fakeLiquiditySource) set(facts *models.LiquidityFacts, found bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facts, f.found, f.err = facts, found, err
}

func (f *fakeLiquiditySource) GetLiquiditySnapshot(_ context.Context, _ int, _ string) (*models.LiquidityFacts, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.facts, f.found, f.err
}

type fakeSubscriptionStore struct {
	mu  sync.Mutex
	sub *models.Subscription
	err error
}

func (f *fakeSubscriptionStore) GetByWallet(_ context.Context, _ string) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub, f.err
}

type fakeSender struct {
	mu       sync.Mutex
	calls    int
	lastText string
}

func (f *fakeSender) Send(_ context.Context, _ int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastText = text
	return 42, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAuditLog struct{}

func (f *fakeAuditLog) Insert(_ context.Context, _ *models.NotificationLogEntry) (string, error) {
	return "log-1", nil
}

func linkedSubscription() *models.Subscription {
	chatID := "123456789"
	return &models.Subscription{
		WalletAddress:  testWallet,
		TelegramChatID: &chatID,
		Enabled:        true,
		MinImpact:      models.ImpactFilterHighMedium,
		Connected:      true,
	}
}

func pipelineConfig() *config.Config {
	return &config.Config{
		Cache: config.CacheConfig{TTLSeconds: 180, KeyPrefix: "signal"},
		Upstream: config.UpstreamConfig{
			Breaker: config.BreakerConfig{FailureThreshold: 5, ResetTimeoutSeconds: 60},
		},
		Signals: config.SignalsConfig{
			DedupWindowMinutes:      10,
			CooldownCriticalMinutes: 30,
			CooldownDangerMinutes:   60,
			CooldownWarningMinutes:  120,
			RecurrenceWindowHours:   24,
			RecurrenceMargin:        5.0,
			RecurrenceMaxEntries:    500,
		},
		Escalation: config.EscalationConfig{
			ConfidenceDelta:    0.15,
			LiquidityWorsenPct: 10.0,
			AlertIdleDays:      7,
		},
		Notifications: config.NotificationsConfig{ChannelCooldownMinutes: 30},
	}
}

// pipelineFixture assembles a full evaluation pipeline on in-memory fakes so
// handler tests exercise real pipeline semantics without Redis or Postgres.
type pipelineFixture struct {
	evaluator *services.SignalEvaluator
	notifier  *services.NotificationTrigger
	risk      *fakeRiskSource
	liquidity *fakeLiquiditySource
	subs      *fakeSubscriptionStore
	sender    *fakeSender
}

func newPipelineFixture() *pipelineFixture {
	risk := &fakeRiskSource{}
	liquidity := &fakeLiquiditySource{}
	subs := &fakeSubscriptionStore{sub: linkedSubscription()}
	sender := &fakeSender{}
	cfg := pipelineConfig()
	logger := quietLogger()

	escalations := services.NewEscalationDetector(cfg.Escalation)
	notifier := services.NewNotificationTrigger(subs, sender, escalations, &fakeAuditLog{}, cfg.Notifications, logger)
	evaluator := services.NewSignalEvaluator(risk, liquidity, nil, nil, subs, escalations, notifier, cfg, logger)

	return &pipelineFixture{
		evaluator: evaluator,
		notifier:  notifier,
		risk:      risk,
		liquidity: liquidity,
		subs:      subs,
		sender:    sender,
	}
}

// withWallet injects the session wallet the way RequireAuth would. An empty
// wallet leaves the context bare to exercise the unauthenticated paths.
func withWallet(wallet string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if wallet != "" {
			c.Set(middleware.ContextWalletKey, wallet)
		}
	}
}

func performJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func performGet(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}
