package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapfolio/swapfolio-go/internal/cache"
	"github.com/swapfolio/swapfolio-go/internal/config"
	"github.com/swapfolio/swapfolio-go/internal/services"
	"github.com/swapfolio/swapfolio-go/pkg/interfaces"
)

type adminEnv struct {
	router   *gin.Engine
	sweeper  *services.Sweeper
	memCache *cache.MemoryResultCache
}

func newAdminEnv(t *testing.T, withCaches bool) *adminEnv {
	t.Helper()

	fx := newPipelineFixture()
	memCache := cache.NewMemoryResultCache()
	sweeper := services.NewSweeper(fx.evaluator, memCache, nil, nil, nil,
		config.SweeperConfig{IntervalMinutes: 10, RetentionDays: 30}, quietLogger())

	var resultCache, fallbackCache interfaces.ResultCache
	if withCaches {
		resultCache = memCache
		fallbackCache = cache.NewMemoryResultCache()
	}
	handler := NewAdminHandler(fx.evaluator, sweeper, services.NewSystemMonitor(quietLogger()), resultCache, fallbackCache)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/admin/status", handler.Status)
	router.GET("/admin/sweeper", handler.SweeperStatus)
	router.POST("/admin/sweeper/run", handler.RunSweep)
	router.POST("/admin/sweeper/pause", handler.PauseSweeper)
	router.POST("/admin/sweeper/resume", handler.ResumeSweeper)

	return &adminEnv{router: router, sweeper: sweeper, memCache: memCache}
}

func TestAdminStatus_AggregatesOperationalState(t *testing.T) {
	env := newAdminEnv(t, true)

	w := performGet(env.router, "/admin/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Breakers      []services.BreakerStats      `json:"breakers"`
		Sweeper       services.SweeperStatus       `json:"sweeper"`
		System        services.SystemStats         `json:"system"`
		ResultCache   *interfaces.ResultCacheStats `json:"result_cache"`
		FallbackCache *interfaces.ResultCacheStats `json:"fallback_cache"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	require.Len(t, body.Breakers, 2)
	assert.Equal(t, "security", body.Breakers[0].Name)
	assert.Equal(t, "liquidity", body.Breakers[1].Name)
	assert.Equal(t, "10m0s", body.Sweeper.Interval)
	assert.Greater(t, body.System.Goroutines, 0)
	assert.NotNil(t, body.ResultCache)
	assert.NotNil(t, body.FallbackCache)
}

func TestAdminStatus_OmitsUnconfiguredCaches(t *testing.T) {
	env := newAdminEnv(t, false)

	w := performGet(env.router, "/admin/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "breakers")
	assert.Contains(t, body, "sweeper")
	assert.Contains(t, body, "system")
	assert.NotContains(t, body, "result_cache")
	assert.NotContains(t, body, "fallback_cache")
}

func TestRunSweep_ReportsRemovedEntries(t *testing.T) {
	env := newAdminEnv(t, true)
	require.NoError(t, env.memCache.Set(context.Background(), "stale", []byte("x"), -time.Minute))

	w := performJSON(env.router, http.MethodPost, "/admin/sweeper/run", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Swept map[string]int `json:"swept"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Swept["result_cache"])
	for _, store := range []string{"cooldown", "dedup", "recurrence", "alert_state", "notification_cooldown"} {
		assert.Contains(t, body.Swept, store)
	}

	status := env.sweeper.Status()
	assert.Equal(t, int64(1), status.CycleCount)
	assert.False(t, status.LastRunAt.IsZero())
}

func TestPauseAndResumeSweeper(t *testing.T) {
	env := newAdminEnv(t, false)

	w := performJSON(env.router, http.MethodPost, "/admin/sweeper/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"paused": true}`, w.Body.String())
	assert.True(t, env.sweeper.Status().Paused)

	w = performJSON(env.router, http.MethodPost, "/admin/sweeper/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"paused": false}`, w.Body.String())
	assert.False(t, env.sweeper.Status().Paused)
}

func TestSweeperStatus_ReportsSchedule(t *testing.T) {
	env := newAdminEnv(t, false)

	w := performGet(env.router, "/admin/sweeper")
	require.Equal(t, http.StatusOK, w.Code)

	var status services.SweeperStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Running)
	assert.False(t, status.Paused)
	assert.Equal(t, "10m0s", status.Interval)
	assert.Equal(t, int64(0), status.CycleCount)
}
