package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swapfolio/swapfolio-go/internal/services"
	"github.com/swapfolio/swapfolio-go/pkg/interfaces"
)

type AdminHandler struct {
	evaluator     *services.SignalEvaluator
	sweeper       *services.Sweeper
	monitor       *services.SystemMonitor
	resultCache   interfaces.ResultCache
	fallbackCache interfaces.ResultCache
}

func NewAdminHandler(evaluator *services.SignalEvaluator, sweeper *services.Sweeper, monitor *services.SystemMonitor, resultCache, fallbackCache interfaces.ResultCache) *AdminHandler {
	return &AdminHandler{
		evaluator:     evaluator,
		sweeper:       sweeper,
		monitor:       monitor,
		resultCache:   resultCache,
		fallbackCache: fallbackCache,
	}
}

// Status aggregates the operational state an on-call engineer checks first:
// breaker states, cache counters, sweeper progress, and process resources.
func (h *AdminHandler) Status(c *gin.Context) {
	response := gin.H{
		"breakers": h.evaluator.BreakerStats(),
		"sweeper":  h.sweeper.Status(),
		"system":   h.monitor.Snapshot(c.Request.Context()),
	}
	if h.resultCache != nil {
		response["result_cache"] = h.resultCache.Stats()
	}
	if h.fallbackCache != nil {
		response["fallback_cache"] = h.fallbackCache.Stats()
	}

	c.JSON(http.StatusOK, response)
}

// SweeperStatus reports the background janitor's schedule and last cycle.
func (h *AdminHandler) SweeperStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sweeper.Status())
}

// RunSweep triggers one sweep cycle synchronously and returns its counts.
func (h *AdminHandler) RunSweep(c *gin.Context) {
	counts := h.sweeper.RunOnce(c.Request.Context(), time.Now())
	c.JSON(http.StatusOK, gin.H{
		"swept": counts,
	})
}

// PauseSweeper holds scheduled sweeps until resumed. Manual runs still work.
func (h *AdminHandler) PauseSweeper(c *gin.Context) {
	h.sweeper.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// ResumeSweeper re-enables scheduled sweeps.
func (h *AdminHandler) ResumeSweeper(c *gin.Context) {
	h.sweeper.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}
