package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swapfolio/swapfolio-go/internal/database"
	"github.com/swapfolio/swapfolio-go/internal/services"
)

var startTime = time.Now()

type HealthHandler struct {
	db      *database.PostgresDB
	redis   *database.RedisClient
	monitor *services.SystemMonitor
	version string
}

type HealthResponse struct {
	Status    string               `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
	Services  map[string]string    `json:"services"`
	System    services.SystemStats `json:"system"`
	Version   string               `json:"version"`
	Uptime    string               `json:"uptime"`
}

func NewHealthHandler(db *database.PostgresDB, redis *database.RedisClient, monitor *services.SystemMonitor, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   redis,
		monitor: monitor,
		version: version,
	}
}

// Health reports per-dependency status. Redis being down degrades the
// response but the engine keeps serving from its in-process fallback, so
// only a database failure flips the overall status.
func (h *HealthHandler) Health(c *gin.Context) {
	services := make(map[string]string)

	if h.db != nil {
		if err := h.db.HealthCheck(c.Request.Context()); err != nil {
			services["database"] = "unhealthy: " + err.Error()
		} else {
			services["database"] = "healthy"
		}
	} else {
		services["database"] = "unhealthy: not configured"
	}

	if h.redis != nil {
		if err := h.redis.HealthCheck(c.Request.Context()); err != nil {
			services["redis"] = "degraded: " + err.Error()
		} else {
			services["redis"] = "healthy"
		}
	} else {
		services["redis"] = "degraded: not configured"
	}

	overallStatus := "healthy"
	httpStatus := http.StatusOK
	for _, status := range services {
		if status != "healthy" {
			overallStatus = "degraded"
		}
	}
	if services["database"] != "healthy" {
		overallStatus = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  services,
		System:    h.monitor.Snapshot(c.Request.Context()),
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
	})
}

// Ready is the strict variant: every dependency must answer before the
// load balancer routes traffic here.
func (h *HealthHandler) Ready(c *gin.Context) {
	services := make(map[string]string)
	ready := true

	if h.db == nil {
		services["database"] = "not ready"
		ready = false
	} else if err := h.db.HealthCheck(c.Request.Context()); err != nil {
		services["database"] = "not ready: " + err.Error()
		ready = false
	} else {
		services["database"] = "ready"
	}

	if h.redis == nil {
		services["redis"] = "not ready"
		ready = false
	} else if err := h.redis.HealthCheck(c.Request.Context()); err != nil {
		services["redis"] = "not ready: " + err.Error()
		ready = false
	} else {
		services["redis"] = "ready"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"ready":    ready,
		"services": services,
	})
}

// Live only proves the process is responsive.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
