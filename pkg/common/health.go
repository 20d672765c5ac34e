package common

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	redisclient "github.com/richxcame/dispatch/pkg/redis"
)

// BusChecker reports event bus connectivity.
type BusChecker interface {
	Connected() bool
}

// HealthChecker backs the liveness and readiness probes.
type HealthChecker struct {
	serviceName string
	db          *pgxpool.Pool
	redis       *redisclient.Client
	bus         BusChecker
}

// NewHealthChecker creates a health checker over the service's dependencies.
func NewHealthChecker(serviceName string, db *pgxpool.Pool, redis *redisclient.Client, bus BusChecker) *HealthChecker {
	return &HealthChecker{serviceName: serviceName, db: db, redis: redis, bus: bus}
}

// Liveness reports that the process is up.
func (h *HealthChecker) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": h.serviceName,
	})
}

// Readiness checks every dependency and reports 503 when any is down.
func (h *HealthChecker) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := h.db.Ping(ctx); err != nil {
		checks["database"] = "down: " + err.Error()
		healthy = false
	} else {
		checks["database"] = "up"
	}

	if err := h.redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "down: " + err.Error()
		healthy = false
	} else {
		checks["redis"] = "up"
	}

	if h.bus != nil && !h.bus.Connected() {
		checks["nats"] = "down"
		healthy = false
	} else {
		checks["nats"] = "up"
	}

	status := http.StatusOK
	overall := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":  overall,
		"service": h.serviceName,
		"checks":  checks,
	})
}
