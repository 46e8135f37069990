package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/navid-fn/tanix/internal/faulttolerance"
)

type HealthHandler struct {
	monitor *faulttolerance.HealthMonitor
}

func NewHealthHandler(monitor *faulttolerance.HealthMonitor) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

// GetHealth reports the last results of the health monitor. Degraded is
// still 200; unhealthy is 503.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	overall := h.monitor.OverallHealth()
	status := http.StatusOK
	if overall == faulttolerance.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"ok":     status == http.StatusOK,
		"status": overall,
		"checks": h.monitor.Checks(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
