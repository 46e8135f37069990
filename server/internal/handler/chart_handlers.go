package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/navid-fn/tanix/server/internal/service"
)

type ChartHandler struct {
	chartService *service.ChartService
}

func NewChartHandler(service *service.ChartService) *ChartHandler {
	return &ChartHandler{
		chartService: service,
	}
}

func (h *ChartHandler) GetChart(c *gin.Context) {
	snap, err := h.chartService.Snapshot(c.Param("asset"), c.DefaultQuery("timeframe", "1m"), c.Query("points"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "chart": snap})
}

type tradeRequest struct {
	Net *float64 `json:"net" binding:"required"`
}

// PostTrade nudges the chart after a trade of the given net amount.
func (h *ChartHandler) PostTrade(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": "net is required"})
		return
	}
	if err := h.chartService.ApplyTrade(c.Param("asset"), *req.Net); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
