package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/navid-fn/tanix/server/internal/service"
)

type OHLCHandler struct {
	ohlcService *service.OHLCService
}

func NewOHLCHandler(service *service.OHLCService) *OHLCHandler {
	return &OHLCHandler{
		ohlcService: service,
	}
}

// GetOHLC serves completed candles plus the forming one. The asset may be
// passed as "asset" or "symbol".
func (h *OHLCHandler) GetOHLC(c *gin.Context) {
	asset := c.Query("asset")
	if asset == "" {
		asset = c.Query("symbol")
	}
	req := service.ParseOHLCRequest(asset, c.Query("timeframe"), c.Query("count"), c.Query("includePartial"))

	resp, err := h.ohlcService.Query(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, struct {
		OK bool `json:"ok"`
		service.OHLCResponse
	}{true, resp})
}
