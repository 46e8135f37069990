package router

import (
	"github.com/gin-gonic/gin"
	"github.com/navid-fn/tanix/server/internal/handler"
)

func registerOHLCRoutes(router *gin.RouterGroup, ohlcHandler *handler.OHLCHandler, streamHandler *handler.StreamHandler) {
	router.GET("/ohlc", ohlcHandler.GetOHLC)
	router.GET("/stream/:asset", streamHandler.Stream)
}

func registerChartRoutes(router *gin.RouterGroup, chartHandler *handler.ChartHandler) {
	chart := router.Group("/chart")
	{
		chart.GET("/:asset", chartHandler.GetChart)
		chart.POST("/:asset/trade", chartHandler.PostTrade)
	}
}

func registerAssetRoutes(router *gin.RouterGroup, assetHandler *handler.AssetHandler) {
	assets := router.Group("/assets")
	{
		assets.GET("", assetHandler.GetCatalog)
		assets.GET("/:category", assetHandler.GetByCategory)
	}
}
