package router

import (
	"github.com/gin-gonic/gin"
	"github.com/navid-fn/tanix/server/internal/handler"
	"github.com/sirupsen/logrus"
)

type Config struct {
	OHLCHandler   *handler.OHLCHandler
	ChartHandler  *handler.ChartHandler
	AssetHandler  *handler.AssetHandler
	StreamHandler *handler.StreamHandler
	HealthHandler *handler.HealthHandler
	Logger        logrus.FieldLogger
}

func NewRouter(cfg *Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger(cfg.Logger))

	router.GET("/health", cfg.HealthHandler.GetHealth)

	api := router.Group("/v1/")
	registerOHLCRoutes(api, cfg.OHLCHandler, cfg.StreamHandler)
	registerChartRoutes(api, cfg.ChartHandler)
	registerAssetRoutes(api, cfg.AssetHandler)

	return router
}
