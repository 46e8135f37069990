package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tanix/configs"
	"github.com/navid-fn/tanix/internal/autosave"
	"github.com/navid-fn/tanix/internal/chart"
	"github.com/navid-fn/tanix/internal/events"
	"github.com/navid-fn/tanix/internal/faulttolerance"
	"github.com/navid-fn/tanix/internal/logger"
	"github.com/navid-fn/tanix/internal/storage"
	"github.com/navid-fn/tanix/server/internal/handler"
	"github.com/navid-fn/tanix/server/internal/router"
	"github.com/navid-fn/tanix/server/internal/service"
)

const (
	chartAdvanceEvery = time.Minute
	streamInterval    = time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	migrateFlag := flag.Bool("migrate", true, "Run database migrations before serving")
	flag.Parse()

	cfg := configs.AppLoad()
	log := logger.New(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	if err := run(cfg, log, *migrateFlag); err != nil {
		log.WithError(err).Fatal("API stopped with error")
	}
	log.Info("API shutdown complete")
}

func run(cfg *configs.AppConfig, log *logrus.Logger, migrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenDB(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return err
	}
	store := storage.NewGormStore(db)
	defer store.Close()

	// The database may still be starting next to us.
	retryer := faulttolerance.NewRetryer(faulttolerance.DefaultRetryConfig("database"), log)
	if err := retryer.Execute(ctx, store.Ping); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	if migrate {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("get sql.DB: %w", err)
		}
		log.Info("Running database migrations...")
		if err := storage.Migrate(sqlDB, cfg.DB.Driver, log); err != nil {
			return err
		}
	}

	var publisher events.Publisher = events.Noop{}
	monitor := faulttolerance.NewHealthMonitor(log, cfg.HealthInterval)
	monitor.AddCheck("database", true, store.Ping)
	if cfg.Kafka.Enabled() {
		kp := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Broker, cfg.Kafka.Topic), log)
		monitor.AddCheck("kafka", false, kp.Healthy)
		publisher = events.NewAsyncPublisher(kp, events.DefaultQueueSize, events.DefaultPublishTimeout, log)
		log.WithFields(logrus.Fields{"broker": cfg.Kafka.Broker, "topic": cfg.Kafka.Topic}).Info("publishing finalized candles")
	}
	defer publisher.Close()

	scheduler := autosave.New(store, publisher, log, autosave.Config{Interval: cfg.AutoSave.Interval})
	monitor.AddCheck("autosave", false, scheduler.Healthy)

	defaults := service.CandleDefaults{
		Version:       cfg.Candle.Version,
		Volatility:    cfg.Candle.Volatility,
		PriceDecimals: cfg.Candle.PriceDecimals,
	}
	ohlcService := service.NewOHLCService(store, scheduler, defaults, log)
	stream := chart.NewStream(chart.StreamConfig{Version: cfg.Candle.Version, Volatility: cfg.Candle.Volatility}, log)
	chartService := service.NewChartService(stream)
	streamHandler := handler.NewStreamHandler(ohlcService, streamInterval, log)

	engine := router.NewRouter(&router.Config{
		OHLCHandler:   handler.NewOHLCHandler(ohlcService),
		ChartHandler:  handler.NewChartHandler(chartService),
		AssetHandler:  handler.NewAssetHandler(),
		StreamHandler: streamHandler,
		HealthHandler: handler.NewHealthHandler(monitor),
		Logger:        log,
	})

	// The deferred Stops end these loops after the HTTP drain.
	background := context.WithoutCancel(ctx)
	scheduler.Start(background)
	defer scheduler.Stop()
	monitor.Start(background)
	defer monitor.Stop()
	go stream.Run(ctx, chartAdvanceEvery)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("API started successfully")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	streamHandler.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
