package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"

	"github.com/navid-fn/tanix/configs"
	"github.com/navid-fn/tanix/internal/ingester"
	"github.com/navid-fn/tanix/internal/logger"
	"github.com/navid-fn/tanix/internal/storage"
)

func main() {
	appConfig := configs.AppLoad()
	log := logger.New(appConfig.LogLevel)

	if !appConfig.Kafka.Enabled() {
		log.Fatal("KAFKA_BROKER is required")
	}

	db, err := storage.OpenDB(appConfig.Replica.Driver, appConfig.Replica.DSN)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to replica DB")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Fatal("Failed to get sql.DB")
	}
	if err := storage.Migrate(sqlDB, appConfig.Replica.Driver, log); err != nil {
		log.WithError(err).Fatal("Replica migration failed")
	}
	store := storage.NewGormStore(db)
	defer store.Close()

	kafkaReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{appConfig.Kafka.Broker},
		Topic:          appConfig.Kafka.Topic,
		GroupID:        appConfig.Kafka.GroupID,
		MinBytes:       1,    // candle events are small and infrequent
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,    // commits are issued by the ingester after each flush
	})
	defer kafkaReader.Close()

	svc := ingester.NewIngester(kafkaReader, store, log, ingester.Config{
		BatchSize:    appConfig.Ingester.BatchSize,
		BatchTimeout: appConfig.Ingester.BatchTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Ingester started successfully")

	if err := svc.Start(ctx); err != nil {
		log.WithError(err).Error("Ingester stopped with error")
		os.Exit(1)
	}

	saved, duplicates, skipped := svc.Stats()
	log.WithField("saved", saved).WithField("duplicates", duplicates).WithField("skipped", skipped).Info("Ingester shutdown complete")
}
