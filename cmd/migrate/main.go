package main

import (
	"github.com/navid-fn/tanix/configs"
	"github.com/navid-fn/tanix/internal/logger"
	"github.com/navid-fn/tanix/internal/storage"
)

func main() {
	cfg := configs.AppLoad()
	log := logger.New(cfg.LogLevel)

	db, err := storage.OpenDB(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Fatal("Failed to get sql.DB")
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.WithError(err).Fatal("Failed to ping database")
	}

	log.WithField("driver", cfg.DB.Driver).Info("Running database migrations...")
	if err := storage.Migrate(sqlDB, cfg.DB.Driver, log); err != nil {
		log.WithError(err).Fatal("Goose migration failed")
	}

	log.Info("Migrations completed successfully")
}
