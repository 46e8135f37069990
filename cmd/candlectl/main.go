// Command candlectl inspects and maintains deterministic candle series.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/navid-fn/tanix/configs"
	"github.com/navid-fn/tanix/internal/logger"
)

func main() {
	cfg := configs.AppLoad()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(cfg, log).RunContext(ctx, os.Args); err != nil {
		stop()
		log.WithError(err).Fatal("candlectl failed")
	}
}
