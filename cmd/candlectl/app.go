package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/navid-fn/tanix/configs"
	"github.com/navid-fn/tanix/internal/assets"
	"github.com/navid-fn/tanix/internal/generator"
	"github.com/navid-fn/tanix/internal/model"
	"github.com/navid-fn/tanix/internal/storage"
	"github.com/navid-fn/tanix/internal/streamclient"
)

var errMismatch = errors.New("stored candles differ from generated ones")

func newApp(cfg *configs.AppConfig, log logrus.FieldLogger) *cli.App {
	seriesFlags := []cli.Flag{
		&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "asset id or display name", Required: true},
		&cli.IntFlag{Name: "timeframe", Aliases: []string{"t"}, Usage: "bucket width in minutes", Value: 1},
		&cli.StringFlag{Name: "candle-version", Usage: "series version", Value: cfg.Candle.Version},
		&cli.Float64Flag{Name: "volatility", Value: cfg.Candle.Volatility},
		&cli.IntFlag{Name: "decimals", Value: cfg.Candle.PriceDecimals},
	}
	dbFlags := []cli.Flag{
		&cli.StringFlag{Name: "db-driver", Value: cfg.DB.Driver},
		&cli.StringFlag{Name: "db-dsn", Value: cfg.DB.DSN},
	}

	return &cli.App{
		Name:  "candlectl",
		Usage: "generate, inspect and repair OTC candle series",
		Commands: []*cli.Command{
			{
				Name:  "series",
				Usage: "print completed candles as JSON",
				Flags: append(seriesFlags,
					&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 10},
					&cli.Int64Flag{Name: "start", Usage: "start of the first candle in epoch ms (default: count buckets before now)"},
					&cli.Float64Flag{Name: "price", Usage: "initial price (default: catalogue price)"},
					&cli.StringFlag{Name: "date-range-start", Usage: "ISO date mixed into the seed"},
				),
				Action: func(c *cli.Context) error {
					key, asset, err := seriesKey(c)
					if err != nil {
						return err
					}
					count := c.Int("count")
					start := c.Int64("start")
					if !c.IsSet("start") {
						current := generator.CandleIndex(time.Now().UnixMilli(), key.TimeframeMinutes)
						start = generator.CandleStartTime(current-int64(count), key.TimeframeMinutes)
					}
					candles := generator.GenerateSeries(generator.SeriesParams{
						Symbol:            key.Symbol,
						TimeframeMinutes:  key.TimeframeMinutes,
						Version:           key.Version,
						StartTimeMs:       start,
						Count:             count,
						InitialPrice:      initialPrice(c, asset),
						Volatility:        c.Float64("volatility"),
						PriceDecimals:     c.Int("decimals"),
						DateRangeStartISO: c.String("date-range-start"),
					})
					return printJSON(c.App.Writer, candles)
				},
			},
			{
				Name:  "partial",
				Usage: "print the forming candle of the bucket containing --at",
				Flags: append(seriesFlags,
					&cli.Int64Flag{Name: "at", Usage: "server time in epoch ms (default: now)"},
					&cli.Float64Flag{Name: "prev-close", Usage: "close of the previous candle (default: catalogue price)"},
				),
				Action: func(c *cli.Context) error {
					key, asset, err := seriesKey(c)
					if err != nil {
						return err
					}
					at := c.Int64("at")
					if !c.IsSet("at") {
						at = time.Now().UnixMilli()
					}
					prevClose := assets.InitialPrice(asset)
					if c.IsSet("prev-close") {
						prevClose = c.Float64("prev-close")
					}
					index := generator.CandleIndex(at, key.TimeframeMinutes)
					p := generator.GeneratePartialCandle(key.SeedBase(), index, prevClose,
						generator.CandleStartTime(index, key.TimeframeMinutes), at, key.TimeframeMs(),
						c.Float64("volatility"), key.TimeframeMinutes, c.Int("decimals"))
					return printJSON(c.App.Writer, p)
				},
			},
			{
				Name:  "purge",
				Usage: "delete every stored candle of a series so it regenerates",
				Flags: append(append(seriesFlags, dbFlags...),
					&cli.BoolFlag{Name: "yes", Usage: "confirm deletion"},
				),
				Action: func(c *cli.Context) error {
					key, _, err := seriesKey(c)
					if err != nil {
						return err
					}
					if !c.Bool("yes") {
						return fmt.Errorf("refusing to purge %s without --yes", key)
					}
					store, err := openStore(c, log)
					if err != nil {
						return err
					}
					defer store.Close()

					n, err := store.DeleteCandles(c.Context, key)
					if err != nil {
						return err
					}
					log.WithFields(logrus.Fields{"series": key.String(), "deleted": n}).Info("series purged")
					_, err = fmt.Fprintf(c.App.Writer, "deleted %d rows from %s\n", n, key)
					return err
				},
			},
			{
				Name:  "verify",
				Usage: "regenerate stored candles and report any that differ",
				Flags: append(append(seriesFlags, dbFlags...),
					&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 500},
				),
				Action: func(c *cli.Context) error {
					key, _, err := seriesKey(c)
					if err != nil {
						return err
					}
					store, err := openStore(c, log)
					if err != nil {
						return err
					}
					defer store.Close()

					stored, err := store.GetCandles(c.Context, key, c.Int("count"), nil)
					if err != nil {
						return err
					}
					report := verify(key, stored, c.Float64("volatility"), c.Int("decimals"))
					for _, m := range report.Mismatches {
						fmt.Fprintf(c.App.Writer, "index %d: %s\n", m.Index, m.Reason)
					}
					fmt.Fprintf(c.App.Writer, "checked %d candles of %s, %d mismatches\n", report.Checked, key, len(report.Mismatches))
					if len(report.Mismatches) > 0 {
						return fmt.Errorf("%w: %d of %d", errMismatch, len(report.Mismatches), report.Checked)
					}
					return nil
				},
			},
			{
				Name:  "watch",
				Usage: "follow the live partial candle of a series from a running API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Required: true},
					&cli.IntFlag{Name: "timeframe", Aliases: []string{"t"}, Value: 1},
					&cli.StringFlag{Name: "url", Value: "http://localhost:" + cfg.ServerPort, Usage: "API base URL"},
					&cli.IntFlag{Name: "frames", Usage: "stop after this many frames (default: until interrupted)"},
				},
				Action: func(c *cli.Context) error {
					client := streamclient.New(streamclient.DefaultConfig(c.String("url")), log)
					limit, seen := c.Int("frames"), 0
					return client.Watch(c.Context, c.String("symbol"), c.Int("timeframe"), func(f streamclient.Frame) error {
						if err := printFrame(c.App.Writer, f); err != nil {
							return err
						}
						seen++
						if limit > 0 && seen >= limit {
							return streamclient.ErrStop
						}
						return nil
					})
				},
			},
		},
	}
}

func printFrame(w io.Writer, f streamclient.Frame) error {
	if f.Partial == nil {
		_, err := fmt.Fprintf(w, "%s %d no forming candle\n", f.Symbol, f.ServerTimeMs)
		return err
	}
	_, err := fmt.Fprintf(w, "%s %d %s\n", f.Symbol, f.ServerTimeMs, ohlcv(*f.Partial))
	return err
}

func seriesKey(c *cli.Context) (model.SeriesKey, model.Asset, error) {
	asset, ok := assets.Find(c.String("symbol"))
	if !ok {
		return model.SeriesKey{}, model.Asset{}, fmt.Errorf("unknown asset %q", c.String("symbol"))
	}
	tf := c.Int("timeframe")
	if tf <= 0 {
		return model.SeriesKey{}, model.Asset{}, fmt.Errorf("timeframe must be positive, got %d", tf)
	}
	return model.SeriesKey{Symbol: asset.ID, TimeframeMinutes: tf, Version: c.String("candle-version")}, asset, nil
}

func initialPrice(c *cli.Context, asset model.Asset) float64 {
	if c.IsSet("price") {
		return c.Float64("price")
	}
	return assets.InitialPrice(asset)
}

func openStore(c *cli.Context, log logrus.FieldLogger) (*storage.GormStore, error) {
	db, err := storage.OpenDB(c.String("db-driver"), c.String("db-dsn"))
	if err != nil {
		return nil, err
	}
	store := storage.NewGormStore(db)
	if err := store.Ping(c.Context); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.WithField("driver", c.String("db-driver")).Debug("store opened")
	return store, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
