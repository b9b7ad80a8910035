package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/shopee-price-tracker/internal/browser"
	"github.com/maltedev/shopee-price-tracker/internal/config"
	"github.com/maltedev/shopee-price-tracker/internal/database"
	"github.com/maltedev/shopee-price-tracker/internal/events"
	"github.com/maltedev/shopee-price-tracker/internal/metrics"
	"github.com/maltedev/shopee-price-tracker/internal/ratelimit"
	"github.com/maltedev/shopee-price-tracker/internal/scraper"
	"github.com/maltedev/shopee-price-tracker/internal/sink"
	"github.com/maltedev/shopee-price-tracker/internal/storage"
	"github.com/maltedev/shopee-price-tracker/internal/tracker"
	"github.com/redis/go-redis/v9"
)

// App holds the wired components shared by the CLI and the API server.
// Optional components are nil when not configured.
type App struct {
	Config   *config.Config
	Metrics  *metrics.Registry
	Scraper  *scraper.Scraper
	Scanner  *scraper.CategoryScanner
	Tracker  *tracker.Tracker
	Sinks    *sink.Multi
	Journal  *storage.RecordStore
	Sheets   *sink.SheetsWriter
	DB       *database.DB
	Redis    *redis.Client
	Relay    *database.Relay
	Renderer *browser.Browser

	closers []func() error
	logger  *slog.Logger
}

// ScraperOptions maps configuration onto the scraper's site constants.
func ScraperOptions(cfg *config.Config) scraper.Options {
	opts := scraper.DefaultOptions()
	opts.BaseURL = cfg.Scraper.BaseURL
	opts.APIBaseURL = cfg.Scraper.APIBaseURL
	opts.RequestTimeout = cfg.Scraper.RequestTimeout
	opts.RenderTimeout = cfg.Browser.Timeout
	opts.MinPrice = cfg.Scraper.MinPrice
	opts.MaxPrice = cfg.Scraper.MaxPrice
	opts.PriceDivisor = cfg.Scraper.PriceDivisor
	return opts
}

// Build wires every configured component. On error, whatever was already
// opened is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{
		Config:  cfg,
		Metrics: metrics.NewRegistry(),
		logger:  logger.With("component", "app"),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	opts := ScraperOptions(cfg)

	catalog := scraper.DefaultSeedCatalog()
	if cfg.Scraper.SeedFile != "" {
		if catalog, err = scraper.LoadSeedCatalog(cfg.Scraper.SeedFile); err != nil {
			return nil, err
		}
	}

	limiter := ratelimit.NewHostLimiter(cfg.Scraper.RequestsPerSecond, 1)
	fetcher := scraper.NewFetcher(opts, limiter, a.Metrics, logger)
	normalizer := scraper.NewNormalizer(opts, time.Now)
	chain := scraper.NewDefaultChain(opts, fetcher, normalizer, a.Metrics, logger)

	var renderer scraper.Renderer
	if cfg.Browser.Enabled {
		bopts := browser.DefaultOptions()
		bopts.Headless = cfg.Browser.Headless
		bopts.Timeout = cfg.Browser.Timeout
		bopts.Locale = cfg.Browser.Locale
		bopts.TimezoneID = cfg.Browser.Timezone

		b, berr := browser.New(bopts, logger)
		if berr != nil {
			// Rendering is optional; fetch-only scraping still works.
			a.logger.Warn("script rendering disabled, browser failed to start", "error", berr)
		} else {
			a.Renderer = b
			renderer = b
			a.closers = append(a.closers, b.Close)
		}
	}

	a.Scraper = scraper.New(opts, fetcher, renderer, chain, scraper.NewSynthesizer(catalog, time.Now), normalizer, a.Metrics, logger)
	a.Scanner = scraper.NewCategoryScanner(fetcher, opts, logger)

	sinks, err := a.buildSinks(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Sinks = sink.NewMulti(a.Metrics, logger, sinks...)

	pacer := ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax)
	a.Tracker = tracker.New(a.Scraper, a.Sinks, a.Scanner, pacer, cfg.Tracker.ProductURLs, logger)

	return a, nil
}

func (a *App) buildSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]sink.Sink, error) {
	var sinks []sink.Sink

	if cfg.Storage.PebbleDir != "" {
		store, err := storage.NewRecordStore(cfg.Storage.PebbleDir)
		if err != nil {
			return nil, err
		}
		a.Journal = store
		a.closers = append(a.closers, store.Close)
		sinks = append(sinks, store)
	}

	if cfg.Storage.CSVPath != "" {
		w, err := sink.NewCSVWriter(cfg.Storage.CSVPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create csv sink: %w", err)
		}
		sinks = append(sinks, w)
	}

	if cfg.SheetsEnabled() {
		w, err := sink.NewSheetsWriter(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.CredentialsFile, cfg.Sheets.SheetName, logger)
		if err != nil {
			return nil, err
		}
		a.Sheets = w
		sinks = append(sinks, w)
	}

	if cfg.Kafka.Bootstrap != "" {
		w := sink.NewKafkaWriter(cfg.Kafka.Bootstrap, cfg.Kafka.Topic)
		a.closers = append(a.closers, w.Close)
		sinks = append(sinks, w)
	}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = db
		a.closers = append(a.closers, func() error { db.Close(); return nil })

		if err := db.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, events.NewPublisher(db, cfg.Redis.Stream, "PHP", logger))
	}

	if len(sinks) == 0 {
		return nil, errors.New("no record sink configured")
	}
	return sinks, nil
}

// StartRelay connects to Redis and relays outbox events until ctx ends. It is
// a no-op without a database.
func (a *App) StartRelay(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}

	cfg := a.Config.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.Redis = client
	a.closers = append(a.closers, client.Close)

	a.Relay = database.NewRelay(a.DB, client, a.logger, database.RelayConfig{
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
	})
	go func() {
		if err := a.Relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("relay stopped with error", "error", err)
		}
	}()
	return nil
}

// Close releases components in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
