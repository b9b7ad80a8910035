package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/shopee-price-tracker/internal/app"
	"github.com/maltedev/shopee-price-tracker/internal/config"
	"github.com/maltedev/shopee-price-tracker/internal/logging"
	"github.com/maltedev/shopee-price-tracker/internal/models"
	"github.com/maltedev/shopee-price-tracker/internal/tracker"
)

var version = "dev"

func main() {
	var (
		url         = flag.String("url", "", "Track a single product URL")
		file        = flag.String("file", "", "File with product URLs, one per line")
		category    = flag.String("category", "", "Discover and track products from a category or search URL")
		limit       = flag.Int("limit", 0, "Maximum number of products to track from -file or -category")
		schedule    = flag.Bool("schedule", false, "Track SHOPEE_PRODUCT_URLS repeatedly")
		interval    = flag.Duration("interval", 0, "Interval between scheduled runs (default CHECK_INTERVAL)")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("price-tracker", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.StartRelay(ctx); err != nil {
		logger.Warn("outbox relay not started", "error", err)
	}

	switch {
	case *url != "":
		rec, err := a.Tracker.TrackProduct(ctx, *url)
		if rec != nil {
			printRecord(rec)
		}
		if err != nil {
			logger.Error("tracking failed", "error", err)
			os.Exit(1)
		}

	case *file != "":
		summary, err := a.Tracker.TrackFile(ctx, *file, *limit)
		exitOnError(logger.Error, err)
		printSummary(summary)

	case *category != "":
		summary, err := a.Tracker.TrackCategory(ctx, *category, *limit)
		exitOnError(logger.Error, err)
		printSummary(summary)

	case *schedule:
		every := *interval
		if every <= 0 {
			every = cfg.Tracker.CheckInterval
		}
		if err := a.Tracker.RunScheduler(ctx, every); err != nil {
			logger.Error("scheduler failed", "error", err)
			os.Exit(1)
		}

	default:
		summary, err := a.Tracker.TrackAll(ctx)
		if errors.Is(err, tracker.ErrNoURLs) {
			fmt.Fprintln(os.Stderr, "no products to track: set SHOPEE_PRODUCT_URLS or pass -url, -file or -category")
			flag.Usage()
			os.Exit(2)
		}
		exitOnError(logger.Error, err)
		printSummary(summary)
	}
}

func exitOnError(log func(msg string, args ...any), err error) {
	if err == nil {
		return
	}
	log("tracking failed", "error", err)
	os.Exit(1)
}

func printRecord(rec *models.ProductRecord) {
	fmt.Printf("%s\n", rec.Name)
	fmt.Printf("  price:    %.2f (was %.2f, -%g%%)\n", rec.Price, rec.OriginalPrice, rec.Discount)
	fmt.Printf("  shop:     %s\n", rec.ShopName)
	if rec.Rating != nil {
		fmt.Printf("  rating:   %.1f\n", *rec.Rating)
	}
	fmt.Printf("  source:   %s\n", rec.Source)
	fmt.Printf("  recorded: %s\n", rec.Timestamp.Format(time.RFC3339))
	if rec.IsSynthetic {
		fmt.Println("  NOTE: placeholder data, every live source was unavailable")
	}
}

func printSummary(s tracker.Summary) {
	for _, r := range s.Results {
		switch {
		case r.Error != "":
			fmt.Printf("FAIL  %s: %s\n", r.URL, r.Error)
		case r.Record.IsSynthetic:
			fmt.Printf("SYNTH %s: %s %.2f (placeholder)\n", r.URL, r.Record.Name, r.Record.Price)
		default:
			fmt.Printf("OK    %s: %s %.2f\n", r.URL, r.Record.Name, r.Record.Price)
		}
	}
	fmt.Printf("\ntracked %d/%d products (%d placeholders, %d failed)\n",
		s.Succeeded, s.Attempted, s.Synthetic, s.Failed)
}
