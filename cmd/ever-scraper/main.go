package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/ever-scraper/internal/api"
	"github.com/maltedev/ever-scraper/internal/browser"
	"github.com/maltedev/ever-scraper/internal/catalog"
	"github.com/maltedev/ever-scraper/internal/config"
	"github.com/maltedev/ever-scraper/internal/database"
	"github.com/maltedev/ever-scraper/internal/events"
	"github.com/maltedev/ever-scraper/internal/metrics"
	"github.com/maltedev/ever-scraper/internal/pacing"
	"github.com/maltedev/ever-scraper/internal/resume"
	"github.com/maltedev/ever-scraper/internal/runner"
	"github.com/maltedev/ever-scraper/internal/scraper"
	"github.com/maltedev/ever-scraper/internal/storage"
	"github.com/maltedev/ever-scraper/pkg/logger"
)

func main() {
	var (
		output   = flag.String("output", "", "Root directory for dated CSV artifacts (overrides EVER_OUTPUT_ROOT)")
		headless = flag.Bool("headless", true, "Run browser in headless mode")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *output != "" {
		cfg.Site.OutputRoot = *output
	}
	cfg.Browser.Headless = *headless && cfg.Browser.Headless

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	logger.Info("Starting Ever price scraper", "listing_url", cfg.Site.ListingURL, "output_root", cfg.Site.OutputRoot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Scraper failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	date := time.Now()
	store := storage.NewStore(cfg.Site.OutputRoot)

	runDir, err := store.EnsureRunDir(date)
	if err != nil {
		return err
	}

	cat, err := catalog.New(cfg.Site.ListingURL, catalog.Options{
		Timeout:   cfg.Scraper.HTTPTimeout,
		UserAgent: cfg.Scraper.UserAgent,
	}, logger)
	if err != nil {
		return err
	}

	discovered, err := cat.Discover(ctx)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(os.Getpid())))

	items, err := resume.NewFilter(store, cfg.Site.Denylist, rng, logger).Apply(discovered, runDir)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		logger.Info("Already gathered all data as of today", "run_dir", runDir)
		return nil
	}

	rc := runner.NewRunContext(date, runDir, items)
	logger = logger.With("run_id", rc.RunID.String())
	logger.Info("Categories to scrape", "count", len(items), "discovered", len(discovered))

	m := metrics.New()

	var (
		sinks     []scraper.RecordSink
		observers []runner.Observer
	)

	if cfg.Database.Enabled() {
		dbCfg := database.DefaultConfig(cfg.Database.URL)
		dbCfg.MaxConns = cfg.Database.MaxConns

		db, err := database.New(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		sinks = append(sinks, database.NewPriceRepository(db.Pool(), rc.RunID, logger))
	}

	if cfg.Redis.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		publisher := events.NewPublisher(redisClient, cfg.Redis.Stream, rc.RunID, logger)
		sinks = append(sinks, publisher)
		observers = append(observers, publisher)
	}

	browserOpts := browser.DefaultOptions()
	browserOpts.Headless = cfg.Browser.Headless
	browserOpts.Timeout = cfg.Browser.Timeout
	browserOpts.UserAgent = cfg.Scraper.UserAgent
	browserOpts.ViewportWidth = cfg.Browser.ViewportWidth
	browserOpts.ViewportHeight = cfg.Browser.ViewportHeight
	browserOpts.TimezoneID = cfg.Browser.TimezoneID
	browserOpts.Locale = cfg.Browser.Locale
	browserOpts.ProxyServer = cfg.Browser.ProxyServer

	launch := func(ctx context.Context) (scraper.Driver, error) {
		s, err := browser.Launch(ctx, browserOpts, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	pacer := pacing.NewPacer(cfg.Scraper.PauseJitter)

	sessionOpts := scraper.DefaultOptions()
	sessionOpts.MaxScrollCycles = cfg.Scraper.MaxScrollCycles

	session := scraper.NewSession(launch, storage.NewCSVExporter(store, runDir, date), pacer, sessionOpts, logger).
		WithSinks(sinks...).
		WithMetrics(m)

	runnerOpts := runner.DefaultOptions()
	runnerOpts.RetryBudget = cfg.Scraper.RetryBudget
	runnerOpts.MaxReruns = cfg.Scraper.MaxReruns

	r := runner.New(session, rc, pacer, rng, runnerOpts, logger).
		WithMetrics(m).
		WithObservers(observers...)

	if cfg.Status.Enabled() {
		statusCtx, stopStatus := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := api.Serve(statusCtx, cfg.Status.Addr, api.NewRouter(r, m.Registry, logger), logger); err != nil {
				logger.Error("Status server failed", "error", err)
			}
		}()
		defer func() {
			stopStatus()
			<-done
		}()
	}

	outcome, err := r.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("Scraping finished", "outcome", outcome.String(), "run_dir", runDir)
	return nil
}
