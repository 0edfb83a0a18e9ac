package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"autosearch/config"
	"autosearch/metrics"
	"autosearch/notifier"
	"autosearch/scraper/autoscout"
	"autosearch/services"
	"autosearch/storage"
	"autosearch/utils"
)

func main() {
	mode := flag.String("mode", "run", "run | once | check | clear | export")
	out := flag.String("out", "output/listings.csv", "CSV path for -mode=export")
	flag.Parse()

	cfg := config.Load()
	logger, err := utils.NewLoggerFromEnv(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open %s store: %v", cfg.StoreBackend, err)
		if cfg.StoreBackend == "postgres" {
			logger.Error("Make sure Docker is running: docker compose up -d")
		}
		os.Exit(1)
	}
	defer store.Close()

	switch *mode {
	case "run", "once":
		err = runSearches(ctx, cfg, store, logger, *mode == "once")
	case "check":
		err = checkStore(ctx, store, logger)
	case "clear":
		err = clearStore(ctx, store, logger)
	case "export":
		err = exportStore(ctx, store, *out, logger)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Error("%v", err)
		store.Close()
		os.Exit(1)
	}
}

func runSearches(ctx context.Context, cfg *config.Config, store storage.SnapshotStore, logger *utils.Logger, once bool) error {
	logger.Info("=== AutoSearch starting ===")

	searches, err := config.LoadSearches(cfg.ConfigDir)
	if err != nil {
		return err
	}
	logger.Info("Config — searches: %d | backend: %s | store: %s | notifier: %s | rate: %dms",
		len(searches), cfg.FetchBackend, cfg.StoreBackend, cfg.Notifier, cfg.RateLimitMs)

	m := metrics.New()
	if cfg.MetricsPort != "" {
		srv := m.Start(cfg.MetricsPort, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	source, closeSource, err := openSource(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	n, err := openNotifier(cfg, logger)
	if err != nil {
		return err
	}

	client := autoscout.NewClient(cfg.BaseURL, source, utils.NewThrottle(cfg.RateLimitMs), logger)
	engine := services.NewEngine(store, m, logger)
	runner := services.NewCycleRunner(client, services.NewNormalizer(logger), engine, n,
		services.CycleConfig{
			MaxPages: cfg.MaxPages,
			Retry: utils.RetryConfig{
				MaxAttempts: cfg.MaxRetries,
				BaseDelay:   cfg.RetryBaseDelay,
				MaxDelay:    time.Minute,
				Logger:      logger,
				Retryable:   autoscout.IsTransient,
			},
		}, m, logger)
	scheduler := services.NewScheduler(runner, n, services.SchedulerConfig{
		ShutdownGrace:       cfg.ShutdownGrace,
		EscalationThreshold: cfg.ErrorEscalationThreshold,
	}, m, logger)

	if !once {
		return scheduler.Run(ctx, searches)
	}

	scheduler.Register(searches...)
	completed, failed := 0, 0
	for _, s := range searches {
		result, err := scheduler.Trigger(ctx, s.Filter.Name)
		if err != nil {
			failed++
			continue
		}
		completed++
		logger.Info("%s: %d new, %d removed", result.Search, len(result.Added), len(result.Removed))
	}
	logger.Info("Search summary: %d completed, %d failed", completed, failed)
	if failed > 0 {
		return fmt.Errorf("%d search(es) failed", failed)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.SnapshotStore, error) {
	switch cfg.StoreBackend {
	case "postgres":
		return storage.NewPostgresStore(ctx, cfg.DSN())
	case "redis":
		return storage.NewRedisStore(ctx, cfg.RedisURL)
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func openSource(cfg *config.Config, logger *utils.Logger) (autoscout.PageSource, func(), error) {
	switch cfg.FetchBackend {
	case "http":
		return autoscout.NewHTTPSource(cfg.RequestTimeout), func() {}, nil
	case "browser":
		b, err := autoscout.NewBrowserSource(cfg.ChromeBin, cfg.RequestTimeout, logger)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown FETCH_BACKEND %q", cfg.FetchBackend)
	}
}

func openNotifier(cfg *config.Config, logger *utils.Logger) (services.Notifier, error) {
	var multi notifier.Multi
	for _, name := range strings.Split(cfg.Notifier, ",") {
		switch strings.TrimSpace(name) {
		case "telegram":
			tg, err := notifier.NewTelegram(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramChatIDs,
				cfg.RequestTimeout, logger)
			if err != nil {
				return nil, err
			}
			multi = append(multi, tg)
		case "console":
			multi = append(multi, notifier.NewConsole(os.Stdout))
		case "":
		default:
			return nil, fmt.Errorf("unknown NOTIFIER %q", name)
		}
	}
	if len(multi) == 0 {
		return nil, errors.New("no notifier configured")
	}
	if len(multi) == 1 {
		return multi[0], nil
	}
	return multi, nil
}

func checkStore(ctx context.Context, store storage.SnapshotStore, logger *utils.Logger) error {
	listings, err := store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch listings: %w", err)
	}
	svc := services.NewReportService(logger)
	svc.Print(os.Stdout, svc.Generate(listings))
	return nil
}

func clearStore(ctx context.Context, store storage.SnapshotStore, logger *utils.Logger) error {
	n, err := store.Clear(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	logger.Info("Removed %d listing(s) from the store", n)
	return nil
}

func exportStore(ctx context.Context, store storage.SnapshotStore, path string, logger *utils.Logger) error {
	listings, err := store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch listings: %w", err)
	}

	var w storage.ListingExporter
	w, err = storage.NewCSVWriter(path)
	if err != nil {
		return err
	}
	if err := w.WriteListings(listings); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	logger.Info("Exported %d listing(s) to %s", len(listings), path)
	return nil
}
