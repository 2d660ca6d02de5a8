package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vienlink/internal/api"
	"vienlink/internal/audit"
	"vienlink/internal/config"
	"vienlink/internal/daemon"
	"vienlink/internal/donor"
	"vienlink/internal/hub"
	"vienlink/internal/inventory"
	"vienlink/internal/notifications"
	"vienlink/internal/repository"
	"vienlink/internal/request"
	"vienlink/internal/stock"
	"vienlink/internal/telemetry"
)

func main() {
	if err := run(context.Background()); err != nil {
		panic(err)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Println("Received signal:", sig)
		cancel()
	}()

	cfg := config.NewConfig()

	// Set up telemetry and logging
	tel, err := telemetry.NewOpenTelemetry(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Telemetry shutdown failed", "error", err)
		}
	}()

	logger := tel.Logger()
	slog.SetDefault(logger)

	// Set up storage
	var repo repository.Repository
	switch cfg.Database.Driver {
	case "memory":
		repo = repository.NewMemoryRepository()
		logger.Info("Using in-memory storage")
	default:
		pg, err := repository.NewPostgresRepository(ctx, cfg.Database)
		if err != nil {
			logger.Error("Failed to initialize database", "error", err)
			return err
		}
		defer pg.Close()
		repo = pg
	}

	// Set up the notification hub
	var eventHub hub.Hub
	if cfg.Redis.Enabled {
		redisHub, err := hub.NewRedisHub(ctx, cfg.Redis)
		if err != nil {
			logger.Error("Failed to connect to redis", "error", err)
			return err
		}
		defer redisHub.Close()
		eventHub = redisHub
	} else {
		eventHub = hub.NewMemoryHub()
	}

	auditor := audit.NewAuditor(logger, repo)
	notifier := notifications.NewManager(logger, repo, eventHub)
	units := inventory.NewManager(logger, repo, &auditor)
	requests := request.NewManager(logger, repo, &units, &auditor, &notifier)
	matcher := donor.NewMatcher(repo)
	monitor := stock.NewMonitor(logger, repo, &notifier, &matcher, tel, cfg.Stock)

	// Background daemons
	daemons := daemon.NewDaemonManager(logger)
	daemons.Add("stock-monitor", daemon.StockMonitorTask(&monitor, logger, cfg.Stock.ScanInterval))
	daemons.Add("notification-cleanup", daemon.NotificationCleanupTask(&notifier, logger, cfg.Cleanup.Interval))
	daemons.Add("expiry-sweep", daemon.ExpirySweepTask(&units, logger, cfg.Cleanup.Interval))
	daemons.Start(ctx)

	handler := api.NewHandler(logger, repo, &units, &requests, &notifier, &matcher, tel, cfg.Stock)
	app := api.NewApp(handler)

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("Server shutdown failed", "error", err)
		}
	}()

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	logger.Info("Starting server", "addr", addr)
	if err := app.Listen(addr); err != nil {
		logger.Error("Server stopped", "error", err)
		return err
	}

	daemons.Wait()
	return nil
}
