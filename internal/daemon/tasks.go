package daemon

import (
	"context"
	"log/slog"
	"time"

	"vienlink/internal/inventory"
	"vienlink/internal/notifications"
	"vienlink/internal/stock"
)

// StockMonitorTask sweeps stock levels immediately on startup and then on a
// fixed interval. Each sweep isolates per-hospital failures internally.
func StockMonitorTask(monitor *stock.Monitor, logger *slog.Logger, interval time.Duration) DaemonFunc {
	return func(ctx context.Context, name string) error {
		if err := monitor.Sweep(ctx); err != nil {
			logger.Error("Initial stock sweep failed", "daemon", name, "error", err)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("Stock monitor shutting down", "daemon", name)
				return nil
			case <-ticker.C:
				if err := monitor.Sweep(ctx); err != nil {
					logger.Error("Stock sweep failed", "daemon", name, "error", err)
				}
			}
		}
	}
}

// NotificationCleanupTask purges notifications past their expiry.
func NotificationCleanupTask(notifier *notifications.Manager, logger *slog.Logger, interval time.Duration) DaemonFunc {
	return func(ctx context.Context, name string) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("Notification cleanup shutting down", "daemon", name)
				return nil
			case <-ticker.C:
				deleted, err := notifier.CleanupExpired(ctx)
				if err != nil {
					logger.Error("Notification cleanup failed", "daemon", name, "error", err)
					continue
				}
				if deleted > 0 {
					logger.Info("Deleted expired notifications", "daemon", name, "count", deleted)
				}
			}
		}
	}
}

// ExpirySweepTask moves available units past their expiry date to expired.
func ExpirySweepTask(units *inventory.Manager, logger *slog.Logger, interval time.Duration) DaemonFunc {
	return func(ctx context.Context, name string) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("Expiry sweep shutting down", "daemon", name)
				return nil
			case <-ticker.C:
				if _, err := units.SweepExpired(ctx); err != nil {
					logger.Error("Unit expiry sweep failed", "daemon", name, "error", err)
				}
			}
		}
	}
}
