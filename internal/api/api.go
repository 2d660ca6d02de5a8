package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"vienlink/internal/config"
	"vienlink/internal/donor"
	"vienlink/internal/inventory"
	"vienlink/internal/middleware"
	"vienlink/internal/notifications"
	"vienlink/internal/repository"
	"vienlink/internal/request"
	"vienlink/internal/telemetry"
	"vienlink/internal/validator"
)

type Handler struct {
	logger    *slog.Logger
	repo      repository.Repository
	units     *inventory.Manager
	requests  *request.Manager
	notifier  *notifications.Manager
	matcher   *donor.Matcher
	validate  *validator.Validator
	telemetry telemetry.Telemetry

	defaultThreshold int
	donorRadiusKm    float64
}

func NewHandler(logger *slog.Logger, repo repository.Repository, units *inventory.Manager, requests *request.Manager, notifier *notifications.Manager, matcher *donor.Matcher, tel telemetry.Telemetry, cfg config.StockConfig) Handler {
	if tel == nil {
		tel = telemetry.Noop()
	}
	return Handler{
		logger:           logger,
		repo:             repo,
		units:            units,
		requests:         requests,
		notifier:         notifier,
		matcher:          matcher,
		validate:         validator.New(),
		telemetry:        tel,
		defaultThreshold: cfg.DefaultThreshold,
		donorRadiusKm:    cfg.DonorRadiusKm,
	}
}

// NewApp builds the fiber application with all routes registered.
func NewApp(h Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "vienlink",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	app.Use(middleware.Logger())

	app.Get("/health", h.Health)

	api := app.Group("/api", middleware.Identity())

	api.Post("/units", h.CreateUnit)
	api.Get("/units/:id", h.GetUnit)
	api.Post("/units/:id/results", h.RecordAssayResult)
	api.Get("/units/:id/movements", h.ListMovements)
	api.Post("/units/:id/movements", h.RecordMovement)

	api.Get("/stock", h.StockLevels)

	api.Post("/requests", h.CreateRequest)
	api.Get("/requests/:id", h.GetRequest)
	api.Post("/requests/:id/approve", h.ApproveRequest)
	api.Post("/requests/:id/reject", h.RejectRequest)
	api.Post("/requests/:id/fulfill", h.FulfillRequest)
	api.Post("/requests/:id/cancel", h.CancelRequest)

	api.Post("/transfers", h.CreateTransfer)
	api.Get("/transfers/:id", h.GetTransfer)
	api.Post("/transfers/:id/approve", h.ApproveTransfer)
	api.Post("/transfers/:id/reject", h.RejectTransfer)
	api.Post("/transfers/:id/complete", h.CompleteTransfer)

	api.Get("/notifications", h.ListNotifications)
	api.Get("/notifications/unread-count", h.CountUnreadNotifications)
	api.Post("/notifications/read", h.MarkNotificationsRead)
	api.Post("/notifications/read-all", h.MarkAllNotificationsRead)
	api.Delete("/notifications", h.DeleteNotifications)

	api.Get("/donors/match", h.MatchDonors)

	return app
}

// Health returns the health status of the application
func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.repo.HealthCheck(c.Context()); err != nil {
		return c.Status(503).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
