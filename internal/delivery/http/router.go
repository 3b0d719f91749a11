package http

import (
	"github.com/gofiber/fiber/v2"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, handler *Handler) {
	// Health check
	app.Get("/health", handler.HealthCheck)

	// API v1 routes
	api := app.Group("/api/v1")
	{
		// Event channel control
		api.Post("/channel/connect", handler.ConnectChannel)
		api.Post("/channel/close", handler.CloseChannel)
		api.Get("/channel", handler.GetChannel)
		api.Post("/subscribe", handler.Subscribe)

		// Reconciliation cycle and its artifacts
		api.Post("/cycle", handler.RunCycle)
		api.Get("/report", handler.GetReport)
		api.Get("/overlays", handler.GetOverlays)
		api.Post("/overlays/:id/highlight", handler.HighlightOverlay)
		api.Post("/overlays/:id/restore", handler.RestoreOverlay)
		api.Delete("/overlays", handler.ClearOverlays)
		api.Post("/refresh", handler.SetRefresh)

		// Prediction endpoint (proxies to the ML scoring service)
		api.Post("/predict", handler.Predict)
	}
}
