package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/trafficpulse/livemap/internal/cache"
	"github.com/trafficpulse/livemap/internal/channel"
	"github.com/trafficpulse/livemap/internal/domain"
	"github.com/trafficpulse/livemap/internal/overlay"
	"github.com/trafficpulse/livemap/internal/service"
)

// Handler contains all HTTP handlers for one session.
type Handler struct {
	engine  *service.Engine
	channel *channel.Channel
	predict *service.PredictionClient
	reports *cache.Reports
}

// NewHandler creates a new handler. reports may be nil when the report cache
// is disabled.
func NewHandler(engine *service.Engine, ch *channel.Channel, predict *service.PredictionClient, reports *cache.Reports) *Handler {
	return &Handler{
		engine:  engine,
		channel: ch,
		predict: predict,
		reports: reports,
	}
}

// HealthCheck returns service health: channel liveness, last cycle age and
// cache effectiveness, so the dashboard can show staleness.
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	stats := h.channel.Stats()

	resp := fiber.Map{
		"status":  "ok",
		"service": "livemap",
		"version": "1.0.0",
		"channel": stats,
	}
	if !stats.LastPongAt.IsZero() {
		resp["last_pong_age_sec"] = int(time.Since(stats.LastPongAt).Seconds())
	}
	if report, ok := h.engine.Report(); ok {
		resp["last_cycle_at"] = report.GeneratedAt
		resp["last_cycle_age_sec"] = int(time.Since(report.GeneratedAt).Seconds())
	}
	if h.reports != nil {
		resp["cache"] = h.reports.Stats()
	}
	return c.JSON(resp)
}

// ConnectChannel starts the event channel. Connecting an already active
// channel is a conflict, not an error to retry.
func (h *Handler) ConnectChannel(c *fiber.Ctx) error {
	if err := h.channel.Connect(); err != nil {
		if errors.Is(err, channel.ErrChannelActive) {
			return fiber.NewError(fiber.StatusConflict, "Channel is already active")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to start channel")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"state":   h.channel.State(),
	})
}

// CloseChannel forces the channel to Closed from any state.
func (h *Handler) CloseChannel(c *fiber.Ctx) error {
	h.channel.Close()
	return c.JSON(fiber.Map{
		"success": true,
		"state":   h.channel.State(),
	})
}

// GetChannel returns the channel's state and liveness counters.
func (h *Handler) GetChannel(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.channel.Stats(),
	})
}

type subscribeRequest struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Subscribe stores the location of interest. It is announced to the event
// source immediately when connected and replayed on every reconnect.
func (h *Handler) Subscribe(c *fiber.Ctx) error {
	var req subscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Lng < -180 || req.Lng > 180 || req.Lat < -90 || req.Lat > 90 {
		return fiber.NewError(fiber.StatusBadRequest, "Coordinates out of range")
	}

	h.channel.Subscribe(domain.LngLat{Lng: req.Lng, Lat: req.Lat})
	return c.JSON(fiber.Map{
		"success":  true,
		"location": domain.LngLat{Lng: req.Lng, Lat: req.Lat},
	})
}

type cycleRequest struct {
	Lng      float64 `json:"lng"`
	Lat      float64 `json:"lat"`
	RadiusKm float64 `json:"radius_km"`
}

// RunCycle triggers one reconciliation cycle and returns its report. A cycle
// already in flight rejects the trigger; both status queries failing surfaces
// the combined error as a bad gateway.
func (h *Handler) RunCycle(c *fiber.Ctx) error {
	var req cycleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Lng < -180 || req.Lng > 180 || req.Lat < -90 || req.Lat > 90 {
		return fiber.NewError(fiber.StatusBadRequest, "Coordinates out of range")
	}
	if req.RadiusKm <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "radius_km must be positive")
	}

	report, err := h.engine.RunCycle(c.Context(), orb.Point{req.Lng, req.Lat}, req.RadiusKm)
	if err != nil {
		if errors.Is(err, service.ErrCycleInProgress) {
			return fiber.NewError(fiber.StatusConflict, "A cycle is already running")
		}
		return fiber.NewError(fiber.StatusBadGateway, "Status queries failed: "+err.Error())
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    report,
	})
}

// GetReport returns the last successful report. With lng/lat/radius_km query
// parameters it falls back to the report cache for that location, serving a
// last-known-good answer even after the engine moved on.
func (h *Handler) GetReport(c *fiber.Ctx) error {
	if report, ok := h.engine.Report(); ok {
		return c.JSON(fiber.Map{
			"success": true,
			"data":    report,
		})
	}

	lng := c.QueryFloat("lng")
	lat := c.QueryFloat("lat")
	radius := c.QueryFloat("radius_km")
	if radius > 0 {
		if report, ok := h.engine.CachedReport(c.Context(), orb.Point{lng, lat}, radius); ok {
			return c.JSON(fiber.Map{
				"success": true,
				"data":    report,
				"cached":  true,
			})
		}
	}

	return fiber.NewError(fiber.StatusNotFound, "No report yet")
}

// GetOverlays returns the rendered overlay and marker descriptors.
func (h *Handler) GetOverlays(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":  true,
		"overlays": h.engine.Overlays(),
		"markers":  h.engine.Markers(),
	})
}

// HighlightOverlay amplifies one overlay's stroke, restoring the previously
// highlighted one first.
func (h *Handler) HighlightOverlay(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid overlay id")
	}
	if err := h.engine.Highlight(id); err != nil {
		if errors.Is(err, overlay.ErrUnknownOverlay) {
			return fiber.NewError(fiber.StatusNotFound, "Unknown overlay")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to highlight overlay")
	}
	return c.JSON(fiber.Map{"success": true})
}

// RestoreOverlay reverts one overlay to its original style.
func (h *Handler) RestoreOverlay(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid overlay id")
	}
	if err := h.engine.Restore(id); err != nil {
		if errors.Is(err, overlay.ErrUnknownOverlay) {
			return fiber.NewError(fiber.StatusNotFound, "Unknown overlay")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to restore overlay")
	}
	return c.JSON(fiber.Map{"success": true})
}

// ClearOverlays stops the auto-refresh and releases every overlay and marker.
// Clearing twice in a row is a no-op the second time.
func (h *Handler) ClearOverlays(c *fiber.Ctx) error {
	h.engine.ClearAll()
	return c.JSON(fiber.Map{"success": true})
}

type refreshRequest struct {
	Enabled   bool `json:"enabled"`
	PeriodSec int  `json:"period_sec"`
}

// SetRefresh turns the periodic re-run of the last cycle on or off.
func (h *Handler) SetRefresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	period := time.Duration(req.PeriodSec) * time.Second
	if err := h.engine.SetAutoRefresh(req.Enabled, period); err != nil {
		if errors.Is(err, service.ErrNoCycleParams) {
			return fiber.NewError(fiber.StatusConflict, "Run a cycle before enabling auto-refresh")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to toggle auto-refresh")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"enabled": h.engine.RefreshEnabled(),
	})
}

// Predict proxies forecast requests to the scoring service.
func (h *Handler) Predict(c *fiber.Ctx) error {
	var req domain.PredictionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.HorizonHours <= 0 {
		req.HorizonHours = 6
	}

	prediction, err := h.predict.Predict(c.Context(), req)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "Failed to get prediction")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    prediction,
	})
}
