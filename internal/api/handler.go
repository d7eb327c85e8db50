package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fleet-telemetry/internal/fleet"
)

// FleetLookup is the subset of *fleet.Client the handlers use.
type FleetLookup interface {
	LatestSensorStats(ctx context.Context, sensorID string) (json.RawMessage, error)
	SensorStats(ctx context.Context, sensorID string, r fleet.TimeRange) (json.RawMessage, error)
	GetAsset(ctx context.Context, gatewayID string) (json.RawMessage, error)
}

// FleetHandler proxies read-only lookups to the fleet API.
type FleetHandler struct {
	Logger *zap.Logger
	Fleet  FleetLookup
}

// LatestSensorStats handles GET /api/v1/sensors/:id/latest.
func (h *FleetHandler) LatestSensorStats(c *fiber.Ctx) error {
	id := c.Params("id")
	raw, err := h.Fleet.LatestSensorStats(c.UserContext(), id)
	return h.respond(c, "sensor", id, raw, err)
}

// SensorStats handles GET /api/v1/sensors/:id/stats?start_time=&end_time=.
func (h *FleetHandler) SensorStats(c *fiber.Ctx) error {
	id := c.Params("id")
	r := fleet.TimeRange{Start: c.Query("start_time"), End: c.Query("end_time")}
	raw, err := h.Fleet.SensorStats(c.UserContext(), id, r)
	return h.respond(c, "sensor", id, raw, err)
}

// Asset handles GET /api/v1/assets/:id.
func (h *FleetHandler) Asset(c *fiber.Ctx) error {
	id := c.Params("id")
	raw, err := h.Fleet.GetAsset(c.UserContext(), id)
	return h.respond(c, "asset", id, raw, err)
}

func (h *FleetHandler) respond(c *fiber.Ctx, kind, id string, raw json.RawMessage, err error) error {
	switch {
	case errors.Is(err, fleet.ErrInvalidTimestamp):
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		h.Logger.Warn("api.upstream_failed",
			zap.String("kind", kind),
			zap.String("id", id),
			zap.Error(err))
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": "fleet api request failed"})
	case raw == nil:
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": kind + " not found"})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(http.StatusOK).Send(raw)
}
