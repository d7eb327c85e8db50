package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/fleet-telemetry/internal/auth"
)

// Executor issues authenticated GETs. *auth.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, req auth.Request) (json.RawMessage, error)
}

// Client exposes the /v1/fleet/ resources.
// Every method returns (nil, nil) when the resource does not exist.
type Client struct {
	logger *zap.Logger
	exec   Executor
	base   string
}

// NewClient builds a client rooted at fleetBase (e.g. https://host/v1/fleet/).
func NewClient(logger *zap.Logger, exec Executor, fleetBase string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger: logger,
		exec:   exec,
		base:   strings.TrimRight(fleetBase, "/") + "/",
	}
}

// ─── vehicles ─────────────────────────────────────────────────────────────────

// ListVehicles: GET vehicles
func (c *Client) ListVehicles(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, nil, "vehicles")
}

// GetVehicle: GET vehicles/{id}
func (c *Client) GetVehicle(ctx context.Context, vehicleID string) (json.RawMessage, error) {
	return c.get(ctx, nil, "vehicles", vehicleID)
}

// VehicleSensors: GET vehicles/{id}/sensors
func (c *Client) VehicleSensors(ctx context.Context, vehicleID string) (json.RawMessage, error) {
	return c.get(ctx, nil, "vehicles", vehicleID, "sensors")
}

// VehicleSensorStats: GET vehicles/{id}/sensors/stats
func (c *Client) VehicleSensorStats(ctx context.Context, vehicleID string, r TimeRange) (json.RawMessage, error) {
	q, err := r.query()
	if err != nil {
		return nil, err
	}
	return c.get(ctx, q, "vehicles", vehicleID, "sensors", "stats")
}

// VehicleGPS: GET vehicles/{id}/gps
func (c *Client) VehicleGPS(ctx context.Context, vehicleID string, r TimeRange, undersampling int) (json.RawMessage, error) {
	q, err := gpsQuery(r, undersampling)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, q, "vehicles", vehicleID, "gps")
}

// ─── assets (gateways) ────────────────────────────────────────────────────────

// ListAssets: GET assets
func (c *Client) ListAssets(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, nil, "assets")
}

// GetAsset returns one asset by the gateway id printed on its sticker.
func (c *Client) GetAsset(ctx context.Context, gatewayID string) (json.RawMessage, error) {
	return c.get(ctx, nil, "assets", gatewayID)
}

// AssetSensors lists the sensors attached to a gateway.
func (c *Client) AssetSensors(ctx context.Context, gatewayID string) (json.RawMessage, error) {
	return c.get(ctx, nil, "assets", gatewayID, "sensors")
}

// AssetSensorStats returns readings of every sensor on a gateway.
// The server caps the result at roughly one day of one-minute samples per sensor.
func (c *Client) AssetSensorStats(ctx context.Context, gatewayID string, r TimeRange) (json.RawMessage, error) {
	q, err := r.query()
	if err != nil {
		return nil, err
	}
	return c.get(ctx, q, "assets", gatewayID, "sensors", "stats")
}

// AssetGPS returns the gateway's track. undersampling of 0 means DefaultUndersampling.
func (c *Client) AssetGPS(ctx context.Context, gatewayID string, r TimeRange, undersampling int) (json.RawMessage, error) {
	q, err := gpsQuery(r, undersampling)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, q, "assets", gatewayID, "gps")
}

// ─── sensors ──────────────────────────────────────────────────────────────────

// GetSensor returns sensor metadata by serial number.
func (c *Client) GetSensor(ctx context.Context, sensorID string) (json.RawMessage, error) {
	return c.get(ctx, nil, "sensors", sensorID)
}

// SensorStats returns a sensor's readings within r.
func (c *Client) SensorStats(ctx context.Context, sensorID string, r TimeRange) (json.RawMessage, error) {
	q, err := r.query()
	if err != nil {
		return nil, err
	}
	return c.get(ctx, q, "sensors", sensorID, "stats")
}

// LatestSensorStats returns the most recent reading of a sensor.
func (c *Client) LatestSensorStats(ctx context.Context, sensorID string) (json.RawMessage, error) {
	return c.get(ctx, nil, "sensors", sensorID, "stats", "latest")
}

func (c *Client) get(ctx context.Context, query map[string]string, segments ...string) (json.RawMessage, error) {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("empty path segment in %v", segments)
		}
		escaped[i] = url.PathEscape(s)
	}
	endpoint := c.base + strings.Join(escaped, "/")

	body, err := c.exec.Execute(ctx, auth.Request{Endpoint: endpoint, Query: query})
	if err != nil {
		c.logger.Warn("fleet.request_failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, err
	}
	if body == nil {
		c.logger.Info("fleet.not_found", zap.String("endpoint", endpoint))
	}
	return body, nil
}

// Decode unmarshals a response into T. found is false for an absent (404) result.
func Decode[T any](raw json.RawMessage) (value T, found bool, err error) {
	if raw == nil {
		return value, false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, true, fmt.Errorf("decode fleet response: %w", err)
	}
	return value, true, nil
}

// Record is a loosely typed fleet object; the API does not publish a fixed schema.
type Record = map[string]any
