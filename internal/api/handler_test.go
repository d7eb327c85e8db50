package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fleet-telemetry/internal/fleet"
)

type mockFleet struct {
	latest map[string]string
	assets map[string]string
	err    error
	lastTR fleet.TimeRange
}

func (m *mockFleet) LatestSensorStats(_ context.Context, id string) (json.RawMessage, error) {
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.latest[id]; ok {
		return json.RawMessage(v), nil
	}
	return nil, nil
}

func (m *mockFleet) SensorStats(_ context.Context, _ string, r fleet.TimeRange) (json.RawMessage, error) {
	m.lastTR = r
	if !fleet.IsISO8601(r.Start) {
		return nil, fmt.Errorf("start_time: %w", fleet.ErrInvalidTimestamp)
	}
	return json.RawMessage(`[]`), nil
}

func (m *mockFleet) GetAsset(_ context.Context, id string) (json.RawMessage, error) {
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.assets[id]; ok {
		return json.RawMessage(v), nil
	}
	return nil, nil
}

type mockNATS struct {
	connected bool
	flushErr  error
}

func (m mockNATS) IsConnected() bool                   { return m.connected }
func (m mockNATS) FlushTimeout(_ time.Duration) error { return m.flushErr }

type mockStore struct{ err error }

func (m mockStore) HealthCheck(context.Context) error { return m.err }

func newTestApp(f *mockFleet, nc NATSStatus, st HealthChecker) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, nc, st, &FleetHandler{Logger: zap.NewNop(), Fleet: f})
	return app
}

func doGet(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestLatestSensorStats(t *testing.T) {
	app := newTestApp(&mockFleet{latest: map[string]string{"300": `{"temperature":21.5}`}}, nil, nil)

	code, body := doGet(t, app, "/api/v1/sensors/300/latest")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"temperature":21.5}`, body)

	code, _ = doGet(t, app, "/api/v1/sensors/999/latest")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAsset_StatusMapping(t *testing.T) {
	app := newTestApp(&mockFleet{assets: map[string]string{"42": `{"gateway_id":42}`}}, nil, nil)

	code, body := doGet(t, app, "/api/v1/assets/42")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"gateway_id":42}`, body)

	code, body = doGet(t, app, "/api/v1/assets/7")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, "asset not found")

	failing := newTestApp(&mockFleet{err: errors.New("authentication failed")}, nil, nil)
	code, _ = doGet(t, failing, "/api/v1/assets/42")
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestSensorStats_InvalidTimestampIsBadRequest(t *testing.T) {
	f := &mockFleet{}
	app := newTestApp(f, nil, nil)

	code, _ := doGet(t, app, "/api/v1/sensors/300/stats?start_time=yesterday")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doGet(t, app, "/api/v1/sensors/300/stats?start_time=2024-09-10&end_time=2024-09-11")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, fleet.TimeRange{Start: "2024-09-10", End: "2024-09-11"}, f.lastTR)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name  string
		nc    NATSStatus
		store HealthChecker
		code  int
	}{
		{"all ok", mockNATS{connected: true}, mockStore{}, http.StatusOK},
		{"no store configured", mockNATS{connected: true}, nil, http.StatusOK},
		{"nats missing", nil, mockStore{}, http.StatusServiceUnavailable},
		{"nats flush fails", mockNATS{connected: true, flushErr: errors.New("timeout")}, nil, http.StatusServiceUnavailable},
		{"store down", mockNATS{connected: true}, mockStore{err: errors.New("redis down")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doGet(t, newTestApp(&mockFleet{}, tt.nc, tt.store), "/health")
			assert.Equal(t, tt.code, code)
			assert.Contains(t, body, `"checks"`)
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	code, body := doGet(t, newTestApp(&mockFleet{}, nil, nil), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_goroutines")
}
