package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fleet-telemetry/internal/rate"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestDo_ReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer srv.Close()

	exec := New(zap.NewNop(), nil, srv.Client(), "test")
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	resp, err := exec.Do(context.Background(), req, "probe")
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.JSONEq(t, `{"result":"ok"}`, string(resp.Body))
}

func TestDo_ErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"expired"}`))
	}))
	defer srv.Close()

	exec := New(zap.NewNop(), nil, srv.Client(), "test")
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	resp, err := exec.Do(context.Background(), req, "probe")
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDo_NoRetryOnServerError(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := New(zap.NewNop(), nil, srv.Client(), "test")
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	resp, err := exec.Do(context.Background(), req, "probe")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.EqualValues(t, 1, count.Load())
}

func TestDo_TransportError(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}
	exec := New(zap.NewNop(), nil, client, "test")
	req, _ := http.NewRequest(http.MethodGet, "https://fleet.test/v1/fleet/assets", nil)

	_, err := exec.Do(context.Background(), req, "assets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDo_RateLimitHonoursContext(t *testing.T) {
	rateMgr := rate.NewManager(rate.Config{RequestsPerSecond: 1, Burst: 1})
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})}
	exec := New(zap.NewNop(), rateMgr, client, "test")

	req, _ := http.NewRequest(http.MethodGet, "https://fleet.test/x", nil)
	_, err := exec.Do(context.Background(), req, "x")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = exec.Do(ctx, req, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestRedactedURL_DropsQuery(t *testing.T) {
	u, _ := url.Parse("https://fleet.test/auth/token?email=a%40b&password=secret")
	req := &http.Request{URL: u}
	assert.Equal(t, "https://fleet.test/auth/token", redactedURL(req))
}
