package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/fleet-telemetry/internal/metrics"
	"github.com/Checker-Finance/fleet-telemetry/internal/rate"
)

// maxBodyBytes caps how much of a response body is buffered.
const maxBodyBytes = 16 << 20

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Doer executes a request and returns the status code and body.
type Doer interface {
	Do(ctx context.Context, req *http.Request, op string) (*Response, error)
}

// Executor performs single rate-limited round trips with logging and metrics.
// It never retries; status handling belongs to the caller.
type Executor struct {
	logger  *zap.Logger
	rateMgr *rate.Manager
	http    *http.Client
	tag     string
}

// New creates an Executor. tag prefixes log event names (e.g. "fleet" → "fleet.http_failed").
// rateMgr may be nil to disable limiting.
func New(logger *zap.Logger, rateMgr *rate.Manager, httpClient *http.Client, tag string) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Executor{
		logger:  logger,
		rateMgr: rateMgr,
		http:    httpClient,
		tag:     tag,
	}
}

// Do sends req once. op labels the call in logs and metrics; the limiter is keyed on the host.
func (e *Executor) Do(ctx context.Context, req *http.Request, op string) (*Response, error) {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, req.URL.Host); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()
	resp, err := e.http.Do(req.WithContext(ctx))
	metrics.ObserveDuration(metrics.FleetRequestDuration, start, op, req.Method)
	if err != nil {
		metrics.IncFleetRequest(op, req.Method, "transport_error")
		e.logger.Warn(e.tag+".http_failed",
			zap.String("op", op),
			zap.String("url", redactedURL(req)),
			zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", req.Method, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.IncFleetRequest(op, req.Method, "read_error")
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}

	metrics.IncFleetRequest(op, req.Method, strconv.Itoa(resp.StatusCode))
	e.logger.Debug(e.tag+".http_done",
		zap.String("op", op),
		zap.String("url", redactedURL(req)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// redactedURL drops the query string, which carries credentials on sign-in and refresh.
func redactedURL(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}
