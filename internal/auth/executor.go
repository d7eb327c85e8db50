package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Checker-Finance/fleet-telemetry/internal/httpclient"
	"github.com/Checker-Finance/fleet-telemetry/internal/metrics"
	"github.com/Checker-Finance/fleet-telemetry/pkg/utils"
)

const (
	signInPath  = "auth/token"
	refreshPath = "auth/refresh-token"
)

var errNoRefreshToken = errors.New("no refresh token held")

// Config is the construction-time configuration of an Executor.
type Config struct {
	BaseURL    string // API root, e.g. https://driverapp.eastus.cloudapp.azure.com/
	Credential Credential
}

// Executor owns the token pair and issues authenticated GETs against the fleet API.
//
// A 401 triggers at most one recovery per call: the refresh token is exchanged
// first, and a full sign-in is attempted if that fails. Concurrent callers that
// observe a 401 for the same access token share a single recovery.
type Executor struct {
	logger  *zap.Logger
	http    httpclient.Doer
	store   Store
	baseURL string
	cred    Credential

	mu     sync.RWMutex
	tokens TokenPair

	// exchangeMu serializes sign-in and refresh so a slow exchange cannot
	// overwrite a token issued by a later one.
	exchangeMu sync.Mutex
	flight     singleflight.Group
}

// NewExecutor creates an Executor with an empty token pair. Call Load to pick up persisted tokens.
func NewExecutor(cfg Config, doer httpclient.Doer, store Store, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		logger:  logger,
		http:    doer,
		store:   store,
		baseURL: strings.TrimRight(cfg.BaseURL, "/") + "/",
		cred:    cfg.Credential,
	}
}

// Load reads a previously persisted token pair from the store.
// Missing keys leave the corresponding token empty.
func (e *Executor) Load(ctx context.Context) error {
	access, _, err := e.store.Get(ctx, KeyAccessToken)
	if err != nil {
		return fmt.Errorf("load %s: %w", KeyAccessToken, err)
	}
	refresh, _, err := e.store.Get(ctx, KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("load %s: %w", KeyRefreshToken, err)
	}

	e.mu.Lock()
	e.tokens = TokenPair{AccessToken: access, RefreshToken: refresh}
	e.mu.Unlock()

	e.logger.Debug("auth.tokens_loaded",
		zap.Bool("has_access", access != ""),
		zap.Bool("has_refresh", refresh != ""))
	return nil
}

// Tokens returns a copy of the current token pair.
func (e *Executor) Tokens() TokenPair {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tokens
}

// Authenticate signs in with the held credential and replaces both tokens.
// On failure the token pair is left unchanged and an *AuthenticationError is returned.
func (e *Executor) Authenticate(ctx context.Context) (TokenPair, error) {
	e.exchangeMu.Lock()
	defer e.exchangeMu.Unlock()
	return e.authenticate(ctx)
}

func (e *Executor) authenticate(ctx context.Context) (TokenPair, error) {
	resp, err := e.post(ctx, signInPath, url.Values{
		"email":    {e.cred.Email},
		"password": {e.cred.Password},
	})
	if err != nil {
		metrics.IncTokenOperation("authenticate", "error")
		return TokenPair{}, &AuthenticationError{Err: err}
	}
	if !resp.OK() {
		metrics.IncTokenOperation("authenticate", "error")
		return TokenPair{}, &AuthenticationError{Status: resp.StatusCode, Detail: errorDetail(resp.Body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		metrics.IncTokenOperation("authenticate", "error")
		return TokenPair{}, &AuthenticationError{Status: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		metrics.IncTokenOperation("authenticate", "error")
		return TokenPair{}, &AuthenticationError{Status: resp.StatusCode, Detail: "empty access_token"}
	}

	pair := TokenPair{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}
	e.mu.Lock()
	e.tokens = pair
	e.mu.Unlock()

	e.persist(ctx, KeyAccessToken, pair.AccessToken)
	e.persist(ctx, KeyRefreshToken, pair.RefreshToken)

	metrics.IncTokenOperation("authenticate", "ok")
	e.logger.Info("auth.authenticated", zap.String("email", utils.MaskEmail(e.cred.Email)))
	return pair, nil
}

// Refresh exchanges the held refresh token for a new access token.
// A rotated refresh token in the response replaces the held one.
// Any failure is returned as an *RefreshError.
func (e *Executor) Refresh(ctx context.Context) (string, error) {
	e.exchangeMu.Lock()
	defer e.exchangeMu.Unlock()
	return e.refresh(ctx)
}

func (e *Executor) refresh(ctx context.Context) (string, error) {
	e.mu.RLock()
	refreshToken := e.tokens.RefreshToken
	e.mu.RUnlock()

	if refreshToken == "" {
		metrics.IncTokenOperation("refresh", "error")
		return "", &RefreshError{Err: errNoRefreshToken}
	}

	resp, err := e.post(ctx, refreshPath, url.Values{
		"email":         {e.cred.Email},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		metrics.IncTokenOperation("refresh", "error")
		return "", &RefreshError{Err: err}
	}
	if !resp.OK() {
		metrics.IncTokenOperation("refresh", "error")
		return "", &RefreshError{Status: resp.StatusCode, Detail: errorDetail(resp.Body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		metrics.IncTokenOperation("refresh", "error")
		return "", &RefreshError{Status: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		metrics.IncTokenOperation("refresh", "error")
		return "", &RefreshError{Status: resp.StatusCode, Detail: "empty access_token"}
	}

	e.mu.Lock()
	e.tokens.AccessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		e.tokens.RefreshToken = tr.RefreshToken
	}
	e.mu.Unlock()

	e.persist(ctx, KeyAccessToken, tr.AccessToken)
	if tr.RefreshToken != "" {
		e.persist(ctx, KeyRefreshToken, tr.RefreshToken)
	}

	metrics.IncTokenOperation("refresh", "ok")
	e.logger.Info("auth.refreshed", zap.Bool("rotated", tr.RefreshToken != ""))
	return tr.AccessToken, nil
}

// Execute performs an authenticated GET and returns the raw JSON body.
//
// A 404 yields (nil, nil). A 401 triggers one recovery followed by one retry;
// a second 401 fails with *AuthenticationError. When no token was held the
// acquisition before the first send is that call's recovery, so a 401 on the
// first send fails immediately. Any other non-2xx status fails with
// *RequestError and is never retried.
func (e *Executor) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	token, acquired, err := e.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := e.get(ctx, req, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if acquired {
			metrics.IncError("auth", "unauthorized_after_recovery")
			return nil, &AuthenticationError{
				Status: resp.StatusCode,
				Detail: errorDetail(resp.Body),
				Err:    errors.New("freshly acquired token rejected"),
			}
		}

		e.logger.Info("auth.token_rejected",
			zap.String("endpoint", req.Endpoint),
			zap.String("token", utils.MaskToken(token)))

		token, err = e.recoverToken(ctx, token)
		if err != nil {
			return nil, err
		}

		resp, err = e.get(ctx, req, token)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			metrics.IncError("auth", "unauthorized_after_recovery")
			return nil, &AuthenticationError{
				Status: resp.StatusCode,
				Detail: errorDetail(resp.Body),
				Err:    errors.New("still unauthorized after token recovery"),
			}
		}
	}

	return e.classify(req, resp)
}

// EnsureFresh recovers ahead of time when the access token is a JWT expiring within window.
// It reports whether a recovery was performed. Opaque tokens are left alone.
func (e *Executor) EnsureFresh(ctx context.Context, window time.Duration) (bool, error) {
	pair := e.Tokens()
	exp, ok := pair.ExpiresAt()
	if !ok || time.Until(exp) > window {
		return false, nil
	}

	e.logger.Info("auth.token_expiring",
		zap.Time("expires_at", exp),
		zap.Duration("window", window))

	if _, err := e.recoverToken(ctx, pair.AccessToken); err != nil {
		return false, err
	}
	return true, nil
}

// currentToken returns the held access token, acquiring one first when none is held.
// acquired reports whether this call had to run the acquisition.
func (e *Executor) currentToken(ctx context.Context) (token string, acquired bool, err error) {
	e.mu.RLock()
	token = e.tokens.AccessToken
	e.mu.RUnlock()

	if token != "" {
		return token, false, nil
	}
	token, err = e.recoverToken(ctx, "")
	return token, true, err
}

// recoverToken replaces the stale access token: refresh first, then sign in again.
// Callers presenting the same stale token share one flight; a caller whose
// stale token was already replaced reuses the current one.
func (e *Executor) recoverToken(ctx context.Context, stale string) (string, error) {
	if current := e.Tokens().AccessToken; current != "" && current != stale {
		metrics.IncTokenRecovery("reused")
		return current, nil
	}

	// The flight outlives any single caller's cancellation; the transport timeout bounds it.
	flightCtx := context.WithoutCancel(ctx)
	ch := e.flight.DoChan("recover:"+stale, func() (any, error) {
		e.exchangeMu.Lock()
		defer e.exchangeMu.Unlock()

		if current := e.Tokens().AccessToken; current != "" && current != stale {
			metrics.IncTokenRecovery("reused")
			return current, nil
		}

		token, err := e.refresh(flightCtx)
		if err == nil {
			metrics.IncTokenRecovery("refreshed")
			return token, nil
		}
		e.logger.Warn("auth.refresh_failed", zap.Error(err))

		pair, err := e.authenticate(flightCtx)
		if err != nil {
			metrics.IncTokenRecovery("failed")
			e.logger.Error("auth.reauthenticate_failed", zap.Error(err))
			return "", err
		}
		metrics.IncTokenRecovery("reauthenticated")
		return pair.AccessToken, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Executor) classify(req Request, resp *httpclient.Response) (json.RawMessage, error) {
	switch {
	case resp.OK():
		if len(resp.Body) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(resp.Body) {
			return nil, fmt.Errorf("decode %s: response is not valid JSON", req.Endpoint)
		}
		return json.RawMessage(resp.Body), nil

	case resp.StatusCode == http.StatusNotFound:
		e.logger.Debug("auth.not_found",
			zap.String("endpoint", req.Endpoint),
			zap.String("detail", errorDetail(resp.Body)))
		return nil, nil

	default:
		return nil, &RequestError{
			Endpoint: req.Endpoint,
			Status:   resp.StatusCode,
			Detail:   errorDetail(resp.Body),
		}
	}
}

func (e *Executor) get(ctx context.Context, req Request, token string) (*httpclient.Response, error) {
	u, err := url.Parse(req.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", req.Endpoint, err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("token", token)
	httpReq.Header.Set("Accept", "application/json")

	return e.http.Do(ctx, httpReq, opLabel(u.Path))
}

func (e *Executor) post(ctx context.Context, path string, params url.Values) (*httpclient.Response, error) {
	endpoint := e.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return e.http.Do(ctx, req, path)
}

// persist writes a token to the store. A store failure is logged, not returned:
// the token is valid in memory and the next success persists again.
func (e *Executor) persist(ctx context.Context, key, value string) {
	if err := e.store.Set(ctx, key, value); err != nil {
		metrics.IncError("auth", "persist_failed")
		e.logger.Warn("auth.persist_failed", zap.String("key", key), zap.Error(err))
	}
}

// opLabel reduces a URL path to a low-cardinality metric label by dropping numeric segments.
func opLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p == "" {
			continue
		}
		if strings.Trim(p, "0123456789") == "" {
			out = append(out, ":id")
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, "/")
}
