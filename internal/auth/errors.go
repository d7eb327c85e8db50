package auth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AuthenticationError reports a failed sign-in, or a request still unauthorized after recovery.
type AuthenticationError struct {
	Status int // 0 when no response was received
	Detail string
	Err    error
}

func (e *AuthenticationError) Error() string {
	return describe("authentication failed", e.Status, e.Detail, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RefreshError reports a failed refresh-token exchange.
// Callers may fall back to signing in again.
type RefreshError struct {
	Status int
	Detail string
	Err    error
}

func (e *RefreshError) Error() string {
	return describe("token refresh failed", e.Status, e.Detail, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// RequestError is any non-2xx response other than 401 and 404.
type RequestError struct {
	Endpoint string
	Status   int
	Detail   string
}

func (e *RequestError) Error() string {
	return describe("request to "+e.Endpoint+" failed", e.Status, e.Detail, nil)
}

func describe(prefix string, status int, detail string, err error) string {
	var b strings.Builder
	b.WriteString(prefix)
	if status != 0 {
		fmt.Fprintf(&b, ": status %d", status)
	}
	if detail != "" {
		b.WriteString(": " + detail)
	}
	if err != nil {
		b.WriteString(": " + err.Error())
	}
	return b.String()
}

// errorDetail extracts the "detail" field of an error body, falling back to the raw text.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	const maxLen = 512
	text := strings.TrimSpace(string(body))
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return text
}
