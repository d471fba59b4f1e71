package xrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrNetwork covers transport failures and non-2xx responses that are
	// neither authentication nor rate-limit rejections.
	ErrNetwork = errors.New("network error")
	// ErrUnauthorized means the server rejected the bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited means the server answered 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidResponse means a 2xx body could not be decoded.
	ErrInvalidResponse = errors.New("invalid response")
)

// timeNow is a seam for tests that exercise HTTP-date Retry-After values.
var timeNow = time.Now

// authErrorNames are XRPC error names that PDS implementations return with
// status 400 when the token itself is the problem.
var authErrorNames = map[string]struct{}{
	"ExpiredToken":           {},
	"InvalidToken":           {},
	"AuthenticationRequired": {},
	"AuthMissing":            {},
}

// Error describes a failed XRPC call. It matches exactly one of the package
// sentinels with errors.Is.
type Error struct {
	NSID       string
	StatusCode int    // 0 for transport failures
	Name       string // XRPC "error" field
	Message    string // XRPC "message" field
	RetryAfter time.Duration
	Body       []byte

	kind  error
	cause error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode == 0 && e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.NSID, e.kind, e.cause)
	case e.Name != "" && e.Message != "":
		return fmt.Sprintf("%s: HTTP %d %s: %s", e.NSID, e.StatusCode, e.Name, e.Message)
	case e.Name != "":
		return fmt.Sprintf("%s: HTTP %d %s", e.NSID, e.StatusCode, e.Name)
	default:
		return fmt.Sprintf("%s: HTTP %d: %s", e.NSID, e.StatusCode, e.kind)
	}
}

func (e *Error) Is(target error) bool { return target == e.kind }

func (e *Error) Unwrap() error { return e.cause }

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// newStatusError maps a non-2xx response onto a sentinel, the way gRPC
// status codes are mapped in the rest of the client.
func newStatusError(nsid string, status int, header http.Header, body []byte) *Error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	e := &Error{
		NSID:       nsid,
		StatusCode: status,
		Name:       eb.Error,
		Message:    eb.Message,
		Body:       body,
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e.kind = ErrUnauthorized
	case status == http.StatusBadRequest && isAuthErrorName(eb.Error):
		e.kind = ErrUnauthorized
	case status == http.StatusTooManyRequests:
		e.kind = ErrRateLimited
		e.RetryAfter = retryAfter(header)
	default:
		e.kind = ErrNetwork
	}
	return e
}

func newTransportError(nsid string, err error) *Error {
	return &Error{NSID: nsid, kind: ErrNetwork, cause: err}
}

func newDecodeError(nsid string, status int, body []byte, err error) *Error {
	return &Error{NSID: nsid, StatusCode: status, Body: body, kind: ErrInvalidResponse, cause: err}
}

func isAuthErrorName(name string) bool {
	_, ok := authErrorNames[name]
	return ok
}

// retryAfter reads Retry-After (seconds or HTTP date), falling back to the
// RateLimit-Reset epoch header used by Bluesky services.
func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := t.Sub(timeNow()); d > 0 {
				return d
			}
		}
	}
	if v := h.Get("RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(timeNow()); d > 0 {
				return d
			}
		}
	}
	return 0
}

// IsTransient reports whether retrying the same call later may succeed:
// transport failures, 408, 5xx and rate limiting.
func IsTransient(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var xe *Error
	if !errors.As(err, &xe) || !errors.Is(xe, ErrNetwork) {
		return false
	}
	return xe.StatusCode == 0 ||
		xe.StatusCode == http.StatusRequestTimeout ||
		xe.StatusCode >= 500
}

// RetryAfter returns the server-suggested delay carried by err, if any.
func RetryAfter(err error) time.Duration {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.RetryAfter
	}
	return 0
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.StatusCode
	}
	return 0
}

// ErrorName returns the XRPC error name carried by err, or "".
func ErrorName(err error) string {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Name
	}
	return ""
}
