package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorClass is the retry classification of a failed attempt.
type ErrorClass string

const (
	ClassNetwork   ErrorClass = "network-error"
	ClassRateLimit ErrorClass = "rate-limit"
	ClassServer    ErrorClass = "server-error"
	ClassTimeout   ErrorClass = "timeout"
	ClassUnknown   ErrorClass = "unknown"
)

// Retryable reports whether errors of this class are worth another attempt.
// Unclassified errors are never retried so logic bugs are not masked as blips.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ClassNetwork, ClassRateLimit, ClassServer, ClassTimeout:
		return true
	}
	return false
}

// Classifier maps an error to its retry class.
type Classifier func(err error) ErrorClass

// ClassifiedError is an error a platform adapter has already classified from the
// HTTP status code or a well-known error shape.
type ClassifiedError struct {
	Class      ErrorClass
	StatusCode int
	// RetryAfter is the server's explicit wait hint, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (status %d)", e.Class, e.StatusCode)
	}
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// ErrorClass implements the classified interface honoured by Classify.
func (e *ClassifiedError) ErrorClass() ErrorClass {
	return e.Class
}

// FromStatus classifies an HTTP failure by status code. A Retry-After header,
// in seconds or as an HTTP date, is captured as the wait hint.
func FromStatus(code int, header http.Header, err error) *ClassifiedError {
	if err == nil {
		err = fmt.Errorf("API error %d: %s", code, http.StatusText(code))
	}
	ce := &ClassifiedError{Class: ClassUnknown, StatusCode: code, Err: err}
	switch {
	case code == http.StatusTooManyRequests:
		ce.Class = ClassRateLimit
	case code == http.StatusForbidden && header.Get("X-RateLimit-Remaining") == "0":
		// GitHub reports primary rate limit exhaustion as 403.
		ce.Class = ClassRateLimit
	case code == http.StatusForbidden && header.Get("Retry-After") != "":
		// Secondary rate limits are a 403 with Retry-After.
		ce.Class = ClassRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		ce.Class = ClassTimeout
	case code >= 500:
		ce.Class = ClassServer
	}
	if header != nil {
		ce.RetryAfter = parseRetryAfter(header.Get("Retry-After"), time.Now())
	}
	return ce
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

var (
	networkPatterns   = []string{"econnrefused", "econnreset", "enotfound", "connection refused", "connection reset", "no such host", "broken pipe"}
	rateLimitPatterns = []string{"429", "rate limit", "too many requests"}
	serverPatterns    = []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable"}
	timeoutPatterns   = []string{"timeout", "timed out", "etimedout"}
)

// Classify is the default classifier. Explicitly classified errors win, then
// well-known Go error types, then substring matching on the message.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	var classified interface{ ErrorClass() ErrorClass }
	if errors.As(err, &classified) {
		return classified.ErrorClass()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassNetwork
	}

	return classifyMessage(err.Error())
}

func classifyMessage(msg string) ErrorClass {
	msg = strings.ToLower(msg)
	// Order matters: a "504 gateway timeout" is a timeout, and "rate limit" text
	// can accompany a 5xx body.
	switch {
	case containsAny(msg, networkPatterns):
		return ClassNetwork
	case containsAny(msg, rateLimitPatterns):
		return ClassRateLimit
	case containsAny(msg, timeoutPatterns):
		return ClassTimeout
	case containsAny(msg, serverPatterns):
		return ClassServer
	}
	return ClassUnknown
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
