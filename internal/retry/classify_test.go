package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassUnknown},
		{"econnrefused", errors.New("connect ECONNREFUSED 127.0.0.1:443"), ClassNetwork},
		{"connection reset", errors.New("read: connection reset by peer"), ClassNetwork},
		{"429", errors.New("API error 429: slow down"), ClassRateLimit},
		{"rate limit text", errors.New("API rate limit exceeded"), ClassRateLimit},
		{"502", errors.New("API error 502: Bad Gateway"), ClassServer},
		{"timeout text", errors.New("request timeout"), ClassTimeout},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), ClassTimeout},
		{"net timeout", timeoutErr{}, ClassTimeout},
		{"classified wins", &ClassifiedError{Class: ClassServer, Err: errors.New("rate limit")}, ClassServer},
		{"wrapped classified", fmt.Errorf("ctx: %w", &ClassifiedError{Class: ClassRateLimit}), ClassRateLimit},
		{"unknown", errors.New("invalid field: summary"), ClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		code   int
		header http.Header
		want   ErrorClass
		after  time.Duration
	}{
		{http.StatusTooManyRequests, http.Header{"Retry-After": {"12"}}, ClassRateLimit, 12 * time.Second},
		{http.StatusForbidden, http.Header{"X-Ratelimit-Remaining": {"0"}}, ClassRateLimit, 0},
		{http.StatusForbidden, http.Header{"Retry-After": {"60"}}, ClassRateLimit, 60 * time.Second},
		{http.StatusForbidden, nil, ClassUnknown, 0},
		{http.StatusServiceUnavailable, nil, ClassServer, 0},
		{http.StatusGatewayTimeout, nil, ClassTimeout, 0},
		{http.StatusNotFound, nil, ClassUnknown, 0},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			ce := FromStatus(tt.code, tt.header, nil)
			if ce.Class != tt.want {
				t.Errorf("Class = %q, want %q", ce.Class, tt.want)
			}
			if ce.RetryAfter != tt.after {
				t.Errorf("RetryAfter = %v, want %v", ce.RetryAfter, tt.after)
			}
			if !strings.Contains(ce.Error(), fmt.Sprint(tt.code)) {
				t.Errorf("Error() = %q, want status code", ce.Error())
			}
		})
	}
}

func TestClassRetryable(t *testing.T) {
	for _, c := range []ErrorClass{ClassNetwork, ClassRateLimit, ClassServer, ClassTimeout} {
		if !c.Retryable() {
			t.Errorf("%s should be retryable", c)
		}
	}
	if ClassUnknown.Retryable() {
		t.Error("unknown must not be retryable")
	}
}

func TestDetectRateLimitWait(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   time.Duration
		wantOK bool
	}{
		{"text seconds", errors.New("rate limited, retry after 45 seconds"), 45 * time.Second, true},
		{"header text", errors.New("429 Too Many Requests (Retry-After: 7)"), 7 * time.Second, true},
		{"classified", &ClassifiedError{Class: ClassRateLimit, RetryAfter: 3 * time.Second}, 3 * time.Second, true},
		{"no hint", errors.New("429 Too Many Requests"), 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectRateLimitWait(tt.err)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("DetectRateLimitWait() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCreateErrorMessage(t *testing.T) {
	err := errors.New("dial tcp: connection refused")

	msg := CreateErrorMessage(ClassNetwork, err, 1, false)
	if !strings.HasPrefix(msg, "Network error") || strings.Contains(msg, "attempts") {
		t.Errorf("unexhausted message = %q", msg)
	}

	msg = CreateErrorMessage(ClassNetwork, err, 4, true)
	if !strings.HasSuffix(msg, "(failed after 4 attempts)") {
		t.Errorf("exhausted message = %q", msg)
	}

	msg = CreateErrorMessage(ClassRateLimit, errors.New("retry after 30 seconds"), 4, true)
	if !strings.Contains(msg, "retry after 30s") {
		t.Errorf("rate-limit message = %q", msg)
	}

	for _, c := range []ErrorClass{ClassServer, ClassTimeout, ClassUnknown} {
		if CreateErrorMessage(c, err, 1, false) == "" {
			t.Errorf("empty message for %s", c)
		}
	}
}
