package retry

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// CreateErrorMessage renders a user-facing message for a failed operation.
// Once retries are exhausted the attempt count is appended.
func CreateErrorMessage(class ErrorClass, err error, attempts int, exhausted bool) string {
	detail := ""
	if err != nil {
		detail = err.Error()
	}

	var msg string
	switch class {
	case ClassNetwork:
		msg = "Network error: unable to reach the platform. Check your connection"
	case ClassRateLimit:
		msg = "Rate limit exceeded: the platform is throttling requests"
		if wait, ok := DetectRateLimitWait(err); ok {
			msg += fmt.Sprintf(", retry after %s", wait)
		}
	case ClassServer:
		msg = "Server error: the platform is experiencing problems"
	case ClassTimeout:
		msg = "Timeout: the platform did not respond in time"
	default:
		msg = "Unexpected error"
	}
	if detail != "" {
		msg += ": " + detail
	}
	if exhausted {
		msg += fmt.Sprintf(" (failed after %d attempts)", attempts)
	}
	return msg
}

var (
	retryAfterSecondsRe = regexp.MustCompile(`(?i)retry after (\d+)\s*(?:seconds?|secs?|s)\b`)
	retryAfterHeaderRe  = regexp.MustCompile(`(?i)retry-after:\s*(\d+)`)
)

// DetectRateLimitWait extracts an explicit wait hint from a rate-limit error.
func DetectRateLimitWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) && ce.RetryAfter > 0 {
		return ce.RetryAfter, true
	}
	msg := err.Error()
	for _, re := range []*regexp.Regexp{retryAfterSecondsRe, retryAfterHeaderRe} {
		if m := re.FindStringSubmatch(msg); m != nil {
			if secs, convErr := strconv.Atoi(m[1]); convErr == nil && secs > 0 {
				return time.Duration(secs) * time.Second, true
			}
		}
	}
	return 0, false
}
