package resilience

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/failsafe-go/failsafe-go/timeout"
)

// httpStatusPattern matches an HTTP status code embedded in an error
// message, e.g. "unexpected status 503" or "HTTP 502 Bad Gateway".
var httpStatusPattern = regexp.MustCompile(`(?i)(?:status(?:\s+code)?|http)\D{0,3}(\d{3})`)

var transientFragments = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"timed out",
	"deadline exceeded",
	"no such host",
	"temporary failure",
	"temporarily unavailable",
	"service unavailable",
	"rate limit",
	"too many requests",
	"throttl",
	"econnreset",
	"econnrefused",
	"etimedout",
}

// DefaultRetryable reports whether an error looks transient: network
// blips, timeouts, DNS failures, rate limiting, or an HTTP 5xx status
// encoded in the message. Everything else fails fast to fallback.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, timeout.ErrExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range transientFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	if m := httpStatusPattern.FindStringSubmatch(msg); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			if code >= 500 && code < 600 {
				return true
			}
			if code == 429 {
				return true
			}
		}
	}

	return false
}
