package gemini

import (
	"context"
	"errors"
	"net"
	"strings"

	"finsights/internal/domain"
)

// classify maps a Gemini SDK error onto the internal failure taxonomy.
// The SDK surfaces HTTP status and gRPC status names in error strings,
// e.g. "Error 429, ... Status: RESOURCE_EXHAUSTED".
func classify(err error) *domain.FetchError {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return fe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewFetchError(domain.FailureTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.NewFetchError(domain.FailureTimeout, err)
		}
		return domain.NewFetchError(domain.FailureNetwork, err)
	}

	msg := err.Error()
	switch {
	case containsAny(msg, "429", "RESOURCE_EXHAUSTED", "quota"):
		return domain.NewFetchError(domain.FailureRateLimited, err)
	case containsAny(msg, "401", "403", "API_KEY_INVALID", "PERMISSION_DENIED", "UNAUTHENTICATED", "API key"):
		return domain.NewFetchError(domain.FailureAuth, err)
	case containsAny(msg, "connection refused", "no such host", "EOF"):
		return domain.NewFetchError(domain.FailureNetwork, err)
	default:
		return domain.NewFetchError(domain.FailureProvider, err)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
