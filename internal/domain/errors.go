package domain

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a fetch or persistence step failed.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureRateLimited FailureKind = "rate_limited"
	FailureAuth        FailureKind = "auth_error"
	FailureProvider    FailureKind = "provider_error"
	FailureNetwork     FailureKind = "network_error"
	FailureMalformed   FailureKind = "malformed_response"
	FailurePersistence FailureKind = "persistence_error"
)

// ErrNotConfigured is returned when no usable API key is stored, which
// aborts a run before any job is dispatched.
var ErrNotConfigured = errors.New("provider API key not configured")

// ErrInvalidCredential is returned by a settings update when the test
// call with the new API key fails.
var ErrInvalidCredential = errors.New("invalid credential")

// ErrRunInProgress is returned when a trigger fires while another
// ingestion run is still executing (skip-and-log policy).
var ErrRunInProgress = errors.New("ingestion run already in progress")

// FetchError carries a FailureKind alongside the underlying cause so
// per-category outcomes can be recorded without string matching.
type FetchError struct {
	Kind FailureKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func NewFetchError(kind FailureKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

// KindOf extracts the FailureKind from err, defaulting to
// FailureProvider for untyped errors.
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FailureProvider
}

// IsTransient reports whether a failure kind is worth retrying.
// Auth errors and malformed responses never are.
func IsTransient(kind FailureKind) bool {
	switch kind {
	case FailureTimeout, FailureRateLimited, FailureProvider, FailureNetwork:
		return true
	default:
		return false
	}
}
