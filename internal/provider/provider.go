// Package provider defines the contract for upstream time-series data sources
// and the fallback resolver that tries them in priority order.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/polyfolio/syncd/internal/domain"
)

// ErrorKind classifies a provider failure so callers can match on kind
// instead of error-message text.
type ErrorKind int

const (
	// KindNoData means the provider answered but has no coverage for the
	// requested symbol/window. A normal outcome, not logged as an error.
	KindNoData ErrorKind = iota
	// KindAuthMissing means credentials were absent, rejected, or the
	// account's subscription does not cover the requested feed.
	KindAuthMissing
	// KindRateLimited means the provider returned a throttling response.
	KindRateLimited
	// KindTransport covers network failures and malformed responses.
	KindTransport
)

// String returns the kind's wire-stable label.
func (k ErrorKind) String() string {
	switch k {
	case KindNoData:
		return "no_data"
	case KindAuthMissing:
		return "auth_missing"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "transport"
	}
}

// Error is a typed provider failure. It wraps the underlying cause so
// errors.Is/As keep working through the pipeline.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a typed provider failure.
func NewError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err, or KindTransport when err is not a
// provider error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransport
}

// IsNoData reports whether err is a typed no-data failure.
func IsNoData(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindNoData
}

// Client is one upstream source of historical time-series data. Calls are
// side-effect-free on the store: a client only returns data or fails.
type Client interface {
	// Name identifies the provider for result attribution.
	Name() string
	// FetchHistory returns all bars for the requested window, accumulating
	// internal pages before returning. An empty, error-free result is valid
	// and means the provider has no coverage for the window.
	FetchHistory(ctx context.Context, req domain.HistoryRequest) ([]domain.Bar, error)
}
