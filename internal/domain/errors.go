package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrProviderDisabled      = errors.New("provider disabled")
	ErrUnknownProvider       = errors.New("unknown provider")
	ErrProviderCallFailed    = errors.New("provider call failed")
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
	ErrInvalidCoordinate     = errors.New("invalid coordinate")
	ErrNotFound              = errors.New("not found")
)

// ProviderError attributes a failure to a named provider. Kind is one of the
// provider sentinels above; Err is the underlying cause, if any.
type ProviderError struct {
	Provider string
	Kind     error
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Error kind labels used in result messages and metrics.
const (
	KindProviderDisabled      = "provider_disabled"
	KindUnknownProvider       = "unknown_provider"
	KindProviderCallFailed    = "provider_call_failed"
	KindAllProvidersExhausted = "all_providers_exhausted"
	KindInvalidCoordinate     = "invalid_coordinate"
	KindNotFound              = "not_found"
	KindCanceled              = "canceled"
	KindInternal              = "internal"
)

// ErrorKind maps err to a stable label. The outermost classification wins, so
// an exhausted failover reports all_providers_exhausted even though it wraps
// the individual provider errors.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAllProvidersExhausted):
		return KindAllProvidersExhausted
	case errors.Is(err, ErrInvalidCoordinate):
		return KindInvalidCoordinate
	case errors.Is(err, ErrUnknownProvider):
		return KindUnknownProvider
	case errors.Is(err, ErrProviderDisabled):
		return KindProviderDisabled
	case errors.Is(err, ErrProviderCallFailed):
		return KindProviderCallFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
