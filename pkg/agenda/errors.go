package agenda

import (
	"errors"
	"fmt"
)

type UpstreamErrorKind string

const (
	Unauthorized UpstreamErrorKind = "unauthorized"
	RateLimited  UpstreamErrorKind = "rate_limited"
	Unavailable  UpstreamErrorKind = "unavailable"
)

// UpstreamError is returned by calendar sources on transport, auth or quota failures.
type UpstreamError struct {
	Kind    UpstreamErrorKind
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type NormalizationErrorKind string

const (
	MissingTitle NormalizationErrorKind = "missing_title"
	InvalidTime  NormalizationErrorKind = "invalid_time"
)

// NormalizationError means a source record cannot be turned into a candidate.
type NormalizationError struct {
	Kind NormalizationErrorKind
	ID   string
	Err  error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize %s: %s: %v", e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("normalize %s: %s", e.ID, e.Kind)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ErrNotApplicable is returned for tasks that have no position in time.
var ErrNotApplicable = errors.New("task has no due time")
