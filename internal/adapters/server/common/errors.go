package common

import (
	"errors"

	"github.com/hylla/kollage/internal/app"
	"github.com/hylla/kollage/internal/domain"
)

// Error codes shared by every transport.
const (
	CodeNotFound         = "not_found"
	CodeInvalidRequest   = "invalid_request"
	CodeInvalidSource    = "invalid_source"
	CodeLoadFailed       = "load_failed"
	CodeCapacityExceeded = "capacity_exceeded"
	CodeParseError       = "parse_error"
	CodeUnpackable       = "unpackable"
	CodeDegenerateGrid   = "degenerate_grid"
	CodeConflict         = "conflict"
	CodeUnavailable      = "service_unavailable"
	CodeInternal         = "internal_error"
)

// ErrorCode classifies err into a transport error code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return CodeInternal
	case errors.Is(err, app.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrInvalidSource):
		return CodeInvalidSource
	case errors.Is(err, domain.ErrLoad):
		return CodeLoadFailed
	case errors.Is(err, domain.ErrCapacity):
		return CodeCapacityExceeded
	case errors.Is(err, domain.ErrParse):
		return CodeParseError
	case errors.Is(err, domain.ErrUnpackable):
		return CodeUnpackable
	case errors.Is(err, domain.ErrDegenerateGrid):
		return CodeDegenerateGrid
	case errors.Is(err, domain.ErrDuplicateID), app.IsGestureError(err):
		return CodeConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidSpan),
		errors.Is(err, domain.ErrInvalidSettings),
		errors.Is(err, domain.ErrInvalidOverflow):
		return CodeInvalidRequest
	case errors.Is(err, ErrServiceUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// splitWarning separates a non-fatal ErrUnpackable from real failures.
func splitWarning(err error) (string, error) {
	if err != nil && errors.Is(err, domain.ErrUnpackable) {
		return err.Error(), nil
	}
	return "", err
}
