package parley_errors

import "errors"

// Common errors
var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrPersistence     = errors.New("persistence failed")
	ErrDeliveryPartial = errors.New("delivery partially failed")
	ErrRateLimited     = errors.New("rate limited")
	ErrTooLarge        = errors.New("file too large")
	ErrTimeout         = errors.New("timed out waiting for acknowledgement")
)

// ErrInvalidInput is kept for request-shape failures at the transport edge.
var ErrInvalidInput = ErrValidation
