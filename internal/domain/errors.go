package domain

import "errors"

// Callers wrap these with fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEventTypeNotFound = errors.New("event type not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInternal          = errors.New("internal error")
)
