package repository

import "errors"

var (
	ErrNotFound             = errors.New("record not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrRevisionConflict     = errors.New("revision conflict")
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
)

// isBusinessOutcome reports errors that describe data rather than store health.
func isBusinessOutcome(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrRevisionConflict) ||
		errors.Is(err, ErrDuplicateOrderNumber)
}
