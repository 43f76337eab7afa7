package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates an unknown product, location, batch or document reference.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a request the ledger rejects before touching storage.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates a concurrent-update or lock-timeout condition that
	// survived the engine's retries.
	ErrConflict = errors.New("conflict")
	// ErrPersistence indicates an underlying store failure.
	ErrPersistence = errors.New("persistence failure")
)

// InsufficientStockError is returned when a debit exceeds the available
// quantity. Available carries the amount on hand at the time of the check.
type InsufficientStockError struct {
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %s", e.Available.String())
}

// Insufficient builds an InsufficientStockError for the given available quantity.
func Insufficient(available decimal.Decimal) error {
	return &InsufficientStockError{Available: available}
}

// IsInsufficientStock reports whether err is an insufficient-stock failure.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

// Invalidf wraps ErrInvalidInput with a formatted reason.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}

// UserSafeMessage converts internal errors into a message safe to show callers.
func UserSafeMessage(err error) string {
	var insufficient *InsufficientStockError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &insufficient):
		return insufficient.Error()
	case errors.Is(err, ErrNotFound):
		return "resource not found"
	case errors.Is(err, ErrInvalidInput):
		return err.Error()
	case errors.Is(err, ErrConflict):
		return "the record was modified concurrently, please retry"
	case errors.Is(err, ErrIdempotencyConflict):
		return "duplicate request"
	default:
		return "internal error"
	}
}
