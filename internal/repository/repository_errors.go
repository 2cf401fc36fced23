package repository

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")

	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStatusConflict means a guarded status write matched no row: the
	// order moved to a state that does not permit the requested transition.
	ErrStatusConflict = errors.New("order status does not permit transition")

	// ErrReservationMismatch means a settlement or release referenced more
	// reserved units than the ledger holds. It signals a bug or tampering
	// and must never be silently corrected.
	ErrReservationMismatch = errors.New("reservation mismatch")

	// ErrNegativeStock is the unreachable-by-design invariant violation:
	// settling would drive stock below zero.
	ErrNegativeStock = errors.New("settlement would make stock negative")

	// ErrTxConflict is returned after bounded retries of a serializable
	// transaction keep colliding with concurrent writers.
	ErrTxConflict = errors.New("storage transaction conflict")

	// ErrConfiguration marks a missing or uninitialized collaborator, so a
	// broken deployment surfaces as an error instead of empty data.
	ErrConfiguration = errors.New("storage not configured")
)

// InsufficientStockError identifies the offending product and the shortfall
// so the caller can tell the customer what could not be reserved.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
