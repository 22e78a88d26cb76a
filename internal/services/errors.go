package services

import "errors"

// Business errors of the stock engine. Handlers map these onto HTTP statuses;
// wrapped messages carry item id, requested and available quantities so
// callers can decide whether to retry.
var (
	ErrValidation = errors.New("validation error")

	ErrItemNotFound        = errors.New("inventory item not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrBatchNotFound       = errors.New("batch not found")

	// ErrInsufficientStock: an on-hand decrement would drop below the
	// reserved quantity (or zero). Nothing was mutated; safe to retry with a
	// smaller quantity.
	ErrInsufficientStock = errors.New("insufficient stock for item")

	// ErrInsufficientAvailable: the unreserved portion cannot cover a new
	// hold. Nothing was mutated.
	ErrInsufficientAvailable = errors.New("insufficient available stock for reservation")

	// ErrNoEligibleBatch: raw totals would cover the demand but the active,
	// unexpired lots cannot. Distinct from a plain stock-out so callers do
	// not conflate the two.
	ErrNoEligibleBatch = errors.New("no eligible batch can cover the requested quantity")

	// ErrReservationNotActive: the reservation already reached a terminal
	// status; the requested transition was not applied.
	ErrReservationNotActive = errors.New("reservation is not active")

	// ErrConcurrentModification: lost the conditional-write race. Transient;
	// the engine never retries on the caller's behalf.
	ErrConcurrentModification = errors.New("item modified concurrently, retry")

	// ErrTransferPartialFailure: the destination credit failed after the
	// source debit succeeded. Compensation was attempted; operator attention
	// is required either way.
	ErrTransferPartialFailure = errors.New("transfer partially failed")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountDisabled    = errors.New("account is disabled")
)
