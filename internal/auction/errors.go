package auction

import "errors"

// Domain error taxonomy. Callers classify failures with errors.Is and map them
// to transport-level responses; room observers never see any of these.
var (
	// ErrNotFound indicates the auction, fish, or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the requester is not allowed to perform the
	// action, including a seller bidding on their own auction.
	ErrUnauthorized = errors.New("not authorized")

	// ErrInvalidState indicates the action is illegal for the auction's
	// current status.
	ErrInvalidState = errors.New("invalid auction state")

	// ErrValidation indicates a malformed or out-of-range field, including a
	// bid below the required floor.
	ErrValidation = errors.New("validation failed")

	// ErrPersistence indicates the store did not confirm a write. The
	// operation was not applied and may be retried.
	ErrPersistence = errors.New("persistence failure")
)
