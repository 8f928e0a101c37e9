package storage

import "errors"

// Sentinel errors returned by Run Store operations.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrAlreadyExists indicates an idempotent insert observed a unique-constraint
	// violation and absorbed it as a no-op.
	ErrAlreadyExists = errors.New("storage: already exists")

	// ErrNoClaimableWork indicates no row was available to claim under lease.
	ErrNoClaimableWork = errors.New("storage: no claimable work")

	// ErrInvalidTransition indicates a disallowed stage or status transition,
	// including any attempt to mutate a run whose status is already terminal.
	ErrInvalidTransition = errors.New("storage: invalid transition")
)
