package repo

import "errors"

var (
	// ErrNotFound is returned when a row does not exist. For sessions, an
	// expired-but-not-yet-reaped row behaves identically to a missing one.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique constraint is violated
	// (e.g. registering an email that already exists).
	ErrDuplicate = errors.New("already exists")

	// ErrUnavailable is returned when the backing store cannot be reached or
	// the operation timed out. Retryable by the caller; never a security
	// decision.
	ErrUnavailable = errors.New("storage unavailable")
)
