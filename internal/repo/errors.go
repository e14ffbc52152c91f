package repo

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStatusConflict is returned when a conditional status update finds
	// the row in a different status than expected. The row is unchanged.
	ErrStatusConflict = errors.New("status conflict")
)
