package requests

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when the actor lacks the role or ownership an
	// operation requires.
	ErrForbidden = errors.New("actor not permitted")

	// ErrGuard is the root of all guard violations. Callers match it with
	// errors.Is to distinguish rejected preconditions from durability
	// failures; no mutation happens when it is returned.
	ErrGuard = errors.New("guard violation")

	ErrNotCompletedDeploy = fmt.Errorf("%w: parent must be a completed deploy request", ErrGuard)
	ErrPendingChild       = fmt.Errorf("%w: a pending destroy or scale request already references this deployment", ErrGuard)
	ErrSameSize           = fmt.Errorf("%w: scale target equals the current size", ErrGuard)
	ErrEmptyReason        = fmt.Errorf("%w: rejection reason is required", ErrGuard)
)

func guardf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrGuard, fmt.Sprintf(format, args...))
}
