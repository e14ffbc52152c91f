package domain

import (
	"errors"
	"fmt"
	"strings"
)

// RequestStatus is the only field governing which actions a request permits.
type RequestStatus string

const (
	StatusPendingApproval RequestStatus = "pending_approval"
	StatusApproved        RequestStatus = "approved"
	StatusRejected        RequestStatus = "rejected"
	StatusDeploying       RequestStatus = "deploying"
	StatusCompleted       RequestStatus = "completed"
	StatusFailed          RequestStatus = "failed"
)

func (s RequestStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// ErrInvalidTransition is returned for any (state, event) pair outside the
// transition table. The caller performs no mutation when it is returned.
var ErrInvalidTransition = errors.New("invalid status transition")

var statusTransitions = map[RequestStatus][]RequestStatus{
	StatusPendingApproval: {StatusApproved, StatusRejected},
	StatusApproved:        {StatusDeploying},
	StatusDeploying:       {StatusCompleted, StatusFailed},
	StatusRejected:        {},
	StatusCompleted:       {},
	StatusFailed:          {},
}

// CanTransition returns true when from -> to is an edge of the life-cycle
// state machine. A failed pipeline trigger is not a transition: the request
// simply stays approved.
func CanTransition(from, to RequestStatus) bool {
	allowed, ok := statusTransitions[from]
	if !ok {
		return false
	}
	for _, candidate := range allowed {
		if candidate == to {
			return true
		}
	}
	return false
}

// ValidateTransition ensures a status transition is permitted.
func ValidateTransition(from, to RequestStatus) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: unknown status %q -> %q", ErrInvalidTransition, from, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, to)
	}
	return nil
}

// NormalizeStatus maps free-form status values to canonical ones.
func NormalizeStatus(value string) RequestStatus {
	s := RequestStatus(strings.ToLower(strings.TrimSpace(value)))
	if s.Valid() {
		return s
	}
	return ""
}
