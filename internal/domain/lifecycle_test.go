package domain

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		want     bool
	}{
		{StatusPendingApproval, StatusApproved, true},
		{StatusPendingApproval, StatusRejected, true},
		{StatusPendingApproval, StatusDeploying, false},
		{StatusPendingApproval, StatusCompleted, false},
		{StatusApproved, StatusDeploying, true},
		{StatusApproved, StatusCompleted, false},
		{StatusApproved, StatusRejected, false},
		{StatusApproved, StatusPendingApproval, false},
		{StatusDeploying, StatusCompleted, true},
		{StatusDeploying, StatusFailed, true},
		{StatusDeploying, StatusApproved, false},
		{StatusRejected, StatusApproved, false},
		{StatusCompleted, StatusDeploying, false},
		{StatusFailed, StatusDeploying, false},
		{StatusFailed, StatusApproved, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestValidateTransition_Invalid(t *testing.T) {
	err := ValidateTransition(StatusCompleted, StatusDeploying)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := ValidateTransition("bogus", StatusApproved); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("unknown status should be rejected, got %v", err)
	}
}

func TestValidateTransition_Valid(t *testing.T) {
	if err := ValidateTransition(StatusApproved, StatusDeploying); err != nil {
		t.Fatalf("ValidateTransition() err=%v", err)
	}
}

func TestNormalizeStatus(t *testing.T) {
	if got := NormalizeStatus("  Pending_Approval "); got != StatusPendingApproval {
		t.Fatalf("NormalizeStatus() = %q", got)
	}
	if got := NormalizeStatus("running"); got != "" {
		t.Fatalf("expected empty status for unknown value, got %q", got)
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []RequestStatus{StatusRejected, StatusCompleted, StatusFailed} {
		if !(DeploymentRequest{Status: s}).Terminal() {
			t.Errorf("status %s should be terminal", s)
		}
	}
	for _, s := range []RequestStatus{StatusPendingApproval, StatusApproved, StatusDeploying} {
		if (DeploymentRequest{Status: s}).Terminal() {
			t.Errorf("status %s should not be terminal", s)
		}
	}
}
