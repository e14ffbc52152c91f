package auth

import (
	"net/http"
	"testing"
)

func TestHasAtLeast(t *testing.T) {
	if !HasAtLeast([]string{"requester"}, RoleRequester) {
		t.Fatalf("requester should satisfy requester")
	}
	if HasAtLeast([]string{"requester"}, RoleApprover) {
		t.Fatalf("requester should not satisfy approver")
	}
	if !HasAtLeast([]string{"admin"}, RoleApprover) {
		t.Fatalf("admin should satisfy approver")
	}
	if !HasAtLeast([]string{" Approver "}, RoleApprover) {
		t.Fatalf("role matching should trim and lower-case")
	}
	if HasAtLeast(nil, RoleRequester) {
		t.Fatalf("empty roles should satisfy nothing")
	}
	if HasAtLeast([]string{"admin"}, "owner") {
		t.Fatalf("unknown required role should never be satisfied")
	}
}

func TestRequiredRoleForRequest(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/requests", RoleRequester},
		{http.MethodPost, "/api/requests", RoleRequester},
		{http.MethodPost, "/api/requests/abc/approve", RoleApprover},
		{http.MethodPost, "/api/requests/abc/reject", RoleApprover},
		{http.MethodPost, "/api/requests/abc/retry-trigger", RoleApprover},
		{http.MethodPost, "/api/requests/abc/result", RoleAdmin},
		{http.MethodPost, "/api/requests/abc/health", RoleAdmin},
		{http.MethodPost, "/api/requests/abc/destroy", RoleRequester},
		{http.MethodGet, "/api/requests/abc/approve", RoleRequester},
		{http.MethodGet, "/api/requests/abc/health", RoleRequester},
	}
	for _, tc := range cases {
		r, err := http.NewRequest(tc.method, tc.path, nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		if got := RequiredRoleForRequest(r); got != tc.want {
			t.Errorf("RequiredRoleForRequest(%s %s) = %q, want %q", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestIdentityIsApprover(t *testing.T) {
	if (Identity{Roles: []string{"requester"}}).IsApprover() {
		t.Fatal("requester identity should not be an approver")
	}
	if !(Identity{Roles: []string{"approver"}}).IsApprover() {
		t.Fatal("approver identity should be an approver")
	}
}
