package auth

import (
	"errors"
	"net/http"
	"strings"
)

var ErrForbidden = errors.New("forbidden")

const (
	RoleRequester = "requester"
	RoleApprover  = "approver"
	RoleAdmin     = "admin"
)

var roleLevels = map[string]int{
	RoleRequester: 1,
	RoleApprover:  2,
	RoleAdmin:     3,
}

func HasAtLeast(roles []string, required string) bool {
	requiredLevel := roleLevels[strings.ToLower(required)]
	if requiredLevel == 0 {
		return false
	}
	maxLevel := 0
	for _, role := range roles {
		level := roleLevels[strings.ToLower(strings.TrimSpace(role))]
		if level > maxLevel {
			maxLevel = level
		}
	}
	return maxLevel >= requiredLevel
}

// RequiredRoleForRequest maps a route to the minimum role it needs. Approve,
// reject and retry are approver actions; the reconciliation feed (pipeline
// results, health reports) is admin-only. Everything else any requester may
// do. The gates are enforced again in the service, so a route-table gap
// cannot widen them.
func RequiredRoleForRequest(r *http.Request) string {
	path := r.URL.Path
	if r.Method == http.MethodPost {
		switch {
		case strings.HasSuffix(path, "/approve"),
			strings.HasSuffix(path, "/reject"),
			strings.HasSuffix(path, "/retry-trigger"):
			return RoleApprover
		case strings.HasSuffix(path, "/result"),
			strings.HasSuffix(path, "/health"):
			return RoleAdmin
		}
	}
	return RoleRequester
}
