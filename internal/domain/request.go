package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RequestType classifies a life-cycle request. Immutable after creation.
type RequestType string

const (
	RequestTypeDeploy  RequestType = "deploy"
	RequestTypeDestroy RequestType = "destroy"
	RequestTypeScale   RequestType = "scale"
)

func (t RequestType) Valid() bool {
	switch t {
	case RequestTypeDeploy, RequestTypeDestroy, RequestTypeScale:
		return true
	}
	return false
}

// ResourceHealth is the last observed health of a completed deployment.
// Mutated only by the health-check collaborator, never by approval or
// trigger logic.
type ResourceHealth string

const (
	HealthUnknown   ResourceHealth = "unknown"
	HealthHealthy   ResourceHealth = "healthy"
	HealthDegraded  ResourceHealth = "degraded"
	HealthUnhealthy ResourceHealth = "unhealthy"
)

func (h ResourceHealth) Valid() bool {
	switch h {
	case HealthUnknown, HealthHealthy, HealthDegraded, HealthUnhealthy:
		return true
	}
	return false
}

// DecisionKind tags the terminal approval decision.
type DecisionKind string

const (
	DecisionApproved DecisionKind = "approved"
	DecisionRejected DecisionKind = "rejected"
)

// Decision records the approve/reject outcome. Write-once: exactly one
// decision is ever stored for a request, and approver and rejector identity
// never share a field.
type Decision struct {
	Kind   DecisionKind
	By     string
	At     time.Time
	Reason string
}

func (d Decision) Validate() error {
	switch d.Kind {
	case DecisionApproved:
		if strings.TrimSpace(d.Reason) != "" {
			return errors.New("approval carries no reason")
		}
	case DecisionRejected:
		if strings.TrimSpace(d.Reason) == "" {
			return errors.New("rejection reason is required")
		}
	default:
		return fmt.Errorf("unknown decision kind %q", d.Kind)
	}
	if strings.TrimSpace(d.By) == "" {
		return errors.New("decision actor is required")
	}
	if d.At.IsZero() {
		return errors.New("decision timestamp is required")
	}
	return nil
}

// PipelineRun links a request to the external pipeline run started for it.
// Null until a trigger attempt succeeds.
type PipelineRun struct {
	BuildID  int64
	BuildURL string
}

// DeploymentRequest is the aggregate root of the request life-cycle engine.
type DeploymentRequest struct {
	ID            string
	RequestType   RequestType
	Status        RequestStatus
	CatalogItemID string
	Params        Params
	Requester     Requester

	// Continuity tags, copied parent -> child for destroy/scale requests.
	CostCenter      string
	EnvironmentType string
	ProjectCode     string

	// Lineage. Set only for destroy/scale, referencing the original deploy.
	ParentRequestID string
	PreviousSize    string
	NewSize         string

	Decision *Decision
	Pipeline *PipelineRun

	// Diagnostic output reported by the pipeline on completion or failure.
	Output string

	ExpiresAt             *time.Time
	ExpirationWarningSent bool

	ResourceHealth  ResourceHealth
	HealthCheckedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r DeploymentRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("request id is required")
	}
	if !r.RequestType.Valid() {
		return fmt.Errorf("invalid request type %q", r.RequestType)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid request status %q", r.Status)
	}
	if strings.TrimSpace(r.CatalogItemID) == "" {
		return errors.New("catalog item id is required")
	}
	if strings.TrimSpace(r.Requester.Email) == "" {
		return errors.New("requester email is required")
	}
	if r.RequestType == RequestTypeDeploy && strings.TrimSpace(r.ParentRequestID) != "" {
		return errors.New("deploy request must not reference a parent")
	}
	if r.RequestType != RequestTypeDeploy && strings.TrimSpace(r.ParentRequestID) == "" {
		return fmt.Errorf("%s request requires a parent request", r.RequestType)
	}
	if r.RequestType == RequestTypeScale {
		if strings.TrimSpace(r.NewSize) == "" {
			return errors.New("scale request requires new size")
		}
		if r.NewSize == r.PreviousSize {
			return errors.New("scale request must change size")
		}
	}
	if r.Decision != nil {
		if err := r.Decision.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Terminal reports whether no further status transition is possible.
func (r DeploymentRequest) Terminal() bool {
	switch r.Status {
	case StatusRejected, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanDestroy reports whether this record may serve as the parent of a
// destroy request.
func (r DeploymentRequest) CanDestroy() bool {
	return r.RequestType == RequestTypeDeploy && r.Status == StatusCompleted
}

// CanScale mirrors CanDestroy for scale requests.
func (r DeploymentRequest) CanScale() bool {
	return r.RequestType == RequestTypeDeploy && r.Status == StatusCompleted
}
