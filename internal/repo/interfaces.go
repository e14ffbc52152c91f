package repo

import (
	"context"
	"time"

	"github.com/stackport-labs/stackport-go/internal/domain"
)

type RequestFilter struct {
	Status          domain.RequestStatus
	RequestType     domain.RequestType
	RequesterEmail  string
	CatalogItemID   string
	ParentRequestID string
	Limit           int
}

// Transition describes a single guarded status change. From is the status the
// caller observed; the store applies the change only if the row still carries
// it. The optional fields are written together with the new status.
type Transition struct {
	RequestID string
	From      domain.RequestStatus
	To        domain.RequestStatus

	Decision *domain.Decision
	Pipeline *domain.PipelineRun
	Output   string
	Now      time.Time
}

// RequestRepository persists deployment requests. Every mutation accepts the
// audit entry that records it; implementations commit both or neither.
type RequestRepository interface {
	Create(ctx context.Context, request domain.DeploymentRequest, entry domain.AuditEvent) error
	Get(ctx context.Context, id string) (domain.DeploymentRequest, error)
	List(ctx context.Context, filter RequestFilter) ([]domain.DeploymentRequest, error)
	Transition(ctx context.Context, t Transition, entry domain.AuditEvent) (domain.DeploymentRequest, error)

	// LatestCompletedScale returns the newest completed scale request whose
	// parent is the given deploy, or ErrNotFound when none exists.
	LatestCompletedScale(ctx context.Context, parentID string) (domain.DeploymentRequest, error)

	// HasPendingChild reports whether a non-terminal destroy or scale request
	// already references the parent.
	HasPendingChild(ctx context.Context, parentID string) (bool, error)

	// MarkExpirationWarned sets the warning flag. It returns false when the
	// flag was already set, so concurrent sweeps warn at most once.
	MarkExpirationWarned(ctx context.Context, id string, entry domain.AuditEvent) (bool, error)

	RecordHealth(ctx context.Context, id string, health domain.ResourceHealth, checkedAt time.Time, entry domain.AuditEvent) error

	ListExpiring(ctx context.Context, before time.Time, limit int) ([]domain.DeploymentRequest, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.DeploymentRequest, error)
	ListDeploying(ctx context.Context, limit int) ([]domain.DeploymentRequest, error)
}

// ReminderRepository records approval reminders, append-only.
type ReminderRepository interface {
	Append(ctx context.Context, reminder domain.ApprovalReminder) error
	LastSentAt(ctx context.Context, requestID string) (time.Time, bool, error)
}

// AuditEventAppender ensures append-only audit writes.
type AuditEventAppender interface {
	Append(ctx context.Context, event domain.AuditEvent) (int64, error)
}
