package domain

import (
	"errors"
	"net"
	"strings"
	"time"
)

// Audit action kinds. Closed enumeration; the audit trail only ever carries
// these plus the auth.* deny actions emitted by the auth middleware.
const (
	ActionRequestCreated    = "request.created"
	ActionRequestApproved   = "request.approved"
	ActionRequestRejected   = "request.rejected"
	ActionDeployStarted     = "deployment.started"
	ActionDeployCompleted   = "deployment.completed"
	ActionDeployFailed      = "deployment.failed"
	ActionTriggerFailed     = "deployment.trigger_failed"
	ActionDestroyRequested  = "destroy.requested"
	ActionScaleRequested    = "scale.requested"
	ActionExpirationWarned  = "expiration.warned"
	ActionHealthRecorded    = "health.recorded"
	ActionReminderSent      = "reminder.sent"
	ActionResourcesReleased = "resources.released"
)

// AuditEvent is an immutable audit record. event_id is assigned by the
// store's sequence; per-request ordering follows that sequence, not the
// wall clock.
type AuditEvent struct {
	EventID         int64
	OccurredAt      time.Time
	Actor           string
	Action          string
	ResourceType    string
	ResourceID      string
	RequestID       string
	IP              net.IP
	UserAgent       string
	Payload         Metadata
	IntegritySHA256 string
}

func (e AuditEvent) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("occurred_at is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		return errors.New("actor is required")
	}
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("action is required")
	}
	if strings.TrimSpace(e.ResourceType) == "" {
		return errors.New("resource_type is required")
	}
	if strings.TrimSpace(e.ResourceID) == "" {
		return errors.New("resource_id is required")
	}
	return nil
}
