package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stackport-labs/stackport-go/internal/catalog"
	"github.com/stackport-labs/stackport-go/internal/domain"
	"github.com/stackport-labs/stackport-go/internal/notify"
	"github.com/stackport-labs/stackport-go/internal/pipeline"
	"github.com/stackport-labs/stackport-go/internal/repo"
)

// Archiver stores pipeline diagnostic output outside the database.
// Best-effort: a failed archive never affects request state.
type Archiver interface {
	Archive(ctx context.Context, requestID string, output string) error
}

// Config tunes the background sweeps and notification content. Zero values
// are replaced with defaults by New.
type Config struct {
	// ReminderAfter is how long a request may sit pending before approvers
	// are reminded. ReminderCooldown is the minimum gap between reminders
	// for the same request.
	ReminderAfter    time.Duration
	ReminderCooldown time.Duration
	ReminderChannel  domain.ReminderChannel

	// ExpiryWarnWindow is how far ahead of expires_at the warning fires.
	ExpiryWarnWindow time.Duration

	SweepBatchSize int

	PortalBaseURL  string
	ApproverEmails []string
}

func (c Config) withDefaults() Config {
	if c.ReminderAfter <= 0 {
		c.ReminderAfter = 4 * time.Hour
	}
	if c.ReminderCooldown <= 0 {
		c.ReminderCooldown = 24 * time.Hour
	}
	if c.ReminderChannel == "" {
		c.ReminderChannel = domain.ReminderEmail
	}
	if c.ExpiryWarnWindow <= 0 {
		c.ExpiryWarnWindow = 72 * time.Hour
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = 50
	}
	return c
}

// Service is the request life-cycle engine. Every state change goes through
// the repository's conditional Transition so its audit entry commits in the
// same transaction; pipeline triggers, notifications and archiving stay
// outside the transaction and are best-effort.
type Service struct {
	logger    *slog.Logger
	requests  repo.RequestRepository
	reminders repo.ReminderRepository
	audit     repo.AuditEventAppender
	catalog   *catalog.Service
	trigger   pipeline.Trigger
	notifier  notify.Notifier
	archiver  Archiver
	cfg       Config

	now   func() time.Time
	newID func() string
}

func New(logger *slog.Logger, requestRepo repo.RequestRepository, reminderRepo repo.ReminderRepository, auditAppender repo.AuditEventAppender, catalogSvc *catalog.Service, trigger pipeline.Trigger, notifier notify.Notifier, archiver Archiver, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Service{
		logger:    logger,
		requests:  requestRepo,
		reminders: reminderRepo,
		audit:     auditAppender,
		catalog:   catalogSvc,
		trigger:   trigger,
		notifier:  notifier,
		archiver:  archiver,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// SystemActor is used by the reconciler and sweeps when no human is acting.
var SystemActor = domain.Actor{Email: "system@stackport", Name: "stackport", IsApprover: true}

// CreateInput captures a new deploy request. TTLDays zero falls back to the
// catalog item's default; a default of zero means the deployment never
// expires.
type CreateInput struct {
	CatalogItemID string
	Params        domain.Params
	TTLDays       int
}

// Create validates the parameters against the catalog item, persists the
// request as pending approval together with its audit entry, then notifies
// approvers best-effort.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (domain.DeploymentRequest, error) {
	item, ok := s.catalog.ByID(in.CatalogItemID)
	if !ok {
		return domain.DeploymentRequest{}, guardf("unknown catalog item %q", in.CatalogItemID)
	}
	if in.TTLDays < 0 {
		return domain.DeploymentRequest{}, guardf("ttl days must not be negative")
	}

	params := applyDefaults(item, in.Params)
	if err := item.ValidateParams(params); err != nil {
		return domain.DeploymentRequest{}, fmt.Errorf("%w: %s", ErrGuard, err)
	}

	now := s.now()
	req := domain.DeploymentRequest{
		ID:             s.newID(),
		RequestType:    domain.RequestTypeDeploy,
		Status:         domain.StatusPendingApproval,
		CatalogItemID:  item.ID,
		Params:         params,
		Requester:      domain.Requester{Email: actor.Email, Name: actor.Name},
		ResourceHealth: domain.HealthUnknown,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if v, ok := params.Get("cost_center"); ok {
		req.CostCenter = v
	}
	if v, ok := params.Get("environment_type"); ok {
		req.EnvironmentType = v
	}
	if v, ok := params.Get("project_code"); ok {
		req.ProjectCode = v
	}
	ttlDays := in.TTLDays
	if ttlDays == 0 {
		ttlDays = item.DefaultTTLDays
	}
	if ttlDays > 0 {
		expires := now.AddDate(0, 0, ttlDays)
		req.ExpiresAt = &expires
	}
	if err := req.Validate(); err != nil {
		return domain.DeploymentRequest{}, fmt.Errorf("%w: %s", ErrGuard, err)
	}

	entry := s.auditEvent(actor.Email, domain.ActionRequestCreated, req.ID, domain.Metadata{
		"catalog_item_id": item.ID,
		"request_type":    string(req.RequestType),
	})
	if err := s.requests.Create(ctx, req, entry); err != nil {
		return domain.DeploymentRequest{}, err
	}

	s.notifyApprovers(ctx, req, item, "Approval requested",
		fmt.Sprintf("%s requested %s and is waiting for approval.", req.Requester.Email, item.Name))
	return req, nil
}

// Get returns a request visible to the actor. Requesters see their own
// requests; approvers see everything.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id string) (domain.DeploymentRequest, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return domain.DeploymentRequest{}, err
	}
	if !actor.IsApprover && !strings.EqualFold(req.Requester.Email, actor.Email) {
		return domain.DeploymentRequest{}, ErrForbidden
	}
	return req, nil
}

// ListMine returns the actor's own requests, newest first.
func (s *Service) ListMine(ctx context.Context, actor domain.Actor, limit int) ([]domain.DeploymentRequest, error) {
	return s.requests.List(ctx, repo.RequestFilter{RequesterEmail: actor.Email, Limit: limit})
}

// ListPending returns requests awaiting a decision. Approver-only.
func (s *Service) ListPending(ctx context.Context, actor domain.Actor, limit int) ([]domain.DeploymentRequest, error) {
	if !actor.IsApprover {
		return nil, ErrForbidden
	}
	return s.requests.List(ctx, repo.RequestFilter{Status: domain.StatusPendingApproval, Limit: limit})
}

// ApproveResult carries the request after an approval plus the trigger
// failure, if any. A failed trigger leaves the request approved; the
// approval itself has already committed.
type ApproveResult struct {
	Request    domain.DeploymentRequest
	TriggerErr error
}

// Approve records the decision and flips the request to approved in one
// transaction, then attempts to start the pipeline. The trigger is
// best-effort: its failure is audited and reported in the result, never as
// the operation's error.
func (s *Service) Approve(ctx context.Context, actor domain.Actor, requestID string) (ApproveResult, error) {
	if !actor.IsApprover {
		return ApproveResult{}, ErrForbidden
	}
	now := s.now()
	decision := &domain.Decision{Kind: domain.DecisionApproved, By: actor.Email, At: now}
	entry := s.auditEvent(actor.Email, domain.ActionRequestApproved, requestID, nil)
	approved, err := s.requests.Transition(ctx, repo.Transition{
		RequestID: requestID,
		From:      domain.StatusPendingApproval,
		To:        domain.StatusApproved,
		Decision:  decision,
		Now:       now,
	}, entry)
	if err != nil {
		return ApproveResult{}, err
	}

	result := s.startDeployment(ctx, actor, approved)

	item, _ := s.catalog.ByID(result.Request.CatalogItemID)
	s.notifyRequester(ctx, result.Request, item, "Request approved",
		fmt.Sprintf("Your request for %s was approved by %s.", displayName(item, result.Request), actor.Email))
	return result, nil
}

// Reject records the rejection with its mandatory reason. Terminal.
func (s *Service) Reject(ctx context.Context, actor domain.Actor, requestID, reason string) (domain.DeploymentRequest, error) {
	if !actor.IsApprover {
		return domain.DeploymentRequest{}, ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.DeploymentRequest{}, ErrEmptyReason
	}
	now := s.now()
	decision := &domain.Decision{Kind: domain.DecisionRejected, By: actor.Email, At: now, Reason: reason}
	entry := s.auditEvent(actor.Email, domain.ActionRequestRejected, requestID, domain.Metadata{"reason": reason})
	rejected, err := s.requests.Transition(ctx, repo.Transition{
		RequestID: requestID,
		From:      domain.StatusPendingApproval,
		To:        domain.StatusRejected,
		Decision:  decision,
		Now:       now,
	}, entry)
	if err != nil {
		return domain.DeploymentRequest{}, err
	}

	item, _ := s.catalog.ByID(rejected.CatalogItemID)
	s.notifyRequester(ctx, rejected, item, "Request rejected",
		fmt.Sprintf("Your request for %s was rejected by %s: %s", displayName(item, rejected), actor.Email, reason))
	return rejected, nil
}

// RetryTrigger re-attempts the pipeline trigger for a request that is
// approved but never started deploying. There is no automatic retry; this is
// the explicit operator action.
func (s *Service) RetryTrigger(ctx context.Context, actor domain.Actor, requestID string) (ApproveResult, error) {
	if !actor.IsApprover {
		return ApproveResult{}, ErrForbidden
	}
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return ApproveResult{}, err
	}
	if req.Status != domain.StatusApproved {
		return ApproveResult{}, guardf("request is %s, not approved", req.Status)
	}
	return s.startDeployment(ctx, actor, req), nil
}

// startDeployment runs the pipeline for an approved request and, on success,
// flips it to deploying with the build reference in the same transaction as
// the deployment.started audit entry. On failure the request stays approved
// and the failure is audited best-effort.
func (s *Service) startDeployment(ctx context.Context, actor domain.Actor, req domain.DeploymentRequest) ApproveResult {
	triggerFailed := func(cause error) ApproveResult {
		s.logger.Warn("pipeline trigger failed",
			"request_id", req.ID, "catalog_item_id", req.CatalogItemID, "error", cause.Error())
		entry := s.auditEvent(actor.Email, domain.ActionTriggerFailed, req.ID, domain.Metadata{"error": cause.Error()})
		if _, err := s.audit.Append(ctx, entry); err != nil {
			s.logger.Error("trigger failure audit append failed", "request_id", req.ID, "error", err.Error())
		}
		return ApproveResult{Request: req, TriggerErr: cause}
	}

	item, ok := s.catalog.ByID(req.CatalogItemID)
	if !ok {
		return triggerFailed(fmt.Errorf("catalog item %q no longer exists", req.CatalogItemID))
	}
	ref := pipeline.Ref{
		Project:    item.Pipeline.Project,
		PipelineID: item.Pipeline.PipelineID,
		Branch:     item.Pipeline.Branch,
		ModuleName: item.Pipeline.ModuleName,
	}
	build, err := s.trigger.Run(ctx, ref, req.Params.ToMap())
	if err != nil {
		return triggerFailed(err)
	}

	now := s.now()
	entry := s.auditEvent(actor.Email, domain.ActionDeployStarted, req.ID, domain.Metadata{
		"build_id":  build.ID,
		"build_url": build.URL,
	})
	deploying, err := s.requests.Transition(ctx, repo.Transition{
		RequestID: req.ID,
		From:      domain.StatusApproved,
		To:        domain.StatusDeploying,
		Pipeline:  &domain.PipelineRun{BuildID: build.ID, BuildURL: build.URL},
		Now:       now,
	}, entry)
	if err != nil {
		// The build is running but the row never left approved. Surface it
		// as a trigger failure so the operator retries once the store
		// recovers; the pipeline run itself is idempotent on the module.
		return triggerFailed(fmt.Errorf("record deployment start: %w", err))
	}
	return ApproveResult{Request: deploying}
}

// RecordPipelineResult finalizes a deploying request. Only approvers and the
// system reconciler may report results; a requester never finalizes a
// deployment. For a completed destroy the store writes the released lineage
// edge; the diagnostic output is archived to object storage best-effort.
func (s *Service) RecordPipelineResult(ctx context.Context, actor domain.Actor, requestID string, success bool, diagnostic string) (domain.DeploymentRequest, error) {
	if !actor.IsApprover {
		return domain.DeploymentRequest{}, ErrForbidden
	}
	to := domain.StatusFailed
	action := domain.ActionDeployFailed
	if success {
		to = domain.StatusCompleted
		action = domain.ActionDeployCompleted
	}
	now := s.now()
	entry := s.auditEvent(actor.Email, action, requestID, domain.Metadata{"success": success})
	updated, err := s.requests.Transition(ctx, repo.Transition{
		RequestID: requestID,
		From:      domain.StatusDeploying,
		To:        to,
		Output:    diagnostic,
		Now:       now,
	}, entry)
	if err != nil {
		return domain.DeploymentRequest{}, err
	}

	if success && updated.RequestType == domain.RequestTypeDestroy && updated.ParentRequestID != "" {
		release := s.auditEvent(actor.Email, domain.ActionResourcesReleased, updated.ParentRequestID, domain.Metadata{
			"destroy_request_id": updated.ID,
		})
		if _, err := s.audit.Append(ctx, release); err != nil {
			s.logger.Error("release audit append failed", "request_id", updated.ID, "error", err.Error())
		}
	}

	if s.archiver != nil && strings.TrimSpace(diagnostic) != "" {
		if err := s.archiver.Archive(ctx, updated.ID, diagnostic); err != nil {
			s.logger.Warn("diagnostic archive failed", "request_id", updated.ID, "error", err.Error())
		}
	}

	item, _ := s.catalog.ByID(updated.CatalogItemID)
	subject, body := resultNotification(updated, item, success)
	s.notifyRequester(ctx, updated, item, subject, body)
	return updated, nil
}

// RequestDestroy opens a destroy request against a completed deploy. The new
// request enters the same approval life-cycle as a deploy; its creation
// transaction also records the derives_from lineage edge.
func (s *Service) RequestDestroy(ctx context.Context, actor domain.Actor, parentID, reason string) (domain.DeploymentRequest, error) {
	parent, err := s.parentForChange(ctx, actor, parentID)
	if err != nil {
		return domain.DeploymentRequest{}, err
	}
	if !parent.CanDestroy() {
		return domain.DeploymentRequest{}, ErrNotCompletedDeploy
	}

	now := s.now()
	child := s.childOf(parent, actor, domain.RequestTypeDestroy, now)

	payload := domain.Metadata{"parent_request_id": parent.ID}
	if strings.TrimSpace(reason) != "" {
		payload["reason"] = strings.TrimSpace(reason)
	}
	entry := s.auditEvent(actor.Email, domain.ActionDestroyRequested, child.ID, payload)
	if err := s.requests.Create(ctx, child, entry); err != nil {
		return domain.DeploymentRequest{}, err
	}

	item, _ := s.catalog.ByID(child.CatalogItemID)
	s.notifyApprovers(ctx, child, item, "Destroy requested",
		fmt.Sprintf("%s requested teardown of %s.", actor.Email, displayName(item, child)))
	return child, nil
}

// RequestScale opens a scale request against a completed deploy. The target
// size is compared with the size resolved through lineage, not the size the
// parent was created with.
func (s *Service) RequestScale(ctx context.Context, actor domain.Actor, parentID, newSize, reason string) (domain.DeploymentRequest, error) {
	newSize = strings.TrimSpace(newSize)
	if newSize == "" {
		return domain.DeploymentRequest{}, guardf("scale request requires new size")
	}
	parent, err := s.parentForChange(ctx, actor, parentID)
	if err != nil {
		return domain.DeploymentRequest{}, err
	}
	if !parent.CanScale() {
		return domain.DeploymentRequest{}, ErrNotCompletedDeploy
	}
	current, err := s.currentSizeOf(ctx, parent)
	if err != nil {
		return domain.DeploymentRequest{}, err
	}
	if newSize == current {
		return domain.DeploymentRequest{}, ErrSameSize
	}

	now := s.now()
	child := s.childOf(parent, actor, domain.RequestTypeScale, now)
	child.Params = parent.Params.With("size", newSize)
	child.PreviousSize = current
	child.NewSize = newSize

	payload := domain.Metadata{
		"parent_request_id": parent.ID,
		"previous_size":     current,
		"new_size":          newSize,
	}
	if strings.TrimSpace(reason) != "" {
		payload["reason"] = strings.TrimSpace(reason)
	}
	entry := s.auditEvent(actor.Email, domain.ActionScaleRequested, child.ID, payload)
	if err := s.requests.Create(ctx, child, entry); err != nil {
		return domain.DeploymentRequest{}, err
	}

	item, _ := s.catalog.ByID(child.CatalogItemID)
	s.notifyApprovers(ctx, child, item, "Scale requested",
		fmt.Sprintf("%s requested scaling %s from %s to %s.", actor.Email, displayName(item, child), current, newSize))
	return child, nil
}

// parentForChange loads the parent and applies the shared destroy/scale
// guards: ownership and no competing pending child.
func (s *Service) parentForChange(ctx context.Context, actor domain.Actor, parentID string) (domain.DeploymentRequest, error) {
	parent, err := s.requests.Get(ctx, parentID)
	if err != nil {
		return domain.DeploymentRequest{}, err
	}
	if !actor.IsApprover && !strings.EqualFold(parent.Requester.Email, actor.Email) {
		return domain.DeploymentRequest{}, ErrForbidden
	}
	pending, err := s.requests.HasPendingChild(ctx, parent.ID)
	if err != nil {
		return domain.DeploymentRequest{}, err
	}
	if pending {
		return domain.DeploymentRequest{}, ErrPendingChild
	}
	return parent, nil
}

func (s *Service) childOf(parent domain.DeploymentRequest, actor domain.Actor, kind domain.RequestType, now time.Time) domain.DeploymentRequest {
	return domain.DeploymentRequest{
		ID:              s.newID(),
		RequestType:     kind,
		Status:          domain.StatusPendingApproval,
		CatalogItemID:   parent.CatalogItemID,
		Params:          parent.Params.Clone(),
		Requester:       domain.Requester{Email: actor.Email, Name: actor.Name},
		CostCenter:      parent.CostCenter,
		EnvironmentType: parent.EnvironmentType,
		ProjectCode:     parent.ProjectCode,
		ParentRequestID: parent.ID,
		ResourceHealth:  domain.HealthUnknown,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// CurrentSize resolves the effective size of a deployment through lineage:
// the newest completed scale wins, otherwise the deploy's own size parameter.
func (s *Service) CurrentSize(ctx context.Context, rootID string) (string, error) {
	root, err := s.requests.Get(ctx, rootID)
	if err != nil {
		return "", err
	}
	return s.currentSizeOf(ctx, root)
}

func (s *Service) currentSizeOf(ctx context.Context, root domain.DeploymentRequest) (string, error) {
	latest, err := s.requests.LatestCompletedScale(ctx, root.ID)
	switch {
	case err == nil:
		return latest.NewSize, nil
	case errors.Is(err, repo.ErrNotFound):
		size, _ := root.Params.Get("size")
		return size, nil
	default:
		return "", err
	}
}

// MarkExpirationWarned flips the one-way warning flag. It reports false
// without error when another sweep already flipped it; the audit entry is
// written only on the actual flip.
func (s *Service) MarkExpirationWarned(ctx context.Context, requestID string) (bool, error) {
	entry := s.auditEvent(SystemActor.Email, domain.ActionExpirationWarned, requestID, nil)
	return s.requests.MarkExpirationWarned(ctx, requestID, entry)
}

// RecordHealth overwrites the observed resource health of a completed
// deployment. Only approvers and system probes may report health; it never
// feeds back into the status machine.
func (s *Service) RecordHealth(ctx context.Context, actor domain.Actor, requestID string, health domain.ResourceHealth, details string) error {
	if !actor.IsApprover {
		return ErrForbidden
	}
	if !health.Valid() {
		return guardf("invalid resource health %q", health)
	}
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != domain.StatusCompleted {
		return guardf("health is recorded for completed requests only, request is %s", req.Status)
	}
	payload := domain.Metadata{"health": string(health)}
	if strings.TrimSpace(details) != "" {
		payload["details"] = strings.TrimSpace(details)
	}
	entry := s.auditEvent(actor.Email, domain.ActionHealthRecorded, requestID, payload)
	return s.requests.RecordHealth(ctx, requestID, health, s.now(), entry)
}

// WarnExpiring finds completed deploys entering the expiry window and warns
// their requesters once. Safe to run concurrently: the flag flip decides who
// notifies.
func (s *Service) WarnExpiring(ctx context.Context) error {
	now := s.now()
	expiring, err := s.requests.ListExpiring(ctx, now.Add(s.cfg.ExpiryWarnWindow), s.cfg.SweepBatchSize)
	if err != nil {
		return err
	}
	for _, req := range expiring {
		flipped, err := s.MarkExpirationWarned(ctx, req.ID)
		if err != nil {
			s.logger.Error("expiration warning flag update failed", "request_id", req.ID, "error", err.Error())
			continue
		}
		if !flipped {
			continue
		}
		item, _ := s.catalog.ByID(req.CatalogItemID)
		body := fmt.Sprintf("Your deployment of %s expires soon.", displayName(item, req))
		if req.ExpiresAt != nil {
			body = fmt.Sprintf("Your deployment of %s expires on %s.", displayName(item, req), req.ExpiresAt.Format("2006-01-02"))
		}
		s.notifyRequester(ctx, req, item, "Deployment expiring soon", body)
	}
	return nil
}

// SendApprovalReminders nudges approvers about requests pending longer than
// ReminderAfter, at most once per cool-down window. The reminder row is
// recorded only after the notification went out, so a failed send retries on
// the next sweep.
func (s *Service) SendApprovalReminders(ctx context.Context) error {
	now := s.now()
	pending, err := s.requests.ListPendingOlderThan(ctx, now.Add(-s.cfg.ReminderAfter), s.cfg.SweepBatchSize)
	if err != nil {
		return err
	}
	for _, req := range pending {
		last, sent, err := s.reminders.LastSentAt(ctx, req.ID)
		if err != nil {
			s.logger.Error("reminder lookup failed", "request_id", req.ID, "error", err.Error())
			continue
		}
		if sent && now.Sub(last) < s.cfg.ReminderCooldown {
			continue
		}

		item, _ := s.catalog.ByID(req.CatalogItemID)
		msg := s.message(req, item, "Approval reminder",
			fmt.Sprintf("Request by %s for %s is still waiting for approval.", req.Requester.Email, displayName(item, req)))
		msg.To = s.cfg.ApproverEmails
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("approval reminder send failed", "request_id", req.ID, "error", err.Error())
			continue
		}

		reminder := domain.ApprovalReminder{
			ID:        s.newID(),
			RequestID: req.ID,
			Channel:   s.cfg.ReminderChannel,
			SentAt:    now,
		}
		if err := s.reminders.Append(ctx, reminder); err != nil {
			s.logger.Error("reminder append failed", "request_id", req.ID, "error", err.Error())
			continue
		}
		entry := s.auditEvent(SystemActor.Email, domain.ActionReminderSent, req.ID, domain.Metadata{
			"channel": string(reminder.Channel),
		})
		if _, err := s.audit.Append(ctx, entry); err != nil {
			s.logger.Error("reminder audit append failed", "request_id", req.ID, "error", err.Error())
		}
	}
	return nil
}

// ReconcileDeploying polls the pipeline for every deploying request and
// finalizes the ones whose build reached a terminal state.
func (s *Service) ReconcileDeploying(ctx context.Context) error {
	deploying, err := s.requests.ListDeploying(ctx, s.cfg.SweepBatchSize)
	if err != nil {
		return err
	}
	for _, req := range deploying {
		if req.Pipeline == nil {
			continue
		}
		item, ok := s.catalog.ByID(req.CatalogItemID)
		if !ok {
			s.logger.Warn("deploying request references unknown catalog item",
				"request_id", req.ID, "catalog_item_id", req.CatalogItemID)
			continue
		}
		build, err := s.trigger.Status(ctx, item.Pipeline.Project, req.Pipeline.BuildID)
		if err != nil {
			s.logger.Warn("pipeline status poll failed",
				"request_id", req.ID, "build_id", req.Pipeline.BuildID, "error", err.Error())
			continue
		}
		if !build.Finished() {
			continue
		}
		diagnostic := fmt.Sprintf("build %d finished with result %s\n%s", build.ID, build.Result, build.URL)
		if _, err := s.RecordPipelineResult(ctx, SystemActor, req.ID, build.Succeeded(), diagnostic); err != nil {
			// ErrStatusConflict means another reconciler got there first.
			if !errors.Is(err, repo.ErrStatusConflict) {
				s.logger.Error("pipeline result record failed", "request_id", req.ID, "error", err.Error())
			}
		}
	}
	return nil
}

func (s *Service) auditEvent(actor, action, requestID string, payload domain.Metadata) domain.AuditEvent {
	return domain.AuditEvent{
		OccurredAt:   s.now(),
		Actor:        actor,
		Action:       action,
		ResourceType: "deployment_request",
		ResourceID:   requestID,
		RequestID:    requestID,
		Payload:      payload,
	}
}

func (s *Service) message(req domain.DeploymentRequest, item catalog.Item, subject, body string) notify.Message {
	facts := []notify.Fact{
		{Name: "Request", Value: req.ID},
		{Name: "Type", Value: string(req.RequestType)},
		{Name: "Status", Value: string(req.Status)},
	}
	if item.Name != "" {
		facts = append(facts, notify.Fact{Name: "Template", Value: item.Name})
	}
	msg := notify.Message{Subject: subject, Body: body, Facts: facts}
	if s.cfg.PortalBaseURL != "" {
		msg.LinkURL = strings.TrimRight(s.cfg.PortalBaseURL, "/") + "/requests/" + req.ID
	}
	return msg
}

func (s *Service) notifyApprovers(ctx context.Context, req domain.DeploymentRequest, item catalog.Item, subject, body string) {
	msg := s.message(req, item, subject, body)
	msg.To = s.cfg.ApproverEmails
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("approver notification failed", "request_id", req.ID, "error", err.Error())
	}
}

func (s *Service) notifyRequester(ctx context.Context, req domain.DeploymentRequest, item catalog.Item, subject, body string) {
	msg := s.message(req, item, subject, body)
	msg.To = []string{req.Requester.Email}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("requester notification failed", "request_id", req.ID, "error", err.Error())
	}
}

func resultNotification(req domain.DeploymentRequest, item catalog.Item, success bool) (string, string) {
	name := displayName(item, req)
	if success {
		switch req.RequestType {
		case domain.RequestTypeDestroy:
			return "Teardown completed", fmt.Sprintf("Teardown of %s completed.", name)
		case domain.RequestTypeScale:
			return "Scale completed", fmt.Sprintf("Scaling of %s to %s completed.", name, req.NewSize)
		default:
			return "Deployment completed", fmt.Sprintf("Your deployment of %s is ready.", name)
		}
	}
	return "Deployment failed", fmt.Sprintf("The pipeline for %s failed. The diagnostic output is attached to the request.", name)
}

func displayName(item catalog.Item, req domain.DeploymentRequest) string {
	if item.Name != "" {
		return item.Name
	}
	return req.CatalogItemID
}

// applyDefaults fills parameters the requester omitted with the catalog
// defaults. Submitted values always win; submitted order is preserved.
func applyDefaults(item catalog.Item, params domain.Params) domain.Params {
	out := params.Clone()
	for _, def := range item.Parameters {
		if _, ok := out.Get(def.Name); ok {
			continue
		}
		if strings.TrimSpace(def.Default) == "" {
			continue
		}
		out = append(out, domain.Param{Name: def.Name, Value: def.Default})
	}
	return out
}
