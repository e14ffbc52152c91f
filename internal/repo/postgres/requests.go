package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/stackport-labs/stackport-go/internal/domain"
	"github.com/stackport-labs/stackport-go/internal/platform/lineageevent"
	"github.com/stackport-labs/stackport-go/internal/repo"
)

// RequestStore persists deployment requests. Mutations run in a single
// transaction together with their audit entry and any lineage edge, so a
// request row never changes without its audit record.
type RequestStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewRequestStore(db *sql.DB) *RequestStore {
	if db == nil {
		return nil
	}
	return &RequestStore{db: db, now: time.Now}
}

const requestColumns = `request_id, request_type, status, catalog_item_id, params,
	requester_email, requester_name, cost_center, environment_type, project_code,
	parent_request_id, previous_size, new_size,
	decision_kind, decision_by, decision_at, decision_reason,
	build_id, build_url, output,
	expires_at, expiration_warning_sent, resource_health, health_checked_at,
	created_at, updated_at`

func (s *RequestStore) Create(ctx context.Context, request domain.DeploymentRequest, entry domain.AuditEvent) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("request store not initialized")
	}
	if err := request.Validate(); err != nil {
		return err
	}
	paramsJSON, err := encodeParams(request.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	createdAt := normalizeTime(request.CreatedAt)
	updatedAt := normalizeTime(request.UpdatedAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO deployment_requests (
			request_id,
			request_type,
			status,
			catalog_item_id,
			params,
			requester_email,
			requester_name,
			cost_center,
			environment_type,
			project_code,
			parent_request_id,
			previous_size,
			new_size,
			output,
			expires_at,
			expiration_warning_sent,
			resource_health,
			health_checked_at,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		strings.TrimSpace(request.ID),
		string(request.RequestType),
		string(request.Status),
		strings.TrimSpace(request.CatalogItemID),
		paramsJSON,
		strings.TrimSpace(request.Requester.Email),
		strings.TrimSpace(request.Requester.Name),
		nullIfEmpty(request.CostCenter),
		nullIfEmpty(request.EnvironmentType),
		nullIfEmpty(request.ProjectCode),
		nullIfEmpty(request.ParentRequestID),
		nullIfEmpty(request.PreviousSize),
		nullIfEmpty(request.NewSize),
		request.Output,
		nullTime(request.ExpiresAt),
		request.ExpirationWarningSent,
		string(request.ResourceHealth),
		nullTime(request.HealthCheckedAt),
		createdAt,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}

	if strings.TrimSpace(request.ParentRequestID) != "" {
		_, err = lineageevent.Insert(ctx, tx, lineageevent.Event{
			OccurredAt:  createdAt,
			Actor:       request.Requester.Email,
			RequestID:   entry.RequestID,
			SubjectType: lineageevent.SubjectRequest,
			SubjectID:   request.ID,
			Predicate:   lineageevent.PredicateDerivesFrom,
			ObjectType:  lineageevent.SubjectRequest,
			ObjectID:    request.ParentRequestID,
			Metadata:    map[string]any{"request_type": string(request.RequestType)},
		})
		if err != nil {
			return err
		}
	}

	if _, err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *RequestStore) Get(ctx context.Context, id string) (domain.DeploymentRequest, error) {
	if s == nil || s.db == nil {
		return domain.DeploymentRequest{}, fmt.Errorf("request store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.DeploymentRequest{}, fmt.Errorf("request id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+requestColumns+` FROM deployment_requests WHERE request_id = $1`,
		id,
	)
	return scanRequest(row)
}

func (s *RequestStore) List(ctx context.Context, filter repo.RequestFilter) ([]domain.DeploymentRequest, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("request store not initialized")
	}
	clauses := make([]string, 0, 5)
	args := make([]any, 0, 6)

	if strings.TrimSpace(string(filter.Status)) != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if strings.TrimSpace(string(filter.RequestType)) != "" {
		args = append(args, string(filter.RequestType))
		clauses = append(clauses, fmt.Sprintf("request_type = $%d", len(args)))
	}
	if strings.TrimSpace(filter.RequesterEmail) != "" {
		args = append(args, strings.TrimSpace(filter.RequesterEmail))
		clauses = append(clauses, fmt.Sprintf("requester_email = $%d", len(args)))
	}
	if strings.TrimSpace(filter.CatalogItemID) != "" {
		args = append(args, strings.TrimSpace(filter.CatalogItemID))
		clauses = append(clauses, fmt.Sprintf("catalog_item_id = $%d", len(args)))
	}
	if strings.TrimSpace(filter.ParentRequestID) != "" {
		args = append(args, strings.TrimSpace(filter.ParentRequestID))
		clauses = append(clauses, fmt.Sprintf("parent_request_id = $%d", len(args)))
	}

	query := `SELECT ` + requestColumns + ` FROM deployment_requests`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return s.queryRequests(ctx, query, args...)
}

func (s *RequestStore) Transition(ctx context.Context, t repo.Transition, entry domain.AuditEvent) (domain.DeploymentRequest, error) {
	if s == nil || s.db == nil {
		return domain.DeploymentRequest{}, fmt.Errorf("request store not initialized")
	}
	id := strings.TrimSpace(t.RequestID)
	if id == "" {
		return domain.DeploymentRequest{}, fmt.Errorf("request id is required")
	}
	if err := domain.ValidateTransition(t.From, t.To); err != nil {
		return domain.DeploymentRequest{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.DeploymentRequest{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(
		ctx,
		`SELECT `+requestColumns+` FROM deployment_requests WHERE request_id = $1 FOR UPDATE`,
		id,
	)
	current, err := scanRequest(row)
	if err != nil {
		return domain.DeploymentRequest{}, err
	}
	if current.Status != t.From {
		return domain.DeploymentRequest{}, repo.ErrStatusConflict
	}

	updated := current
	updated.Status = t.To
	if t.Decision != nil {
		updated.Decision = t.Decision
	}
	if t.Pipeline != nil {
		updated.Pipeline = t.Pipeline
	}
	if strings.TrimSpace(t.Output) != "" {
		updated.Output = t.Output
	}
	now := t.Now
	if now.IsZero() {
		now = s.now()
	}
	updated.UpdatedAt = now.UTC()

	if err := domain.EnsureRequestImmutable(current, updated); err != nil {
		return domain.DeploymentRequest{}, err
	}

	var decisionKind, decisionBy, decisionReason sql.NullString
	var decisionAt sql.NullTime
	if updated.Decision != nil {
		decisionKind = nullIfEmpty(string(updated.Decision.Kind))
		decisionBy = nullIfEmpty(updated.Decision.By)
		decisionReason = nullIfEmpty(updated.Decision.Reason)
		decisionAt = sql.NullTime{Time: updated.Decision.At.UTC(), Valid: true}
	}
	var buildID sql.NullInt64
	var buildURL sql.NullString
	if updated.Pipeline != nil {
		buildID = sql.NullInt64{Int64: updated.Pipeline.BuildID, Valid: true}
		buildURL = nullIfEmpty(updated.Pipeline.BuildURL)
	}

	res, err := tx.ExecContext(
		ctx,
		`UPDATE deployment_requests SET
			status = $1,
			decision_kind = $2,
			decision_by = $3,
			decision_at = $4,
			decision_reason = $5,
			build_id = $6,
			build_url = $7,
			output = $8,
			updated_at = $9
		WHERE request_id = $10 AND status = $11`,
		string(updated.Status),
		decisionKind,
		decisionBy,
		decisionAt,
		decisionReason,
		buildID,
		buildURL,
		updated.Output,
		updated.UpdatedAt,
		id,
		string(t.From),
	)
	if err != nil {
		return domain.DeploymentRequest{}, fmt.Errorf("update request status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return domain.DeploymentRequest{}, fmt.Errorf("update request status: %w", err)
	}
	if rows == 0 {
		return domain.DeploymentRequest{}, repo.ErrStatusConflict
	}

	// A completed destroy releases the resources of its parent deploy.
	if updated.Status == domain.StatusCompleted && updated.RequestType == domain.RequestTypeDestroy {
		_, err = lineageevent.Insert(ctx, tx, lineageevent.Event{
			OccurredAt:  updated.UpdatedAt,
			Actor:       entry.Actor,
			RequestID:   entry.RequestID,
			SubjectType: lineageevent.SubjectRequest,
			SubjectID:   updated.ID,
			Predicate:   lineageevent.PredicateReleased,
			ObjectType:  lineageevent.SubjectRequest,
			ObjectID:    updated.ParentRequestID,
		})
		if err != nil {
			return domain.DeploymentRequest{}, err
		}
	}

	if _, err := insertAudit(ctx, tx, entry); err != nil {
		return domain.DeploymentRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DeploymentRequest{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func (s *RequestStore) LatestCompletedScale(ctx context.Context, parentID string) (domain.DeploymentRequest, error) {
	if s == nil || s.db == nil {
		return domain.DeploymentRequest{}, fmt.Errorf("request store not initialized")
	}
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return domain.DeploymentRequest{}, fmt.Errorf("parent request id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+requestColumns+` FROM deployment_requests
		 WHERE parent_request_id = $1 AND request_type = $2 AND status = $3
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		parentID,
		string(domain.RequestTypeScale),
		string(domain.StatusCompleted),
	)
	return scanRequest(row)
}

func (s *RequestStore) HasPendingChild(ctx context.Context, parentID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("request store not initialized")
	}
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return false, fmt.Errorf("parent request id is required")
	}
	var exists bool
	err := s.db.QueryRowContext(
		ctx,
		`SELECT EXISTS (
			SELECT 1 FROM deployment_requests
			WHERE parent_request_id = $1 AND status NOT IN ($2, $3, $4)
		)`,
		parentID,
		string(domain.StatusRejected),
		string(domain.StatusCompleted),
		string(domain.StatusFailed),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pending child lookup: %w", err)
	}
	return exists, nil
}

func (s *RequestStore) MarkExpirationWarned(ctx context.Context, id string, entry domain.AuditEvent) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("request store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("request id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`UPDATE deployment_requests
		 SET expiration_warning_sent = TRUE, updated_at = $1
		 WHERE request_id = $2 AND expiration_warning_sent = FALSE`,
		s.now().UTC(),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("mark expiration warned: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark expiration warned: %w", err)
	}
	if rows == 0 {
		var alreadyWarned bool
		err := tx.QueryRowContext(
			ctx,
			`SELECT expiration_warning_sent FROM deployment_requests WHERE request_id = $1`,
			id,
		).Scan(&alreadyWarned)
		if err != nil {
			return false, handleNotFound(err)
		}
		return false, nil
	}

	if _, err := insertAudit(ctx, tx, entry); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (s *RequestStore) RecordHealth(ctx context.Context, id string, health domain.ResourceHealth, checkedAt time.Time, entry domain.AuditEvent) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("request store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("request id is required")
	}
	if !health.Valid() {
		return fmt.Errorf("invalid resource health %q", health)
	}
	checkedAt = normalizeTime(checkedAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`UPDATE deployment_requests
		 SET resource_health = $1, health_checked_at = $2, updated_at = $2
		 WHERE request_id = $3`,
		string(health),
		checkedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("record health: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record health: %w", err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}

	if _, err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *RequestStore) ListExpiring(ctx context.Context, before time.Time, limit int) ([]domain.DeploymentRequest, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("request store not initialized")
	}
	query := `SELECT ` + requestColumns + ` FROM deployment_requests
		WHERE status = $1 AND request_type = $2
		  AND expires_at IS NOT NULL AND expires_at <= $3
		  AND expiration_warning_sent = FALSE
		ORDER BY expires_at ASC`
	args := []any{string(domain.StatusCompleted), string(domain.RequestTypeDeploy), before.UTC()}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.queryRequests(ctx, query, args...)
}

func (s *RequestStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.DeploymentRequest, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("request store not initialized")
	}
	query := `SELECT ` + requestColumns + ` FROM deployment_requests
		WHERE status = $1 AND created_at <= $2
		ORDER BY created_at ASC`
	args := []any{string(domain.StatusPendingApproval), cutoff.UTC()}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.queryRequests(ctx, query, args...)
}

func (s *RequestStore) ListDeploying(ctx context.Context, limit int) ([]domain.DeploymentRequest, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("request store not initialized")
	}
	query := `SELECT ` + requestColumns + ` FROM deployment_requests
		WHERE status = $1
		ORDER BY updated_at ASC`
	args := []any{string(domain.StatusDeploying)}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.queryRequests(ctx, query, args...)
}

func (s *RequestStore) queryRequests(ctx context.Context, query string, args ...any) ([]domain.DeploymentRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	requests := make([]domain.DeploymentRequest, 0)
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (domain.DeploymentRequest, error) {
	var (
		request                                  domain.DeploymentRequest
		paramsJSON                               []byte
		costCenter, environmentType, projectCode sql.NullString
		parentID, previousSize, newSize          sql.NullString
		decisionKind, decisionBy, decisionReason sql.NullString
		decisionAt                               sql.NullTime
		buildID                                  sql.NullInt64
		buildURL                                 sql.NullString
		expiresAt, healthCheckedAt               sql.NullTime
	)
	err := row.Scan(
		&request.ID,
		&request.RequestType,
		&request.Status,
		&request.CatalogItemID,
		&paramsJSON,
		&request.Requester.Email,
		&request.Requester.Name,
		&costCenter,
		&environmentType,
		&projectCode,
		&parentID,
		&previousSize,
		&newSize,
		&decisionKind,
		&decisionBy,
		&decisionAt,
		&decisionReason,
		&buildID,
		&buildURL,
		&request.Output,
		&expiresAt,
		&request.ExpirationWarningSent,
		&request.ResourceHealth,
		&healthCheckedAt,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return domain.DeploymentRequest{}, handleNotFound(err)
	}

	params, err := decodeParams(paramsJSON)
	if err != nil {
		return domain.DeploymentRequest{}, fmt.Errorf("decode params: %w", err)
	}
	request.Params = params
	request.CostCenter = costCenter.String
	request.EnvironmentType = environmentType.String
	request.ProjectCode = projectCode.String
	request.ParentRequestID = parentID.String
	request.PreviousSize = previousSize.String
	request.NewSize = newSize.String

	if decisionKind.Valid {
		request.Decision = &domain.Decision{
			Kind:   domain.DecisionKind(decisionKind.String),
			By:     decisionBy.String,
			Reason: decisionReason.String,
		}
		if decisionAt.Valid {
			request.Decision.At = decisionAt.Time
		}
	}
	if buildID.Valid {
		request.Pipeline = &domain.PipelineRun{
			BuildID:  buildID.Int64,
			BuildURL: buildURL.String,
		}
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		request.ExpiresAt = &t
	}
	if healthCheckedAt.Valid {
		t := healthCheckedAt.Time
		request.HealthCheckedAt = &t
	}
	return request, nil
}
