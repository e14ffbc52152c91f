package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stackport-labs/stackport-go/internal/catalog"
	"github.com/stackport-labs/stackport-go/internal/domain"
	"github.com/stackport-labs/stackport-go/internal/platform/auth"
	"github.com/stackport-labs/stackport-go/internal/repo"
	"github.com/stackport-labs/stackport-go/internal/service/requests"
)

// lifecycleService is the slice of the engine the portal handlers use.
type lifecycleService interface {
	Create(ctx context.Context, actor domain.Actor, in requests.CreateInput) (domain.DeploymentRequest, error)
	Get(ctx context.Context, actor domain.Actor, id string) (domain.DeploymentRequest, error)
	ListMine(ctx context.Context, actor domain.Actor, limit int) ([]domain.DeploymentRequest, error)
	ListPending(ctx context.Context, actor domain.Actor, limit int) ([]domain.DeploymentRequest, error)
	Approve(ctx context.Context, actor domain.Actor, requestID string) (requests.ApproveResult, error)
	Reject(ctx context.Context, actor domain.Actor, requestID, reason string) (domain.DeploymentRequest, error)
	RetryTrigger(ctx context.Context, actor domain.Actor, requestID string) (requests.ApproveResult, error)
	RecordPipelineResult(ctx context.Context, actor domain.Actor, requestID string, success bool, diagnostic string) (domain.DeploymentRequest, error)
	RequestDestroy(ctx context.Context, actor domain.Actor, parentID, reason string) (domain.DeploymentRequest, error)
	RequestScale(ctx context.Context, actor domain.Actor, parentID, newSize, reason string) (domain.DeploymentRequest, error)
	CurrentSize(ctx context.Context, rootID string) (string, error)
	RecordHealth(ctx context.Context, actor domain.Actor, requestID string, health domain.ResourceHealth, details string) error
}

type portalAPI struct {
	logger  *slog.Logger
	svc     lifecycleService
	catalog *catalog.Service
}

func newPortalAPI(logger *slog.Logger, svc lifecycleService, cat *catalog.Service) *portalAPI {
	return &portalAPI{logger: logger, svc: svc, catalog: cat}
}

func (api *portalAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /requests", api.handleCreateRequest)
	mux.HandleFunc("GET /requests", api.handleListMine)
	mux.HandleFunc("GET /requests/{id}", api.handleGetRequest)
	mux.HandleFunc("GET /requests/{id}/size", api.handleCurrentSize)
	mux.HandleFunc("POST /requests/{id}/destroy", api.handleDestroy)
	mux.HandleFunc("POST /requests/{id}/scale", api.handleScale)

	mux.HandleFunc("GET /approvals/pending", api.handleListPending)
	mux.HandleFunc("POST /requests/{id}/approve", api.handleApprove)
	mux.HandleFunc("POST /requests/{id}/reject", api.handleReject)
	mux.HandleFunc("POST /requests/{id}/retry-trigger", api.handleRetryTrigger)

	mux.HandleFunc("POST /requests/{id}/result", api.handlePipelineResult)
	mux.HandleFunc("POST /requests/{id}/health", api.handleRecordHealth)

	mux.HandleFunc("GET /catalog", api.handleListCatalog)
	mux.HandleFunc("GET /catalog/{item_id}", api.handleGetCatalogItem)
}

func (api *portalAPI) actor(r *http.Request) (domain.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return domain.Actor{}, false
	}
	return domain.Actor{
		Email:      identity.Email,
		Name:       identity.Name,
		IsApprover: identity.IsApprover(),
	}, true
}

// requestResponse is the wire shape of a deployment request. Decision fields
// stay split by kind so approver and rejector identity never blur.
type requestResponse struct {
	ID              string         `json:"id"`
	RequestType     string         `json:"request_type"`
	Status          string         `json:"status"`
	CatalogItemID   string         `json:"catalog_item_id"`
	Params          domain.Params  `json:"params"`
	RequesterEmail  string         `json:"requester_email"`
	RequesterName   string         `json:"requester_name,omitempty"`
	CostCenter      string         `json:"cost_center,omitempty"`
	EnvironmentType string         `json:"environment_type,omitempty"`
	ProjectCode     string         `json:"project_code,omitempty"`
	ParentRequestID string         `json:"parent_request_id,omitempty"`
	PreviousSize    string         `json:"previous_size,omitempty"`
	NewSize         string         `json:"new_size,omitempty"`
	Decision        *decisionBody  `json:"decision,omitempty"`
	Build           *buildBody     `json:"build,omitempty"`
	Output          string         `json:"output,omitempty"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`
	ExpirationWarn  bool           `json:"expiration_warning_sent"`
	ResourceHealth  string         `json:"resource_health"`
	HealthCheckedAt *time.Time     `json:"health_checked_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	TriggerError    string         `json:"trigger_error,omitempty"`
}

type decisionBody struct {
	Kind   string    `json:"kind"`
	By     string    `json:"by"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

type buildBody struct {
	ID  int64  `json:"id"`
	URL string `json:"url,omitempty"`
}

func toRequestResponse(req domain.DeploymentRequest) requestResponse {
	out := requestResponse{
		ID:              req.ID,
		RequestType:     string(req.RequestType),
		Status:          string(req.Status),
		CatalogItemID:   req.CatalogItemID,
		Params:          req.Params,
		RequesterEmail:  req.Requester.Email,
		RequesterName:   req.Requester.Name,
		CostCenter:      req.CostCenter,
		EnvironmentType: req.EnvironmentType,
		ProjectCode:     req.ProjectCode,
		ParentRequestID: req.ParentRequestID,
		PreviousSize:    req.PreviousSize,
		NewSize:         req.NewSize,
		Output:          req.Output,
		ExpiresAt:       req.ExpiresAt,
		ExpirationWarn:  req.ExpirationWarningSent,
		ResourceHealth:  string(req.ResourceHealth),
		HealthCheckedAt: req.HealthCheckedAt,
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
	}
	if req.Decision != nil {
		out.Decision = &decisionBody{
			Kind:   string(req.Decision.Kind),
			By:     req.Decision.By,
			At:     req.Decision.At,
			Reason: req.Decision.Reason,
		}
	}
	if req.Pipeline != nil {
		out.Build = &buildBody{ID: req.Pipeline.BuildID, URL: req.Pipeline.BuildURL}
	}
	return out
}

// writeServiceError maps the engine's error taxonomy onto HTTP statuses:
// guard violations are 422, conditional-update losses 409, the rest as named.
func (api *portalAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, requests.ErrForbidden) || errors.Is(err, auth.ErrForbidden):
		api.writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, repo.ErrNotFound):
		api.writeError(w, r, http.StatusNotFound, "not_found")
	case errors.Is(err, repo.ErrStatusConflict):
		api.writeError(w, r, http.StatusConflict, "status_conflict")
	case errors.Is(err, domain.ErrInvalidTransition):
		api.writeError(w, r, http.StatusConflict, "invalid_transition")
	case errors.Is(err, requests.ErrGuard):
		api.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "guard_violation",
			"detail":     err.Error(),
			"request_id": r.Header.Get("X-Request-Id"),
		})
	default:
		api.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func (api *portalAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *portalAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return errors.New("multiple JSON values")
	}
	return nil
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func clampInt(v int, min int, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
