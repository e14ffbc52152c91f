package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stackport-labs/stackport-go/internal/catalog"
	"github.com/stackport-labs/stackport-go/internal/domain"
	"github.com/stackport-labs/stackport-go/internal/platform/auth"
	"github.com/stackport-labs/stackport-go/internal/repo"
	"github.com/stackport-labs/stackport-go/internal/service/requests"
)

type fakeService struct {
	createFn  func(ctx context.Context, actor domain.Actor, in requests.CreateInput) (domain.DeploymentRequest, error)
	getFn     func(ctx context.Context, actor domain.Actor, id string) (domain.DeploymentRequest, error)
	approveFn func(ctx context.Context, actor domain.Actor, requestID string) (requests.ApproveResult, error)
	rejectFn  func(ctx context.Context, actor domain.Actor, requestID, reason string) (domain.DeploymentRequest, error)
	destroyFn func(ctx context.Context, actor domain.Actor, parentID, reason string) (domain.DeploymentRequest, error)
	healthFn  func(ctx context.Context, actor domain.Actor, requestID string, health domain.ResourceHealth, details string) error
}

func (f *fakeService) Create(ctx context.Context, actor domain.Actor, in requests.CreateInput) (domain.DeploymentRequest, error) {
	return f.createFn(ctx, actor, in)
}

func (f *fakeService) Get(ctx context.Context, actor domain.Actor, id string) (domain.DeploymentRequest, error) {
	return f.getFn(ctx, actor, id)
}

func (f *fakeService) ListMine(ctx context.Context, actor domain.Actor, limit int) ([]domain.DeploymentRequest, error) {
	return nil, nil
}

func (f *fakeService) ListPending(ctx context.Context, actor domain.Actor, limit int) ([]domain.DeploymentRequest, error) {
	return nil, nil
}

func (f *fakeService) Approve(ctx context.Context, actor domain.Actor, requestID string) (requests.ApproveResult, error) {
	return f.approveFn(ctx, actor, requestID)
}

func (f *fakeService) Reject(ctx context.Context, actor domain.Actor, requestID, reason string) (domain.DeploymentRequest, error) {
	return f.rejectFn(ctx, actor, requestID, reason)
}

func (f *fakeService) RetryTrigger(ctx context.Context, actor domain.Actor, requestID string) (requests.ApproveResult, error) {
	return requests.ApproveResult{}, nil
}

func (f *fakeService) RecordPipelineResult(ctx context.Context, actor domain.Actor, requestID string, success bool, diagnostic string) (domain.DeploymentRequest, error) {
	return domain.DeploymentRequest{}, nil
}

func (f *fakeService) RequestDestroy(ctx context.Context, actor domain.Actor, parentID, reason string) (domain.DeploymentRequest, error) {
	return f.destroyFn(ctx, actor, parentID, reason)
}

func (f *fakeService) RequestScale(ctx context.Context, actor domain.Actor, parentID, newSize, reason string) (domain.DeploymentRequest, error) {
	return domain.DeploymentRequest{}, nil
}

func (f *fakeService) CurrentSize(ctx context.Context, rootID string) (string, error) {
	return "small", nil
}

func (f *fakeService) RecordHealth(ctx context.Context, actor domain.Actor, requestID string, health domain.ResourceHealth, details string) error {
	return f.healthFn(ctx, actor, requestID, health, details)
}

const portalTestItemYAML = `id: vm-linux
name: Linux VM
parameters:
  - name: size
    type: select
    options: [small, large]
pipeline:
  project: infra
  pipeline_id: 7
`

func newTestHandler(t *testing.T, svc lifecycleService, identity *auth.Identity) http.Handler {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "vm-linux.yaml"), []byte(portalTestItemYAML), 0o600); err != nil {
		t.Fatalf("write catalog item: %v", err)
	}
	cat := catalog.NewService(dir)
	if err := cat.Load(); err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mux := http.NewServeMux()
	newPortalAPI(logger, svc, cat).register(mux)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity != nil {
			r = r.WithContext(auth.ContextWithIdentity(r.Context(), *identity))
		}
		mux.ServeHTTP(w, r)
	})
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var requesterIdentity = auth.Identity{Subject: "dev", Email: "dev@example.com", Name: "Dev", Roles: []string{auth.RoleRequester}}
var approverIdentity = auth.Identity{Subject: "ops", Email: "ops@example.com", Name: "Ops", Roles: []string{auth.RoleApprover}}

func TestCreateRequest_Created(t *testing.T) {
	svc := &fakeService{
		createFn: func(ctx context.Context, actor domain.Actor, in requests.CreateInput) (domain.DeploymentRequest, error) {
			if actor.Email != "dev@example.com" {
				t.Errorf("actor=%+v", actor)
			}
			if in.CatalogItemID != "vm-linux" {
				t.Errorf("catalog item=%q", in.CatalogItemID)
			}
			return domain.DeploymentRequest{
				ID:            "req-1",
				RequestType:   domain.RequestTypeDeploy,
				Status:        domain.StatusPendingApproval,
				CatalogItemID: in.CatalogItemID,
				Params:        in.Params,
				Requester:     domain.Requester{Email: actor.Email},
			}, nil
		},
	}
	h := newTestHandler(t, svc, &requesterIdentity)

	rec := doJSON(t, h, http.MethodPost, "/requests",
		`{"catalog_item_id": "vm-linux", "params": [{"name": "size", "value": "small"}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp requestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "req-1" || resp.Status != "pending_approval" {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestCreateRequest_RequiresIdentity(t *testing.T) {
	h := newTestHandler(t, &fakeService{}, nil)
	rec := doJSON(t, h, http.MethodPost, "/requests", `{"catalog_item_id": "vm-linux"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestCreateRequest_GuardViolationIs422(t *testing.T) {
	svc := &fakeService{
		createFn: func(ctx context.Context, actor domain.Actor, in requests.CreateInput) (domain.DeploymentRequest, error) {
			return domain.DeploymentRequest{}, requests.ErrPendingChild
		},
	}
	h := newTestHandler(t, svc, &requesterIdentity)
	rec := doJSON(t, h, http.MethodPost, "/requests", `{"catalog_item_id": "vm-linux"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "guard_violation") {
		t.Fatalf("body=%s", rec.Body.String())
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", repo.ErrNotFound, http.StatusNotFound},
		{"forbidden", requests.ErrForbidden, http.StatusForbidden},
		{"status conflict", repo.ErrStatusConflict, http.StatusConflict},
		{"invalid transition", domain.ErrInvalidTransition, http.StatusConflict},
		{"guard", requests.ErrSameSize, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{
				getFn: func(ctx context.Context, actor domain.Actor, id string) (domain.DeploymentRequest, error) {
					return domain.DeploymentRequest{}, tc.err
				},
			}
			h := newTestHandler(t, svc, &requesterIdentity)
			rec := doJSON(t, h, http.MethodGet, "/requests/req-1", "")
			if rec.Code != tc.want {
				t.Fatalf("status=%d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestApprove_ReportsTriggerFailure(t *testing.T) {
	svc := &fakeService{
		approveFn: func(ctx context.Context, actor domain.Actor, requestID string) (requests.ApproveResult, error) {
			return requests.ApproveResult{
				Request: domain.DeploymentRequest{
					ID:          requestID,
					RequestType: domain.RequestTypeDeploy,
					Status:      domain.StatusApproved,
				},
				TriggerErr: context.DeadlineExceeded,
			}, nil
		},
	}
	h := newTestHandler(t, svc, &approverIdentity)

	rec := doJSON(t, h, http.MethodPost, "/requests/req-1/approve", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp requestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "approved" {
		t.Fatalf("status=%q, approval must survive a failed trigger", resp.Status)
	}
	if resp.TriggerError == "" {
		t.Fatal("expected trigger_error in response")
	}
}

func TestReject_PassesReason(t *testing.T) {
	var gotReason string
	svc := &fakeService{
		rejectFn: func(ctx context.Context, actor domain.Actor, requestID, reason string) (domain.DeploymentRequest, error) {
			gotReason = reason
			return domain.DeploymentRequest{ID: requestID, Status: domain.StatusRejected}, nil
		},
	}
	h := newTestHandler(t, svc, &approverIdentity)

	rec := doJSON(t, h, http.MethodPost, "/requests/req-1/reject", `{"reason": "budget freeze"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if gotReason != "budget freeze" {
		t.Fatalf("reason=%q", gotReason)
	}
}

func TestDestroy_ReturnsChild(t *testing.T) {
	svc := &fakeService{
		destroyFn: func(ctx context.Context, actor domain.Actor, parentID, reason string) (domain.DeploymentRequest, error) {
			return domain.DeploymentRequest{
				ID:              "req-2",
				RequestType:     domain.RequestTypeDestroy,
				Status:          domain.StatusPendingApproval,
				ParentRequestID: parentID,
			}, nil
		},
	}
	h := newTestHandler(t, svc, &requesterIdentity)

	rec := doJSON(t, h, http.MethodPost, "/requests/req-1/destroy", `{"reason": "done with it"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp requestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ParentRequestID != "req-1" || resp.RequestType != "destroy" {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestRecordHealth_NormalizesValue(t *testing.T) {
	var gotHealth domain.ResourceHealth
	svc := &fakeService{
		healthFn: func(ctx context.Context, actor domain.Actor, requestID string, health domain.ResourceHealth, details string) error {
			gotHealth = health
			return nil
		},
	}
	h := newTestHandler(t, svc, &approverIdentity)

	rec := doJSON(t, h, http.MethodPost, "/requests/req-1/health", `{"health": "  Degraded "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if gotHealth != domain.HealthDegraded {
		t.Fatalf("health=%q", gotHealth)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	h := newTestHandler(t, &fakeService{}, &requesterIdentity)

	rec := doJSON(t, h, http.MethodGet, "/catalog", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "vm-linux") {
		t.Fatalf("body=%s", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/catalog/vm-linux", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/catalog/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
}
