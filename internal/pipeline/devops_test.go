package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*DevOpsClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewDevOpsClient(Config{OrgURL: srv.URL, PAT: "secret", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewDevOpsClient() err=%v", err)
	}
	return client, srv
}

func TestRun_TriggersPipeline(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 991, "state": "inProgress", "_links": {"web": {"href": "https://example.test/build/991"}}}`))
	})

	build, err := client.Run(context.Background(), Ref{
		Project:    "infra",
		PipelineID: 42,
		Branch:     "main",
		ModuleName: "aks",
	}, map[string]string{"region": "westeurope"})
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if build.ID != 991 {
		t.Fatalf("build id=%d, want 991", build.ID)
	}
	if build.URL != "https://example.test/build/991" {
		t.Fatalf("build url=%q", build.URL)
	}

	if gotPath != "/infra/_apis/pipelines/42/runs?api-version=7.0" {
		t.Fatalf("path=%q", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "Basic ") {
		t.Fatalf("expected basic auth, got %q", gotAuth)
	}
	params, _ := gotBody["templateParameters"].(map[string]any)
	if params["region"] != "westeurope" {
		t.Fatalf("templateParameters=%v", params)
	}
	if params["module_name"] != "aks" {
		t.Fatalf("module_name missing from templateParameters: %v", params)
	}
}

func TestRun_ErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	if _, err := client.Run(context.Background(), Ref{Project: "infra", PipelineID: 1}, nil); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestStatus_ReportsResult(t *testing.T) {
	var gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 991, "status": "completed", "result": "succeeded", "_links": {"web": {"href": "https://example.test/build/991"}}}`))
	})

	build, err := client.Status(context.Background(), "infra", 991)
	if err != nil {
		t.Fatalf("Status() err=%v", err)
	}
	if gotPath != "/infra/_apis/build/builds/991" {
		t.Fatalf("path=%q", gotPath)
	}
	if !build.Finished() || !build.Succeeded() {
		t.Fatalf("build=%+v, want finished and succeeded", build)
	}
}

func TestStatus_FailedBuild(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 992, "status": "completed", "result": "failed"}`))
	})

	build, err := client.Status(context.Background(), "infra", 992)
	if err != nil {
		t.Fatalf("Status() err=%v", err)
	}
	if !build.Finished() || build.Succeeded() {
		t.Fatalf("build=%+v, want finished and not succeeded", build)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{PAT: "x", Timeout: time.Second}).Validate(); err == nil {
		t.Fatal("missing org url should be rejected")
	}
	if err := (Config{OrgURL: "https://dev.azure.com/x", Timeout: time.Second}).Validate(); err == nil {
		t.Fatal("missing pat should be rejected")
	}
}
