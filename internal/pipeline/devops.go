package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stackport-labs/stackport-go/internal/platform/env"
)

type Config struct {
	OrgURL  string
	PAT     string
	Timeout time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("DEVOPS_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		OrgURL:  env.String("DEVOPS_ORG_URL", ""),
		PAT:     env.String("DEVOPS_PAT", ""),
		Timeout: timeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.OrgURL) == "" {
		return errors.New("DEVOPS_ORG_URL is required")
	}
	if strings.TrimSpace(c.PAT) == "" {
		return errors.New("DEVOPS_PAT is required")
	}
	if c.Timeout <= 0 {
		return errors.New("DEVOPS_HTTP_TIMEOUT must be positive")
	}
	return nil
}

// DevOpsClient triggers Azure DevOps pipelines over the REST API, PAT basic
// auth with an empty username.
type DevOpsClient struct {
	orgURL string
	pat    string
	http   *http.Client
}

func NewDevOpsClient(cfg Config) (*DevOpsClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DevOpsClient{
		orgURL: strings.TrimRight(strings.TrimSpace(cfg.OrgURL), "/"),
		pat:    strings.TrimSpace(cfg.PAT),
		http:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type runRequest struct {
	Resources          runResources      `json:"resources"`
	TemplateParameters map[string]string `json:"templateParameters"`
}

type runResources struct {
	Repositories map[string]runRepository `json:"repositories"`
}

type runRepository struct {
	RefName string `json:"refName"`
}

type runResponse struct {
	ID     int64    `json:"id"`
	Status string   `json:"state"`
	Links  apiLinks `json:"_links"`
}

type buildResponse struct {
	ID     int64    `json:"id"`
	Status string   `json:"status"`
	Result string   `json:"result"`
	Links  apiLinks `json:"_links"`
}

type apiLinks struct {
	Web apiLink `json:"web"`
}

type apiLink struct {
	Href string `json:"href"`
}

func (c *DevOpsClient) Run(ctx context.Context, ref Ref, parameters map[string]string) (Build, error) {
	if c == nil {
		return Build{}, errors.New("devops client not initialized")
	}
	if strings.TrimSpace(ref.Project) == "" || ref.PipelineID <= 0 {
		return Build{}, errors.New("pipeline ref is incomplete")
	}

	branch := strings.TrimSpace(ref.Branch)
	if branch == "" {
		branch = "main"
	}
	templateParams := make(map[string]string, len(parameters)+1)
	for k, v := range parameters {
		templateParams[k] = v
	}
	if strings.TrimSpace(ref.ModuleName) != "" {
		templateParams["module_name"] = strings.TrimSpace(ref.ModuleName)
	}

	body, err := json.Marshal(runRequest{
		Resources: runResources{
			Repositories: map[string]runRepository{
				"self": {RefName: "refs/heads/" + branch},
			},
		},
		TemplateParameters: templateParams,
	})
	if err != nil {
		return Build{}, fmt.Errorf("marshal run request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_apis/pipelines/%d/runs?api-version=7.0", c.orgURL, ref.Project, ref.PipelineID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Build{}, fmt.Errorf("build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("", c.pat)

	resp, err := c.http.Do(req)
	if err != nil {
		return Build{}, fmt.Errorf("trigger pipeline: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Build{}, fmt.Errorf("trigger pipeline: unexpected status %d", resp.StatusCode)
	}

	var parsed runResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Build{}, fmt.Errorf("decode run response: %w", err)
	}
	if parsed.ID == 0 {
		return Build{}, errors.New("run response missing build id")
	}
	return Build{
		ID:     parsed.ID,
		URL:    parsed.Links.Web.Href,
		Status: normalizeStatus(parsed.Status),
	}, nil
}

func (c *DevOpsClient) Status(ctx context.Context, project string, buildID int64) (Build, error) {
	if c == nil {
		return Build{}, errors.New("devops client not initialized")
	}
	project = strings.TrimSpace(project)
	if project == "" || buildID <= 0 {
		return Build{}, errors.New("project and build id are required")
	}

	url := fmt.Sprintf("%s/%s/_apis/build/builds/%d?api-version=7.0", c.orgURL, project, buildID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Build{}, fmt.Errorf("build status request: %w", err)
	}
	req.SetBasicAuth("", c.pat)

	resp, err := c.http.Do(req)
	if err != nil {
		return Build{}, fmt.Errorf("fetch build status: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Build{}, fmt.Errorf("fetch build status: unexpected status %d", resp.StatusCode)
	}

	var parsed buildResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Build{}, fmt.Errorf("decode build status: %w", err)
	}
	return Build{
		ID:     parsed.ID,
		URL:    parsed.Links.Web.Href,
		Status: normalizeStatus(parsed.Status),
		Result: parsed.Result,
	}, nil
}

func normalizeStatus(raw string) string {
	switch raw {
	case "", "unknown":
		return StatusNotStarted
	default:
		return raw
	}
}
