package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/stackport-labs/stackport-go/internal/domain"
)

// Parameter is a value users must provide when requesting a deployment.
type Parameter struct {
	Name        string   `yaml:"name" json:"name"`
	Label       string   `yaml:"label" json:"label"`
	Type        string   `yaml:"type" json:"type"` // string, number, select, boolean
	Description string   `yaml:"description" json:"description,omitempty"`
	Required    *bool    `yaml:"required" json:"required,omitempty"`
	Default     string   `yaml:"default" json:"default,omitempty"`
	Options     []string `yaml:"options" json:"options,omitempty"`
	MinValue    *int     `yaml:"min_value" json:"min_value,omitempty"`
	MaxValue    *int     `yaml:"max_value" json:"max_value,omitempty"`
}

func (p Parameter) required() bool {
	if p.Required == nil {
		return true
	}
	return *p.Required
}

// Pipeline references the delivery pipeline that deploys the item.
type Pipeline struct {
	Organization string `yaml:"organization" json:"organization,omitempty"`
	Project      string `yaml:"project" json:"project"`
	PipelineID   int    `yaml:"pipeline_id" json:"pipeline_id"`
	Branch       string `yaml:"branch" json:"branch,omitempty"`
	ModuleName   string `yaml:"module_name" json:"module_name,omitempty"`
}

// CostBreakdown is an individual cost component shown in the catalog.
type CostBreakdown struct {
	Component string `yaml:"component" json:"component"`
	Estimate  string `yaml:"estimate" json:"estimate"`
}

// Item is an infrastructure template available for self-service deployment.
type Item struct {
	ID                      string          `yaml:"id" json:"id"`
	Name                    string          `yaml:"name" json:"name"`
	Description             string          `yaml:"description" json:"description,omitempty"`
	Category                string          `yaml:"category" json:"category,omitempty"`
	EstimatedMonthlyCostUSD string          `yaml:"estimated_monthly_cost_usd" json:"estimated_monthly_cost_usd,omitempty"`
	CostBreakdown           []CostBreakdown `yaml:"cost_breakdown" json:"cost_breakdown,omitempty"`
	Parameters              []Parameter     `yaml:"parameters" json:"parameters"`
	Pipeline                Pipeline        `yaml:"pipeline" json:"pipeline"`
	Tags                    []string        `yaml:"tags" json:"tags,omitempty"`
	DefaultTTLDays          int             `yaml:"default_ttl_days" json:"default_ttl_days,omitempty"`
}

func (i Item) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return errors.New("catalog item id is required")
	}
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("catalog item %s: name is required", i.ID)
	}
	if strings.TrimSpace(i.Pipeline.Project) == "" {
		return fmt.Errorf("catalog item %s: pipeline project is required", i.ID)
	}
	if i.Pipeline.PipelineID <= 0 {
		return fmt.Errorf("catalog item %s: pipeline id is required", i.ID)
	}
	for _, p := range i.Parameters {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("catalog item %s: parameter name is required", i.ID)
		}
		switch p.Type {
		case "", "string", "number", "select", "boolean":
		default:
			return fmt.Errorf("catalog item %s: parameter %s has unknown type %q", i.ID, p.Name, p.Type)
		}
		if p.Type == "select" && len(p.Options) == 0 {
			return fmt.Errorf("catalog item %s: select parameter %s needs options", i.ID, p.Name)
		}
	}
	return nil
}

// Parameter returns the named parameter definition.
func (i Item) Parameter(name string) (Parameter, bool) {
	for _, p := range i.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// ValidateParams checks submitted parameters against the item definition.
// Unknown names are rejected; so are missing required values.
func (i Item) ValidateParams(params domain.Params) error {
	for _, p := range params {
		def, ok := i.Parameter(p.Name)
		if !ok {
			return fmt.Errorf("unknown parameter %q", p.Name)
		}
		if err := validateValue(def, p.Value); err != nil {
			return err
		}
	}
	for _, def := range i.Parameters {
		if !def.required() || def.Default != "" {
			continue
		}
		if _, ok := params.Get(def.Name); !ok {
			return fmt.Errorf("missing required parameter %q", def.Name)
		}
	}
	return nil
}

func validateValue(def Parameter, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		if def.required() {
			return fmt.Errorf("parameter %q must not be empty", def.Name)
		}
		return nil
	}
	switch def.Type {
	case "number":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parameter %q must be a number", def.Name)
		}
		if def.MinValue != nil && n < *def.MinValue {
			return fmt.Errorf("parameter %q must be >= %d", def.Name, *def.MinValue)
		}
		if def.MaxValue != nil && n > *def.MaxValue {
			return fmt.Errorf("parameter %q must be <= %d", def.Name, *def.MaxValue)
		}
	case "select":
		for _, opt := range def.Options {
			if value == opt {
				return nil
			}
		}
		return fmt.Errorf("parameter %q must be one of %s", def.Name, strings.Join(def.Options, ", "))
	case "boolean":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("parameter %q must be a boolean", def.Name)
		}
	}
	return nil
}

// Service loads catalog items from a directory of YAML files, one item per
// file, and serves lookups. Reload replaces the whole set atomically.
type Service struct {
	dir string

	mu    sync.RWMutex
	items map[string]Item
}

func NewService(dir string) *Service {
	return &Service{dir: dir, items: map[string]Item{}}
}

func (s *Service) Load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read catalog dir: %w", err)
	}

	items := make(map[string]Item)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read catalog item %s: %w", entry.Name(), err)
		}
		var item Item
		if err := yaml.Unmarshal(raw, &item); err != nil {
			return fmt.Errorf("parse catalog item %s: %w", entry.Name(), err)
		}
		if err := item.Validate(); err != nil {
			return fmt.Errorf("catalog item %s: %w", entry.Name(), err)
		}
		if _, dup := items[item.ID]; dup {
			return fmt.Errorf("duplicate catalog item id %q", item.ID)
		}
		items[item.ID] = item
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return nil
}

func (s *Service) All() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (s *Service) ByID(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[strings.TrimSpace(id)]
	return item, ok
}

func (s *Service) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, item := range s.items {
		category := item.Category
		if category == "" {
			category = "general"
		}
		seen[category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for category := range seen {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

func (s *Service) Search(query string) []Item {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return s.All()
	}
	out := make([]Item, 0)
	for _, item := range s.All() {
		if strings.Contains(strings.ToLower(item.Name), query) ||
			strings.Contains(strings.ToLower(item.Description), query) ||
			tagsMatch(item.Tags, query) {
			out = append(out, item)
		}
	}
	return out
}

func tagsMatch(tags []string, query string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}
