package playbook

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"cshealth/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Step is one action in a playbook.
type Step struct {
	Title    string `yaml:"title" json:"title"`
	DueHours int    `yaml:"due_hours" json:"dueHours,omitempty"`
}

// Playbook is a named remediation plan referenced by alerts.
type Playbook struct {
	ID          string             `yaml:"id" json:"id"`
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description" json:"description"`
	AlertTypes  []domain.AlertType `yaml:"alert_types" json:"alertTypes,omitempty"`
	Steps       []Step             `yaml:"steps" json:"steps"`
}

type document struct {
	Playbooks []Playbook `yaml:"playbooks"`
}

// Catalog is immutable playbook index.
type Catalog struct {
	byID map[string]Playbook
}

// Default returns the embedded catalog.
// Params: none.
// Returns: catalog or parse error of the embedded document.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load returns embedded catalog overlaid with optional override file.
// Params: override file path (empty means defaults only).
// Returns: catalog where override entries replace defaults with the same ID.
func Load(path string) (*Catalog, error) {
	catalog, err := Default()
	if err != nil {
		return nil, fmt.Errorf("parse embedded playbooks: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return catalog, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playbooks %q: %w", path, err)
	}
	override, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse playbooks %q: %w", path, err)
	}
	for id, pb := range override.byID {
		catalog.byID[id] = pb
	}
	return catalog, nil
}

// Parse decodes and validates YAML catalog document.
// Params: YAML bytes with top-level playbooks list.
// Returns: catalog or validation error.
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	catalog := &Catalog{byID: make(map[string]Playbook, len(doc.Playbooks))}
	for i, pb := range doc.Playbooks {
		pb.ID = strings.TrimSpace(pb.ID)
		if pb.ID == "" {
			return nil, fmt.Errorf("playbooks[%d]: id is required", i)
		}
		if _, exists := catalog.byID[pb.ID]; exists {
			return nil, fmt.Errorf("playbooks[%d]: duplicate id %q", i, pb.ID)
		}
		if strings.TrimSpace(pb.Name) == "" {
			return nil, fmt.Errorf("playbook %s: name is required", pb.ID)
		}
		if len(pb.Steps) == 0 {
			return nil, fmt.Errorf("playbook %s: at least one step is required", pb.ID)
		}
		for _, alertType := range pb.AlertTypes {
			if !alertType.IsKnown() {
				return nil, fmt.Errorf("playbook %s: unknown alert type %q", pb.ID, alertType)
			}
		}
		for j, step := range pb.Steps {
			if strings.TrimSpace(step.Title) == "" {
				return nil, fmt.Errorf("playbook %s: steps[%d] title is required", pb.ID, j)
			}
			if step.DueHours < 0 {
				return nil, fmt.Errorf("playbook %s: steps[%d] due_hours must be >=0", pb.ID, j)
			}
		}
		catalog.byID[pb.ID] = pb
	}
	return catalog, nil
}

// Lookup returns playbook by ID.
func (c *Catalog) Lookup(id string) (Playbook, bool) {
	if c == nil {
		return Playbook{}, false
	}
	pb, ok := c.byID[id]
	return pb, ok
}

// Name returns display name for playbook ID, or the ID itself when unknown.
func (c *Catalog) Name(id string) string {
	if pb, ok := c.Lookup(id); ok {
		return pb.Name
	}
	return id
}

// List returns playbooks ordered by ID.
func (c *Catalog) List() []Playbook {
	if c == nil {
		return nil
	}
	out := make([]Playbook, 0, len(c.byID))
	for _, pb := range c.byID {
		out = append(out, pb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
