package pool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrAgentNotFound is returned by UpdateWeight when the named agent is not
// present in the agents document.
var ErrAgentNotFound = errors.New("agent not found in document")

// ConfigError reports an invalid agents document. A load that fails with a
// ConfigError must never replace the running pool.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "pool: invalid agents document: " + e.Reason
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// Document mirrors the routing-relevant shape of the agents file. Agent
// entries carry free-form provisioning fields (temperature, tools,
// instructions) consumed by the agent-creation tooling; the yaml decoder
// drops them, which is exactly the contract: the router ignores them.
type Document struct {
	Defaults DefaultsSpec         `yaml:"defaults"`
	Models   map[string]ModelSpec `yaml:"models"`
	Agents   []AgentSpec          `yaml:"agents"`
}

// DefaultsSpec supplies fallback values for agent entries that omit a field.
type DefaultsSpec struct {
	Weight  *int  `yaml:"weight"`
	Enabled *bool `yaml:"enabled"`
}

// ModelSpec is the declaration of a logical model. Enablement and capacity
// are informational to the router; declaration itself is what matters, since
// every agent must reference a declared model.
type ModelSpec struct {
	Enabled  bool `yaml:"enabled"`
	Capacity int  `yaml:"capacity"`
}

// AgentSpec is a single agent entry as written in the document.
type AgentSpec struct {
	Name    string `yaml:"name"`
	Model   string `yaml:"model"`
	Weight  *int   `yaml:"weight"`
	Enabled *bool  `yaml:"enabled"`
	AgentID string `yaml:"agent_id"`
}

// Parse decodes and validates an agents document, returning a fully built
// Pool. Validation failures return a *ConfigError. The previous pool (if
// any) is the caller's to keep; Parse has no side effects.
func Parse(data []byte) (*Pool, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, configErrorf("parsing yaml: %v", err)
	}

	defaultWeight := 1
	if doc.Defaults.Weight != nil {
		defaultWeight = *doc.Defaults.Weight
	}
	defaultEnabled := true
	if doc.Defaults.Enabled != nil {
		defaultEnabled = *doc.Defaults.Enabled
	}

	agents := make([]Agent, 0, len(doc.Agents))
	seen := make(map[string]bool, len(doc.Agents))
	for i, spec := range doc.Agents {
		if spec.Name == "" {
			return nil, configErrorf("agents[%d]: name must not be empty", i)
		}
		if seen[spec.Name] {
			return nil, configErrorf("duplicate agent name %q", spec.Name)
		}
		seen[spec.Name] = true

		if spec.Model == "" {
			return nil, configErrorf("agent %q: model must not be empty", spec.Name)
		}
		if _, ok := doc.Models[spec.Model]; !ok {
			return nil, configErrorf("agent %q references unknown model %q", spec.Name, spec.Model)
		}

		weight := defaultWeight
		if spec.Weight != nil {
			weight = *spec.Weight
		}
		if weight < 0 {
			return nil, configErrorf("agent %q: weight must be non-negative, got %d", spec.Name, weight)
		}

		enabled := defaultEnabled
		if spec.Enabled != nil {
			enabled = *spec.Enabled
		}

		agents = append(agents, Agent{
			Name:    spec.Name,
			Model:   spec.Model,
			Weight:  weight,
			Enabled: enabled,
			AgentID: spec.AgentID,
		})
	}

	declared := make([]string, 0, len(doc.Models))
	for m := range doc.Models {
		declared = append(declared, m)
	}

	return newPool(agents, declared), nil
}

// LoadFile reads and parses the agents document at path.
func LoadFile(path string) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pool: reading agents document: %w", err)
	}
	return Parse(data)
}

// UpdateWeight rewrites one agent's weight in the agents document on disk.
// The edit is performed on the yaml node tree so that comments and the
// free-form provisioning fields survive untouched. It does not reload any
// pool; the operator (or the file watcher) triggers the refresh separately.
func UpdateWeight(path, name string, weight int) error {
	if weight < 0 {
		return configErrorf("agent %q: weight must be non-negative, got %d", name, weight)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("pool: reading agents document: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return configErrorf("parsing yaml: %v", err)
	}
	if len(root.Content) == 0 {
		return fmt.Errorf("pool: %w: %q", ErrAgentNotFound, name)
	}

	if !setAgentWeight(root.Content[0], name, weight) {
		return fmt.Errorf("pool: %w: %q", ErrAgentNotFound, name)
	}

	out, err := yaml.Marshal(root.Content[0])
	if err != nil {
		return fmt.Errorf("pool: encoding agents document: %w", err)
	}

	// Write via temp file + rename so a concurrent reader (or the fsnotify
	// watcher) never sees a half-written document.
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("pool: writing agents document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("pool: replacing agents document: %w", err)
	}
	return nil
}

// setAgentWeight finds the agents entry with the given name in the document
// mapping and sets its weight scalar, adding the key if absent. It returns
// false when no such agent exists.
func setAgentWeight(doc *yaml.Node, name string, weight int) bool {
	agentsSeq := mappingValue(doc, "agents")
	if agentsSeq == nil || agentsSeq.Kind != yaml.SequenceNode {
		return false
	}

	for _, entry := range agentsSeq.Content {
		if entry.Kind != yaml.MappingNode {
			continue
		}
		nameNode := mappingValue(entry, "name")
		if nameNode == nil || nameNode.Value != name {
			continue
		}

		if wn := mappingValue(entry, "weight"); wn != nil {
			wn.SetString(strconv.Itoa(weight))
			wn.Tag = "!!int"
			wn.Style = 0
			return true
		}

		entry.Content = append(entry.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "weight"},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(weight)},
		)
		return true
	}
	return false
}

// mappingValue returns the value node for key in a mapping node, or nil.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
