package pool

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse_ExtraAgentFieldsIgnored(t *testing.T) {
	p := parsePool(t, `
models:
  gpt-4o: {enabled: true, capacity: 2}
agents:
  - name: gpt4o-a
    model: gpt-4o
    weight: 3
    agent_id: asst_aaa
    temperature: 0.7
    instructions: "You are a search assistant."
    tools:
      - bing_grounding
`)

	a, ok := p.Agent("gpt4o-a")
	if !ok {
		t.Fatal("expected agent to load despite free-form fields")
	}
	if a.Weight != 3 || a.Model != "gpt-4o" || a.AgentID != "asst_aaa" {
		t.Fatalf("unexpected agent: %+v", a)
	}
}

func TestParse_DefaultsApplied(t *testing.T) {
	p := parsePool(t, `
defaults:
  weight: 50
  enabled: true
models:
  gpt-4o: {enabled: true}
agents:
  - {name: implicit, model: gpt-4o}
  - {name: explicit, model: gpt-4o, weight: 7, enabled: false}
`)

	a, _ := p.Agent("implicit")
	if a.Weight != 50 || !a.Enabled {
		t.Fatalf("defaults not applied: %+v", a)
	}
	b, _ := p.Agent("explicit")
	if b.Weight != 7 || b.Enabled {
		t.Fatalf("explicit values not honoured: %+v", b)
	}
}

func TestParse_RejectsDuplicateAgentName(t *testing.T) {
	_, err := Parse([]byte(`
models:
  gpt-4o: {enabled: true}
  gpt-4.1-mini: {enabled: true}
agents:
  - {name: dup, model: gpt-4o, weight: 1}
  - {name: dup, model: gpt-4.1-mini, weight: 1}
`))
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError for duplicate name, got %v", err)
	}
	if !strings.Contains(ce.Reason, "dup") {
		t.Fatalf("error should name the duplicate agent: %v", ce)
	}
}

func TestParse_RejectsUnknownModelReference(t *testing.T) {
	_, err := Parse([]byte(`
models:
  gpt-4o: {enabled: true}
agents:
  - {name: stray, model: gpt-5, weight: 1}
`))
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError for unknown model, got %v", err)
	}
}

func TestParse_RejectsNegativeWeight(t *testing.T) {
	_, err := Parse([]byte(`
models:
  gpt-4o: {enabled: true}
agents:
  - {name: bad, model: gpt-4o, weight: -1}
`))
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError for negative weight, got %v", err)
	}
}

func TestParse_RejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("models: [unclosed"))
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError for malformed yaml, got %v", err)
	}
}

func TestUpdateWeight_RewritesOnlyTheWeight(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	doc := `models:
  gpt-4o:
    enabled: true
agents:
  - name: gpt4o-a
    model: gpt-4o
    weight: 90
    agent_id: asst_aaa
    temperature: 0.7
  - name: gpt4o-b
    model: gpt-4o
    weight: 10
    agent_id: asst_bbb
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if err := UpdateWeight(path, "gpt4o-b", 50); err != nil {
		t.Fatalf("UpdateWeight error: %v", err)
	}

	p, err := LoadFile(path)
	if err != nil {
		t.Fatalf("reloading after update: %v", err)
	}
	a, _ := p.Agent("gpt4o-b")
	if a.Weight != 50 {
		t.Fatalf("expected weight 50 after update, got %d", a.Weight)
	}
	b, _ := p.Agent("gpt4o-a")
	if b.Weight != 90 {
		t.Fatalf("other agent's weight changed: got %d", b.Weight)
	}

	// The free-form provisioning fields must survive the rewrite.
	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading rewritten document: %v", err)
	}
	if !strings.Contains(string(out), "temperature") {
		t.Fatalf("free-form field lost in rewrite:\n%s", out)
	}
}

func TestUpdateWeight_AddsMissingWeightKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	doc := `models:
  gpt-4o: {enabled: true}
agents:
  - name: gpt4o-a
    model: gpt-4o
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if err := UpdateWeight(path, "gpt4o-a", 25); err != nil {
		t.Fatalf("UpdateWeight error: %v", err)
	}

	p, err := LoadFile(path)
	if err != nil {
		t.Fatalf("reloading after update: %v", err)
	}
	a, _ := p.Agent("gpt4o-a")
	if a.Weight != 25 {
		t.Fatalf("expected weight 25, got %d", a.Weight)
	}
}

func TestUpdateWeight_UnknownAgent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	if err := os.WriteFile(path, []byte("models:\n  gpt-4o: {enabled: true}\nagents: []\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	err := UpdateWeight(path, "ghost", 10)
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestUpdateWeight_RejectsNegative(t *testing.T) {
	err := UpdateWeight(filepath.Join(t.TempDir(), "agents.yaml"), "a", -5)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError for negative weight, got %v", err)
	}
}
