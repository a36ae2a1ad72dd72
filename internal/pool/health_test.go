package pool

import (
	"reflect"
	"testing"
)

func TestHealth_AllModelsActive(t *testing.T) {
	p := parsePool(t, `
models:
  gpt-4o: {enabled: true}
  gpt-4.1-mini: {enabled: true}
agents:
  - {name: a, model: gpt-4o, weight: 90}
  - {name: b, model: gpt-4o, weight: 10}
  - {name: c, model: gpt-4.1-mini, weight: 1}
`)

	h := p.Health()
	if h.Status != StatusOK {
		t.Fatalf("expected status %q, got %q", StatusOK, h.Status)
	}
	if h.AgentsLoaded != 3 || h.ActiveModels != 2 || h.TotalModels != 2 {
		t.Fatalf("unexpected totals: %+v", h)
	}

	mh := h.Models["gpt-4o"]
	if mh.Status != ModelActive || mh.Agents != 2 || mh.ActiveAgents != 2 || mh.TotalWeight != 100 {
		t.Fatalf("unexpected gpt-4o group: %+v", mh)
	}
}

func TestHealth_ZeroWeightModelIsInactive(t *testing.T) {
	// Disabled rollout: both agents parked at weight 0.
	p := parsePool(t, `
models:
  gpt-4o: {enabled: true}
agents:
  - {name: a, model: gpt-4o, weight: 0}
  - {name: b, model: gpt-4o, weight: 0}
`)

	h := p.Health()
	if h.Status != StatusInactive {
		t.Fatalf("expected pool status %q, got %q", StatusInactive, h.Status)
	}
	mh := h.Models["gpt-4o"]
	if mh.Status != ModelInactive || mh.Agents != 2 || mh.ActiveAgents != 0 || mh.TotalWeight != 0 {
		t.Fatalf("unexpected group: %+v", mh)
	}
}

func TestHealth_PartialWhenOneModelInactive(t *testing.T) {
	p := parsePool(t, `
models:
  gpt-4o: {enabled: true}
  gpt-4.1-mini: {enabled: true}
agents:
  - {name: a, model: gpt-4o, weight: 1}
  - {name: b, model: gpt-4.1-mini, weight: 0}
`)

	h := p.Health()
	if h.Status != StatusPartial {
		t.Fatalf("expected %q, got %q", StatusPartial, h.Status)
	}
	if h.ActiveModels != 1 || h.TotalModels != 2 {
		t.Fatalf("unexpected model counts: %+v", h)
	}
}

func TestHealth_DisabledAgentCountedButNotWeighted(t *testing.T) {
	p := parsePool(t, `
models:
  gpt-4o: {enabled: true}
agents:
  - {name: a, model: gpt-4o, weight: 1}
  - {name: b, model: gpt-4o, weight: 100, enabled: false}
`)

	mh := p.Health().Models["gpt-4o"]
	if mh.Agents != 2 {
		t.Fatalf("disabled agent should still be counted, got %d", mh.Agents)
	}
	if mh.ActiveAgents != 1 || mh.TotalWeight != 1 {
		t.Fatalf("disabled agent leaked into weight totals: %+v", mh)
	}
}

func TestHealth_DeclaredModelWithoutAgentsIsInactive(t *testing.T) {
	p := parsePool(t, `
models:
  gpt-4o: {enabled: true}
  gpt-35-turbo: {enabled: true}
agents:
  - {name: a, model: gpt-4o, weight: 1}
`)

	h := p.Health()
	mh, ok := h.Models["gpt-35-turbo"]
	if !ok {
		t.Fatal("declared model missing from health report")
	}
	if mh.Status != ModelInactive || mh.Agents != 0 {
		t.Fatalf("unexpected group for agent-less model: %+v", mh)
	}
	if h.Status != StatusPartial {
		t.Fatalf("expected %q, got %q", StatusPartial, h.Status)
	}
}

func TestHealth_EmptyPool(t *testing.T) {
	h := Empty().Health()
	if h.Status != StatusInactive || h.AgentsLoaded != 0 || h.TotalModels != 0 {
		t.Fatalf("unexpected empty-pool health: %+v", h)
	}
}

func TestHealth_Idempotent(t *testing.T) {
	p := parsePool(t, twoAgentDoc)
	first := p.Health()
	second := p.Health()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("health changed between calls:\n%+v\n%+v", first, second)
	}
}
