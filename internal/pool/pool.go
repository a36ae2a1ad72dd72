package pool

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
)

// ErrNoRoute is returned by Select when no enabled agent with positive
// weight matches the request. This is an expected load-shedding signal,
// not a fault: the caller maps it to HTTP 503 so the upstream gateway
// can retry against another instance.
var ErrNoRoute = errors.New("no agent with positive weight")

// Agent is a single weighted routing target within a model group.
type Agent struct {
	Name    string `json:"name"`
	Model   string `json:"model"`
	Weight  int    `json:"weight"`
	Enabled bool   `json:"enabled"`
	AgentID string `json:"agent_id"`
}

// Pool is an immutable snapshot of the loaded agent set. It is built in
// full by the loader and published via Registry; it is never mutated after
// construction, so all methods are safe for concurrent use.
type Pool struct {
	agents []Agent // document order, which fixes the selection walk order
	byName map[string]int
	models []string // declared model names, sorted
}

// randInt64N is the process-wide uniform draw. Swapped out only in tests.
var (
	defaultRandInt64N = rand.Int64N
	randInt64N        = defaultRandInt64N
)

// newPool builds a Pool from validated agents and the declared model set.
func newPool(agents []Agent, declaredModels []string) *Pool {
	byName := make(map[string]int, len(agents))
	for i, a := range agents {
		byName[a.Name] = i
	}
	models := append([]string(nil), declaredModels...)
	sort.Strings(models)
	return &Pool{agents: agents, byName: byName, models: models}
}

// Empty returns a pool with no agents and no models. Used as the registry's
// cold-start value so readers never see a nil pool.
func Empty() *Pool {
	return newPool(nil, nil)
}

// Select chooses one enabled agent by weighted random choice. If model is
// non-empty, only agents serving exactly that model are considered; an
// empty model considers every enabled agent. When the candidate set has
// zero total weight, Select fails with ErrNoRoute. The walk over candidates
// is in document order, so equal draws always resolve the same way.
func (p *Pool) Select(model string) (Agent, error) {
	var total int64
	for i := range p.agents {
		if p.candidate(i, model) {
			total += int64(p.agents[i].Weight)
		}
	}
	if total == 0 {
		if model == "" {
			return Agent{}, fmt.Errorf("pool: %w", ErrNoRoute)
		}
		return Agent{}, fmt.Errorf("pool: %w for model %q", ErrNoRoute, model)
	}

	draw := randInt64N(total)
	var cum int64
	for i := range p.agents {
		if !p.candidate(i, model) {
			continue
		}
		cum += int64(p.agents[i].Weight)
		if draw < cum {
			return p.agents[i], nil
		}
	}
	// Unreachable: draw is in [0, total) and the cumulative sum reaches total.
	return Agent{}, fmt.Errorf("pool: %w for model %q", ErrNoRoute, model)
}

// candidate reports whether agent i participates in selection for model.
// Disabled agents never participate, regardless of weight.
func (p *Pool) candidate(i int, model string) bool {
	a := &p.agents[i]
	if !a.Enabled {
		return false
	}
	return model == "" || a.Model == model
}

// Agent returns the agent with the given name, enabled or not.
func (p *Pool) Agent(name string) (Agent, bool) {
	i, ok := p.byName[name]
	if !ok {
		return Agent{}, false
	}
	return p.agents[i], true
}

// Agents returns a copy of all loaded agents in document order, including
// disabled ones.
func (p *Pool) Agents() []Agent {
	return append([]Agent(nil), p.agents...)
}

// Len returns the number of loaded agents, including disabled ones.
func (p *Pool) Len() int {
	return len(p.agents)
}

// Models returns the declared model names, sorted.
func (p *Pool) Models() []string {
	return append([]string(nil), p.models...)
}

// TotalWeight returns the summed weight of enabled agents for the model,
// or across the whole pool when model is empty.
func (p *Pool) TotalWeight(model string) int {
	total := 0
	for i := range p.agents {
		if p.candidate(i, model) {
			total += p.agents[i].Weight
		}
	}
	return total
}
