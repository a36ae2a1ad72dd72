package pool

// Model group status values.
const (
	ModelActive   = "active"
	ModelInactive = "inactive"
)

// Pool-wide status values.
const (
	StatusOK       = "ok"
	StatusPartial  = "partial"
	StatusInactive = "inactive"
)

// ModelHealth summarises one model group.
type ModelHealth struct {
	Status       string `json:"status"`
	Agents       int    `json:"agents"`
	ActiveAgents int    `json:"active_agents"`
	TotalWeight  int    `json:"total_weight"`
}

// Health is a point-in-time snapshot of pool routability, consumed by the
// external gateway's cross-instance aggregation.
type Health struct {
	Status       string                 `json:"status"`
	AgentsLoaded int                    `json:"agents_loaded"`
	ActiveModels int                    `json:"active_models"`
	TotalModels  int                    `json:"total_models"`
	Models       map[string]ModelHealth `json:"models"`
}

// Health computes the per-model and pool-wide status. It is a pure read:
// calling it repeatedly without an intervening refresh yields identical
// output. A model is active when at least one enabled agent carries
// positive weight; the pool is "ok" only when every declared model is
// active, "partial" when some are, and "inactive" when none are.
func (p *Pool) Health() Health {
	models := make(map[string]ModelHealth, len(p.models))
	for _, m := range p.models {
		models[m] = ModelHealth{Status: ModelInactive}
	}

	for _, a := range p.agents {
		mh := models[a.Model]
		mh.Agents++
		if a.Enabled {
			mh.TotalWeight += a.Weight
			if a.Weight > 0 {
				mh.ActiveAgents++
				mh.Status = ModelActive
			}
		}
		models[a.Model] = mh
	}

	active := 0
	for _, mh := range models {
		if mh.Status == ModelActive {
			active++
		}
	}

	status := StatusInactive
	switch {
	case len(models) > 0 && active == len(models):
		status = StatusOK
	case active > 0:
		status = StatusPartial
	}

	return Health{
		Status:       status,
		AgentsLoaded: len(p.agents),
		ActiveModels: active,
		TotalModels:  len(models),
		Models:       models,
	}
}
