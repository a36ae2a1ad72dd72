package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/groundworks/groundpool/internal/cache"
	"github.com/groundworks/groundpool/internal/grounding"
	"github.com/groundworks/groundpool/internal/metrics"
	"github.com/groundworks/groundpool/internal/pool"
	"github.com/groundworks/groundpool/internal/store"
	"github.com/groundworks/groundpool/internal/tokenizer"
	"github.com/groundworks/groundpool/internal/tracing"
)

// Handler implements the HTTP surface of the router: health and agent
// inspection, grounded dispatch, and the admin operations. All pool reads go
// through the registry's current snapshot.
type Handler struct {
	registry  *pool.Registry
	client    grounding.Client
	cache     *cache.Cache
	tokenizer *tokenizer.Tokenizer
	store     *store.Store
	collector *metrics.Collector
	logger    zerolog.Logger

	region       string
	defaultModel string
}

// NewHandler creates a Handler. store may be nil when request persistence is
// disabled; everything else is required.
func NewHandler(registry *pool.Registry, client grounding.Client, answerCache *cache.Cache, tok *tokenizer.Tokenizer, st *store.Store, collector *metrics.Collector, logger zerolog.Logger, region, defaultModel string) *Handler {
	return &Handler{
		registry:     registry,
		client:       client,
		cache:        answerCache,
		tokenizer:    tok,
		store:        st,
		collector:    collector,
		logger:       logger,
		region:       region,
		defaultModel: defaultModel,
	}
}

// answerMetadata describes how a dispatch was routed. agent_route is the
// bare agent name; the external gateway's aggregation keys off it.
type answerMetadata struct {
	AgentRoute string `json:"agent_route"`
	Model      string `json:"model"`
	AgentID    string `json:"agent_id"`
	Region     string `json:"region"`
	CacheHit   bool   `json:"cache_hit"`
	LatencyMs  int64  `json:"latency_ms"`
	Tokens     int    `json:"tokens"`
}

// answerResponse is the success envelope for a grounded dispatch: the answer
// content and citations at the top level with the routing metadata merged in.
type answerResponse struct {
	RequestID string               `json:"request_id"`
	Content   string               `json:"content"`
	Citations []grounding.Citation `json:"citations"`
	Metadata  answerMetadata       `json:"metadata"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// HandleHealth reports pool routability. Always 200: the external gateway
// reads the status field, not the HTTP code, so a degraded pool must still
// answer.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.registry.Current().Health()
	writeJSON(w, http.StatusOK, struct {
		pool.Health
		Region string `json:"region"`
	}{health, h.region})
}

// agentInfo is one entry in the /agents listing.
type agentInfo struct {
	pool.Agent
	Route string `json:"route"`
}

// HandleAgents lists every loaded agent in document order, including
// disabled ones.
func (h *Handler) HandleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, agentsSummary(h.registry.Current()))
}

// agentsSummary builds the /agents listing for a pool snapshot. The refresh
// endpoint returns the same shape for the freshly swapped pool.
func agentsSummary(p *pool.Pool) map[string]any {
	agents := p.Agents()

	infos := make([]agentInfo, 0, len(agents))
	for _, a := range agents {
		infos = append(infos, agentInfo{Agent: a, Route: "/bing-grounding/" + a.Name})
	}

	return map[string]any{
		"total":  len(infos),
		"models": p.Models(),
		"agents": infos,
	}
}

// HandleGrounding dispatches a grounded search through weighted selection.
func (h *Handler) HandleGrounding(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, "")
}

// HandleGroundingPinned dispatches a grounded search to one named agent,
// bypassing weighted selection.
func (h *Handler) HandleGroundingPinned(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, chi.URLParam(r, "agent"))
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, pinned string) {
	ctx := r.Context()
	p := h.registry.Current()

	query := r.URL.Query().Get("query")
	model := r.URL.Query().Get("model")

	// Query parameters take precedence; a JSON body {query, model} is also
	// accepted.
	if query == "" {
		var body struct {
			Query string `json:"query"`
			Model string `json:"model"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err == nil {
			query = body.Query
			if model == "" {
				model = body.Model
			}
		}
	}
	if model == "" {
		model = h.defaultModel
	}

	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query parameter is required")
		return
	}
	if swappedParams(p, query, model) {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("model %q looks like a query and query %q looks like a model; the parameters appear to be swapped", model, query))
		return
	}

	requestID := uuid.NewString()
	start := time.Now()

	h.collector.IncrementActive()
	defer h.collector.DecrementActive()

	tracing.SetRequestAttributes(ctx, requestID, model, len(query))

	var agent pool.Agent
	selection := "weighted"
	if pinned != "" {
		selection = "pinned"
		a, ok := p.Agent(pinned)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown_agent", fmt.Sprintf("no agent named %q", pinned))
			return
		}
		if !a.Enabled {
			writeError(w, http.StatusServiceUnavailable, "agent_disabled", fmt.Sprintf("agent %q is disabled", pinned))
			return
		}
		agent = a
		model = a.Model
	}

	// Cache lookup only applies to weighted dispatch; a pinned request is an
	// explicit ask to run that agent.
	if pinned == "" && h.cache != nil {
		if entry, ok := h.cache.Get(model, query); ok {
			var ans grounding.Answer
			if err := json.Unmarshal(entry.Body, &ans); err == nil {
				h.respondCached(w, ctx, p, requestID, model, &ans, entry, start)
				return
			}
			// Undecodable entry: fall through and dispatch; Put overwrites it.
		}
	}

	if pinned == "" {
		_, span := tracing.StartSelectionSpan(ctx, model)
		a, err := p.Select(model)
		span.End()
		if err != nil {
			h.collector.RecordNoRoute(model)
			h.recordRequest(requestID, "", model, "", http.StatusServiceUnavailable, false, time.Since(start), 0, err.Error())
			// Expected load-shedding signal, not a fault.
			h.logger.Debug().
				Str("request_id", requestID).
				Str("model", model).
				Msg("no eligible agent for model")
			writeError(w, http.StatusServiceUnavailable, "no_route",
				fmt.Sprintf("no enabled agent with positive weight for model %q", model))
			return
		}
		agent = a
	}

	ans, err := h.client.Answer(ctx, agent.AgentID, query)
	if err != nil {
		latency := time.Since(start)
		h.collector.RecordUpstreamError()
		h.collector.RecordRequest(agent.Name, model, http.StatusBadGateway, false, latency, 0)
		h.recordRequest(requestID, agent.Name, model, agent.AgentID, http.StatusBadGateway, false, latency, 0, err.Error())
		tracing.RecordError(ctx, err)
		h.logger.Error().
			Err(err).
			Str("request_id", requestID).
			Str("agent", agent.Name).
			Str("selection", selection).
			Str("model", model).
			Msg("upstream grounding run failed")
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "processing_error",
			"message": upstreamMessage(err),
			"metadata": answerMetadata{
				AgentRoute: agent.Name,
				Model:      model,
				AgentID:    agent.AgentID,
				Region:     h.region,
				LatencyMs:  latency.Milliseconds(),
			},
		})
		return
	}

	tokens := h.tokenizer.CountTokens(model, ans.Content)
	latency := time.Since(start)

	if pinned == "" && h.cache != nil {
		if body, err := json.Marshal(ans); err == nil {
			h.cache.Put(model, query, &cache.Entry{
				Body:   body,
				Agent:  agent.Name,
				Model:  model,
				Tokens: tokens,
			})
		}
	}

	h.collector.RecordRequest(agent.Name, model, http.StatusOK, false, latency, tokens)
	h.recordRequest(requestID, agent.Name, model, agent.AgentID, http.StatusOK, false, latency, tokens, "")
	tracing.SetDispatchAttributes(ctx, http.StatusOK, tokens, false, agent.Name)

	h.logger.Info().
		Str("request_id", requestID).
		Str("agent", agent.Name).
		Str("selection", selection).
		Str("model", model).
		Int("tokens", tokens).
		Dur("latency", latency).
		Msg("dispatch complete")

	citations := ans.Citations
	if citations == nil {
		citations = []grounding.Citation{}
	}

	writeJSON(w, http.StatusOK, answerResponse{
		RequestID: requestID,
		Content:   ans.Content,
		Citations: citations,
		Metadata: answerMetadata{
			AgentRoute: agent.Name,
			Model:      model,
			AgentID:    agent.AgentID,
			Region:     h.region,
			LatencyMs:  latency.Milliseconds(),
			Tokens:     tokens,
		},
	})
}

// respondCached serves a dispatch from the answer cache. The metadata names
// the agent that originally produced the answer.
func (h *Handler) respondCached(w http.ResponseWriter, ctx context.Context, p *pool.Pool, requestID, model string, ans *grounding.Answer, entry *cache.Entry, start time.Time) {
	latency := time.Since(start)

	agentID := ""
	if a, ok := p.Agent(entry.Agent); ok {
		agentID = a.AgentID
	}

	h.collector.RecordRequest(entry.Agent, model, http.StatusOK, true, latency, entry.Tokens)
	h.recordRequest(requestID, entry.Agent, model, agentID, http.StatusOK, true, latency, entry.Tokens, "")
	tracing.SetDispatchAttributes(ctx, http.StatusOK, entry.Tokens, true, entry.Agent)

	h.logger.Info().
		Str("request_id", requestID).
		Str("agent", entry.Agent).
		Str("model", model).
		Msg("dispatch served from cache")

	citations := ans.Citations
	if citations == nil {
		citations = []grounding.Citation{}
	}

	writeJSON(w, http.StatusOK, answerResponse{
		RequestID: requestID,
		Content:   ans.Content,
		Citations: citations,
		Metadata: answerMetadata{
			AgentRoute: entry.Agent,
			Model:      model,
			AgentID:    agentID,
			Region:     h.region,
			CacheHit:   true,
			LatencyMs:  latency.Milliseconds(),
			Tokens:     entry.Tokens,
		},
	})
}

// recordRequest persists a dispatch record when the store is configured.
// Persistence failures are logged, never surfaced to the caller.
func (h *Handler) recordRequest(requestID, agent, model, agentID string, status int, cacheHit bool, latency time.Duration, tokens int, errMsg string) {
	if h.store == nil {
		return
	}
	err := h.store.InsertRequest(&store.Request{
		ID:           requestID,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Agent:        agent,
		Model:        model,
		AgentID:      agentID,
		StatusCode:   status,
		CacheHit:     cacheHit,
		LatencyMs:    latency.Milliseconds(),
		Tokens:       int64(tokens),
		ErrorMessage: errMsg,
		Region:       h.region,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", requestID).Msg("persisting request record")
	}
}

// swappedParams detects the common operator mistake of passing the question
// as model and the model name as query. A model value containing whitespace
// or a question mark is a question, not a model name; a query that
// normalises to a declared model name ("gpt4o", "GPT-4o") is the reversed
// form of the same mistake.
func swappedParams(p *pool.Pool, query, model string) bool {
	if strings.ContainsAny(model, " \t\n?") {
		return true
	}

	q := strings.ReplaceAll(strings.ToLower(query), " ", "")
	norm := strings.NewReplacer("-", "", ".", "")
	for _, m := range p.Models() {
		if q == norm.Replace(strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// upstreamMessage extracts a presentable message from an upstream failure.
func upstreamMessage(err error) string {
	var uerr *grounding.UpstreamError
	if errors.As(err, &uerr) {
		return uerr.Message
	}
	return err.Error()
}

// HandleUpdateWeight rewrites one agent's weight in the agents document on
// disk. The running pool is untouched until the next refresh.
func (h *Handler) HandleUpdateWeight(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var body struct {
		Weight *int `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON with a weight field")
		return
	}
	if body.Weight == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "weight field is required")
		return
	}

	err := pool.UpdateWeight(h.registry.Path(), name, *body.Weight)
	switch {
	case err == nil:
	case errors.Is(err, pool.ErrAgentNotFound):
		writeError(w, http.StatusNotFound, "unknown_agent", fmt.Sprintf("no agent named %q in the agents document", name))
		return
	default:
		var cfgErr *pool.ConfigError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusBadRequest, "invalid_request", cfgErr.Reason)
			return
		}
		h.logger.Error().Err(err).Str("agent", name).Msg("updating agent weight")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update agents document")
		return
	}

	h.logger.Info().Str("agent", name).Int("weight", *body.Weight).Msg("agent weight updated in document")
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":   name,
		"weight":  *body.Weight,
		"applied": false,
		"message": "weight written to agents document; refresh to apply",
	})
}

// HandleRefresh reloads the agents document and swaps in the new pool. On
// validation failure the running pool is kept and the error is reported.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.Reload()
	if err != nil {
		var cfgErr *pool.ConfigError
		if errors.As(err, &cfgErr) {
			h.logger.Warn().Err(err).Msg("refresh rejected, keeping current pool")
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error":   "validation_failed",
				"message": cfgErr.Reason,
			})
			return
		}
		h.logger.Error().Err(err).Msg("refresh failed, keeping current pool")
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	health := p.Health()
	h.setModelGauges(health)
	h.logger.Info().
		Int("agents", health.AgentsLoaded).
		Str("status", health.Status).
		Msg("pool refreshed")

	writeJSON(w, http.StatusOK, agentsSummary(p))
}

// setModelGauges pushes the per-model weight and active-agent gauges from a
// health snapshot.
func (h *Handler) setModelGauges(health pool.Health) {
	weights := make(map[string]int64, len(health.Models))
	active := make(map[string]int, len(health.Models))
	for m, mh := range health.Models {
		weights[m] = int64(mh.TotalWeight)
		active[m] = mh.ActiveAgents
	}
	h.collector.SetModelGauges(weights, active)
}

// requestRecord is the wire form of a persisted dispatch record.
type requestRecord struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	Agent        string `json:"agent"`
	Model        string `json:"model"`
	AgentID      string `json:"agent_id"`
	StatusCode   int    `json:"status_code"`
	CacheHit     bool   `json:"cache_hit"`
	LatencyMs    int64  `json:"latency_ms"`
	Tokens       int64  `json:"tokens"`
	ErrorMessage string `json:"error_message,omitempty"`
	Region       string `json:"region"`
}

// HandleRequests returns a page of persisted dispatch records, newest first.
func (h *Handler) HandleRequests(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_disabled", "request persistence is disabled")
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	reqs, err := h.store.ListRequests(limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("listing requests")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list requests")
		return
	}

	records := make([]requestRecord, 0, len(reqs))
	for _, q := range reqs {
		records = append(records, requestRecord{
			ID:           q.ID,
			Timestamp:    q.Timestamp,
			Agent:        q.Agent,
			Model:        q.Model,
			AgentID:      q.AgentID,
			StatusCode:   q.StatusCode,
			CacheHit:     q.CacheHit,
			LatencyMs:    q.LatencyMs,
			Tokens:       q.Tokens,
			ErrorMessage: q.ErrorMessage,
			Region:       q.Region,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":    len(records),
		"requests": records,
	})
}

// HandleStats reports live counters plus 24-hour aggregates from the store.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"runtime": h.collector.Stats(),
	}

	if h.store != nil {
		since := time.Now().Add(-24 * time.Hour)
		if stats, err := h.store.GetRequestStats(since); err == nil {
			resp["last_24h"] = map[string]any{
				"total_requests": stats.TotalRequests,
				"total_tokens":   stats.TotalTokens,
				"cache_hits":     stats.CacheHits,
				"cache_misses":   stats.CacheMisses,
				"errors":         stats.Errors,
				"avg_latency_ms": stats.AvgLatencyMs,
			}
		} else {
			h.logger.Error().Err(err).Msg("computing request stats")
		}
		if counts, err := h.store.CountByAgent(since); err == nil {
			resp["by_agent"] = counts
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
