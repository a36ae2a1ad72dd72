package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Request represents a single dispatched grounding request record.
type Request struct {
	ID           string
	Timestamp    string
	Agent        string
	Model        string
	AgentID      string
	StatusCode   int
	CacheHit     bool
	LatencyMs    int64
	Tokens       int64
	ErrorMessage string
	Region       string
}

// RequestStats holds aggregate statistics for a range of requests.
type RequestStats struct {
	TotalRequests int64
	TotalTokens   int64
	CacheHits     int64
	CacheMisses   int64
	Errors        int64
	AvgLatencyMs  float64
}

// InsertRequest stores a new request record. The caller is responsible
// for providing a unique ID (typically a UUID).
func (s *Store) InsertRequest(r *Request) error {
	cacheHitInt := 0
	if r.CacheHit {
		cacheHitInt = 1
	}

	_, err := s.writer.Exec(`
		INSERT INTO requests (
			id, timestamp, agent, model, agent_id,
			status_code, cache_hit, latency_ms, tokens,
			error_message, region
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Timestamp, r.Agent, r.Model, r.AgentID,
		r.StatusCode, cacheHitInt, r.LatencyMs, r.Tokens,
		r.ErrorMessage, r.Region,
	)
	if err != nil {
		return fmt.Errorf("store: insert request: %w", err)
	}
	return nil
}

// GetRequest retrieves a single request by its ID.
// Returns sql.ErrNoRows if the request does not exist.
func (s *Store) GetRequest(id string) (*Request, error) {
	r := &Request{}
	var cacheHitInt int

	err := s.reader.QueryRow(`
		SELECT id, timestamp, agent, model, agent_id,
		       status_code, cache_hit, latency_ms, tokens,
		       error_message, region
		FROM requests WHERE id = ?`, id,
	).Scan(
		&r.ID, &r.Timestamp, &r.Agent, &r.Model, &r.AgentID,
		&r.StatusCode, &cacheHitInt, &r.LatencyMs, &r.Tokens,
		&r.ErrorMessage, &r.Region,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get request %s: %w", id, err)
	}

	r.CacheHit = cacheHitInt != 0
	return r, nil
}

// ListRequests returns a page of requests ordered by timestamp descending.
func (s *Store) ListRequests(limit, offset int) ([]*Request, error) {
	rows, err := s.reader.Query(`
		SELECT id, timestamp, agent, model, agent_id,
		       status_code, cache_hit, latency_ms, tokens,
		       error_message, region
		FROM requests
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list requests: %w", err)
	}
	defer rows.Close()

	var results []*Request
	for rows.Next() {
		r := &Request{}
		var cacheHitInt int
		if err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Agent, &r.Model, &r.AgentID,
			&r.StatusCode, &cacheHitInt, &r.LatencyMs, &r.Tokens,
			&r.ErrorMessage, &r.Region,
		); err != nil {
			return nil, fmt.Errorf("store: scan request row: %w", err)
		}
		r.CacheHit = cacheHitInt != 0
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list requests iteration: %w", err)
	}
	return results, nil
}

// GetRequestStats computes aggregate statistics for all requests whose
// timestamp is >= since.
func (s *Store) GetRequestStats(since time.Time) (*RequestStats, error) {
	sinceStr := since.UTC().Format(time.RFC3339)
	stats := &RequestStats{}

	err := s.reader.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(tokens), 0),
			COALESCE(SUM(CASE WHEN cache_hit = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN cache_hit = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(latency_ms), 0.0)
		FROM requests
		WHERE timestamp >= ?`, sinceStr,
	).Scan(
		&stats.TotalRequests,
		&stats.TotalTokens,
		&stats.CacheHits,
		&stats.CacheMisses,
		&stats.Errors,
		&stats.AvgLatencyMs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return stats, nil
		}
		return nil, fmt.Errorf("store: get request stats: %w", err)
	}

	return stats, nil
}

// CountByAgent returns the number of requests per agent since the given
// time, ordered by count descending.
func (s *Store) CountByAgent(since time.Time) (map[string]int64, error) {
	sinceStr := since.UTC().Format(time.RFC3339)

	rows, err := s.reader.Query(`
		SELECT agent, COUNT(*)
		FROM requests
		WHERE timestamp >= ? AND agent != ''
		GROUP BY agent
		ORDER BY COUNT(*) DESC`, sinceStr,
	)
	if err != nil {
		return nil, fmt.Errorf("store: count by agent: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var agent string
		var n int64
		if err := rows.Scan(&agent, &n); err != nil {
			return nil, fmt.Errorf("store: scan agent count: %w", err)
		}
		counts[agent] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: count by agent iteration: %w", err)
	}
	return counts, nil
}
