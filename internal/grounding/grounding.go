package grounding

import (
	"context"
	"fmt"
)

// Citation is a single source reference attached to a grounded answer.
type Citation struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// Answer is the result of a grounded search run: the synthesized answer
// text plus the web sources it cites.
type Answer struct {
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
}

// Client runs a grounded search against the backend agent identified by
// agentID and returns its answer.
type Client interface {
	Answer(ctx context.Context, agentID, query string) (*Answer, error)
}

// UpstreamError reports a failed grounding run. StatusCode is the HTTP
// status the backend returned, or 0 when the call never completed.
type UpstreamError struct {
	AgentID    string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("grounding upstream: agent %s returned status %d: %s", e.AgentID, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("grounding upstream: agent %s: %s", e.AgentID, e.Message)
}
