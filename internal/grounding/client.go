package grounding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/groundworks/groundpool/internal/tracing"
)

// HTTPClient dispatches grounded search runs to the backend over HTTP.
// It uses a shared http.Client with connection pooling; grounded searches
// routinely run for tens of seconds, so the timeout is caller-configured.
type HTTPClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPClient creates an HTTPClient for the given backend endpoint.
// A trailing slash on the endpoint is tolerated.
func NewHTTPClient(endpoint, apiKey string, timeout time.Duration) *HTTPClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// runRequest is the wire request for a grounded search run.
type runRequest struct {
	AgentID string `json:"agent_id"`
	Query   string `json:"query"`
}

// runResponse is the wire response for a grounded search run.
type runResponse struct {
	Content   string     `json:"content"`
	Citations []Citation `json:"citations"`
	Error     string     `json:"error"`
}

// Answer runs a grounded search on the given backend agent.
func (c *HTTPClient) Answer(ctx context.Context, agentID, query string) (*Answer, error) {
	body, err := json.Marshal(runRequest{AgentID: agentID, Query: query})
	if err != nil {
		return nil, fmt.Errorf("grounding: marshalling run request: %w", err)
	}

	url := c.endpoint + "/runs"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("grounding: creating run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	ctx, span := tracing.StartUpstreamSpan(ctx, url, agentID)
	defer span.End()
	tracing.InjectHeaders(ctx, httpReq)

	resp, err := c.client.Do(httpReq.WithContext(ctx))
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, &UpstreamError{AgentID: agentID, Message: err.Error()}
	}
	defer resp.Body.Close()

	// Cap the body read; grounded answers are text, not payload dumps.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, &UpstreamError{AgentID: agentID, Message: fmt.Sprintf("reading response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		var parsed runResponse
		if json.Unmarshal(data, &parsed) == nil && parsed.Error != "" {
			msg = parsed.Error
		}
		uerr := &UpstreamError{AgentID: agentID, StatusCode: resp.StatusCode, Message: msg}
		tracing.RecordError(ctx, uerr)
		return nil, uerr
	}

	var parsed runResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		uerr := &UpstreamError{AgentID: agentID, StatusCode: resp.StatusCode, Message: fmt.Sprintf("decoding response: %v", err)}
		tracing.RecordError(ctx, uerr)
		return nil, uerr
	}

	return &Answer{
		Content:   parsed.Content,
		Citations: parsed.Citations,
	}, nil
}
