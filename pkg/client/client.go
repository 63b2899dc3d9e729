// Package client is the Go SDK for the agentdir registry: registration,
// card validation, heartbeats, and discovery queries over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/agentdir/agentdir/pkg/agentcard"
)

// Liveness is the dynamic state of an agent as reported by the registry.
type Liveness struct {
	Status     string     `json:"status"`
	Load       *float64   `json:"load,omitempty"`
	Message    string     `json:"message,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// Agent is the merged static + dynamic view returned by reads.
type Agent struct {
	ID        string         `json:"id"`
	Card      agentcard.Card `json:"card"`
	CreatedAt time.Time      `json:"created_at"`
	Liveness  Liveness       `json:"liveness"`
	Online    bool           `json:"online"`
}

// RegisterResult is returned by Register. HeartbeatToken is delivered
// exactly once; store it, the registry cannot show it again.
type RegisterResult struct {
	ID             string   `json:"agent_id"`
	HeartbeatToken string   `json:"heartbeat_token"`
	Warnings       []string `json:"warnings,omitempty"`
}

// HeartbeatRequest is the payload for Heartbeat. Load and Message are
// full-replacement fields: omit them and the registry clears them.
type HeartbeatRequest struct {
	Status  string   `json:"status"`
	Load    *float64 `json:"load,omitempty"`
	Message string   `json:"message,omitempty"`
}

// HeartbeatResult is the state the registry stored for this heartbeat.
type HeartbeatResult struct {
	AgentID  string   `json:"agent_id"`
	Liveness Liveness `json:"liveness"`
	Online   bool     `json:"online"`
}

// SearchOptions hold the recognized search criteria; zero values are
// omitted from the query string and do not filter.
type SearchOptions struct {
	Skill      string
	Tag        string
	Q          string
	Capability string
	Status     string
	Online     bool
	Limit      int
	Offset     int
}

// ListOptions hold the recognized listing filters.
type ListOptions struct {
	Status string
	Online bool
	Limit  int
	Offset int
}

// APIError is a non-2xx response from the registry.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to one agentdir registry.
type Client struct {
	registryBase string
	httpClient   *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the registry at registryBase,
// e.g. "http://localhost:8080".
func New(registryBase string, opts ...Option) *Client {
	c := &Client{
		registryBase: registryBase,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register submits a card and returns the assigned id and the one-time
// heartbeat token.
func (c *Client) Register(ctx context.Context, card *agentcard.Card) (*RegisterResult, error) {
	var result RegisterResult
	payload := map[string]any{"card": card}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/agents", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Validate checks a card against the registry's schema without
// registering it.
func (c *Client) Validate(ctx context.Context, card *agentcard.Card) (*agentcard.ValidationResult, error) {
	var result agentcard.ValidationResult
	payload := map[string]any{"card": card}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/validate", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Heartbeat reports the agent's current state, authenticated with the
// token issued at registration.
func (c *Client) Heartbeat(ctx context.Context, id, token string, req HeartbeatRequest) (*HeartbeatResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode heartbeat: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.registryBase+"/api/v1/agents/"+url.PathEscape(id)+"/heartbeat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build heartbeat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	var result HeartbeatResult
	if err := c.send(httpReq, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get fetches one agent by id.
func (c *Client) Get(ctx context.Context, id string) (*Agent, error) {
	var wrapper struct {
		Agent Agent `json:"agent"`
	}
	path := "/api/v1/agents/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Agent, nil
}

// List returns agents matching the listing filters.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]Agent, error) {
	q := url.Values{}
	setIfPresent(q, "status", opts.Status)
	if opts.Online {
		q.Set("online", "true")
	}
	setPage(q, opts.Limit, opts.Offset)
	return c.fetchAgents(ctx, "/api/v1/agents", q)
}

// Search returns agents matching the AND-composed criteria.
func (c *Client) Search(ctx context.Context, opts SearchOptions) ([]Agent, error) {
	q := url.Values{}
	setIfPresent(q, "skill", opts.Skill)
	setIfPresent(q, "tag", opts.Tag)
	setIfPresent(q, "q", opts.Q)
	setIfPresent(q, "capability", opts.Capability)
	setIfPresent(q, "status", opts.Status)
	if opts.Online {
		q.Set("online", "true")
	}
	setPage(q, opts.Limit, opts.Offset)
	return c.fetchAgents(ctx, "/api/v1/agents/search", q)
}

func (c *Client) fetchAgents(ctx context.Context, path string, q url.Values) ([]Agent, error) {
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var wrapper struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Agents, nil
}

// doJSON performs a JSON request/response round-trip against the registry.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.registryBase+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.send(req, out)
}

// send executes the request and decodes the response, converting non-2xx
// responses into *APIError with the server's error message.
func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func setIfPresent(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func setPage(q url.Values, limit, offset int) {
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
}
