// Package letta is a small REST client for the Letta archival-memory API.
// The memory and knowledge clients share one instance.
package letta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrNoAgent is returned when the account has no agent to attach memory to.
var ErrNoAgent = errors.New("letta: no agents available")

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("letta api error: %d - %s", e.Status, e.Body)
}

// Passage is one archival memory entry.
type Passage struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// SearchHit is one semantic search result.
type SearchHit struct {
	Timestamp string   `json:"timestamp"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
}

type searchResponse struct {
	Results []SearchHit `json:"results"`
	Count   int         `json:"count"`
}

type agent struct {
	ID string `json:"id"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu      sync.Mutex
	agentID string
}

// NewClient creates a client. agentID may be empty; the first agent of the
// account is then discovered on first use and cached.
func NewClient(baseURL, apiKey, agentID string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		agentID:    agentID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// AgentID resolves the agent that owns the archival memory.
func (c *Client) AgentID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agentID != "" {
		return c.agentID, nil
	}

	var agents []agent
	if err := c.do(ctx, http.MethodGet, "/v1/agents", nil, &agents); err != nil {
		return "", fmt.Errorf("list agents: %w", err)
	}
	if len(agents) == 0 || agents[0].ID == "" {
		return "", ErrNoAgent
	}
	c.agentID = agents[0].ID
	log.Printf("🧠 Using Letta agent: %s", c.agentID)
	return c.agentID, nil
}

// Insert stores text and returns the created passage.
func (c *Client) Insert(ctx context.Context, text string) (Passage, error) {
	id, err := c.AgentID(ctx)
	if err != nil {
		return Passage{}, err
	}

	var raw json.RawMessage
	body := map[string]string{"text": text}
	if err := c.do(ctx, http.MethodPost, "/v1/agents/"+id+"/archival-memory", body, &raw); err != nil {
		return Passage{}, fmt.Errorf("insert passage: %w", err)
	}

	if len(raw) == 0 {
		return Passage{}, nil
	}
	// The API answers with either the passage or a one-element array.
	var list []Passage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return Passage{}, nil
		}
		return list[0], nil
	}
	var p Passage
	if err := json.Unmarshal(raw, &p); err != nil {
		return Passage{}, fmt.Errorf("decode passage: %w", err)
	}
	return p, nil
}

// Search runs a semantic query. No hits is an empty slice, not an error.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	id, err := c.AgentID(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", fmt.Sprint(limit))

	var res searchResponse
	if err := c.do(ctx, http.MethodGet, "/v1/agents/"+id+"/archival-memory/search?"+q.Encode(), nil, &res); err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}
	return res.Results, nil
}

// List returns up to limit passages.
func (c *Client) List(ctx context.Context, limit int) ([]Passage, error) {
	id, err := c.AgentID(ctx)
	if err != nil {
		return nil, err
	}
	var out []Passage
	path := fmt.Sprintf("/v1/agents/%s/archival-memory?limit=%d", id, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list passages: %w", err)
	}
	return out, nil
}

// Delete removes a passage by id.
func (c *Client) Delete(ctx context.Context, passageID string) error {
	id, err := c.AgentID(ctx)
	if err != nil {
		return err
	}
	path := "/v1/agents/" + id + "/archival-memory/" + url.PathEscape(passageID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete passage %s: %w", passageID, err)
	}
	return nil
}

// Health checks that the key is set and an agent can be resolved.
func (c *Client) Health(ctx context.Context) error {
	if !c.Configured() {
		return errors.New("letta: api key missing")
	}
	_, err := c.AgentID(ctx)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
