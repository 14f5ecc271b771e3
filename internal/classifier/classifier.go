// Package classifier turns support messages into structured classifications
// and customer-facing replies using an LLM.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"support-orchestrator/internal/llm"
)

const (
	classifyTemperature = 0.3
	responseTemperature = 0.7
	insightTemperature  = 0.5

	defaultBrand = "Twisky"
)

type Client struct {
	llm   llm.Client
	brand string
}

func New(client llm.Client) *Client {
	return &Client{llm: client, brand: defaultBrand}
}

// WithBrand overrides the product name used in the response prompt.
func (c *Client) WithBrand(brand string) *Client {
	if brand != "" {
		c.brand = brand
	}
	return c
}

// Classify runs the low-temperature classification profile. background carries
// customer history and knowledge snippets and may be empty.
func (c *Client) Classify(ctx context.Context, message, background string) (Classification, error) {
	resp, err := c.llm.Generate(ctx, []llm.Message{
		{Role: "system", Content: buildClassifyPrompt(background)},
		{Role: "user", Content: message},
	}, llm.WithTemperature(classifyTemperature), llm.WithJSONMode())
	if err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}

	var out Classification
	if err := decodeJSON(resp.Content, &out); err != nil {
		return Classification{}, fmt.Errorf("classify: decode: %w", err)
	}
	if err := out.Validate(); err != nil {
		return Classification{}, err
	}
	if out.KeyEntities == nil {
		out.KeyEntities = []string{}
	}
	return out, nil
}

// GenerateResponse runs the creative profile and returns the reply for the customer.
func (c *Client) GenerateResponse(ctx context.Context, p ResponseParams) (Reply, error) {
	resp, err := c.llm.Generate(ctx, []llm.Message{
		{Role: "system", Content: buildResponsePrompt(c.brand, p)},
		{Role: "user", Content: p.Message},
	}, llm.WithTemperature(responseTemperature), llm.WithJSONMode())
	if err != nil {
		return Reply{}, fmt.Errorf("generate response: %w", err)
	}

	var out Reply
	if err := decodeJSON(resp.Content, &out); err != nil {
		return Reply{}, fmt.Errorf("generate response: decode: %w", err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return Reply{}, errors.New("generate response: empty response text")
	}
	if out.SuggestedActions == nil {
		out.SuggestedActions = []string{}
	}
	return out, nil
}

// SummarizeInsight folds a new interaction into a short customer profile.
func (c *Client) SummarizeInsight(ctx context.Context, email, interaction, previous string) (string, error) {
	resp, err := c.llm.Generate(ctx, []llm.Message{
		{Role: "system", Content: buildInsightPrompt(previous)},
		{Role: "user", Content: fmt.Sprintf("Customer email: %s\n\nNew interaction:\n%s", email, interaction)},
	}, llm.WithTemperature(insightTemperature))
	if err != nil {
		return "", fmt.Errorf("summarize insight: %w", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", errors.New("summarize insight: empty summary")
	}
	return summary, nil
}

// decodeJSON tolerates a markdown fence around the object, which some
// providers add even when asked not to.
func decodeJSON(content string, v any) error {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return json.Unmarshal([]byte(s), v)
}
