// Package memory stores and recalls free-text customer interaction summaries
// in the archival memory store.
package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"support-orchestrator/internal/letta"
)

// NoHistory is returned by ContextFor when nothing is known about a customer.
const NoHistory = "No previous interactions found for this customer."

const contextLimit = 5

type Client struct {
	archive letta.Archive
	now     func() time.Time
}

func New(archive letta.Archive) *Client {
	return &Client{archive: archive, now: time.Now}
}

// Store saves text prefixed with a metadata header and returns the passage id.
// The id may be empty when the store does not report one.
func (c *Client) Store(ctx context.Context, text string, metadata map[string]string) (string, error) {
	p, err := c.archive.Insert(ctx, FormatMetadata(metadata)+text)
	if err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}
	log.Printf("🧠 Stored memory in archival: %s", orUnknown(p.ID))
	return p.ID, nil
}

// Search returns up to limit matching memories. Knowledge-base passages are
// excluded. No match is a nil slice and a nil error.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]string, error) {
	hits, err := c.archive.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	var out []string
	for _, h := range hits {
		if strings.Contains(h.Content, "["+letta.KnowledgeTag) {
			continue
		}
		out = append(out, h.Content)
	}
	return out, nil
}

// ContextFor renders what is remembered about a customer, or NoHistory.
func (c *Client) ContextFor(ctx context.Context, email string) (string, error) {
	memories, err := c.Search(ctx, "customer "+email, contextLimit)
	if err != nil {
		return "", err
	}
	if len(memories) == 0 {
		return NoHistory, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Previous customer interactions (%d found):\n", len(memories))
	for i, m := range memories {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, m)
	}
	return b.String(), nil
}

// Interaction is a processed ticket worth remembering.
type Interaction struct {
	TicketID       string
	CustomerEmail  string
	Summary        string
	Classification string
	Resolution     string
}

// StoreInteraction saves a structured interaction summary.
func (c *Client) StoreInteraction(ctx context.Context, in Interaction) (string, error) {
	content := fmt.Sprintf("Customer Interaction Summary:\nCustomer: %s\nTicket ID: %s\nCategory: %s\nSummary: %s\nResolution: %s\nDate: %s",
		in.CustomerEmail, in.TicketID, in.Classification, in.Summary, in.Resolution, c.now().UTC().Format(time.RFC3339))
	return c.Store(ctx, content, map[string]string{
		"type":           "customer_interaction",
		"customer":       in.CustomerEmail,
		"ticket_id":      in.TicketID,
		"classification": in.Classification,
	})
}

// FormatMetadata renders "[k: v | k: v]\n" with sorted keys. Empty values are
// dropped; an empty map yields an empty string.
func FormatMetadata(metadata map[string]string) string {
	keys := make([]string, 0, len(metadata))
	for k, v := range metadata {
		if v != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+metadata[k])
	}
	return "[" + strings.Join(parts, " | ") + "]\n"
}

func orUnknown(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}
