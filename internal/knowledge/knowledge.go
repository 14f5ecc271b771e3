package knowledge

import (
	"context"
	"fmt"
	"log"
	"strings"

	"support-orchestrator/internal/letta"
)

const (
	defaultSearchLimit = 5
	listLimit          = 100
)

// Catalog is a typed copy of every stored document with a real category
// column. When configured, List reads from it instead of decoding headers.
type Catalog interface {
	SaveDocument(ctx context.Context, doc Document) error
	ListDocuments(ctx context.Context) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

type Client struct {
	archive letta.Archive
	catalog Catalog
}

type Option func(*Client)

// WithCatalog mirrors documents into c.
func WithCatalog(c Catalog) Option {
	return func(k *Client) { k.catalog = c }
}

func New(archive letta.Archive, opts ...Option) *Client {
	c := &Client{archive: archive}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Store validates and saves a document and returns its id.
func (c *Client) Store(ctx context.Context, doc Document) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", err
	}
	doc.Tags = cleanTags(doc.Tags)

	p, err := c.archive.Insert(ctx, Encode(doc))
	if err != nil {
		return "", fmt.Errorf("store knowledge %q: %w", doc.Title, err)
	}
	if p.ID == "" {
		return "", fmt.Errorf("store knowledge %q: archive returned no passage id", doc.Title)
	}
	doc.ID = p.ID
	doc.CreatedAt = p.CreatedAt
	log.Printf("📚 Stored knowledge document: %q (%s)", doc.Title, doc.ID)

	if c.catalog != nil {
		if err := c.catalog.SaveDocument(ctx, doc); err != nil {
			log.Printf("⚠️ knowledge catalog save failed for %s: %v", doc.ID, err)
		}
	}
	return doc.ID, nil
}

// Query narrows a knowledge search.
type Query struct {
	Text     string
	Limit    int
	Category Category
}

// Search returns knowledge formatted as prompt context, or "" when nothing
// matches.
func (c *Client) Search(ctx context.Context, q Query) (string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	hits, err := c.archive.Search(ctx, letta.KnowledgeTag+" "+q.Text, limit)
	if err != nil {
		return "", fmt.Errorf("search knowledge: %w", err)
	}

	var entries []string
	for _, h := range hits {
		if !IsKnowledge(h.Content) {
			continue
		}
		if q.Category != "" && Decode("", h.Content, "").Category != q.Category {
			continue
		}
		entries = append(entries, fmt.Sprintf("[Knowledge %d]\n%s", len(entries)+1, h.Content))
	}
	if len(entries) == 0 {
		return "", nil
	}
	return "Relevant Product Knowledge:\n" + strings.Join(entries, "\n\n---\n\n"), nil
}

// List returns every knowledge document.
func (c *Client) List(ctx context.Context) ([]Document, error) {
	if c.catalog != nil {
		docs, err := c.catalog.ListDocuments(ctx)
		if err != nil {
			return nil, fmt.Errorf("list knowledge catalog: %w", err)
		}
		return docs, nil
	}

	passages, err := c.archive.List(ctx, listLimit)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	docs := make([]Document, 0, len(passages))
	for _, p := range passages {
		if IsKnowledge(p.Text) {
			docs = append(docs, Decode(p.ID, p.Text, p.CreatedAt))
		}
	}
	return docs, nil
}

// Delete removes a document from the archive and the catalog.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.archive.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete knowledge: %w", err)
	}
	if c.catalog != nil {
		if err := c.catalog.DeleteDocument(ctx, id); err != nil {
			return fmt.Errorf("delete knowledge catalog entry: %w", err)
		}
	}
	log.Printf("🗑️ Deleted knowledge document: %s", id)
	return nil
}

// InstallTemplates stores every starter template and reports how many were saved.
func (c *Client) InstallTemplates(ctx context.Context) (installed, total int, err error) {
	templates, err := Templates()
	if err != nil {
		return 0, 0, err
	}
	for _, t := range templates {
		if _, err := c.Store(ctx, t); err != nil {
			log.Printf("⚠️ template %q not installed: %v", t.Title, err)
			continue
		}
		installed++
	}
	return installed, len(templates), nil
}
