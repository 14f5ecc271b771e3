package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"support-orchestrator/internal/knowledge"
)

var _ knowledge.Catalog = (*SQLiteStore)(nil)

func (s *SQLiteStore) SaveDocument(ctx context.Context, d knowledge.Document) error {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	created := d.CreatedAt
	if created == "" {
		created = formatTime(s.stamp())
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge_documents (id, title, content, category, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			category = excluded.category,
			tags = excluded.tags`,
		d.ID, d.Title, d.Content, string(d.Category), string(encoded), created)
	if err != nil {
		return fmt.Errorf("save document %s: %w", d.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]knowledge.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, category, tags, created_at
		FROM knowledge_documents ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []knowledge.Document{}
	for rows.Next() {
		var d knowledge.Document
		var category, tags string
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &category, &tags, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Category = knowledge.Category(category)
		if err := json.Unmarshal([]byte(tags), &d.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", d.ID, err)
		}
		if d.Tags == nil {
			d.Tags = []string{}
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument is a no-op for unknown ids.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}
