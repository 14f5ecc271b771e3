package letta

import "context"

// KnowledgeTag marks knowledge-base passages so they can be told apart from
// customer memories that live in the same archive.
const KnowledgeTag = "KNOWLEDGE_BASE"

// Archive is the subset of the API the memory and knowledge clients use.
type Archive interface {
	Insert(ctx context.Context, text string) (Passage, error)
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
	List(ctx context.Context, limit int) ([]Passage, error)
	Delete(ctx context.Context, passageID string) error
}

var _ Archive = (*Client)(nil)
