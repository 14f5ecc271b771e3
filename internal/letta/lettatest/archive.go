// Package lettatest provides an in-memory letta.Archive for tests.
package lettatest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"support-orchestrator/internal/letta"
)

// Archive keeps passages in memory. Search matches passages that contain
// any whitespace-separated query term, case-insensitively.
type Archive struct {
	mu       sync.Mutex
	next     int
	passages []letta.Passage

	// Err, when set, is returned by every call.
	Err error
}

func New() *Archive {
	return &Archive{}
}

func (a *Archive) Insert(_ context.Context, text string) (letta.Passage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return letta.Passage{}, a.Err
	}
	a.next++
	p := letta.Passage{
		ID:        fmt.Sprintf("passage-%d", a.next),
		Text:      text,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, a.next, 0, time.UTC).Format(time.RFC3339),
	}
	a.passages = append(a.passages, p)
	return p, nil
}

func (a *Archive) Search(_ context.Context, query string, limit int) ([]letta.SearchHit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return nil, a.Err
	}
	terms := strings.Fields(strings.ToLower(query))
	var hits []letta.SearchHit
	for _, p := range a.passages {
		if len(hits) >= limit {
			break
		}
		text := strings.ToLower(p.Text)
		for _, term := range terms {
			if strings.Contains(text, term) {
				hits = append(hits, letta.SearchHit{Timestamp: p.CreatedAt, Content: p.Text})
				break
			}
		}
	}
	return hits, nil
}

func (a *Archive) List(_ context.Context, limit int) ([]letta.Passage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return nil, a.Err
	}
	n := len(a.passages)
	if limit < n {
		n = limit
	}
	return append([]letta.Passage(nil), a.passages[:n]...), nil
}

func (a *Archive) Delete(_ context.Context, passageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	for i, p := range a.passages {
		if p.ID == passageID {
			a.passages = append(a.passages[:i], a.passages[i+1:]...)
			return nil
		}
	}
	return &letta.APIError{Status: 404, Body: "passage not found"}
}

// Texts returns the stored passage texts in insertion order.
func (a *Archive) Texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.passages))
	for _, p := range a.passages {
		out = append(out, p.Text)
	}
	return out
}
