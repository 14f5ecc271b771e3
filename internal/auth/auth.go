// Package auth keeps the allowlist of API keys that may call the REST API.
package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Client is the holder of one API key. WorkspaceID, when set, tags every
// ticket the client submits.
type Client struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

type Repository interface {
	LoadAll() ([]Client, error)
	Upsert(c Client) error
	Remove(key string) error
}

type Service struct {
	repo Repository

	mu      sync.RWMutex
	clients map[string]Client
}

// NewWithRepo preloads clients from repo and merges the initial keys from
// the environment. Keys from the environment have no name or workspace.
func NewWithRepo(repo Repository, initial []string) (*Service, error) {
	s := &Service{repo: repo, clients: make(map[string]Client)}
	if repo != nil {
		clients, err := repo.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("load api keys: %w", err)
		}
		for _, c := range clients {
			if c.Key != "" {
				s.clients[c.Key] = c
			}
		}
	}
	for _, key := range initial {
		key = strings.TrimSpace(key)
		if _, ok := s.clients[key]; key != "" && !ok {
			s.clients[key] = Client{Key: key}
		}
	}
	return s, nil
}

// Enabled reports whether any key is configured. With no keys the API is open.
func (s *Service) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients) > 0
}

func (s *Service) Lookup(key string) (Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[key]
	return c, ok
}

func (s *Service) Upsert(c Client) error {
	if c.Key == "" {
		return fmt.Errorf("api key must not be empty")
	}
	s.mu.Lock()
	s.clients[c.Key] = c
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Upsert(c)
	}
	return nil
}

func (s *Service) Remove(key string) error {
	s.mu.Lock()
	delete(s.clients, key)
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Remove(key)
	}
	return nil
}

// List returns the clients ordered by name, then key.
func (s *Service) List() []Client {
	s.mu.RLock()
	out := make([]Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Key < out[j].Key
	})
	return out
}

type ctxKey struct{}

func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the authenticated client of a request, if any.
func FromContext(ctx context.Context) (Client, bool) {
	c, ok := ctx.Value(ctxKey{}).(Client)
	return c, ok
}
