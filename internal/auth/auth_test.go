package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

type memRepo struct{ clients []Client }

func (m *memRepo) LoadAll() ([]Client, error) { return append([]Client{}, m.clients...), nil }
func (m *memRepo) Upsert(c Client) error {
	for i, x := range m.clients {
		if x.Key == c.Key {
			m.clients[i] = c
			return nil
		}
	}
	m.clients = append(m.clients, c)
	return nil
}
func (m *memRepo) Remove(key string) error {
	out := make([]Client, 0, len(m.clients))
	for _, x := range m.clients {
		if x.Key != key {
			out = append(out, x)
		}
	}
	m.clients = out
	return nil
}

func TestServiceBasic(t *testing.T) {
	repo := &memRepo{clients: []Client{{Key: "k-10", Name: "acme", WorkspaceID: "ws-acme"}}}
	svc, err := NewWithRepo(repo, []string{"k-20", " ", ""})
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	if c, ok := svc.Lookup("k-10"); !ok || c.WorkspaceID != "ws-acme" {
		t.Fatalf("repo preload not effective: %+v", c)
	}
	if _, ok := svc.Lookup("k-20"); !ok {
		t.Fatalf("initial env list not merged")
	}
	if _, ok := svc.Lookup("k-30"); ok {
		t.Fatalf("unexpected key allowed")
	}
	if len(svc.List()) != 2 {
		t.Fatalf("blank env keys must be ignored, got %v", svc.List())
	}

	if err := svc.Upsert(Client{Key: "k-30", Name: "bob"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, ok := svc.Lookup("k-30"); !ok || len(repo.clients) != 2 {
		t.Fatalf("upsert not effective")
	}
	if err := svc.Upsert(Client{}); err == nil {
		t.Fatalf("empty key must be rejected")
	}

	if err := svc.Remove("k-10"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := svc.Lookup("k-10"); ok {
		t.Fatalf("remove not effective")
	}

	lst := svc.List()
	if len(lst) != 2 || lst[0].Key != "k-20" || lst[1].Name != "bob" {
		t.Fatalf("unexpected list order: %+v", lst)
	}
}

func TestEnabled(t *testing.T) {
	svc, _ := NewWithRepo(nil, nil)
	if svc.Enabled() {
		t.Fatalf("no keys means auth is disabled")
	}
	_ = svc.Upsert(Client{Key: "k"})
	if !svc.Enabled() {
		t.Fatalf("auth should be enabled once a key exists")
	}
}

func TestContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("empty context has no client")
	}
	ctx := WithClient(context.Background(), Client{Key: "k", Name: "acme"})
	if c, ok := FromContext(ctx); !ok || c.Name != "acme" {
		t.Fatalf("client not carried: %+v", c)
	}
}

func TestFileRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "api_keys.json")
	repo, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}

	clients, err := repo.LoadAll()
	if err != nil || len(clients) != 0 {
		t.Fatalf("empty file: %v %v", clients, err)
	}

	if err := repo.Upsert(Client{Key: "a", Name: "one"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(Client{Key: "b", Name: "two"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(Client{Key: "a", Name: "uno"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.Remove("b"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	svc, err := NewWithRepo(repo, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if c, ok := svc.Lookup("a"); !ok || c.Name != "uno" || len(svc.List()) != 1 {
		t.Fatalf("unexpected persisted state: %+v", svc.List())
	}
}

func TestFileRepository_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_keys.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	repo, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	if _, err := NewWithRepo(repo, nil); err == nil {
		t.Fatalf("malformed key file must fail loudly")
	}
}
