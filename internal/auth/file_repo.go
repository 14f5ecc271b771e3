package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileRepository stores clients as a JSON array.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("touch file: %w", err)
	}
	_ = f.Close()
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) LoadAll() ([]Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked()
}

func (r *FileRepository) Upsert(c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clients, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	updated := false
	for i, x := range clients {
		if x.Key == c.Key {
			clients[i] = c
			updated = true
			break
		}
	}
	if !updated {
		clients = append(clients, c)
	}
	return r.saveUnlocked(clients)
}

func (r *FileRepository) Remove(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clients, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	out := make([]Client, 0, len(clients))
	for _, c := range clients {
		if c.Key != key {
			out = append(out, c)
		}
	}
	return r.saveUnlocked(out)
}

// loadUnlocked treats an empty file as no clients. Malformed content is an error.
func (r *FileRepository) loadUnlocked() ([]Client, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	var clients []Client
	if err := json.NewDecoder(f).Decode(&clients); err != nil {
		if errors.Is(err, io.EOF) {
			return []Client{}, nil
		}
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	return clients, nil
}

func (r *FileRepository) saveUnlocked(clients []Client) error {
	f, err := os.OpenFile(r.path, os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(clients)
}
