package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore implements KV using a single JSON file. The whole store is held
// in memory and flushed on every write, which is plenty for extension-scale
// data (settings, notes, a handful of cached summaries).
type FileStore struct {
	path string
	mu   sync.RWMutex
	data map[string]json.RawMessage
}

// NewFileStore creates a file-backed store at path.
// If path is empty, defaults to ~/.pagelens/store.json
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: get user home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".pagelens", "store.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("storage: init directory: %w", err)
	}

	store := &FileStore{
		path: path,
		data: make(map[string]json.RawMessage),
	}

	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("storage: load %s: %w", path, err)
	}

	return store, nil
}

func (s *FileStore) load() error {
	file, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer file.Close()

	var payload struct {
		Version string                     `json:"version"`
		Entries map[string]json.RawMessage `json:"entries"`
	}
	if err := json.NewDecoder(file).Decode(&payload); err != nil {
		return fmt.Errorf("decode store file: %w", err)
	}
	if payload.Entries != nil {
		s.data = payload.Entries
	}
	return nil
}

// flush writes the store atomically via a temporary file.
// Caller must hold at least a read lock.
func (s *FileStore) flush() error {
	payload := struct {
		Version string                     `json:"version"`
		Entries map[string]json.RawMessage `json:"entries"`
	}{Version: "1.0", Entries: s.data}

	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("storage: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("storage: atomic rename %s: %w", s.path, err)
	}
	return nil
}

// Get implements KV.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set implements KV. The file backend keeps the store human-readable, so
// values must be valid JSON documents.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("storage: value for %q is not valid JSON", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw := make(json.RawMessage, len(value))
	copy(raw, value)
	s.data[key] = raw
	return s.flush()
}

// Delete implements KV.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flush()
}

// Keys implements KV.
func (s *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close implements KV. The file store holds no open handles between
// operations, so Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
