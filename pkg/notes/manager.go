package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pagelens/pagelens/pkg/storage"
)

// notesKey is the KV key holding the full note list.
const notesKey = "notes"

// Manager persists notes through the key-value store. The list is
// append-only during normal use; deletion is an explicit user action.
type Manager struct {
	kv storage.KV
}

// NewManager creates a notes manager over the given store.
func NewManager(kv storage.KV) *Manager {
	return &Manager{kv: kv}
}

func (m *Manager) load(ctx context.Context) ([]*Note, error) {
	raw, ok, err := m.kv.Get(ctx, notesKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var all []*Note
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("notes: decode note list: %w", err)
	}
	return all, nil
}

func (m *Manager) save(ctx context.Context, all []*Note) error {
	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("notes: encode note list: %w", err)
	}
	return m.kv.Set(ctx, notesKey, raw)
}

// Add validates and appends a new note, returning the stored entry.
func (m *Manager) Add(ctx context.Context, kind Kind, text, snippet, sourceURL, pageTitle, lang string) (*Note, error) {
	note, err := NewNote(kind, text, snippet, sourceURL, pageTitle, lang)
	if err != nil {
		return nil, err
	}

	all, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	all = append(all, note)
	if err := m.save(ctx, all); err != nil {
		return nil, err
	}
	return note, nil
}

// ListOptions filters and bounds List results.
type ListOptions struct {
	// SourceURL, when set, restricts results to notes from one page.
	SourceURL string

	// Kind, when set, restricts results to one note kind.
	Kind Kind

	// Limit bounds the number of returned notes. Zero means no limit.
	Limit int
}

// List returns notes newest-first.
func (m *Manager) List(ctx context.Context, opts ListOptions) ([]*Note, error) {
	all, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	var result []*Note
	for _, n := range all {
		if opts.SourceURL != "" && n.SourceURL != opts.SourceURL {
			continue
		}
		if opts.Kind != "" && n.Kind != opts.Kind {
			continue
		}
		result = append(result, n)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// Delete removes a note by ID.
func (m *Manager) Delete(ctx context.Context, id string) error {
	all, err := m.load(ctx)
	if err != nil {
		return err
	}

	kept := all[:0]
	found := false
	for _, n := range all {
		if n.ID == id {
			found = true
			continue
		}
		kept = append(kept, n)
	}
	if !found {
		return fmt.Errorf("notes: note not found: %s", id)
	}
	return m.save(ctx, kept)
}
