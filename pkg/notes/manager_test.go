package notes

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pagelens/pagelens/pkg/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	kv, err := storage.NewFileStore(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return NewManager(kv)
}

func TestManagerAdd(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		kind        Kind
		text        string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid note",
			kind: KindSummary,
			text: "A stored summary.",
		},
		{
			name:        "empty text",
			kind:        KindSummary,
			text:        "   ",
			expectError: true,
			errorMsg:    "text cannot be empty",
		},
		{
			name:        "unknown kind",
			kind:        Kind("doodle"),
			text:        "content",
			expectError: true,
			errorMsg:    "unknown note kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			note, err := m.Add(ctx, tt.kind, tt.text, "snippet", "https://example.com", "Example", "en")

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if note.ID == "" {
				t.Error("note should have an ID")
			}
			if note.CreatedAt.IsZero() {
				t.Error("note should be timestamped")
			}
		})
	}
}

func TestManagerListNewestFirst(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, text := range []string{"first", "second", "third"} {
		if _, err := m.Add(ctx, KindSelection, text, "", "https://example.com", "", "en"); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond) // distinct CreatedAt ordering
	}

	all, err := m.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 notes, got %d", len(all))
	}
	if all[0].Text != "third" || all[2].Text != "first" {
		t.Errorf("expected newest-first ordering, got %q, %q, %q", all[0].Text, all[1].Text, all[2].Text)
	}
}

func TestManagerListFilters(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	mustAdd := func(kind Kind, text, url string) {
		t.Helper()
		if _, err := m.Add(ctx, kind, text, "", url, "", "en"); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}
	mustAdd(KindSummary, "summary a", "https://a.example")
	mustAdd(KindTranslation, "translation a", "https://a.example")
	mustAdd(KindSummary, "summary b", "https://b.example")

	byURL, err := m.List(ctx, ListOptions{SourceURL: "https://a.example"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(byURL) != 2 {
		t.Errorf("expected 2 notes for URL, got %d", len(byURL))
	}

	byKind, err := m.List(ctx, ListOptions{Kind: KindSummary})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(byKind) != 2 {
		t.Errorf("expected 2 summary notes, got %d", len(byKind))
	}

	limited, err := m.List(ctx, ListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 note with limit, got %d", len(limited))
	}
}

func TestManagerDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	note, err := m.Add(ctx, KindChat, "an answer", "", "https://example.com", "", "en")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if err := m.Delete(ctx, note.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	all, err := m.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected empty list after delete, got %d", len(all))
	}

	if err := m.Delete(ctx, note.ID); err == nil {
		t.Error("deleting a missing note should error")
	}
}

func TestSnippetTruncation(t *testing.T) {
	long := strings.Repeat("x", MaxSnippetLength+50)
	note, err := NewNote(KindSelection, "text", long, "", "", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(note.Snippet) != MaxSnippetLength {
		t.Errorf("snippet length = %d, want %d", len(note.Snippet), MaxSnippetLength)
	}
}
