// Package notes implements the note-taking feature: user-saved snippets of
// AI output (summaries, translations, explanations, chat answers) kept in the
// persistence layer as an append-only list.
package notes

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxTextLength is the maximum number of characters in a note body.
	MaxTextLength = 8000

	// MaxSnippetLength bounds the source snippet stored alongside a note.
	MaxSnippetLength = 200
)

// Kind identifies which operation produced a note.
type Kind string

const (
	KindSummary     Kind = "summary"
	KindTranslation Kind = "translation"
	KindExplanation Kind = "explanation"
	KindChat        Kind = "chat"
	KindSelection   Kind = "selection"
)

var validKinds = map[Kind]bool{
	KindSummary:     true,
	KindTranslation: true,
	KindExplanation: true,
	KindChat:        true,
	KindSelection:   true,
}

// Note is one saved entry.
type Note struct {
	ID        string    `json:"id"`
	SourceURL string    `json:"sourceUrl"`
	PageTitle string    `json:"pageTitle"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	Snippet   string    `json:"snippet"`
	CreatedAt time.Time `json:"createdAt"`
	Lang      string    `json:"lang"`
}

// NewNote creates a validated note with a fresh ID and timestamp. The
// snippet is truncated to MaxSnippetLength.
func NewNote(kind Kind, text, snippet, sourceURL, pageTitle, lang string) (*Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("notes: note text cannot be empty")
	}
	if len(text) > MaxTextLength {
		return nil, fmt.Errorf("notes: note text exceeds maximum length of %d characters (got %d)",
			MaxTextLength, len(text))
	}
	if !validKinds[kind] {
		return nil, fmt.Errorf("notes: unknown note kind %q", kind)
	}

	snippet = strings.TrimSpace(snippet)
	if len(snippet) > MaxSnippetLength {
		snippet = snippet[:MaxSnippetLength]
	}

	return &Note{
		ID:        uuid.New().String(),
		SourceURL: sourceURL,
		PageTitle: pageTitle,
		Kind:      kind,
		Text:      text,
		Snippet:   snippet,
		CreatedAt: time.Now(),
		Lang:      lang,
	}, nil
}
