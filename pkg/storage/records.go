package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pagelens/pagelens/pkg/types"
)

// Key prefixes partition the flat KV namespace per record family.
const (
	summaryKeyPrefix = "summary:"
	chatKeyPrefix    = "chat:"
	settingKeyPrefix = "setting:"
)

// PageSummary is the cached summary of one page, keyed by URL.
type PageSummary struct {
	Summary     string    `json:"summary"`
	Text        string    `json:"text"`
	ContentHash string    `json:"contentHash"`
	Timestamp   time.Time `json:"timestamp"`
	IsSaved     bool      `json:"isSaved"`
}

// ChatHistory is the persisted conversation for one page, keyed by URL. The
// content hash ties it to the page text it was recorded against; a mismatch
// means the page changed and the history is stale.
type ChatHistory struct {
	Messages    []types.ChatMessage `json:"messages"`
	ContentHash string              `json:"contentHash"`
	PageSummary string              `json:"pageSummary"`
	Timestamp   time.Time           `json:"timestamp"`
}

// SummaryCache persists per-URL page summaries.
type SummaryCache struct {
	kv KV
}

// NewSummaryCache wraps a KV with the summary record layout.
func NewSummaryCache(kv KV) *SummaryCache {
	return &SummaryCache{kv: kv}
}

// Load returns the cached summary for url, or nil if none is stored.
func (c *SummaryCache) Load(ctx context.Context, url string) (*PageSummary, error) {
	raw, ok, err := c.kv.Get(ctx, summaryKeyPrefix+url)
	if err != nil || !ok {
		return nil, err
	}
	var rec PageSummary
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("storage: decode summary for %s: %w", url, err)
	}
	return &rec, nil
}

// Save stores the summary for url.
func (c *SummaryCache) Save(ctx context.Context, url string, rec *PageSummary) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: encode summary for %s: %w", url, err)
	}
	return c.kv.Set(ctx, summaryKeyPrefix+url, raw)
}

// Delete removes the cached summary for url.
func (c *SummaryCache) Delete(ctx context.Context, url string) error {
	return c.kv.Delete(ctx, summaryKeyPrefix+url)
}

// ChatHistoryStore persists per-URL chat conversations with content-hash
// invalidation.
type ChatHistoryStore struct {
	kv KV
}

// NewChatHistoryStore wraps a KV with the chat history record layout.
func NewChatHistoryStore(kv KV) *ChatHistoryStore {
	return &ChatHistoryStore{kv: kv}
}

// Load returns the stored history for url if its content hash matches
// currentHash. A stale record (hash mismatch) is deleted and nil is returned:
// stale history must be invalidated, never silently reused.
func (s *ChatHistoryStore) Load(ctx context.Context, url, currentHash string) (*ChatHistory, error) {
	raw, ok, err := s.kv.Get(ctx, chatKeyPrefix+url)
	if err != nil || !ok {
		return nil, err
	}
	var rec ChatHistory
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("storage: decode chat history for %s: %w", url, err)
	}
	if rec.ContentHash != currentHash {
		if err := s.kv.Delete(ctx, chatKeyPrefix+url); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &rec, nil
}

// Save stores the conversation for url.
func (s *ChatHistoryStore) Save(ctx context.Context, url string, rec *ChatHistory) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: encode chat history for %s: %w", url, err)
	}
	return s.kv.Set(ctx, chatKeyPrefix+url, raw)
}

// Delete removes the conversation for url.
func (s *ChatHistoryStore) Delete(ctx context.Context, url string) error {
	return s.kv.Delete(ctx, chatKeyPrefix+url)
}

// Settings persists small string-valued user preferences.
type Settings struct {
	kv KV
}

// NewSettings wraps a KV with the settings record layout.
func NewSettings(kv KV) *Settings {
	return &Settings{kv: kv}
}

// Get returns the setting value, or ("", false) when unset.
func (s *Settings) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := s.kv.Get(ctx, settingKeyPrefix+key)
	if err != nil || !ok {
		return "", false, err
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false, fmt.Errorf("storage: decode setting %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores the setting value.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: encode setting %q: %w", key, err)
	}
	return s.kv.Set(ctx, settingKeyPrefix+key, raw)
}
