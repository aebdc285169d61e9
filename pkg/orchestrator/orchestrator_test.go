package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/pkg/capability"
	"github.com/pagelens/pagelens/pkg/config"
	"github.com/pagelens/pagelens/pkg/storage"
	"github.com/pagelens/pagelens/pkg/types"
)

const longInput = "The quick brown fox jumps over the lazy dog while the " +
	"patient gray owl watches silently from a very tall oak tree nearby"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.GracePeriod = 0
	return cfg
}

func newTestOrchestrator(t *testing.T, host capability.Host, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithConfig(testConfig())}, opts...)
	o, err := New(host, opts...)
	require.NoError(t, err)
	return o
}

func newTestKV(t *testing.T) storage.KV {
	t.Helper()
	kv, err := storage.NewFileStore(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestSummarizeStreamsAccumulatedText(t *testing.T) {
	host := capability.NewMockHost()
	host.Chunks = []string{"A short ", "summary."}
	o := newTestOrchestrator(t, host)

	var got []string
	out, err := o.Summarize(context.Background(), longInput, SummarizeOptions{
		OnChunk: func(s string) { got = append(got, s) },
	})
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", out)
	assert.Equal(t, []string{"A short ", "A short summary."}, got)
	assert.Equal(t, 1, host.CreateCount(capability.TypeSummarizer))
}

func TestSummarizeShortInputNeverTouchesCapability(t *testing.T) {
	host := capability.NewMockHost()
	// Even a completely missing capability is irrelevant: validation runs
	// before any availability probe.
	host.Missing[capability.TypeSummarizer] = true
	o := newTestOrchestrator(t, host)

	var got []string
	out, err := o.Summarize(context.Background(), "too short", SummarizeOptions{
		OnChunk: func(s string) { got = append(got, s) },
	})
	require.NoError(t, err)
	assert.Contains(t, out, "at least 10 words")
	assert.NotContains(t, out, degradedMarker)
	assert.Equal(t, []string{out}, got)
	assert.Equal(t, 0, host.CreateCount(capability.TypeSummarizer))
}

func TestSummarizeDegradesWhenCapabilityMissing(t *testing.T) {
	host := capability.NewMockHost()
	host.Missing[capability.TypeSummarizer] = true
	o := newTestOrchestrator(t, host)

	out, err := o.Summarize(context.Background(), longInput, SummarizeOptions{})
	require.NoError(t, err)

	assert.Contains(t, out, degradedMarker)
	assert.Contains(t, out, "The quick brown fox")
	// The echo is capped at the fallback word budget; the input's tail
	// must not survive.
	assert.NotContains(t, out, "nearby")
	assert.Contains(t, out, "…")
	assert.Contains(t, out, config.Default().HostRequirement)
}

func TestSummarizeAbortIsSilent(t *testing.T) {
	host := capability.NewMockHost()
	host.Chunks = []string{"first", "second", "third"}
	o := newTestOrchestrator(t, host)

	var got []string
	out, err := o.Summarize(context.Background(), longInput, SummarizeOptions{
		OnChunk: func(s string) {
			got = append(got, s)
			o.AbortSummarize()
		},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, []string{"first"}, got)
}

func TestSummarizePageServesCachedSummary(t *testing.T) {
	host := capability.NewMockHost()
	host.Chunks = []string{"cached summary"}
	kv := newTestKV(t)
	o := newTestOrchestrator(t, host, WithSummaryCache(storage.NewSummaryCache(kv)))

	url := "https://example.com/article"
	first, err := o.SummarizePage(context.Background(), url, longInput, SummarizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cached summary", first)

	second, err := o.SummarizePage(context.Background(), url, longInput, SummarizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, host.CreateCount(capability.TypeSummarizer))

	// Changed content invalidates the cache and regenerates.
	_, err = o.SummarizePage(context.Background(), url, longInput+" plus an edit", SummarizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, host.CreateCount(capability.TypeSummarizer)) // cached instance reused
}

func TestSummarizeNeedsGestureMessage(t *testing.T) {
	host := capability.NewMockHost()
	host.AvailabilityByType[capability.TypeSummarizer] = capability.NeedsDownload
	o := newTestOrchestrator(t, host)

	out, err := o.Summarize(context.Background(), longInput, SummarizeOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, degradedMarker)
	assert.Contains(t, out, "download")
	assert.Equal(t, 0, host.CreateCount(capability.TypeSummarizer))

	// The same call with a gesture may download and proceed.
	host.Chunks = []string{"real summary"}
	out, err = o.Summarize(context.Background(), longInput, SummarizeOptions{UserGesture: true})
	require.NoError(t, err)
	assert.Equal(t, "real summary", out)
}

func TestTranslateDegradesWhenCapabilityMissing(t *testing.T) {
	host := capability.NewMockHost()
	host.Missing[capability.TypeTranslator] = true
	host.Missing[capability.TypeLanguageDetector] = true
	o := newTestOrchestrator(t, host)

	out, err := o.Translate(context.Background(), "Bonjour le monde", TranslateOptions{TargetLang: "en"})
	require.NoError(t, err)
	assert.Contains(t, out, "[en]")
	assert.Contains(t, out, "Bonjour le monde")
	assert.Contains(t, out, degradedMarker)
}

func TestTranslateDetectsSourceLanguage(t *testing.T) {
	host := capability.NewMockHost()
	host.BatchResult = "fr"
	host.Chunks = []string{"Hello world"}
	o := newTestOrchestrator(t, host)

	out, err := o.Translate(context.Background(), "Bonjour le monde", TranslateOptions{TargetLang: "en"})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)

	created := host.CreatedKinds()
	require.Len(t, created, 2)
	assert.Equal(t, capability.TypeLanguageDetector, created[0].Type)
	assert.Equal(t, "language-detector", created[0].CacheKey())
	assert.Equal(t, "translator:fr>en", created[1].CacheKey())
}

func TestTranslateUnsupportedLanguagePair(t *testing.T) {
	host := capability.NewMockHost()
	host.CreateErr = capability.ErrUnsupportedLanguage
	o := newTestOrchestrator(t, host)

	out, err := o.Translate(context.Background(), "Bonjour le monde", TranslateOptions{
		SourceLang: "fr",
		TargetLang: "xx",
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "Bonjour")
	assert.Contains(t, out, "language combination")
	assert.Contains(t, out, "settings")
}

func TestExplainIsOneShot(t *testing.T) {
	host := capability.NewMockHost()
	host.Chunks = []string{"A fox is a small wild canine."}
	o := newTestOrchestrator(t, host)

	out, err := o.Explain(context.Background(), "fox", ExplainOptions{Context: "the quick brown fox"})
	require.NoError(t, err)
	assert.Equal(t, "A fox is a small wild canine.", out)

	// The explain session dies with its single answer; keepalive takes
	// the slot back.
	assert.False(t, o.Sessions().HasSession(capability.PurposeExplain))
	assert.True(t, o.Sessions().HasSession(capability.PurposeKeepalive))
	assert.Equal(t, 2, host.CreateCount(capability.TypePromptSession))
}

func TestExplainDegradesWithQuotedTerm(t *testing.T) {
	host := capability.NewMockHost()
	host.Missing[capability.TypePromptSession] = true
	o := newTestOrchestrator(t, host)

	out, err := o.Explain(context.Background(), "fox", ExplainOptions{Context: "the quick brown fox"})
	require.NoError(t, err)
	assert.Contains(t, out, "“fox”")
	assert.Contains(t, out, "as seen in: the quick brown fox")
	assert.Contains(t, out, degradedMarker)
}

func TestChatSessionRoundTrip(t *testing.T) {
	host := capability.NewMockHost()
	host.Chunks = []string{"Paris."}
	kv := newTestKV(t)
	store := storage.NewChatHistoryStore(kv)
	o := newTestOrchestrator(t, host, WithChatHistoryStore(store))

	pageText := "An article about the capital of France."
	ok, err := o.CreateChatSession(context.Background(), ChatSessionOptions{
		PageURL:  "https://example.com/france",
		PageText: pageText,
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, o.HasChatSession())

	answer, err := o.AskChatQuestion(context.Background(), "What is the capital?", AskOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)

	history := o.ChatHistory()
	require.Len(t, history, 2)
	assert.Equal(t, types.RoleUser, history[0].Role)
	assert.Equal(t, "What is the capital?", history[0].Content)
	assert.Equal(t, types.RoleAssistant, history[1].Role)
	assert.Equal(t, "Paris.", history[1].Content)

	// The host session carries the committed turns for follow-ups.
	sess := o.Sessions().Get(capability.PurposeChat)
	require.NotNil(t, sess)
	assert.Len(t, sess.History(), 2)

	rec, err := store.Load(context.Background(), "https://example.com/france", storage.ContentHash(pageText))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Len(t, rec.Messages, 2)
}

func TestCreateChatSessionRestoresPersistedHistory(t *testing.T) {
	host := capability.NewMockHost()
	host.Chunks = []string{"Paris."}
	kv := newTestKV(t)
	store := storage.NewChatHistoryStore(kv)

	pageText := "An article about the capital of France."
	url := "https://example.com/france"

	first := newTestOrchestrator(t, host, WithChatHistoryStore(store))
	ok, err := first.CreateChatSession(context.Background(), ChatSessionOptions{PageURL: url, PageText: pageText})
	require.NoError(t, err)
	require.True(t, ok)
	_, err = first.AskChatQuestion(context.Background(), "What is the capital?", AskOptions{})
	require.NoError(t, err)
	first.DestroyAll()

	// A fresh orchestrator over unchanged content resumes the
	// conversation, seeding the new host session with the stored turns.
	second := newTestOrchestrator(t, host, WithChatHistoryStore(store))
	ok, err = second.CreateChatSession(context.Background(), ChatSessionOptions{PageURL: url, PageText: pageText})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, second.ChatHistory(), 2)
	assert.Len(t, second.Sessions().Get(capability.PurposeChat).History(), 2)

	// Changed content orphans the stored history.
	third := newTestOrchestrator(t, host, WithChatHistoryStore(store))
	ok, err = third.CreateChatSession(context.Background(), ChatSessionOptions{PageURL: url, PageText: pageText + " rewritten"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, third.ChatHistory())
}

func TestClearChatSessionRemovesPersistedHistory(t *testing.T) {
	host := capability.NewMockHost()
	host.Chunks = []string{"Paris."}
	kv := newTestKV(t)
	store := storage.NewChatHistoryStore(kv)
	o := newTestOrchestrator(t, host, WithChatHistoryStore(store))

	pageText := "An article about the capital of France."
	url := "https://example.com/france"
	ok, err := o.CreateChatSession(context.Background(), ChatSessionOptions{PageURL: url, PageText: pageText})
	require.NoError(t, err)
	require.True(t, ok)
	_, err = o.AskChatQuestion(context.Background(), "What is the capital?", AskOptions{})
	require.NoError(t, err)

	o.ClearChatSession(context.Background())
	assert.False(t, o.HasChatSession())
	assert.Empty(t, o.ChatHistory())

	rec, err := store.Load(context.Background(), url, storage.ContentHash(pageText))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestAskChatQuestionWithoutSession(t *testing.T) {
	host := capability.NewMockHost()
	o := newTestOrchestrator(t, host)

	out, err := o.AskChatQuestion(context.Background(), "Anyone there?", AskOptions{})
	require.ErrorIs(t, err, ErrNoSession)
	assert.Contains(t, out, degradedMarker)
}

func TestAskChatQuestionAbortKeepsCommittedUserTurn(t *testing.T) {
	host := capability.NewMockHost()
	host.Chunks = []string{"I was ", "going to ", "answer"}
	o := newTestOrchestrator(t, host)

	ok, err := o.CreateChatSession(context.Background(), ChatSessionOptions{PageText: "Some page."})
	require.NoError(t, err)
	require.True(t, ok)

	out, err := o.AskChatQuestion(context.Background(), "What now?", AskOptions{
		OnChunk: func(string) { o.AbortChat() },
	})
	require.NoError(t, err)
	assert.Empty(t, out)

	// The question survives the abort; the partial answer does not.
	history := o.ChatHistory()
	require.Len(t, history, 1)
	assert.Equal(t, types.RoleUser, history[0].Role)

	// The session stays usable for the next question.
	assert.True(t, o.HasChatSession())
}

func TestChatTokenUsage(t *testing.T) {
	host := capability.NewMockHost()
	o := newTestOrchestrator(t, host)
	assert.Nil(t, o.ChatTokenUsage())

	ok, err := o.CreateChatSession(context.Background(), ChatSessionOptions{PageText: "Some page."})
	require.NoError(t, err)
	require.True(t, ok)

	sess := o.Sessions().Get(capability.PurposeChat).(*capability.MockSession)
	sess.UsageValue = &types.TokenUsage{Usage: 1024, Quota: 4096, Percentage: 25}

	usage := o.ChatTokenUsage()
	require.NotNil(t, usage)
	assert.Equal(t, 1024, usage.Usage)
	assert.Equal(t, float64(25), usage.Percentage)
}

func TestDestroyAllTearsDownEverything(t *testing.T) {
	host := capability.NewMockHost()
	host.Chunks = []string{"output"}
	o := newTestOrchestrator(t, host)

	_, err := o.Summarize(context.Background(), longInput, SummarizeOptions{})
	require.NoError(t, err)
	ok, err := o.CreateChatSession(context.Background(), ChatSessionOptions{PageText: "Some page."})
	require.NoError(t, err)
	require.True(t, ok)

	o.DestroyAll()
	assert.Equal(t, 0, o.Cache().Len())
	assert.False(t, o.HasChatSession())
	assert.False(t, o.Sessions().HasSession(capability.PurposeKeepalive))
	assert.Equal(t, len(host.CreatedKinds()), len(host.DestroyedKinds()))
}

func TestEventSinkObservesLifecycle(t *testing.T) {
	host := capability.NewMockHost()
	host.Missing[capability.TypeSummarizer] = true
	host.Chunks = []string{"Paris."}

	var events []types.Event
	o := newTestOrchestrator(t, host, WithEventSink(func(ev types.Event) {
		events = append(events, ev)
	}))

	_, err := o.Summarize(context.Background(), longInput, SummarizeOptions{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventTypeDegraded, events[0].Type)
	assert.Equal(t, "summarizer:tldr:en:short", events[0].Capability)

	events = nil
	ok, err := o.CreateChatSession(context.Background(), ChatSessionOptions{PageText: "Some page."})
	require.NoError(t, err)
	require.True(t, ok)
	_, err = o.AskChatQuestion(context.Background(), "What is the capital?", AskOptions{})
	require.NoError(t, err)
	o.ClearChatSession(context.Background())

	var seen []types.EventType
	for _, ev := range events {
		seen = append(seen, ev.Type)
	}
	assert.Equal(t, []types.EventType{
		types.EventTypeSessionCreated,
		types.EventTypeSessionReleased,
	}, seen)
}

func TestNewRequiresHost(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "host"))
}
