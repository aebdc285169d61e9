package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/pkg/capability"
	"github.com/pagelens/pagelens/pkg/types"
)

func sseServer(t *testing.T, deltas []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range deltas {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestHost(t *testing.T, baseURL string, opts ...HostOption) *Host {
	t.Helper()
	opts = append([]HostOption{WithBaseURL(baseURL)}, opts...)
	host, err := NewHost("test-key", opts...)
	require.NoError(t, err)
	return host
}

func TestStreamDeliversDeltas(t *testing.T) {
	srv := sseServer(t, []string{"Hel", "lo"})
	host := newTestHost(t, srv.URL)

	inst, err := host.Create(context.Background(), capability.SummarizerKind("tldr", "en", "short"), capability.CreateOptions{})
	require.NoError(t, err)
	defer inst.Destroy()
	assert.Equal(t, capability.SemanticsDelta, inst.Semantics())

	stream, err := inst.Stream(context.Background(), "Some page text to summarize for this test.")
	require.NoError(t, err)

	var content string
	var finished bool
	for chunk := range stream {
		require.NoError(t, chunk.Error)
		content += chunk.Content
		finished = finished || chunk.Finished
	}
	assert.Equal(t, "Hello", content)
	assert.True(t, finished)
}

func TestRunReturnsFullCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"fr"}}]}`)
	}))
	t.Cleanup(srv.Close)
	host := newTestHost(t, srv.URL)

	inst, err := host.Create(context.Background(), capability.LanguageDetectorKind(), capability.CreateOptions{})
	require.NoError(t, err)

	out, err := inst.Run(context.Background(), "Bonjour le monde")
	require.NoError(t, err)
	assert.Equal(t, "fr", out)
}

func TestStreamSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model overloaded"}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	host := newTestHost(t, srv.URL)

	inst, err := host.Create(context.Background(), capability.SummarizerKind("tldr", "en", "short"), capability.CreateOptions{})
	require.NoError(t, err)

	_, err = inst.Stream(context.Background(), "Some page text.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestCreateRejectsUnsupportedOutputLanguage(t *testing.T) {
	host := newTestHost(t, "http://unused", WithOutputLanguages([]string{"en", "es"}))

	_, err := host.Create(context.Background(), capability.SummarizerKind("tldr", "zz", "short"), capability.CreateOptions{})
	require.ErrorIs(t, err, capability.ErrUnsupportedLanguage)

	avail, err := host.Availability(context.Background(), capability.TranslatorKind("en", "zz"))
	require.NoError(t, err)
	assert.Equal(t, capability.Unavailable, avail)

	avail, err = host.Availability(context.Background(), capability.TranslatorKind("fr", "es"))
	require.NoError(t, err)
	assert.Equal(t, capability.Available, avail)
}

func TestNewHostRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewHost("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestSessionReplaysCommittedTurns(t *testing.T) {
	var lastBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Paris."}}]}`)
	}))
	t.Cleanup(srv.Close)
	host := newTestHost(t, srv.URL)

	inst, err := host.Create(context.Background(), capability.PromptKind(capability.PurposeChat), capability.CreateOptions{
		SystemPrompt: "You answer questions about one page.",
		InitialTurns: []types.ChatMessage{
			types.NewUserMessage("What is this page about?"),
			types.NewAssistantMessage("France."),
		},
	})
	require.NoError(t, err)

	sess, ok := inst.(capability.Session)
	require.True(t, ok)
	assert.Len(t, sess.History(), 2)

	out, err := sess.Run(context.Background(), "And its capital?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", out)

	// system + two committed turns + the in-flight question.
	body := string(lastBody)
	assert.Contains(t, body, "You answer questions about one page.")
	assert.Contains(t, body, "What is this page about?")
	assert.Contains(t, body, "France.")
	assert.Contains(t, body, "And its capital?")
}

func TestSessionUsageGrowsWithTurns(t *testing.T) {
	host := newTestHost(t, "http://unused", WithTokenQuota(1000))

	inst, err := host.Create(context.Background(), capability.PromptKind(capability.PurposeChat), capability.CreateOptions{
		SystemPrompt: "You answer questions about one page of extracted text.",
	})
	require.NoError(t, err)
	sess := inst.(capability.Session)

	before := sess.Usage()
	require.NotNil(t, before)
	assert.Equal(t, 1000, before.Quota)
	assert.Greater(t, before.Usage, 0)

	sess.AppendTurn(types.NewUserMessage("A reasonably long question about the page content."))
	after := sess.Usage()
	assert.Greater(t, after.Usage, before.Usage)
	assert.Greater(t, after.Percentage, before.Percentage)
}
