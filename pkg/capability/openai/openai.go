// Package openai adapts any OpenAI-compatible chat completions API to the
// capability.Host interface, so the orchestrator can run against a remote
// model when no on-device runtime is present.
//
// Example usage:
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "os"
//
//	    "github.com/pagelens/pagelens/pkg/capability"
//	    "github.com/pagelens/pagelens/pkg/capability/openai"
//	)
//
//	func main() {
//	    host, err := openai.NewHost(
//	        os.Getenv("OPENAI_API_KEY"),
//	        openai.WithModel("gpt-4o-mini"),
//	    )
//	    if err != nil {
//	        panic(err)
//	    }
//
//	    kind := capability.SummarizerKind("tldr", "en", "short")
//	    inst, err := host.Create(context.Background(), kind, capability.CreateOptions{})
//	    if err != nil {
//	        panic(err)
//	    }
//	    defer inst.Destroy()
//
//	    stream, _ := inst.Stream(context.Background(), "Some long article text...")
//	    for chunk := range stream {
//	        fmt.Print(chunk.Content)
//	    }
//	}
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	openaisdk "github.com/openai/openai-go"

	"github.com/pagelens/pagelens/pkg/capability"
	"github.com/pagelens/pagelens/pkg/logging"
	"github.com/pagelens/pagelens/pkg/types"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the model used when none is configured.
	DefaultModel = "gpt-4o-mini"

	// DefaultTokenQuota is the advertised context budget for prompt
	// sessions when none is configured.
	DefaultTokenQuota = 4096
)

// Host implements capability.Host over an OpenAI-compatible API. A remote
// API has no model download, so every supported capability reports
// Available immediately; the needs-download state only exists for on-device
// hosts.
type Host struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	quota      int
	languages  map[string]bool
	log        *logging.Logger
}

// HostOption is a function that configures a Host.
type HostOption func(*Host)

// WithModel sets the model to use for all capabilities.
func WithModel(model string) HostOption {
	return func(h *Host) {
		h.model = model
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
// This enables using Azure OpenAI, local models, or other compatible
// services.
func WithBaseURL(baseURL string) HostOption {
	return func(h *Host) {
		h.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HostOption {
	return func(h *Host) {
		h.httpClient = client
	}
}

// WithTokenQuota sets the context budget reported by prompt sessions.
func WithTokenQuota(quota int) HostOption {
	return func(h *Host) {
		h.quota = quota
	}
}

// WithOutputLanguages restricts the output languages the host accepts.
// Creating a summarizer or translator targeting a language outside the set
// fails with capability.ErrUnsupportedLanguage. An empty set accepts
// everything.
func WithOutputLanguages(languages []string) HostOption {
	return func(h *Host) {
		h.languages = make(map[string]bool, len(languages))
		for _, lang := range languages {
			h.languages[strings.ToLower(strings.TrimSpace(lang))] = true
		}
	}
}

// WithLogger sets the component logger.
func WithLogger(log *logging.Logger) HostOption {
	return func(h *Host) {
		h.log = log
	}
}

// NewHost creates an OpenAI-backed capability host.
//
// If apiKey is empty, it will attempt to read from the OPENAI_API_KEY
// environment variable. If baseURL is not provided via WithBaseURL, it will
// check the OPENAI_BASE_URL environment variable.
func NewHost(apiKey string, opts ...HostOption) (*Host, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	h := &Host{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		quota:      DefaultTokenQuota,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			h.baseURL = envBaseURL
		}
	}
	if h.log == nil {
		h.log = logging.Discard("openai")
	}
	return h, nil
}

// Supports implements capability.Host.
func (h *Host) Supports(kind capability.Kind) bool {
	switch kind.Type {
	case capability.TypeSummarizer, capability.TypeTranslator,
		capability.TypeLanguageDetector, capability.TypePromptSession:
		return true
	}
	return false
}

// Availability implements capability.Host. A remote API never needs a local
// download; configurations with an unsupported output language report
// Unavailable.
func (h *Host) Availability(_ context.Context, kind capability.Kind) (capability.Availability, error) {
	if !h.Supports(kind) {
		return capability.Unavailable, nil
	}
	if !h.acceptsLanguage(kind) {
		return capability.Unavailable, nil
	}
	return capability.Available, nil
}

// Create implements capability.Host.
func (h *Host) Create(_ context.Context, kind capability.Kind, opts capability.CreateOptions) (capability.Instance, error) {
	if !h.Supports(kind) {
		return nil, fmt.Errorf("openai: unsupported capability type %q", kind.Type)
	}
	if !h.acceptsLanguage(kind) {
		return nil, fmt.Errorf("openai: %s: %w", kind, capability.ErrUnsupportedLanguage)
	}

	inst := &instance{
		host:   h,
		kind:   kind,
		system: systemPromptFor(kind),
	}

	if kind.Type == capability.TypePromptSession {
		if opts.SystemPrompt != "" {
			inst.system = opts.SystemPrompt
		}
		turns := make([]types.ChatMessage, len(opts.InitialTurns))
		copy(turns, opts.InitialTurns)
		return &session{
			instance: inst,
			turns:    turns,
			counter:  newTokenCounter(h.model),
		}, nil
	}
	return inst, nil
}

// acceptsLanguage checks kind's output language against the configured set.
func (h *Host) acceptsLanguage(kind capability.Kind) bool {
	if len(h.languages) == 0 {
		return true
	}
	switch kind.Type {
	case capability.TypeSummarizer:
		return h.languages[strings.ToLower(strings.TrimSpace(kind.OutputLanguage))]
	case capability.TypeTranslator:
		return h.languages[strings.ToLower(strings.TrimSpace(kind.TargetLanguage))]
	}
	return true
}

// instance is a stateless capability backed by one chat completion per
// invocation.
type instance struct {
	host   *Host
	kind   capability.Kind
	system string
}

// Kind implements capability.Instance.
func (i *instance) Kind() capability.Kind { return i.kind }

// Semantics implements capability.Instance. OpenAI streams deltas.
func (i *instance) Semantics() capability.Semantics { return capability.SemanticsDelta }

// Destroy implements capability.Instance. A remote instance holds no local
// resources.
func (i *instance) Destroy() {}

// Stream implements capability.Instance.
//
// This implementation uses raw HTTP streaming to handle SSE events directly,
// which provides better compatibility with OpenAI-compatible APIs that may
// include SSE comments or have slight format variations.
func (i *instance) Stream(ctx context.Context, input string) (<-chan *capability.Chunk, error) {
	resp, err := i.host.sendStreamRequest(ctx, i.messages(input))
	if err != nil {
		return nil, err
	}

	chunks := make(chan *capability.Chunk, 10)
	go i.host.processStreamResponse(ctx, resp, chunks)
	return chunks, nil
}

// Run implements capability.Instance with a non-streaming completion.
func (i *instance) Run(ctx context.Context, input string) (string, error) {
	return i.host.complete(ctx, i.messages(input))
}

func (i *instance) messages(input string) []openaisdk.ChatCompletionMessageParamUnion {
	return []openaisdk.ChatCompletionMessageParamUnion{
		openaisdk.SystemMessage(i.system),
		openaisdk.UserMessage(userPromptFor(i.kind, input)),
	}
}

// sendStreamRequest creates and sends the HTTP request for streaming.
func (h *Host) sendStreamRequest(ctx context.Context, messages []openaisdk.ChatCompletionMessageParamUnion) (*http.Response, error) {
	reqBody := map[string]interface{}{
		"model":    h.model,
		"messages": messages,
		"stream":   true,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to marshal request: %w", err)
	}

	url := h.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("openai: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("openai: API request failed with status %d (failed to read error body: %w)", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("openai: API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

// processStreamResponse processes the SSE stream and sends chunks to the
// channel.
func (h *Host) processStreamResponse(ctx context.Context, resp *http.Response, chunks chan<- *capability.Chunk) {
	defer close(chunks)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !isValidSSELine(line) {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			sendChunk(ctx, chunks, &capability.Chunk{Finished: true})
			return
		}

		content, finished, ok := parseSSEChunk(data)
		if !ok {
			continue
		}
		if content != "" {
			if !sendChunk(ctx, chunks, &capability.Chunk{Content: content}) {
				return
			}
		}
		if finished {
			sendChunk(ctx, chunks, &capability.Chunk{Finished: true})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		chunks <- &capability.Chunk{Error: fmt.Errorf("openai: stream read error: %w", err)}
	}
}

// complete runs a non-streaming chat completion.
func (h *Host) complete(ctx context.Context, messages []openaisdk.ChatCompletionMessageParamUnion) (string, error) {
	reqBody := map[string]interface{}{
		"model":    h.model,
		"messages": messages,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("openai: failed to marshal request: %w", err)
	}

	url := h.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("openai: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai: API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("openai: failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai: response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// isValidSSELine checks if a line is a valid SSE data line.
func isValidSSELine(line string) bool {
	return line != "" && !strings.HasPrefix(line, ":") && strings.HasPrefix(line, "data: ")
}

// parseSSEChunk extracts the content delta and finish flag from one SSE data
// payload. Malformed payloads are skipped silently.
func parseSSEChunk(data string) (content string, finished bool, ok bool) {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, false
	}
	if len(chunk.Choices) == 0 {
		return "", false, false
	}
	choice := chunk.Choices[0]
	finished = choice.FinishReason != nil && *choice.FinishReason == "stop"
	return choice.Delta.Content, finished, true
}

// sendChunk delivers a chunk, honoring cancellation.
func sendChunk(ctx context.Context, chunks chan<- *capability.Chunk, chunk *capability.Chunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		chunks <- &capability.Chunk{Error: ctx.Err()}
		return false
	}
}
