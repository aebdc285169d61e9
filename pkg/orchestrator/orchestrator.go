// Package orchestrator manages the lifecycle, caching, concurrency,
// cancellation and graceful degradation of the host's generative AI
// capabilities across a page's lifetime.
//
// The orchestrator exposes the three user-facing operations (summarize,
// translate, explain) plus the multi-turn page chat. Every operation
// validates its input, probes capability availability, acquires a cached
// instance or session, streams output through the caller's progress
// callback, and degrades to deterministic non-AI output when the capability
// cannot serve. Expected failures never escape as errors; they become
// visible degraded text or, for user-initiated cancellation, silence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pagelens/pagelens/pkg/capability"
	"github.com/pagelens/pagelens/pkg/config"
	"github.com/pagelens/pagelens/pkg/extract"
	"github.com/pagelens/pagelens/pkg/logging"
	"github.com/pagelens/pagelens/pkg/storage"
	"github.com/pagelens/pagelens/pkg/types"
)

// Orchestrator coordinates the availability prober, instance cache, session
// manager, streaming executor and fallback policy over one injected host
// runtime. One Orchestrator serves one page context; tabs do not share
// instances, only the external persistence.
type Orchestrator struct {
	host     capability.Host
	cfg      *config.Config
	log      *logging.Logger
	events   func(types.Event)
	prober   *Prober
	cache    *InstanceCache
	sessions *SessionManager
	executor *StreamExecutor
	fallback *FallbackPolicy

	summarizeCalls *callSet
	translateCalls *callSet

	chatMu          sync.Mutex
	chatHistory     []types.ChatMessage
	chatPageURL     string
	chatContentHash string
	chatPageSummary string

	history   *storage.ChatHistoryStore
	summaries *storage.SummaryCache
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig overrides the default tuning.
func WithConfig(cfg *config.Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithLogger sets the component logger.
func WithLogger(log *logging.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithChatHistoryStore enables per-URL chat history persistence with
// content-hash invalidation.
func WithChatHistoryStore(s *storage.ChatHistoryStore) Option {
	return func(o *Orchestrator) { o.history = s }
}

// WithSummaryCache enables per-URL summary caching.
func WithSummaryCache(s *storage.SummaryCache) Option {
	return func(o *Orchestrator) { o.summaries = s }
}

// WithEventSink registers a callback receiving informational events
// (download progress, degradation, session lifecycle, token usage). The
// sink is invoked synchronously and must not block.
func WithEventSink(sink func(types.Event)) Option {
	return func(o *Orchestrator) { o.events = sink }
}

// New creates an orchestrator over the given host runtime.
func New(host capability.Host, opts ...Option) (*Orchestrator, error) {
	if host == nil {
		return nil, fmt.Errorf("orchestrator: host runtime is required")
	}

	o := &Orchestrator{
		host:           host,
		cfg:            config.Default(),
		summarizeCalls: newCallSet(),
		translateCalls: newCallSet(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logging.Discard("orchestrator")
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	o.prober = NewProber(host, o.log)
	o.cache = NewInstanceCache(o.prober, o.log)
	o.sessions = NewSessionManager(host, o.prober, o.cfg.GracePeriod, keepalivePrompt, o.log)
	o.executor = NewStreamExecutor(o.log)
	o.fallback = NewFallbackPolicy(o.cfg)
	return o, nil
}

// Fallback exposes the degradation policy, mainly for callers that need the
// same messages outside an operation (e.g. rendering cached state).
func (o *Orchestrator) Fallback() *FallbackPolicy { return o.fallback }

// SummarizeOptions configures one Summarize call.
type SummarizeOptions struct {
	// Type is the summary style ("tldr", "key-points", "teaser",
	// "headline"). Empty uses the configured default.
	Type string

	// Lang is the output language. Empty uses the configured default.
	Lang string

	// Length is the summary length ("short", "medium", "long"). Empty
	// uses the configured default.
	Length string

	// UserGesture marks the call as triggered by a direct user
	// interaction, which permits a one-time model download.
	UserGesture bool

	// OnChunk receives the accumulated summary after each increment.
	OnChunk func(string)
}

// Summarize produces a summary of text, streaming progress through
// opts.OnChunk. On unavailability or failure the returned string is the
// degraded fallback; input under the minimum word count returns the distinct
// too-short message without ever touching the capability.
func (o *Orchestrator) Summarize(ctx context.Context, text string, opts SummarizeOptions) (string, error) {
	text = extract.CleanSelection(text)
	if extract.WordCount(text) < o.cfg.MinInputWords {
		return o.deliver(opts.OnChunk, o.fallback.TooShort()), nil
	}

	kind := capability.SummarizerKind(
		orDefault(opts.Type, o.cfg.DefaultSummaryType),
		orDefault(opts.Lang, o.cfg.DefaultOutputLanguage),
		orDefault(opts.Length, o.cfg.DefaultSummaryLength),
	)

	id, cctx, cancel := o.summarizeCalls.begin(ctx)
	defer func() {
		cancel()
		o.summarizeCalls.end(id)
	}()

	inst, err := o.cache.GetOrCreate(cctx, kind, opts.UserGesture, o.constructor(kind))
	if err != nil {
		return o.degrade(kind, err, o.fallback.Summarize(text), opts.OnChunk), nil
	}

	out, err := o.executor.Run(cctx, inst, text, o.guard(cctx, opts.OnChunk))
	if errors.Is(err, context.Canceled) {
		return "", nil
	}
	if err != nil {
		return o.degrade(kind, err, o.fallback.Summarize(text), opts.OnChunk), nil
	}
	return out, nil
}

// SummarizePage summarizes a page's extracted text with per-URL caching:
// when the stored summary's content hash still matches the text, the cached
// summary is replayed without touching the capability.
func (o *Orchestrator) SummarizePage(ctx context.Context, url, text string, opts SummarizeOptions) (string, error) {
	hash := storage.ContentHash(text)
	if o.summaries != nil && url != "" {
		rec, err := o.summaries.Load(ctx, url)
		if err != nil {
			o.log.Warnf("summary cache read for %s failed: %v", url, err)
		} else if rec != nil && rec.ContentHash == hash {
			o.log.Debugf("summary cache hit for %s", url)
			return o.deliver(opts.OnChunk, rec.Summary), nil
		}
	}

	out, err := o.Summarize(ctx, text, opts)
	if err != nil || out == "" {
		return out, err
	}

	if o.summaries != nil && url != "" {
		rec := &storage.PageSummary{
			Summary:     out,
			Text:        text,
			ContentHash: hash,
			Timestamp:   time.Now(),
		}
		if err := o.summaries.Save(ctx, url, rec); err != nil {
			o.log.Warnf("summary cache write for %s failed: %v", url, err)
		}
	}
	return out, nil
}

// TranslateOptions configures one Translate call.
type TranslateOptions struct {
	// SourceLang is the input language. Empty triggers language
	// detection, defaulting to the configured output language when
	// detection is unavailable.
	SourceLang string

	// TargetLang is the required output language.
	TargetLang string

	// UserGesture marks the call as gesture-triggered.
	UserGesture bool

	// OnChunk receives the accumulated translation after each increment.
	OnChunk func(string)
}

// Translate translates text into opts.TargetLang, streaming progress through
// opts.OnChunk, degrading to a language-prefixed echo of the input when the
// capability cannot serve.
func (o *Orchestrator) Translate(ctx context.Context, text string, opts TranslateOptions) (string, error) {
	text = extract.CleanSelection(text)
	if text == "" {
		return o.deliver(opts.OnChunk, "Nothing selected to translate."), nil
	}
	if opts.TargetLang == "" {
		opts.TargetLang = o.cfg.DefaultOutputLanguage
	}

	source := opts.SourceLang
	if source == "" {
		if detected, err := o.DetectLanguage(ctx, text, opts.UserGesture); err == nil && detected != "" {
			source = detected
		} else {
			source = o.cfg.DefaultOutputLanguage
		}
	}

	kind := capability.TranslatorKind(source, opts.TargetLang)

	id, cctx, cancel := o.translateCalls.begin(ctx)
	defer func() {
		cancel()
		o.translateCalls.end(id)
	}()

	inst, err := o.cache.GetOrCreate(cctx, kind, opts.UserGesture, o.constructor(kind))
	if err != nil {
		return o.degrade(kind, err, o.fallback.Translate(text, opts.TargetLang), opts.OnChunk), nil
	}

	out, err := o.executor.Run(cctx, inst, text, o.guard(cctx, opts.OnChunk))
	if errors.Is(err, context.Canceled) {
		return "", nil
	}
	if err != nil {
		return o.degrade(kind, err, o.fallback.Translate(text, opts.TargetLang), opts.OnChunk), nil
	}
	return out, nil
}

// DetectLanguage returns the dominant language code of text, using the
// cached language-detector instance. Best-effort: unavailability is an
// error, not degraded text, because detection is an internal aid rather
// than a user-facing operation.
func (o *Orchestrator) DetectLanguage(ctx context.Context, text string, userGesture bool) (string, error) {
	kind := capability.LanguageDetectorKind()
	inst, err := o.cache.GetOrCreate(ctx, kind, userGesture, o.constructor(kind))
	if err != nil {
		return "", err
	}
	code, err := inst.Run(ctx, text)
	if err != nil {
		return "", fmt.Errorf("orchestrator: language detection: %w", err)
	}
	return extract.CollapseWhitespace(code), nil
}

// ExplainOptions configures one Explain call.
type ExplainOptions struct {
	// Context is the passage surrounding the selected term, when known.
	Context string

	// Lang is the answer language. Empty uses the configured default.
	Lang string

	// UserGesture marks the call as gesture-triggered.
	UserGesture bool

	// OnChunk receives the accumulated explanation after each increment.
	OnChunk func(string)
}

// Explain answers what a selected term means, in a one-shot prompt session
// that is destroyed as soon as its single answer completes. The keepalive
// session is evicted for the duration and lazily re-established afterward.
func (o *Orchestrator) Explain(ctx context.Context, term string, opts ExplainOptions) (string, error) {
	term = extract.CleanSelection(term)
	if term == "" {
		return o.deliver(opts.OnChunk, "Nothing selected to explain."), nil
	}
	lang := orDefault(opts.Lang, o.cfg.DefaultOutputLanguage)
	contextText := extract.CleanSelection(opts.Context)

	session, err := o.sessions.AcquireExclusive(ctx, capability.PurposeExplain, opts.UserGesture,
		func(ctx context.Context) (capability.Session, error) {
			return o.createSession(ctx, capability.PurposeExplain, capability.CreateOptions{
				SystemPrompt: explainSystemPrompt(lang),
			})
		})
	kind := capability.PromptKind(capability.PurposeExplain)
	if err != nil {
		return o.degrade(kind, err, o.fallback.Explain(term, contextText), opts.OnChunk), nil
	}
	o.emit(types.NewSessionCreatedEvent(kind.CacheKey()))

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.sessions.BeginGeneration(capability.PurposeExplain, cancel)

	out, err := o.executor.Run(genCtx, session, explainPrompt(term, contextText), o.guard(genCtx, opts.OnChunk))

	// Explain sessions are single-turn: release immediately, which also
	// re-establishes keepalive.
	o.sessions.Release(ctx, capability.PurposeExplain)
	o.emit(types.NewSessionReleasedEvent(kind.CacheKey()))

	if errors.Is(err, context.Canceled) {
		return "", nil
	}
	if err != nil {
		return o.degrade(kind, err, o.fallback.Explain(term, contextText), opts.OnChunk), nil
	}
	return out, nil
}

// ChatSessionOptions configures CreateChatSession.
type ChatSessionOptions struct {
	// PageURL keys persisted history for this conversation.
	PageURL string

	// PageText is the page's extracted readable text.
	PageText string

	// PageSummary optionally primes the session with a prior summary.
	PageSummary string

	// Lang is the answer language. Empty uses the configured default.
	Lang string

	// History seeds the session with prior turns. When nil and a history
	// store is configured, persisted history for PageURL is loaded if its
	// content hash still matches PageText.
	History []types.ChatMessage

	// UserGesture marks the call as gesture-triggered.
	UserGesture bool
}

// CreateChatSession establishes the page-chat session, evicting keepalive
// and destroying any prior chat session. It returns false when the prompting
// capability cannot serve; the error carries the reason for diagnostics.
func (o *Orchestrator) CreateChatSession(ctx context.Context, opts ChatSessionOptions) (bool, error) {
	hash := storage.ContentHash(opts.PageText)
	lang := orDefault(opts.Lang, o.cfg.DefaultOutputLanguage)

	history := opts.History
	if history == nil && o.history != nil && opts.PageURL != "" {
		rec, err := o.history.Load(ctx, opts.PageURL, hash)
		if err != nil {
			o.log.Warnf("chat history read for %s failed: %v", opts.PageURL, err)
		} else if rec != nil {
			history = rec.Messages
			if opts.PageSummary == "" {
				opts.PageSummary = rec.PageSummary
			}
			o.log.Debugf("restored %d chat turns for %s", len(history), opts.PageURL)
		}
	}

	_, err := o.sessions.AcquireExclusive(ctx, capability.PurposeChat, opts.UserGesture,
		func(ctx context.Context) (capability.Session, error) {
			return o.createSession(ctx, capability.PurposeChat, capability.CreateOptions{
				SystemPrompt: chatSystemPrompt(opts.PageText, opts.PageSummary, lang),
				InitialTurns: history,
			})
		})
	if err != nil {
		return false, err
	}

	o.chatMu.Lock()
	o.chatHistory = append([]types.ChatMessage(nil), history...)
	o.chatPageURL = opts.PageURL
	o.chatContentHash = hash
	o.chatPageSummary = opts.PageSummary
	o.chatMu.Unlock()
	o.emit(types.NewSessionCreatedEvent(capability.PromptKind(capability.PurposeChat).CacheKey()))
	return true, nil
}

// AskOptions configures AskChatQuestion.
type AskOptions struct {
	// OnChunk receives the accumulated answer after each increment.
	OnChunk func(string)
}

// AskChatQuestion sends a question to the live chat session and streams the
// answer. The user turn is committed to conversation history before
// generation starts, so cancelling mid-stream discards the partial answer
// but never the already-committed turns.
func (o *Orchestrator) AskChatQuestion(ctx context.Context, question string, opts AskOptions) (string, error) {
	question = extract.CleanSelection(question)
	if question == "" {
		return o.deliver(opts.OnChunk, "Ask a question about this page."), nil
	}

	chatKind := capability.PromptKind(capability.PurposeChat)
	session := o.sessions.Get(capability.PurposeChat)
	if session == nil {
		o.emit(types.NewDegradedEvent(chatKind.CacheKey()))
		return o.deliver(opts.OnChunk, o.fallback.Chat()), ErrNoSession
	}

	userMsg := types.NewUserMessage(question)
	o.chatMu.Lock()
	o.chatHistory = append(o.chatHistory, userMsg)
	o.chatMu.Unlock()
	o.persistChat(ctx)

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.sessions.BeginGeneration(capability.PurposeChat, cancel)

	out, err := o.executor.Run(genCtx, session, question, o.guard(genCtx, opts.OnChunk))
	if errors.Is(err, context.Canceled) {
		return "", nil
	}
	if err != nil {
		o.emit(types.NewDegradedEvent(chatKind.CacheKey()))
		return o.deliver(opts.OnChunk, o.fallback.Chat()), nil
	}

	assistantMsg := types.NewAssistantMessage(out)
	session.AppendTurn(userMsg)
	session.AppendTurn(assistantMsg)
	o.chatMu.Lock()
	o.chatHistory = append(o.chatHistory, assistantMsg)
	o.chatMu.Unlock()
	o.persistChat(ctx)
	if usage := session.Usage(); usage != nil {
		o.emit(types.NewTokenUsageEvent(chatKind.CacheKey(), usage))
	}
	return out, nil
}

// ClearChatSession destroys the chat session and its persisted history for
// the current page, then lazily re-establishes keepalive.
func (o *Orchestrator) ClearChatSession(ctx context.Context) {
	had := o.sessions.HasSession(capability.PurposeChat)
	o.sessions.Release(ctx, capability.PurposeChat)
	if had {
		o.emit(types.NewSessionReleasedEvent(capability.PromptKind(capability.PurposeChat).CacheKey()))
	}

	o.chatMu.Lock()
	url := o.chatPageURL
	o.chatHistory = nil
	o.chatPageURL = ""
	o.chatContentHash = ""
	o.chatPageSummary = ""
	o.chatMu.Unlock()

	if o.history != nil && url != "" {
		if err := o.history.Delete(ctx, url); err != nil {
			o.log.Warnf("deleting chat history for %s failed: %v", url, err)
		}
	}
}

// HasChatSession reports whether a live chat session exists.
func (o *Orchestrator) HasChatSession() bool {
	return o.sessions.HasSession(capability.PurposeChat)
}

// ChatHistory returns a copy of the current conversation's committed turns.
func (o *Orchestrator) ChatHistory() []types.ChatMessage {
	o.chatMu.Lock()
	defer o.chatMu.Unlock()
	return append([]types.ChatMessage(nil), o.chatHistory...)
}

// ChatTokenUsage reports the chat session's context-window consumption, or
// nil when no session is live or the host does not track usage.
func (o *Orchestrator) ChatTokenUsage() *types.TokenUsage {
	session := o.sessions.Get(capability.PurposeChat)
	if session == nil {
		return nil
	}
	return session.Usage()
}

// AbortSummarize cancels every in-flight summarize call.
func (o *Orchestrator) AbortSummarize() {
	o.summarizeCalls.abortAll()
}

// AbortTranslate cancels every in-flight translate call.
func (o *Orchestrator) AbortTranslate() {
	o.translateCalls.abortAll()
}

// AbortChat cancels the chat session's in-flight generation, keeping the
// session itself alive.
func (o *Orchestrator) AbortChat() {
	o.sessions.AbortGeneration(capability.PurposeChat)
}

// EnsureKeepalive opportunistically establishes the idle warm-start session.
func (o *Orchestrator) EnsureKeepalive(ctx context.Context) {
	o.sessions.EnsureKeepalive(ctx)
}

// Sessions exposes the session manager for callers that coordinate lifecycle
// directly (page refresh handlers, tests).
func (o *Orchestrator) Sessions() *SessionManager { return o.sessions }

// Cache exposes the instance cache.
func (o *Orchestrator) Cache() *InstanceCache { return o.cache }

// DestroyAll aborts every in-flight operation and destroys every cached
// instance and session. Called on page unload.
func (o *Orchestrator) DestroyAll() {
	o.summarizeCalls.abortAll()
	o.translateCalls.abortAll()
	o.sessions.DestroyAll()
	o.cache.DestroyAll(nil)
	o.log.Infof("all capability resources destroyed")
}

// constructor builds the Create closure for non-session instances, wiring
// download progress into the log.
func (o *Orchestrator) constructor(kind capability.Kind) func(ctx context.Context) (capability.Instance, error) {
	return func(ctx context.Context) (capability.Instance, error) {
		return o.host.Create(ctx, kind, capability.CreateOptions{
			OnDownloadProgress: o.downloadProgress(kind),
		})
	}
}

// downloadProgress builds the progress callback for kind, logging and
// forwarding to the event sink.
func (o *Orchestrator) downloadProgress(kind capability.Kind) func(float64) {
	return func(fraction float64) {
		o.log.Debugf("%s download %.0f%%", kind, fraction*100)
		o.emit(types.NewDownloadProgressEvent(kind.CacheKey(), fraction))
	}
}

// createSession builds a prompt session, verifying the host honored the
// Session contract.
func (o *Orchestrator) createSession(ctx context.Context, purpose capability.Purpose, opts capability.CreateOptions) (capability.Session, error) {
	if opts.OnDownloadProgress == nil {
		opts.OnDownloadProgress = o.downloadProgress(capability.PromptKind(purpose))
	}
	inst, err := o.host.Create(ctx, capability.PromptKind(purpose), opts)
	if err != nil {
		return nil, err
	}
	session, ok := inst.(capability.Session)
	if !ok {
		inst.Destroy()
		return nil, fmt.Errorf("orchestrator: host returned non-session instance for %s", purpose)
	}
	return session, nil
}

// persistChat writes the current conversation to the history store.
func (o *Orchestrator) persistChat(ctx context.Context) {
	if o.history == nil {
		return
	}
	o.chatMu.Lock()
	url := o.chatPageURL
	rec := &storage.ChatHistory{
		Messages:    append([]types.ChatMessage(nil), o.chatHistory...),
		ContentHash: o.chatContentHash,
		PageSummary: o.chatPageSummary,
		Timestamp:   time.Now(),
	}
	o.chatMu.Unlock()

	if url == "" {
		return
	}
	if err := o.history.Save(ctx, url, rec); err != nil {
		o.log.Warnf("persisting chat history for %s failed: %v", url, err)
	}
}

// guard wraps the caller's progress callback so increments arriving after
// the call's context is cancelled are silently dropped.
func (o *Orchestrator) guard(ctx context.Context, onChunk func(string)) func(string) {
	if onChunk == nil {
		return nil
	}
	return func(s string) {
		if ctx.Err() == nil {
			onChunk(s)
		}
	}
}

// deliver sends a terminal message through the progress channel and returns
// it, so degraded output follows the same path as streamed output.
func (o *Orchestrator) deliver(onChunk func(string), msg string) string {
	if onChunk != nil {
		onChunk(msg)
	}
	return msg
}

// degrade emits a degradation event and delivers the degraded text for err:
// language-combination rejections get the settings-pointing message, a
// download blocked on a missing gesture gets the needs-interaction message,
// everything else the given capability fallback.
func (o *Orchestrator) degrade(kind capability.Kind, err error, base string, onChunk func(string)) string {
	o.emit(types.NewDegradedEvent(kind.CacheKey()))
	switch {
	case errors.Is(err, capability.ErrUnsupportedLanguage):
		return o.deliver(onChunk, o.fallback.UnsupportedLanguage())
	case errors.Is(err, ErrNeedsGesture):
		return o.deliver(onChunk, o.fallback.NeedsGesture())
	}
	return o.deliver(onChunk, base)
}

// emit delivers an informational event to the configured sink, if any.
func (o *Orchestrator) emit(ev types.Event) {
	if o.events != nil {
		o.events(ev)
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
