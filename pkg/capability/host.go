package capability

import (
	"context"
	"errors"

	"github.com/pagelens/pagelens/pkg/types"
)

// ErrUnsupportedLanguage is returned by hosts that cannot serve the requested
// input/output language combination. It is distinct from device
// unavailability: the capability works, the language pair does not.
var ErrUnsupportedLanguage = errors.New("capability: language combination not supported")

// Semantics describes how a capability's stream increments compose.
type Semantics int

const (
	// SemanticsDelta means each increment is appended to the accumulated
	// output.
	SemanticsDelta Semantics = iota

	// SemanticsCumulative means each increment replaces the accumulated
	// output: the emitted value is the full text so far, not a delta.
	SemanticsCumulative
)

// Chunk is one unit of streamed output from a capability.
type Chunk struct {
	// Content is the increment text. Its composition semantics depend on
	// the producing instance's Semantics.
	Content string

	// Finished marks the final chunk of a stream.
	Finished bool

	// Error is set on failure chunks. A stream ends after an error chunk.
	Error error
}

// IsError returns true if the chunk carries an error.
func (c *Chunk) IsError() bool {
	return c.Error != nil
}

// CreateOptions carries configuration for instance construction that is not
// part of the cache key: prompt seeding for sessions and download progress
// reporting for first-time asset downloads.
type CreateOptions struct {
	// SystemPrompt is the instruction prompt for prompt sessions.
	SystemPrompt string

	// InitialTurns seeds a prompt session with prior conversation turns,
	// in order, before any new input is sent.
	InitialTurns []types.ChatMessage

	// OnDownloadProgress, when set, receives download progress in [0, 1]
	// while the host fetches capability assets.
	OnDownloadProgress func(fraction float64)
}

// Instance is a constructed, ready-to-use handle for a capability with fixed
// configuration. Instances are never reconfigured; a different configuration
// is a different instance.
type Instance interface {
	// Kind returns the configuration this instance was created with.
	Kind() Kind

	// Semantics reports how this instance's stream increments compose.
	Semantics() Semantics

	// Stream starts incremental generation for the given input. The
	// returned channel is closed when generation completes or fails; a
	// failure is delivered as a final error chunk. Cancelling ctx stops
	// generation.
	Stream(ctx context.Context, input string) (<-chan *Chunk, error)

	// Run performs non-streaming generation for the given input. Used as
	// the retry path when the streaming protocol fails.
	Run(ctx context.Context, input string) (string, error)

	// Destroy releases the host-side resources held by this instance.
	// It is idempotent.
	Destroy()
}

// Session is a stateful prompt instance that accumulates conversation turns.
type Session interface {
	Instance

	// AppendTurn commits a completed turn to the session's conversation
	// state. Turns are append-only.
	AppendTurn(msg types.ChatMessage)

	// History returns the session's committed turns in order, including
	// any seed turns it was created with.
	History() []types.ChatMessage

	// Usage reports context-window consumption, or nil if the host does
	// not track it.
	Usage() *types.TokenUsage
}

// Host is the injected runtime that serves capabilities. Implementations
// must be safe for use from a single logical caller; the orchestrator never
// issues concurrent Create calls for the same kind.
type Host interface {
	// Supports reports whether the host exposes the capability at all.
	Supports(kind Kind) bool

	// Availability queries the host's readiness for the capability. It
	// has no side effects and is cheap to call repeatedly.
	Availability(ctx context.Context, kind Kind) (Availability, error)

	// Create constructs a live instance. For TypePromptSession kinds the
	// returned Instance also implements Session. Create may be slow: it
	// can trigger a one-time asset download, reporting progress through
	// opts.OnDownloadProgress.
	Create(ctx context.Context, kind Kind, opts CreateOptions) (Instance, error)
}
