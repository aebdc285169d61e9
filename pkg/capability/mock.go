package capability

import (
	"context"
	"fmt"
	"sync"

	"github.com/pagelens/pagelens/pkg/types"
)

// MockHost is a configurable Host double for tests. It can simulate every
// availability state, delta and cumulative stream semantics, mid-stream
// failures, and construction errors, without touching a real runtime.
type MockHost struct {
	mu sync.Mutex

	// Missing marks capability types the host does not expose at all.
	Missing map[Type]bool

	// AvailabilityByType overrides the reported availability per type.
	// Types without an entry report Available.
	AvailabilityByType map[Type]Availability

	// Chunks is the stream content emitted by created instances.
	Chunks []string

	// StreamSemantics is the semantics instances report. Defaults to
	// SemanticsDelta.
	StreamSemantics Semantics

	// CreateErr, when set, fails every Create call.
	CreateErr error

	// StreamErr, when set, is delivered as an error chunk after Chunks.
	StreamErr error

	// StreamInitErr, when set, fails Stream before any chunk is emitted.
	StreamInitErr error

	// BatchResult and BatchErr control the non-streaming Run path.
	BatchResult string
	BatchErr    error

	created   []Kind
	destroyed []Kind
}

// NewMockHost returns a MockHost where every capability is Available and
// streams emit nothing.
func NewMockHost() *MockHost {
	return &MockHost{
		Missing:            make(map[Type]bool),
		AvailabilityByType: make(map[Type]Availability),
	}
}

// Supports implements Host.
func (h *MockHost) Supports(kind Kind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.Missing[kind.Type]
}

// Availability implements Host.
func (h *MockHost) Availability(_ context.Context, kind Kind) (Availability, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Missing[kind.Type] {
		return Unavailable, nil
	}
	if a, ok := h.AvailabilityByType[kind.Type]; ok {
		return a, nil
	}
	return Available, nil
}

// Create implements Host. It records the created kind so tests can assert
// construction counts.
func (h *MockHost) Create(_ context.Context, kind Kind, opts CreateOptions) (Instance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.CreateErr != nil {
		return nil, h.CreateErr
	}
	if h.Missing[kind.Type] {
		return nil, fmt.Errorf("capability: %s not exposed by host", kind.Type)
	}
	h.created = append(h.created, kind)

	inst := &MockInstance{host: h, kind: kind}
	if kind.Type == TypePromptSession {
		turns := make([]types.ChatMessage, len(opts.InitialTurns))
		copy(turns, opts.InitialTurns)
		return &MockSession{MockInstance: inst, turns: turns}, nil
	}
	return inst, nil
}

// CreatedKinds returns every kind passed to a successful Create call, in
// order.
func (h *MockHost) CreatedKinds() []Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Kind, len(h.created))
	copy(out, h.created)
	return out
}

// CreateCount returns how many instances of the given type were created.
func (h *MockHost) CreateCount(t Type) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, k := range h.created {
		if k.Type == t {
			n++
		}
	}
	return n
}

// DestroyedKinds returns every kind whose instance was destroyed, in order.
func (h *MockHost) DestroyedKinds() []Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Kind, len(h.destroyed))
	copy(out, h.destroyed)
	return out
}

func (h *MockHost) recordDestroy(kind Kind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyed = append(h.destroyed, kind)
}

// MockInstance is the Instance returned by MockHost.
type MockInstance struct {
	host *MockHost
	kind Kind

	mu        sync.Mutex
	destroyed bool
}

// Kind implements Instance.
func (m *MockInstance) Kind() Kind { return m.kind }

// Semantics implements Instance.
func (m *MockInstance) Semantics() Semantics {
	m.host.mu.Lock()
	defer m.host.mu.Unlock()
	return m.host.StreamSemantics
}

// Stream implements Instance. It emits the host's configured chunks, then
// the configured stream error (if any), then closes.
func (m *MockInstance) Stream(ctx context.Context, _ string) (<-chan *Chunk, error) {
	m.host.mu.Lock()
	initErr := m.host.StreamInitErr
	streamErr := m.host.StreamErr
	chunks := make([]string, len(m.host.Chunks))
	copy(chunks, m.host.Chunks)
	m.host.mu.Unlock()

	if initErr != nil {
		return nil, initErr
	}

	out := make(chan *Chunk, len(chunks)+2)
	go func() {
		defer close(out)
		for _, c := range chunks {
			select {
			case out <- &Chunk{Content: c}:
			case <-ctx.Done():
				out <- &Chunk{Error: ctx.Err()}
				return
			}
		}
		if streamErr != nil {
			out <- &Chunk{Error: streamErr}
			return
		}
		out <- &Chunk{Finished: true}
	}()
	return out, nil
}

// Run implements Instance.
func (m *MockInstance) Run(_ context.Context, _ string) (string, error) {
	m.host.mu.Lock()
	defer m.host.mu.Unlock()
	return m.host.BatchResult, m.host.BatchErr
}

// Destroy implements Instance.
func (m *MockInstance) Destroy() {
	m.mu.Lock()
	already := m.destroyed
	m.destroyed = true
	m.mu.Unlock()
	if !already {
		m.host.recordDestroy(m.kind)
	}
}

// Destroyed reports whether Destroy was called.
func (m *MockInstance) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

// MockSession is the Session returned by MockHost for prompt kinds.
type MockSession struct {
	*MockInstance

	turnsMu sync.Mutex
	turns   []types.ChatMessage

	// UsageValue, when set, is returned by Usage.
	UsageValue *types.TokenUsage
}

// AppendTurn implements Session.
func (s *MockSession) AppendTurn(msg types.ChatMessage) {
	s.turnsMu.Lock()
	defer s.turnsMu.Unlock()
	s.turns = append(s.turns, msg)
}

// History implements Session.
func (s *MockSession) History() []types.ChatMessage {
	s.turnsMu.Lock()
	defer s.turnsMu.Unlock()
	out := make([]types.ChatMessage, len(s.turns))
	copy(out, s.turns)
	return out
}

// Usage implements Session.
func (s *MockSession) Usage() *types.TokenUsage {
	s.turnsMu.Lock()
	defer s.turnsMu.Unlock()
	return s.UsageValue
}
