package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/pagelens/pagelens/pkg/capability"
	"github.com/pagelens/pagelens/pkg/logging"
)

// StreamExecutor drives a capability's incremental-output protocol. It
// normalizes delta and cumulative increment semantics into a single
// cumulative string before invoking the caller's progress callback, and
// retries once through the batch method when the streaming protocol itself
// fails. Cancellation is never retried and never surfaced as a failure: a
// cancelled run produces an empty result and silence.
type StreamExecutor struct {
	log *logging.Logger
}

// NewStreamExecutor creates a streaming executor.
func NewStreamExecutor(log *logging.Logger) *StreamExecutor {
	if log == nil {
		log = logging.Discard("stream")
	}
	return &StreamExecutor{log: log}
}

// Run streams generation for input on inst, invoking onChunk with the
// accumulated text after each increment. The final return value is the last
// delivered cumulative value, or "" with context.Canceled when the run was
// aborted mid-stream.
func (e *StreamExecutor) Run(
	ctx context.Context,
	inst capability.Instance,
	input string,
	onChunk func(string),
) (string, error) {
	stream, err := inst.Stream(ctx, input)
	if err != nil {
		if isAbort(ctx, err) {
			return "", context.Canceled
		}
		e.log.Warnf("stream init for %s failed, retrying batch: %v", inst.Kind(), err)
		return e.runBatch(ctx, inst, input, onChunk)
	}

	var accumulated string
	for chunk := range stream {
		// Check the cancellation flag before accepting each increment.
		if ctx.Err() != nil {
			return "", context.Canceled
		}
		if chunk.IsError() {
			if isAbort(ctx, chunk.Error) {
				return "", context.Canceled
			}
			e.log.Warnf("stream for %s failed mid-generation, retrying batch: %v", inst.Kind(), chunk.Error)
			return e.runBatch(ctx, inst, input, onChunk)
		}
		if chunk.Content == "" {
			continue
		}
		switch inst.Semantics() {
		case capability.SemanticsCumulative:
			accumulated = chunk.Content
		default:
			accumulated += chunk.Content
		}
		if onChunk != nil {
			onChunk(accumulated)
		}
	}

	if ctx.Err() != nil {
		return "", context.Canceled
	}
	return accumulated, nil
}

// runBatch is the one-shot retry path when streaming breaks. The full result
// is delivered through the same progress callback as streamed output.
func (e *StreamExecutor) runBatch(
	ctx context.Context,
	inst capability.Instance,
	input string,
	onChunk func(string),
) (string, error) {
	out, err := inst.Run(ctx, input)
	if err != nil {
		if isAbort(ctx, err) {
			return "", context.Canceled
		}
		return "", ErrStreamFailed
	}
	if ctx.Err() != nil {
		return "", context.Canceled
	}
	if onChunk != nil && out != "" {
		onChunk(out)
	}
	return out, nil
}

// isAbort reports whether the error (or the call's context) represents
// cancellation rather than a real failure.
func isAbort(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// callSet tracks the in-flight calls of one capability kind, giving each its
// own cancellation token. A monotonic call id doubles as a generation
// counter: an abort invalidates every outstanding call, and increments from
// a superseded call die with that call's own context instead of leaking into
// a newer one.
type callSet struct {
	mu      sync.Mutex
	nextID  int64
	cancels map[int64]context.CancelFunc
}

func newCallSet() *callSet {
	return &callSet{cancels: make(map[int64]context.CancelFunc)}
}

// begin registers a new call and returns its id and derived context.
func (s *callSet) begin(parent context.Context) (int64, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.cancels[id] = cancel
	s.mu.Unlock()
	return id, ctx, cancel
}

// end forgets a finished call.
func (s *callSet) end(id int64) {
	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()
}

// abortAll cancels every in-flight call of this kind.
func (s *callSet) abortAll() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.cancels))
	for id, cancel := range s.cancels {
		cancels = append(cancels, cancel)
		delete(s.cancels, id)
	}
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
