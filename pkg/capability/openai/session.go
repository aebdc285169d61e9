package openai

import (
	"context"
	"sync"

	openaisdk "github.com/openai/openai-go"
	"github.com/pkoukk/tiktoken-go"

	"github.com/pagelens/pagelens/pkg/capability"
	"github.com/pagelens/pagelens/pkg/types"
)

// session is a stateful prompt session. Its committed turns are replayed on
// every completion so the remote model sees the full conversation; the
// caller decides when a turn is committed via AppendTurn.
type session struct {
	*instance

	mu      sync.Mutex
	turns   []types.ChatMessage
	counter func(string) int
}

// Stream implements capability.Session. The input rides along as an
// uncommitted user turn; it only becomes part of the conversation when the
// caller appends it.
func (s *session) Stream(ctx context.Context, input string) (<-chan *capability.Chunk, error) {
	resp, err := s.host.sendStreamRequest(ctx, s.messages(input))
	if err != nil {
		return nil, err
	}

	chunks := make(chan *capability.Chunk, 10)
	go s.host.processStreamResponse(ctx, resp, chunks)
	return chunks, nil
}

// Run implements capability.Session with a non-streaming completion.
func (s *session) Run(ctx context.Context, input string) (string, error) {
	return s.host.complete(ctx, s.messages(input))
}

// AppendTurn implements capability.Session.
func (s *session) AppendTurn(msg types.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, msg)
}

// History implements capability.Session.
func (s *session) History() []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ChatMessage, len(s.turns))
	copy(out, s.turns)
	return out
}

// Usage implements capability.Session, estimating context consumption with
// a client-side tokenizer.
func (s *session) Usage() *types.TokenUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.counter(s.system)
	for _, turn := range s.turns {
		used += s.counter(turn.Content)
	}

	quota := s.host.quota
	usage := &types.TokenUsage{Usage: used, Quota: quota}
	if quota > 0 {
		usage.Percentage = float64(used) / float64(quota) * 100
	}
	return usage
}

func (s *session) messages(input string) []openaisdk.ChatCompletionMessageParamUnion {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(s.turns)+2)
	messages = append(messages, openaisdk.SystemMessage(s.system))
	for _, turn := range s.turns {
		switch turn.Role {
		case types.RoleAssistant:
			messages = append(messages, openaisdk.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openaisdk.UserMessage(turn.Content))
		}
	}
	return append(messages, openaisdk.UserMessage(input))
}

// newTokenCounter builds a token counting function for the model, falling
// back to a bytes/4 heuristic when no encoding is available for it.
func newTokenCounter(model string) func(string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return func(text string) int { return len(text) / 4 }
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}
}
