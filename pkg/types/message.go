// Package types defines the shared data types exchanged between the
// orchestrator, the host capability adapters, and persistence.
package types

import "time"

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	// RoleSystem is the role for system/instruction messages.
	RoleSystem MessageRole = "system"

	// RoleUser is the role for user-authored messages.
	RoleUser MessageRole = "user"

	// RoleAssistant is the role for model-generated messages.
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is one turn in a page-chat conversation. Sequences of
// ChatMessages are append-only while a conversation is live and are the only
// part of a session that survives the session object itself: a destroyed chat
// session is rebuilt by seeding its persisted ChatMessage history.
type ChatMessage struct {
	// Role indicates who authored the message.
	Role MessageRole `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Timestamp records when the message was committed to the conversation.
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage creates a user-authored chat message stamped with the
// current time.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage creates a model-authored chat message stamped with the
// current time.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// TokenUsage reports how much of a prompt session's context window has been
// consumed.
type TokenUsage struct {
	// Usage is the number of tokens currently occupied.
	Usage int `json:"usage"`

	// Quota is the session's total token budget.
	Quota int `json:"quota"`

	// Percentage is Usage as a share of Quota, in the range [0, 100].
	Percentage float64 `json:"percentage"`
}
