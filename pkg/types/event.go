package types

// EventType defines the type of event emitted by the orchestrator.
type EventType string

const (
	EventTypeDownloadProgress EventType = "download_progress" // EventTypeDownloadProgress reports model download progress for a capability.
	EventTypeDegraded         EventType = "degraded"          // EventTypeDegraded indicates an operation fell back to non-AI output.
	EventTypeSessionCreated   EventType = "session_created"   // EventTypeSessionCreated indicates a prompt session became active.
	EventTypeSessionReleased  EventType = "session_released"  // EventTypeSessionReleased indicates a prompt session was destroyed.
	EventTypeTokenUsage       EventType = "token_usage"       // EventTypeTokenUsage reports chat context-window consumption.
)

// Event is a notification surfaced to the embedding UI. Events are
// informational: dropping them never affects operation results.
type Event struct {
	// Type indicates the kind of event.
	Type EventType

	// Capability identifies the capability configuration involved, as its
	// cache key.
	Capability string

	// Progress is the download fraction in [0, 1].
	// Only populated when Type is EventTypeDownloadProgress.
	Progress float64

	// Usage holds token consumption details.
	// Only populated when Type is EventTypeTokenUsage.
	Usage *TokenUsage
}

// NewDownloadProgressEvent creates a download progress event for the given
// capability.
func NewDownloadProgressEvent(capability string, progress float64) Event {
	return Event{Type: EventTypeDownloadProgress, Capability: capability, Progress: progress}
}

// NewDegradedEvent creates an event marking a degraded operation result.
func NewDegradedEvent(capability string) Event {
	return Event{Type: EventTypeDegraded, Capability: capability}
}

// NewSessionCreatedEvent creates a session lifecycle event.
func NewSessionCreatedEvent(capability string) Event {
	return Event{Type: EventTypeSessionCreated, Capability: capability}
}

// NewSessionReleasedEvent creates a session lifecycle event.
func NewSessionReleasedEvent(capability string) Event {
	return Event{Type: EventTypeSessionReleased, Capability: capability}
}

// NewTokenUsageEvent creates a token usage event.
func NewTokenUsageEvent(capability string, usage *TokenUsage) Event {
	return Event{Type: EventTypeTokenUsage, Capability: capability, Usage: usage}
}
