package types

import "testing"

func TestEventConstructors(t *testing.T) {
	ev := NewDownloadProgressEvent("summarizer:tldr:en:short", 0.5)
	if ev.Type != EventTypeDownloadProgress {
		t.Errorf("expected download progress type, got %s", ev.Type)
	}
	if ev.Capability != "summarizer:tldr:en:short" || ev.Progress != 0.5 {
		t.Errorf("unexpected event payload: %+v", ev)
	}

	usage := &TokenUsage{Usage: 100, Quota: 400, Percentage: 25}
	ev = NewTokenUsageEvent("prompt:chat", usage)
	if ev.Type != EventTypeTokenUsage || ev.Usage != usage {
		t.Errorf("unexpected token usage event: %+v", ev)
	}

	ev = NewDegradedEvent("translator:en>fr")
	if ev.Type != EventTypeDegraded || ev.Capability != "translator:en>fr" {
		t.Errorf("unexpected degraded event: %+v", ev)
	}
}

func TestMessageConstructors(t *testing.T) {
	user := NewUserMessage("hello")
	if user.Role != RoleUser || user.Content != "hello" || user.Timestamp.IsZero() {
		t.Errorf("unexpected user message: %+v", user)
	}

	assistant := NewAssistantMessage("hi")
	if assistant.Role != RoleAssistant {
		t.Errorf("unexpected assistant role: %s", assistant.Role)
	}
}
