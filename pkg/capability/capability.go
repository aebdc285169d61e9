// Package capability defines the model for host-provided generative AI
// capabilities: what kinds exist, how their availability is reported, and the
// interface a host runtime must implement to serve them.
//
// The orchestrator never talks to a concrete runtime directly; it is given a
// Host at construction time. This keeps every availability state and failure
// mode reachable from tests via MockHost.
package capability

import (
	"fmt"
	"strings"
)

// Availability reports whether a capability can serve requests right now.
type Availability string

const (
	// Unavailable means the capability cannot run on this host or device.
	Unavailable Availability = "unavailable"

	// NeedsDownload means the capability could run after a one-time asset
	// download. Triggering the download requires a user interaction.
	NeedsDownload Availability = "needs-download"

	// Available means the capability is ready to serve.
	Available Availability = "available"
)

// Type identifies one of the four capability families.
type Type string

const (
	TypeSummarizer       Type = "summarizer"
	TypeTranslator       Type = "translator"
	TypeLanguageDetector Type = "language-detector"
	TypePromptSession    Type = "prompt"
)

// Purpose distinguishes the three uses of a prompt session.
type Purpose string

const (
	// PurposeExplain is a single-turn session destroyed after one answer.
	PurposeExplain Purpose = "explain"

	// PurposeChat is a long-lived multi-turn page conversation.
	PurposeChat Purpose = "chat"

	// PurposeKeepalive is an idle session that exists only to keep the
	// model resident between user interactions.
	PurposeKeepalive Purpose = "keepalive"
)

// Kind is a tagged variant describing a capability together with its full
// configuration. Two Kinds with the same configuration normalize to the same
// cache key; a configuration change always produces a new key, never an
// in-place reconfiguration.
type Kind struct {
	Type Type

	// Summarizer configuration.
	SummaryType    string // "tldr", "key-points", "teaser", "headline"
	SummaryLength  string // "short", "medium", "long"
	OutputLanguage string

	// Translator configuration.
	SourceLanguage string
	TargetLanguage string

	// Prompt session configuration.
	Purpose Purpose
}

// SummarizerKind describes a summarizer with the given style, output language
// and length.
func SummarizerKind(summaryType, outputLanguage, length string) Kind {
	return Kind{
		Type:           TypeSummarizer,
		SummaryType:    summaryType,
		OutputLanguage: outputLanguage,
		SummaryLength:  length,
	}
}

// TranslatorKind describes a translator for the given language pair.
func TranslatorKind(source, target string) Kind {
	return Kind{
		Type:           TypeTranslator,
		SourceLanguage: source,
		TargetLanguage: target,
	}
}

// LanguageDetectorKind describes the language detector. It takes no
// configuration, so all detector Kinds share one cache key.
func LanguageDetectorKind() Kind {
	return Kind{Type: TypeLanguageDetector}
}

// PromptKind describes a prompt session for the given purpose.
func PromptKind(purpose Purpose) Kind {
	return Kind{Type: TypePromptSession, Purpose: purpose}
}

// CacheKey returns a deterministic string built from the Kind's configuration
// fields. Kinds that normalize to the same key must be served by the same
// live instance.
func (k Kind) CacheKey() string {
	switch k.Type {
	case TypeSummarizer:
		return fmt.Sprintf("summarizer:%s:%s:%s",
			normalize(k.SummaryType), normalize(k.OutputLanguage), normalize(k.SummaryLength))
	case TypeTranslator:
		return fmt.Sprintf("translator:%s>%s",
			normalize(k.SourceLanguage), normalize(k.TargetLanguage))
	case TypeLanguageDetector:
		return "language-detector"
	case TypePromptSession:
		return fmt.Sprintf("prompt:%s", k.Purpose)
	default:
		return fmt.Sprintf("unknown:%s", k.Type)
	}
}

func (k Kind) String() string {
	return k.CacheKey()
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
