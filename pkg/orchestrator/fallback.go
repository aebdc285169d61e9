package orchestrator

import (
	"fmt"
	"strings"

	"github.com/pagelens/pagelens/pkg/config"
	"github.com/pagelens/pagelens/pkg/extract"
)

// degradedMarker prefixes every degraded output so the UI can distinguish it
// from real model output.
const degradedMarker = "⚠️"

// FallbackPolicy produces deterministic, non-AI substitutes when a
// capability is unavailable, fails, or is refused. Every degraded path still
// yields visible text; the UI never shows a blank panel for an expected
// failure mode.
type FallbackPolicy struct {
	cfg *config.Config
}

// NewFallbackPolicy creates a fallback policy with the given tuning.
func NewFallbackPolicy(cfg *config.Config) *FallbackPolicy {
	return &FallbackPolicy{cfg: cfg}
}

// Summarize degrades to the input truncated to the word budget, with an
// ellipsis marker when truncated, followed by troubleshooting guidance.
func (f *FallbackPolicy) Summarize(input string) string {
	truncated, wasTruncated := extract.TruncateWords(input, f.cfg.FallbackWordBudget)
	if wasTruncated {
		truncated += " …"
	}
	return truncated + "\n\n" + f.troubleshooting()
}

// Translate degrades to the input with a target-language prefix marker.
func (f *FallbackPolicy) Translate(input, targetLang string) string {
	return fmt.Sprintf("[%s] %s\n\n%s", targetLang, input, f.troubleshooting())
}

// Explain degrades to the term quoted verbatim, with a context excerpt when
// one is available.
func (f *FallbackPolicy) Explain(term, contextText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "“%s”", term)
	if excerpt, _ := extract.TruncateWords(contextText, f.cfg.FallbackWordBudget); excerpt != "" {
		fmt.Fprintf(&b, "\n\nas seen in: %s…", excerpt)
	}
	b.WriteString("\n\n")
	b.WriteString(f.troubleshooting())
	return b.String()
}

// Chat degrades to a short apology pointing at diagnostics. There is no real
// output to truncate.
func (f *FallbackPolicy) Chat() string {
	return fmt.Sprintf("%s Sorry — I can't answer questions about this page right now.\n\n%s",
		degradedMarker, f.troubleshooting())
}

// TooShort is the validation message for input under the minimum word count.
// It is a distinct message, not the troubleshooting fallback: the capability
// was never the problem.
func (f *FallbackPolicy) TooShort() string {
	return fmt.Sprintf("Please select at least %d words of text for this to work well.",
		f.cfg.MinInputWords)
}

// NeedsGesture is the message for a pending model download that only a
// user-initiated action may start.
func (f *FallbackPolicy) NeedsGesture() string {
	return fmt.Sprintf("%s The on-device model needs a one-time download. "+
		"Trigger this action directly (click or menu) to start it.", degradedMarker)
}

// UnsupportedLanguage is the message for a language combination the host
// rejects. Distinct from device unavailability: the fix is a settings
// change, not a setup change.
func (f *FallbackPolicy) UnsupportedLanguage() string {
	return fmt.Sprintf("%s This language combination isn't supported on this device. "+
		"Supported output languages: %s. Check the output language in settings.",
		degradedMarker, strings.Join(f.cfg.DisplayLanguages, ", "))
}

// troubleshooting is the static setup guidance appended to degraded output.
func (f *FallbackPolicy) troubleshooting() string {
	return fmt.Sprintf(
		"%s On-device AI isn't available.\n"+
			"To enable it:\n"+
			"• Use %s\n"+
			"• Keep some disk space free for the one-time model download\n"+
			"• Supported output languages: %s",
		degradedMarker, f.cfg.HostRequirement, strings.Join(f.cfg.DisplayLanguages, ", "))
}
