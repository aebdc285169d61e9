package orchestrator

import (
	"fmt"
	"strings"
)

// keepalivePrompt is the minimal instruction for the idle warm-start session.
const keepalivePrompt = "You are a helpful assistant. Reply with OK."

// languageNames maps the supported display-language codes to the names used
// in prompts.
var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"ja": "Japanese",
}

func languageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// explainSystemPrompt instructs the one-shot explain session.
func explainSystemPrompt(lang string) string {
	return fmt.Sprintf(
		"You explain terms and phrases simply and concisely. "+
			"Answer in %s with 2-3 short sentences. "+
			"If surrounding context is given, use it to pick the right meaning.",
		languageName(lang))
}

// explainPrompt is the single question an explain session gets asked.
func explainPrompt(term, contextText string) string {
	if contextText == "" {
		return fmt.Sprintf("Explain the term %q.", term)
	}
	return fmt.Sprintf("Explain the term %q as it is used in the following passage:\n\n%s",
		term, contextText)
}

// chatSystemPrompt seeds a page-chat session with the page content and an
// optional prior summary.
func chatSystemPrompt(pageText, pageSummary, lang string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You answer questions about the web page below. Answer in %s. ", languageName(lang))
	b.WriteString("Base your answers only on the page content; say so when the page doesn't contain the answer.\n\n")
	if pageSummary != "" {
		fmt.Fprintf(&b, "Page summary:\n%s\n\n", pageSummary)
	}
	fmt.Fprintf(&b, "Page content:\n%s", pageText)
	return b.String()
}
