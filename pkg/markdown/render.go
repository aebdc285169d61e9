// Package markdown renders model output (which is markdown by convention)
// into display HTML. It is a pure, stateless transform.
package markdown

import (
	"bytes"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Raw HTML in model output stays escaped: goldmark's default renderer is
// used without the unsafe option.
var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// Render converts markdown to HTML. On parse failure it degrades to the
// escaped source text so the UI always has something to show.
func Render(source string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return html.EscapeString(source)
	}
	return buf.String()
}
