// Package extract turns raw page HTML and user selections into clean text
// suitable for the AI capabilities. Extraction is best-effort: it strips
// scripts, navigation and ad chrome, and rejects blocks that look like
// embedded JSON rather than prose.
package extract

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/net/html"
)

// jsonPunctuationLimit is the share of JSON-structural characters above which
// a candidate text block is rejected as non-prose.
const jsonPunctuationLimit = 0.2

// blockedNamePatterns match class and id attribute values of elements whose
// entire subtree is dropped (ads, navigation, social chrome).
var blockedNamePatterns = compilePatterns([]string{
	"ad",
	"ad-*",
	"*-ad",
	"ads*",
	"advert*",
	"*sidebar*",
	"*cookie*",
	"*banner*",
	"*popup*",
	"promo*",
	"nav*",
	"menu*",
	"social*",
	"share*",
	"comment*",
	"related*",
	"newsletter*",
})

func compilePatterns(patterns []string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, glob.MustCompile(p))
	}
	return out
}

// skippedElements are removed entirely, including their subtrees.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"iframe":   true,
	"embed":    true,
	"object":   true,
	"svg":      true,
	"canvas":   true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"form":     true,
	"button":   true,
	"select":   true,
}

// blockElements delimit text blocks for the JSON-content heuristic.
var blockElements = map[string]bool{
	"div": true, "p": true, "section": true, "article": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "table": true, "tr": true,
	"td": true, "th": true, "blockquote": true, "pre": true, "br": true,
}

// ReadableText extracts the readable main content of a page as plain text.
// Script, style and navigation chrome are stripped, elements whose class or
// id matches an ad/nav pattern are dropped, and blocks dominated by
// JSON-structural punctuation are rejected.
func ReadableText(rawHTML string) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("extract: parse HTML: %w", err)
	}

	var blocks []string
	var current strings.Builder
	collectText(doc, &current, &blocks)
	flushBlock(&current, &blocks)

	kept := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if looksLikeJSON(b) {
			continue
		}
		kept = append(kept, b)
	}
	return strings.Join(kept, "\n\n"), nil
}

// Title returns the page title, or "" if none is present.
func Title(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	return findTitle(doc)
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && strings.ToLower(n.Data) == "title" {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return CollapseWhitespace(n.FirstChild.Data)
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func collectText(n *html.Node, current *strings.Builder, blocks *[]string) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		text := CollapseWhitespace(n.Data)
		if text == "" {
			return
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(text)
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if skippedElements[tag] || hasBlockedName(n) {
			return
		}
		if blockElements[tag] {
			flushBlock(current, blocks)
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				collectText(c, current, blocks)
			}
			flushBlock(current, blocks)
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, current, blocks)
	}
}

func flushBlock(current *strings.Builder, blocks *[]string) {
	if current.Len() == 0 {
		return
	}
	block := strings.TrimSpace(current.String())
	current.Reset()
	if block != "" {
		*blocks = append(*blocks, block)
	}
}

func hasBlockedName(n *html.Node) bool {
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "class" && key != "id" {
			continue
		}
		for _, name := range strings.Fields(strings.ToLower(attr.Val)) {
			for _, pattern := range blockedNamePatterns {
				if pattern.Match(name) {
					return true
				}
			}
		}
	}
	return false
}

// looksLikeJSON reports whether more than 20% of the block's characters are
// JSON-structural punctuation. Pages embed state blobs in markup; those read
// as noise to a summarizer.
func looksLikeJSON(text string) bool {
	if text == "" {
		return false
	}
	structural := 0
	for _, r := range text {
		switch r {
		case '{', '}', '[', ']', '"', ':', ',':
			structural++
		}
	}
	return float64(structural)/float64(len([]rune(text))) > jsonPunctuationLimit
}

// CleanSelection normalizes user-selected text: trims and collapses runs of
// whitespace. Returns "" when nothing meaningful was selected.
func CleanSelection(text string) string {
	return CollapseWhitespace(text)
}

// CollapseWhitespace trims the string and collapses internal whitespace runs
// to single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// WordCount returns the number of whitespace-separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// TruncateWords returns the first n words of s and whether truncation
// occurred.
func TruncateWords(s string, n int) (string, bool) {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " "), false
	}
	return strings.Join(words[:n], " "), true
}
