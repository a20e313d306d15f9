// Package sanitize strips LaTeX markup and structural references from paper
// text before it is embedded. Raw arXiv abstracts carry inline math, citation
// commands and cross references that add noise to the embedding space.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars bounds sanitized text length in runes.
const DefaultMaxChars = 1500

type stage struct {
	name string
	re   *regexp.Regexp
	repl string
}

// Stages run in order; later patterns assume the earlier ones already fired
// (latexCommands must run last or it would eat \cite before the cite stage).
var stages = []stage{
	{"mathInline", regexp.MustCompile(`\$.*?\$`), " "},
	{"mathInline2", regexp.MustCompile(`\\\((.*?)\\\)`), " "},
	{"mathBlock", regexp.MustCompile(`\\\[(.*?)\\\]`), " "},
	{"cite", regexp.MustCompile(`\\cite\{.*?\}`), " "},
	{"references", regexp.MustCompile(`(?i)(Figure|Fig\.|Eq\.|Equation|Section|Table)\s+\d+(\.\d+)?`), " "},
	{"references2", regexp.MustCompile(`(?i)(Eq\.|Equation|Fig\.|Figure|Table|Section)\s*\(\d+\)`), " "},
	{"latexCommands", regexp.MustCompile(`\\[a-zA-Z]+`), " "},
}

var whitespace = regexp.MustCompile(`\s+`)

// Sanitizer cleans text with a configurable length cap.
type Sanitizer struct {
	maxChars int
}

// New returns a Sanitizer truncating to maxChars runes. maxChars <= 0 uses
// DefaultMaxChars.
func New(maxChars int) *Sanitizer {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Sanitizer{maxChars: maxChars}
}

// Clean applies every removal stage, collapses whitespace, and truncates to
// the configured rune cap. Clean is idempotent: Clean(Clean(s)) == Clean(s).
func (s *Sanitizer) Clean(text string) string {
	if text == "" {
		return ""
	}
	out := whitespace.ReplaceAllString(text, " ")
	for _, st := range stages {
		out = st.re.ReplaceAllString(out, st.repl)
	}
	out = strings.TrimSpace(whitespace.ReplaceAllString(out, " "))
	return Truncate(out, s.maxChars)
}

// Truncate cuts s to at most max runes, never splitting a multi-byte rune.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
