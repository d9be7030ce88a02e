// Package textnorm cleans raw text extracted from PDF documents and bounds
// its length before chunking.
package textnorm

import (
	"regexp"
	"strings"
)

// TruncationMarker separates the retained head and tail when a document is
// longer than the configured bound.
const TruncationMarker = "\n\n[... CONTENIDO RECORTADO ...]\n\n"

var (
	hyphenBreak  = regexp.MustCompile(`-\s*\n\s*`)
	softBreak    = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
	nonPrintable = regexp.MustCompile(`[^\x{09}\x{0A}\x{20}-\x{7E}\x{A0}-\x{FFFF}]`)
)

// Clean normalizes text extracted from a PDF:
//   - rejoins words broken by a line-wrap hyphen
//   - converts soft line breaks to single newlines
//   - collapses runs of 3+ newlines to 2 and runs of horizontal
//     whitespace to a single space
//   - strips non-printable bytes outside tab, newline and the printable
//     ASCII/Unicode range
func Clean(raw string) string {
	if raw == "" {
		return ""
	}
	t := hyphenBreak.ReplaceAllString(raw, "")
	t = softBreak.ReplaceAllString(t, "\n")
	t = multiNewline.ReplaceAllString(t, "\n\n")
	t = multiSpace.ReplaceAllString(t, " ")
	t = nonPrintable.ReplaceAllString(t, "")
	return strings.TrimSpace(t)
}

// BoundLength caps text at maxChars characters, keeping the first headChars
// and as much of the tail as still fits, separated by TruncationMarker. The
// head preserves titles and policy statements, the tail conclusions and
// signatures. The result never exceeds maxChars plus the marker length.
func BoundLength(text string, maxChars, headChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	if headChars > maxChars {
		headChars = maxChars
	}
	tail := maxChars - headChars - len([]rune(TruncationMarker))
	if tail < 0 {
		tail = 0
	}
	out := string(runes[:headChars]) + TruncationMarker
	if tail > 0 {
		out += string(runes[len(runes)-tail:])
	}
	return out
}
