package synthesis

import (
	"regexp"
	"strings"
)

// Normalization patterns applied before every enqueue. Markup is stripped
// rather than rendered: the synthesis engine receives plain prose.
var (
	htmlTagPattern      = regexp.MustCompile(`<[^>]*>`)
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	markdownMarkPattern = regexp.MustCompile("[*_`~#]+")
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

// phoneticExpansions maps written forms to speakable ones. Abbreviations
// read badly when synthesized verbatim; initialisms are spelled out.
var phoneticExpansions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\be\.g\.`), "for example"},
	{regexp.MustCompile(`\bi\.e\.`), "that is"},
	{regexp.MustCompile(`\betc\.`), "et cetera"},
	{regexp.MustCompile(`\bvs\.?\b`), "versus"},
	{regexp.MustCompile(`\bDr\.`), "Doctor"},
	{regexp.MustCompile(`\bMr\.`), "Mister"},
	{regexp.MustCompile(`\bMrs\.`), "Missus"},
	{regexp.MustCompile(`\bapprox\.`), "approximately"},
	{regexp.MustCompile(`\bAI\b`), "A I"},
	{regexp.MustCompile(`\bAPI\b`), "A P I"},
	{regexp.MustCompile(`\bFAQ\b`), "F A Q"},
	{regexp.MustCompile(`\bURL\b`), "U R L"},
	{regexp.MustCompile(`\bUI\b`), "U I"},
}

// Normalize prepares text for synthesis: strips markup, expands
// abbreviations phonetically, collapses whitespace, and truncates overlong
// text with an ellipsis to bound synthesis latency. maxLen <= 0 disables
// truncation.
func Normalize(text string, maxLen int) string {
	text = markdownLinkPattern.ReplaceAllString(text, "$1")
	text = htmlTagPattern.ReplaceAllString(text, " ")
	text = markdownMarkPattern.ReplaceAllString(text, "")

	for _, exp := range phoneticExpansions {
		text = exp.pattern.ReplaceAllString(text, exp.replacement)
	}

	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if maxLen > 0 {
		text = truncate(text, maxLen)
	}
	return text
}

// truncate cuts text to at most maxLen runes, preferring a word boundary,
// and marks the cut with an ellipsis.
func truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}

	cut := string(runes[:maxLen])
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " .,;:") + "..."
}
