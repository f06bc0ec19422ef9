package analyze

import "regexp"

var (
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>) and ruby parentheses (<rp>) from HTML.
// Readability keeps furigana as text, so "漢字" would otherwise become
// "漢字かんじ" and every offset after it would shift.
// It is byte based and also safe for Shift_JIS input: the tag bytes are ASCII
// and '<' is never a Shift_JIS trailing byte.
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, nil)
	return reRP.ReplaceAll(cleaned, nil)
}
