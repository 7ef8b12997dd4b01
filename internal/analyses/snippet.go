package analyses

import "strings"

const snippetMaxLen = 255

// Snippet returns the leading portion of text suitable for list views.
func Snippet(text string) string {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) <= snippetMaxLen {
		return trimmed
	}
	return string(runes[:snippetMaxLen])
}
