package pipeline

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Render substitutes {name} placeholders in a prompt template from the run
// context. Unknown placeholders resolve to the empty string so a typo in a
// template degrades the prompt instead of leaking the braces to the model.
func Render(template string, context map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(match[1 : len(match)-1])
		return context[name]
	})
}
