package llm

import (
	"fmt"
	"regexp"
	"strings"
)

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON pulls the JSON payload out of a model answer. Models
// wrap answers in a markdown code block more often than not; bare JSON
// (with or without surrounding chatter) is accepted too.
func ExtractJSON(text string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if candidate != "" {
			return candidate, nil
		}
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed, nil
	}

	// Last resort: the outermost braces in the text.
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return trimmed[start : end+1], nil
		}
	}

	return "", fmt.Errorf("%w: no JSON found", ErrBadResponse)
}
