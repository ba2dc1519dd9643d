package prompt

import (
	"strings"
	"unicode/utf8"
)

// maxRefinedRunes keeps refined prompts inside the image model's prompt limit.
const maxRefinedRunes = 4000

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

// cleanCompletion strips code fences, wrapping quotes and a leading
// "Prompt:" label that chat models like to add, then bounds the length.
func cleanCompletion(raw string) string {
	text := trimCodeFence(raw)
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			text = strings.TrimSpace(text[1 : len(text)-1])
		}
	}
	for _, label := range []string{"Prompt:", "prompt:", "PROMPT:"} {
		if strings.HasPrefix(text, label) {
			text = strings.TrimSpace(strings.TrimPrefix(text, label))
			break
		}
	}
	if utf8.RuneCountInString(text) > maxRefinedRunes {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:maxRefinedRunes]))
	}
	return text
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```text")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
