package services

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	PlaceholderTitle = "Nueva Conversación"
	maxTitleLen      = 50
	fallbackWords    = 6
)

const titlePromptTemplate = `Generate a short, descriptive title (maximum 50 characters) for a conversation that starts with the message below.
Respond with the title only: no quotes, no punctuation at the end, no explanations.

Message:
%s`

func titlePrompt(firstMessage string) string {
	return fmt.Sprintf(titlePromptTemplate, firstMessage)
}

// cleanTitle normalizes a model-suggested title. Returns "" when nothing usable is left.
func cleanTitle(raw string) string {
	var line string
	for _, l := range strings.Split(raw, "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}

	line = strings.Join(strings.Fields(line), " ")
	line = strings.Trim(line, "\"'`*#“”« »")
	if len(line) >= 6 && strings.EqualFold(line[:6], "title:") {
		line = strings.TrimSpace(line[6:])
		line = strings.Trim(line, "\"'`*“”")
	}

	if utf8.RuneCountInString(line) > maxTitleLen {
		line = strings.TrimSpace(string([]rune(line)[:maxTitleLen]))
	}
	return line
}

// fallbackTitle is the message's first six words, cut to maxTitleLen runes, with
// "..." appended when anything was dropped.
func fallbackTitle(message string) string {
	words := strings.Fields(message)
	truncated := len(words) > fallbackWords
	if truncated {
		words = words[:fallbackWords]
	}

	title := strings.Join(words, " ")
	if utf8.RuneCountInString(title) > maxTitleLen {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleLen]))
		truncated = true
	}
	if truncated {
		title += "..."
	}
	return title
}
