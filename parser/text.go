package parser

import (
	"regexp"
	"strings"
)

var h1Re = regexp.MustCompile(`(?m)^# (.+)$`)

// parseMarkdown imports a markdown file. The first top-level heading
// becomes the title and is removed from the body.
func parseMarkdown(stem string, data []byte) *ImportedNote {
	content := normalizeNewlines(string(data))

	title := ""
	if m := h1Re.FindStringSubmatchIndex(content); m != nil {
		title = strings.TrimSpace(content[m[2]:m[3]])
		content = strings.TrimSpace(content[:m[0]] + content[m[1]:])
	}

	return &ImportedNote{
		Title:    titleOr(title, stem),
		Content:  strings.TrimSpace(content),
		Markdown: true,
	}
}

// parseText imports a plain text file, filename stem as title.
func parseText(stem string, data []byte) *ImportedNote {
	return &ImportedNote{
		Title:   stem,
		Content: strings.TrimSpace(normalizeNewlines(string(data))),
	}
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
