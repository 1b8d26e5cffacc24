package ainotes

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ainotes/store"
)

// contextMaxChars caps how much of each note appears in the prompt.
const contextMaxChars = 2000

const answerSystemPrompt = "You are an assistant that answers questions based on provided notes. " +
	"If the answer is not in the notes, say so clearly. " +
	"Answer concisely.\n\n" +
	"IMPORTANT: Think step-by-step. First explain your reasoning, " +
	"then provide the final answer. " +
	"Show your work and thought process."

// buildAnswerPrompt returns the system message and user prompt for answer
// generation over the retrieved contexts.
func buildAnswerPrompt(contexts []store.SearchResult, question string) (system, user string) {
	user = fmt.Sprintf(
		"Notes:\n%s\n\nQuestion: %s\n\nLet me think through this step-by-step:",
		formatContexts(contexts), question,
	)
	return answerSystemPrompt, user
}

// formatContexts renders retrieved notes as a numbered block, one entry
// per note, content capped at contextMaxChars.
func formatContexts(contexts []store.SearchResult) string {
	parts := make([]string, 0, len(contexts))
	for i, note := range contexts {
		title := note.Title
		if title == "" {
			title = "Untitled"
		}
		content := note.Content
		if len(content) > contextMaxChars {
			cut := contextMaxChars
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut]
		}
		parts = append(parts, fmt.Sprintf("[%d] %s\n%s", i+1, title, content))
	}
	return strings.Join(parts, "\n\n")
}
