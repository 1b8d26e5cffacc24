package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"ainotes/llm"
	"ainotes/store"
)

// SelectionMaxChars caps how much of a chunk is shown to the relevance
// check. Shorter than retrieval chunks to keep selection cheap.
const SelectionMaxChars = 1500

// Selector asks the LLM a yes/no relevance question for each retrieved
// chunk before it reaches answer generation.
type Selector struct {
	client llm.Client
}

// NewSelector returns a Selector backed by the given client.
func NewSelector(client llm.Client) *Selector {
	return &Selector{client: client}
}

// SelectionResult records one relevance decision for diagnostics.
type SelectionResult struct {
	Chunk    store.SearchResult `json:"chunk"`
	Relevant bool               `json:"relevant"`
	Reason   string             `json:"reason"`
}

// Select filters chunks, keeping only those the LLM deems relevant to the
// question. Input order is preserved. Empty input returns nil without an
// LLM call.
func (s *Selector) Select(ctx context.Context, chunks []store.SearchResult, question string) []store.SearchResult {
	if len(chunks) == 0 {
		return nil
	}
	var relevant []store.SearchResult
	for _, c := range chunks {
		if s.isRelevant(ctx, c, question) {
			relevant = append(relevant, c)
		}
	}
	slog.Info("chunk selection complete",
		"relevant", len(relevant),
		"total", len(chunks),
	)
	return relevant
}

// SelectWithResults evaluates every chunk and returns the full decision
// record including the raw LLM reply.
func (s *Selector) SelectWithResults(ctx context.Context, chunks []store.SearchResult, question string) []SelectionResult {
	results := make([]SelectionResult, 0, len(chunks))
	for _, c := range chunks {
		response, err := s.client.Generate(ctx, relevanceUserPrompt(c, question), relevanceSystemPrompt)
		if err != nil {
			// LLM errors keep the chunk. Connectivity blips must not
			// silently drop content.
			slog.Warn("chunk relevance check errored, keeping chunk",
				"title", c.Title,
				"error", err,
			)
			results = append(results, SelectionResult{Chunk: c, Relevant: true, Reason: "LLM error; defaulted to relevant"})
			continue
		}
		results = append(results, SelectionResult{
			Chunk:    c,
			Relevant: parseRelevance(response),
			Reason:   strings.TrimSpace(response),
		})
	}
	return results
}

func (s *Selector) isRelevant(ctx context.Context, chunk store.SearchResult, question string) bool {
	response, err := s.client.Generate(ctx, relevanceUserPrompt(chunk, question), relevanceSystemPrompt)
	if err != nil {
		slog.Warn("chunk relevance check errored, keeping chunk",
			"title", chunk.Title,
			"error", err,
		)
		return true
	}
	return parseRelevance(response)
}

// parseRelevance interprets the model's reply. The first token, stripped
// of trailing punctuation, must be YES. An empty reply means the model
// answered with nothing recognisable and the chunk is dropped, which is
// distinct from an LLM error.
func parseRelevance(response string) bool {
	fields := strings.Fields(strings.TrimSpace(response))
	if len(fields) == 0 {
		return false
	}
	first := strings.Trim(fields[0], ".,!?;:")
	return strings.ToUpper(first) == "YES"
}

const relevanceSystemPrompt = "You judge whether a note excerpt is relevant to a question. " +
	"Reply with a single word: YES if the excerpt helps answer the question, NO otherwise."

func relevanceUserPrompt(chunk store.SearchResult, question string) string {
	content := truncateText(chunk.Content, SelectionMaxChars)
	return fmt.Sprintf("Excerpt:\n%s\n\nQuestion: %s\n\nIs the excerpt relevant? Answer YES or NO.", content, question)
}

// truncateText caps s at max bytes without cutting inside a UTF-8 rune.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
