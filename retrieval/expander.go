package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"ainotes/llm"
)

// MaxTargetCount caps how many query variants one question may expand to.
const MaxTargetCount = 8

var (
	leadingBulletRe = regexp.MustCompile(`^(?:\d+[).:\-]?|[-*•])\s*`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// Expander generates intent-preserving rewrites of a question to improve
// retrieval recall.
type Expander struct {
	client llm.Client
}

// NewExpander returns an Expander backed by the given client.
func NewExpander(client llm.Client) *Expander {
	return &Expander{client: client}
}

// Expand returns up to targetCount query variants, the normalized original
// first. targetCount is clamped to [1, MaxTargetCount]; 1 short-circuits
// without an LLM call. On LLM failure or an empty response the original
// alone is returned.
func (e *Expander) Expand(ctx context.Context, question string, targetCount int) []string {
	base := normalizeQuery(question)
	if base == "" {
		return nil
	}

	count := clampTargetCount(targetCount)
	if count == 1 {
		return []string{base}
	}

	prompt := fmt.Sprintf(
		"Generate concise retrieval-friendly rewrites for this question.\n"+
			"Preserve the original meaning and user intent exactly; only rewrite wording or keywords for search coverage.\n"+
			"Do not broaden, narrow, or change topic.\n"+
			"Question: %s\n"+
			"Return up to %d alternatives, one per line, no prose.",
		base, count-1,
	)

	raw, err := e.client.Generate(ctx, prompt, "")
	if err != nil {
		slog.Warn("query expansion failed, falling back to original query", "error", err)
		return []string{base}
	}

	deduped := dedupeStable(append([]string{base}, parseExpansion(raw)...))
	if len(deduped) == 0 {
		return []string{base}
	}
	if len(deduped) > count {
		deduped = deduped[:count]
	}
	return deduped
}

func normalizeQuery(value string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(value, " "))
}

func clampTargetCount(value int) int {
	if value < 1 {
		return 1
	}
	if value > MaxTargetCount {
		return MaxTargetCount
	}
	return value
}

// parseExpansion extracts query candidates from the raw LLM response:
// one per line with bullet markers and quotes stripped, falling back to
// semicolon splitting when no line yields content.
func parseExpansion(raw string) []string {
	stripped := strings.TrimSpace(raw)
	if stripped == "" {
		return nil
	}

	var candidates []string
	for _, line := range strings.Split(stripped, "\n") {
		cleaned := leadingBulletRe.ReplaceAllString(strings.TrimSpace(line), "")
		cleaned = strings.Trim(cleaned, `"'`)
		if normalized := normalizeQuery(cleaned); normalized != "" {
			candidates = append(candidates, normalized)
		}
	}
	if len(candidates) > 0 {
		return candidates
	}

	for _, part := range strings.Split(stripped, ";") {
		if normalized := normalizeQuery(part); normalized != "" {
			candidates = append(candidates, normalized)
		}
	}
	return candidates
}

// dedupeStable removes case-insensitive duplicates preserving first-seen
// order.
func dedupeStable(values []string) []string {
	seen := make(map[string]bool, len(values))
	var result []string
	for _, v := range values {
		normalized := normalizeQuery(v)
		if normalized == "" {
			continue
		}
		key := strings.ToLower(normalized)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, normalized)
	}
	return result
}
