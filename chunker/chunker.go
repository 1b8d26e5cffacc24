// Package chunker splits note text into retrieval-sized chunks along
// markdown structure.
package chunker

import (
	"regexp"
	"strings"
)

// DefaultMaxChars bounds chunk size. 2000 characters keeps a chunk small
// enough to embed whole and large enough to be a useful context unit.
const DefaultMaxChars = 2000

// sectionJoiner glues merged sections back together.
const sectionJoiner = "\n\n"

var headingRe = regexp.MustCompile(`(?m)^#{1,6} `)

// Config controls chunking behaviour.
type Config struct {
	MaxChars int // maximum characters per chunk
}

// Chunker is a deterministic, pure text splitter.
type Chunker struct {
	maxChars int
}

// New returns a Chunker. A zero MaxChars falls back to DefaultMaxChars.
func New(cfg Config) *Chunker {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	return &Chunker{maxChars: cfg.MaxChars}
}

// Split breaks text into chunks of at most MaxChars characters.
//
// Empty or whitespace-only input yields no chunks. Input that already fits
// yields a single trimmed chunk. Longer input is split at markdown heading
// boundaries, falling back to blank-line paragraph boundaries when there are
// no headings; adjacent sections are then greedily merged while they still
// fit. If no split point exists the whole trimmed input is returned as one
// chunk rather than losing data.
func (c *Chunker) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) <= c.maxChars {
		return []string{trimmed}
	}

	sections := splitAtHeadings(trimmed)
	if len(sections) <= 1 {
		sections = splitAtParagraphs(trimmed)
	}
	if len(sections) <= 1 {
		return []string{trimmed}
	}

	return c.mergeSections(sections)
}

// splitAtHeadings splits at lines beginning with 1-6 '#' followed by a
// space. The heading line stays attached to the section it opens.
func splitAtHeadings(text string) []string {
	locs := headingRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	var cuts []int
	for _, loc := range locs {
		if loc[0] > 0 {
			cuts = append(cuts, loc[0])
		}
	}

	var sections []string
	prev := 0
	for _, cut := range cuts {
		if sec := strings.TrimSpace(text[prev:cut]); sec != "" {
			sections = append(sections, sec)
		}
		prev = cut
	}
	if sec := strings.TrimSpace(text[prev:]); sec != "" {
		sections = append(sections, sec)
	}
	return sections
}

var blankLineRe = regexp.MustCompile(`\n[ \t]*\n`)

// splitAtParagraphs splits on blank-line boundaries.
func splitAtParagraphs(text string) []string {
	var sections []string
	for _, part := range blankLineRe.Split(text, -1) {
		if sec := strings.TrimSpace(part); sec != "" {
			sections = append(sections, sec)
		}
	}
	return sections
}

// mergeSections greedily joins adjacent sections while the combined length
// plus the joiner stays within the budget. Oversized single sections pass
// through untouched.
func (c *Chunker) mergeSections(sections []string) []string {
	var chunks []string
	var current string

	for _, sec := range sections {
		switch {
		case current == "":
			current = sec
		case len(current)+len(sectionJoiner)+len(sec) <= c.maxChars:
			current += sectionJoiner + sec
		default:
			chunks = append(chunks, current)
			current = sec
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}
