package chunker

import (
	"strings"
	"testing"
)

func TestSplitEmpty(t *testing.T) {
	c := New(Config{})
	if got := c.Split(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
	if got := c.Split("   \n\t  "); got != nil {
		t.Fatalf("expected nil for whitespace input, got %v", got)
	}
}

func TestSplitShortInput(t *testing.T) {
	c := New(Config{})
	got := c.Split("  hello world  ")
	if len(got) != 1 || got[0] != "hello world" {
		t.Fatalf("expected single trimmed chunk, got %v", got)
	}
}

func TestSplitHeadings(t *testing.T) {
	c := New(Config{MaxChars: 50})
	text := "# Alpha\n" + strings.Repeat("a", 40) + "\n## Beta\n" + strings.Repeat("b", 40)
	got := c.Split(text)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(got), got)
	}
	if !strings.HasPrefix(got[0], "# Alpha") {
		t.Errorf("chunk 0 missing heading: %q", got[0])
	}
	if !strings.HasPrefix(got[1], "## Beta") {
		t.Errorf("chunk 1 missing heading: %q", got[1])
	}
}

func TestSplitParagraphFallback(t *testing.T) {
	c := New(Config{MaxChars: 30})
	text := strings.Repeat("a", 25) + "\n\n" + strings.Repeat("b", 25)
	got := c.Split(text)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(got), got)
	}
}

func TestSplitMergesAdjacent(t *testing.T) {
	c := New(Config{MaxChars: 100})
	text := strings.Repeat("a", 30) + "\n\n" + strings.Repeat("b", 30) + "\n\n" + strings.Repeat("c", 80)
	got := c.Split(text)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(got), got)
	}
	want := strings.Repeat("a", 30) + "\n\n" + strings.Repeat("b", 30)
	if got[0] != want {
		t.Errorf("merge mismatch: %q", got[0])
	}
}

func TestSplitOversizedSectionPassesThrough(t *testing.T) {
	c := New(Config{MaxChars: 50})
	big := strings.Repeat("x", 120)
	text := "short one\n\n" + big
	got := c.Split(text)
	found := false
	for _, ch := range got {
		if ch == big {
			found = true
		}
	}
	if !found {
		t.Fatalf("oversized section was not preserved intact: %v", got)
	}
}

func TestSplitNoSplitPoint(t *testing.T) {
	c := New(Config{MaxChars: 20})
	text := strings.Repeat("x", 100)
	got := c.Split(text)
	if len(got) != 1 || got[0] != text {
		t.Fatalf("expected whole input as one chunk, got %v", got)
	}
}

func TestSplitDeterministic(t *testing.T) {
	c := New(Config{MaxChars: 60})
	text := "# One\npara one body text here\n\n# Two\npara two body text here\n\n# Three\nmore text again"
	a := c.Split(text)
	b := c.Split(text)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic chunk %d", i)
		}
	}
}

func TestSplitNoContentLost(t *testing.T) {
	c := New(Config{MaxChars: 40})
	text := "# A\nalpha body\n\n# B\nbeta body\n\n# C\ngamma body"
	got := c.Split(text)
	joined := strings.Join(got, "\n\n")
	for _, word := range []string{"alpha", "beta", "gamma"} {
		if !strings.Contains(joined, word) {
			t.Errorf("content %q lost in chunking", word)
		}
	}
	for _, ch := range got {
		if strings.TrimSpace(ch) == "" {
			t.Error("empty chunk emitted")
		}
	}
}

func TestHashPrefixMidLineIsNotHeading(t *testing.T) {
	c := New(Config{MaxChars: 30})
	text := "issue #1 is open\nissue #2 is open\nissue #3 is open and longer"
	got := c.Split(text)
	// No headings and no blank lines, so this cannot be split.
	if len(got) != 1 {
		t.Fatalf("mid-line # treated as heading: %v", got)
	}
}
