package retrieval

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"ainotes/chunker"
	"ainotes/store"
)

// topicEmbedder maps texts to one of three orthogonal axes so vector
// distance behaves predictably in tests.
func topicEmbedder(text string) ([]float32, error) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "python"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(lower, "sql"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func newTestIndex(t *testing.T, client *fakeClient) (*Index, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewIndex(st, client, chunker.New(chunker.Config{}), 0), st
}

func TestIndexAndRecall(t *testing.T) {
	client := &fakeClient{embedFn: topicEmbedder}
	ix, st := newTestIndex(t, client)
	ctx := context.Background()

	if _, err := st.CreateNote(ctx, "Python note", "Python tips", false); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateNote(ctx, "SQL note", "SQLite basics", false); err != nil {
		t.Fatal(err)
	}

	var progressed int
	total, err := ix.BuildIndex(ctx, func(current, total int, title string) {
		progressed++
	})
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if total != 2 || progressed != 2 {
		t.Fatalf("total = %d, progress calls = %d", total, progressed)
	}

	for id := int64(1); id <= 2; id++ {
		n, err := st.ChunkCount(ctx, id)
		if err != nil || n < 1 {
			t.Fatalf("note %d chunk count = %d, err %v", id, n, err)
		}
	}

	got, err := ix.Query(ctx, "python question", 1, 1, false, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("results = %v", got)
	}
	if got[0].Title != "Python note" {
		t.Errorf("top result = %q", got[0].Title)
	}
}

func TestIndexNoteMissing(t *testing.T) {
	ix, _ := newTestIndex(t, &fakeClient{embedFn: topicEmbedder})
	ok, err := ix.IndexNote(context.Background(), 999)
	if err != nil {
		t.Fatalf("IndexNote: %v", err)
	}
	if ok {
		t.Error("expected false for missing note")
	}
}

func TestIndexNoteContiguousChunks(t *testing.T) {
	client := &fakeClient{embedFn: topicEmbedder}
	ix, st := newTestIndex(t, client)
	ctx := context.Background()

	body := "# One\n" + strings.Repeat("python ", 200) + "\n# Two\n" + strings.Repeat("python ", 200)
	id, err := st.CreateNote(ctx, "Long note", body, true)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := ix.IndexNote(ctx, id)
	if err != nil || !ok {
		t.Fatalf("IndexNote = %v, %v", ok, err)
	}

	n, err := st.ChunkCount(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if n < 2 {
		t.Fatalf("expected multiple chunks, got %d", n)
	}
}

func TestIndexNoteEmbedFailureLeavesPriorState(t *testing.T) {
	client := &fakeClient{embedFn: topicEmbedder}
	ix, st := newTestIndex(t, client)
	ctx := context.Background()

	id, err := st.CreateNote(ctx, "Python note", "Python tips", false)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := ix.IndexNote(ctx, id); err != nil || !ok {
		t.Fatalf("initial IndexNote = %v, %v", ok, err)
	}
	before, _ := st.ChunkCount(ctx, id)

	client.embedFn = func(string) ([]float32, error) {
		return nil, fmt.Errorf("backend down")
	}
	ok, err := ix.IndexNote(ctx, id)
	if err != nil {
		t.Fatalf("IndexNote: %v", err)
	}
	if ok {
		t.Error("expected false when every embed fails")
	}

	after, _ := st.ChunkCount(ctx, id)
	if after != before {
		t.Errorf("prior chunk set changed: %d -> %d", before, after)
	}
}

func TestQueryAllLegsFail(t *testing.T) {
	client := &fakeClient{embedFn: topicEmbedder}
	ix, st := newTestIndex(t, client)
	ctx := context.Background()

	id, _ := st.CreateNote(ctx, "Python note", "Python tips", false)
	ix.IndexNote(ctx, id)

	client.embedFn = func(string) ([]float32, error) {
		return nil, fmt.Errorf("backend down")
	}
	got, err := ix.Query(ctx, "python", 3, 1, false, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestQueryHybridHydratesContent(t *testing.T) {
	client := &fakeClient{embedFn: topicEmbedder}
	ix, st := newTestIndex(t, client)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		id, err := st.CreateNote(ctx, fmt.Sprintf("Python note %d", i), "python chapter", false)
		if err != nil {
			t.Fatal(err)
		}
		if ok, err := ix.IndexNote(ctx, id); err != nil || !ok {
			t.Fatalf("IndexNote(%d) = %v, %v", id, ok, err)
		}
	}

	got, err := ix.Query(ctx, "python chapter", 2, 1, true, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) == 0 || len(got) > 2 {
		t.Fatalf("|result| = %d, want 1..2", len(got))
	}
	for _, r := range got {
		if r.Content == "" {
			t.Errorf("result %d has empty content after hydration", r.NoteID)
		}
		if !strings.Contains(r.Content, "python") {
			t.Errorf("result %d content not a chunk: %q", r.NoteID, r.Content)
		}
	}
}

func TestNewIndexOversample(t *testing.T) {
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer st.Close()
	client := &fakeClient{embedFn: topicEmbedder}
	ch := chunker.New(chunker.Config{})

	if ix := NewIndex(st, client, ch, 0); ix.oversample != DefaultFusionOversample {
		t.Errorf("oversample = %d, want default %d", ix.oversample, DefaultFusionOversample)
	}
	if ix := NewIndex(st, client, ch, -3); ix.oversample != DefaultFusionOversample {
		t.Errorf("oversample = %d, want default %d", ix.oversample, DefaultFusionOversample)
	}
	if ix := NewIndex(st, client, ch, 2); ix.oversample != 2 {
		t.Errorf("oversample = %d, want 2", ix.oversample)
	}
}

func TestQueryZeroTopK(t *testing.T) {
	ix, _ := newTestIndex(t, &fakeClient{embedFn: topicEmbedder})
	got, err := ix.Query(context.Background(), "anything", 0, 1, true, nil)
	if err != nil || got != nil {
		t.Fatalf("Query = %v, %v", got, err)
	}
}
