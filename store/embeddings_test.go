package store

import (
	"context"
	"testing"
)

func mustNote(t *testing.T, s *Store, title, content string) int64 {
	t.Helper()
	id, err := s.CreateNote(context.Background(), title, content, false)
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	return id
}

func chunk(text string, v []float32) ChunkVector {
	return ChunkVector{Text: text, Blob: EncodeVector(v)}
}

func TestReplaceChunksContiguous(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustNote(t, s, "N", "body")

	err := s.ReplaceChunks(ctx, id, []ChunkVector{
		chunk("a", []float32{1, 0}),
		chunk("b", []float32{0, 1}),
		chunk("c", []float32{1, 1}),
	})
	if err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT chunk_index FROM note_embeddings WHERE note_id = ? ORDER BY chunk_index", id)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var got []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			t.Fatal(err)
		}
		got = append(got, idx)
	}
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("chunk indices = %v", got)
	}

	// A second replace fully supersedes the first set.
	if err := s.ReplaceChunks(ctx, id, []ChunkVector{chunk("d", []float32{0, 1})}); err != nil {
		t.Fatal(err)
	}
	n, err := s.ChunkCount(ctx, id)
	if err != nil || n != 1 {
		t.Errorf("ChunkCount after replace = %d, %v", n, err)
	}
}

func TestReplaceChunksEmptyClears(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustNote(t, s, "N", "body")

	if err := s.ReplaceChunks(ctx, id, []ChunkVector{chunk("a", []float32{1})}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceChunks(ctx, id, nil); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.ChunkCount(ctx, id); n != 0 {
		t.Errorf("ChunkCount = %d", n)
	}
}

func TestVectorSearchOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	near := mustNote(t, s, "Near", "near body")
	far := mustNote(t, s, "Far", "far body")

	// "Near" has one close and one distant chunk; the distant one must not
	// drag it down, and its Content must come from the closest chunk.
	if err := s.ReplaceChunks(ctx, near, []ChunkVector{
		chunk("distant chunk", []float32{0, 1, 0}),
		chunk("close chunk", []float32{1, 0.1, 0}),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceChunks(ctx, far, []ChunkVector{
		chunk("orthogonal", []float32{0, 0, 1}),
	}); err != nil {
		t.Fatal(err)
	}

	query := EncodeVector([]float32{1, 0, 0})
	results, err := s.VectorSearch(ctx, query, 10)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].NoteID != near || results[1].NoteID != far {
		t.Errorf("order = [%d %d]", results[0].NoteID, results[1].NoteID)
	}
	if results[0].Content != "close chunk" {
		t.Errorf("Content = %q, want best chunk text", results[0].Content)
	}
	if results[0].Distance >= results[1].Distance {
		t.Errorf("distances not ascending: %f >= %f", results[0].Distance, results[1].Distance)
	}
}

func TestVectorSearchEmptyIndex(t *testing.T) {
	s := newTestStore(t)
	mustNote(t, s, "N", "body")

	results, err := s.VectorSearch(context.Background(), EncodeVector([]float32{1}), 5)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
}

func TestVectorSearchLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := mustNote(t, s, "N", "body")
		if err := s.ReplaceChunks(ctx, id, []ChunkVector{
			chunk("c", []float32{1, float32(i)}),
		}); err != nil {
			t.Fatal(err)
		}
	}
	results, err := s.VectorSearch(ctx, EncodeVector([]float32{1, 0}), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestBestChunkText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustNote(t, s, "N", "body")

	if err := s.ReplaceChunks(ctx, id, []ChunkVector{
		chunk("about cats", []float32{1, 0}),
		chunk("about dogs", []float32{0, 1}),
	}); err != nil {
		t.Fatal(err)
	}

	text, err := s.BestChunkText(ctx, id, EncodeVector([]float32{0, 1}))
	if err != nil {
		t.Fatalf("BestChunkText: %v", err)
	}
	if text != "about dogs" {
		t.Errorf("text = %q", text)
	}
}

func TestBestChunkTextNoChunks(t *testing.T) {
	s := newTestStore(t)
	id := mustNote(t, s, "N", "body")

	text, err := s.BestChunkText(context.Background(), id, EncodeVector([]float32{1}))
	if err != nil {
		t.Fatalf("BestChunkText: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"hello", `"hello"`},
		{"hello world", `"hello" "world"`},
		{`foo* bar(`, `"foo" "bar"`},
		{`"quoted" [thing]`, `"quoted" "thing"`},
		{`*()[]"^`, ""},
		{"", ""},
		{"   ", ""},
		{"a OR b", `"a" "OR" "b"`},
	}
	for _, tc := range cases {
		if got := SanitizeFTSQuery(tc.in); got != tc.want {
			t.Errorf("SanitizeFTSQuery(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBM25SearchMetaOnlyQuery(t *testing.T) {
	s := newTestStore(t)
	mustNote(t, s, "N", "content here")

	results, err := s.BM25Search(context.Background(), `*()[]`, 5)
	if err != nil {
		t.Fatalf("BM25Search: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil for meta-only query, got %v", results)
	}
}

func TestBM25SearchRanksTitleMatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustNote(t, s, "Cooking", "pasta recipe with garlic")
	mustNote(t, s, "Travel", "flight notes and itinerary")

	results, err := s.BM25Search(ctx, "pasta garlic", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Title != "Cooking" {
		t.Errorf("results = %v", results)
	}
	if results[0].Content != "pasta recipe with garlic" {
		t.Errorf("Content = %q, want full note content", results[0].Content)
	}
}

func TestClearAllChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustNote(t, s, "A", "a")
	b := mustNote(t, s, "B", "b")
	s.ReplaceChunks(ctx, a, []ChunkVector{chunk("a", []float32{1})})
	s.ReplaceChunks(ctx, b, []ChunkVector{chunk("b", []float32{1})})

	if err := s.ClearAllChunks(ctx); err != nil {
		t.Fatalf("ClearAllChunks: %v", err)
	}
	na, _ := s.ChunkCount(ctx, a)
	nb, _ := s.ChunkCount(ctx, b)
	if na != 0 || nb != 0 {
		t.Errorf("chunk counts = %d, %d", na, nb)
	}
}
