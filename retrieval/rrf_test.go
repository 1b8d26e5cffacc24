package retrieval

import (
	"testing"

	"ainotes/store"
)

func results(ids ...int64) []store.SearchResult {
	out := make([]store.SearchResult, len(ids))
	for i, id := range ids {
		out[i] = store.SearchResult{NoteID: id, Title: "note", Content: "content"}
	}
	return out
}

func TestFuseEmpty(t *testing.T) {
	if got := Fuse(nil); got != nil {
		t.Fatalf("Fuse(nil) = %v", got)
	}
	if got := Fuse([][]store.SearchResult{}); got != nil {
		t.Fatalf("Fuse(empty) = %v", got)
	}
}

func TestFuseSingleListPreservesOrder(t *testing.T) {
	in := results(3, 1, 2)
	got := Fuse([][]store.SearchResult{in})
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	for i, want := range []int64{3, 1, 2} {
		if got[i].NoteID != want {
			t.Errorf("position %d = note %d, want %d", i, got[i].NoteID, want)
		}
		if got[i].Score <= 0 {
			t.Errorf("position %d missing score", i)
		}
	}
}

func TestFuseTopEverywhereWins(t *testing.T) {
	lists := [][]store.SearchResult{
		results(7, 1, 2),
		results(7, 3, 4),
		results(7, 5, 6),
	}
	got := Fuse(lists)
	if got[0].NoteID != 7 {
		t.Fatalf("top result = note %d, want 7", got[0].NoteID)
	}
	for _, r := range got[1:] {
		if r.Score >= got[0].Score {
			t.Errorf("note %d score %f not below winner %f", r.NoteID, r.Score, got[0].Score)
		}
	}
}

func TestFuseOverlapOutranksSingleLeg(t *testing.T) {
	// N3 is the only document in both lists; it must rank above N2 and N4.
	vec := results(1, 2, 3)
	fts := results(3, 4, 5)
	got := Fuse([][]store.SearchResult{vec, fts})

	pos := make(map[int64]int)
	for i, r := range got {
		pos[r.NoteID] = i
	}
	if pos[3] >= pos[2] || pos[3] >= pos[4] {
		t.Fatalf("overlap note 3 at %d, note 2 at %d, note 4 at %d", pos[3], pos[2], pos[4])
	}
	if len(got) < 3 {
		t.Fatalf("expected at least 3 fused results, got %d", len(got))
	}
	top3 := got[:3]
	found := false
	for _, r := range top3 {
		if r.NoteID == 3 {
			found = true
		}
	}
	if !found {
		t.Error("note 3 missing from fused top 3")
	}
}

func TestFuseDoesNotMutateInput(t *testing.T) {
	a := results(1, 2)
	b := results(2, 3)
	Fuse([][]store.SearchResult{a, b})
	for _, r := range append(a, b...) {
		if r.Score != 0 {
			t.Fatalf("input mutated: note %d score %f", r.NoteID, r.Score)
		}
	}
}
