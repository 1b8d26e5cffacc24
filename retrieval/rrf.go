// Package retrieval implements the query side of the note index: query
// expansion, hybrid multi-leg search, rank fusion and LLM chunk selection.
package retrieval

import (
	"sort"

	"ainotes/store"
)

const rrfK = 60 // RRF constant (standard value from literature)

// Fuse combines any number of ranked lists with Reciprocal Rank Fusion.
// Each list is ordered best-first; a document's fused score is
// sum(1/(k+rank)) over the lists that contain it, with 1-based ranks.
// Documents are identified by note id. Inputs are not mutated. A single
// list passes through with its order preserved and scores attached.
func Fuse(lists [][]store.SearchResult) []store.SearchResult {
	if len(lists) == 0 {
		return nil
	}
	if len(lists) == 1 {
		out := make([]store.SearchResult, len(lists[0]))
		for i, r := range lists[0] {
			r.Score = 1.0 / float64(rrfK+i+1)
			out[i] = r
		}
		return out
	}

	type fusedEntry struct {
		result store.SearchResult
		score  float64
		order  int // first-seen position, stabilises equal scores
	}

	fused := make(map[int64]*fusedEntry)
	var seen int
	for _, list := range lists {
		for rank, r := range list {
			entry, ok := fused[r.NoteID]
			if !ok {
				entry = &fusedEntry{result: r, order: seen}
				fused[r.NoteID] = entry
				seen++
			}
			entry.score += 1.0 / float64(rrfK+rank+1)
		}
	}

	entries := make([]*fusedEntry, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].order < entries[j].order
	})

	results := make([]store.SearchResult, len(entries))
	for i, e := range entries {
		results[i] = e.result
		results[i].Score = e.score
	}
	return results
}
