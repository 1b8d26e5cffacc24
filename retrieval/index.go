package retrieval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"ainotes/chunker"
	"ainotes/llm"
	"ainotes/store"
)

// DefaultFusionOversample multiplies top-K into the per-leg fetch size.
// Fetching extra candidates per leg keeps cross-leg matches from being cut
// before fusion sees them.
const DefaultFusionOversample = 4

// Index owns the write and read paths of the note index: chunking,
// embedding, vector and BM25 search legs, and rank fusion.
type Index struct {
	store      *store.Store
	client     llm.Client
	chunker    *chunker.Chunker
	expander   *Expander
	oversample int
}

// NewIndex wires an Index over the given store and LLM client. A
// non-positive oversample falls back to DefaultFusionOversample.
func NewIndex(st *store.Store, client llm.Client, ch *chunker.Chunker, oversample int) *Index {
	if oversample < 1 {
		oversample = DefaultFusionOversample
	}
	return &Index{
		store:      st,
		client:     client,
		chunker:    ch,
		expander:   NewExpander(client),
		oversample: oversample,
	}
}

// IndexNote chunks and embeds one note, replacing its stored chunks
// atomically. Returns false when the note does not exist or no chunk
// could be embedded; in the latter case the prior chunk set stays intact.
func (ix *Index) IndexNote(ctx context.Context, noteID int64) (bool, error) {
	note, err := ix.store.GetNote(ctx, noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading note %d: %w", noteID, err)
	}
	return ix.indexNote(ctx, note)
}

func (ix *Index) indexNote(ctx context.Context, note *store.Note) (bool, error) {
	text := note.Title + "\n\n" + note.Content
	chunks := ix.chunker.Split(text)
	if len(chunks) == 0 {
		slog.Warn("note produced no chunks, skipping", "note_id", note.ID)
		return false, nil
	}

	var vectors []store.ChunkVector
	for i, chunk := range chunks {
		vec, err := ix.client.Embed(ctx, chunk)
		if err != nil {
			slog.Warn("embedding failed, skipping chunk",
				"note_id", note.ID,
				"chunk", i,
				"error", err,
			)
			continue
		}
		vectors = append(vectors, store.ChunkVector{
			Text: chunk,
			Blob: store.EncodeVector(vec),
		})
	}

	if len(vectors) == 0 {
		slog.Warn("no chunks embedded, leaving prior index state", "note_id", note.ID)
		return false, nil
	}

	if err := ix.store.ReplaceChunks(ctx, note.ID, vectors); err != nil {
		return false, fmt.Errorf("replacing chunks for note %d: %w", note.ID, err)
	}
	return true, nil
}

// ProgressFunc reports rebuild progress after each note.
type ProgressFunc func(current, total int, title string)

// BuildIndex clears all stored chunks and reindexes every note. Returns
// the total note count.
func (ix *Index) BuildIndex(ctx context.Context, progress ProgressFunc) (int, error) {
	if err := ix.store.ClearAllChunks(ctx); err != nil {
		return 0, fmt.Errorf("clearing index: %w", err)
	}

	notes, err := ix.store.ListNotesForEmbedding(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing notes: %w", err)
	}

	for i := range notes {
		if _, err := ix.indexNote(ctx, &notes[i]); err != nil {
			return 0, err
		}
		if progress != nil {
			progress(i+1, len(notes), notes[i].Title)
		}
	}

	slog.Info("index rebuilt", "notes", len(notes))
	return len(notes), nil
}

// Query runs the full retrieval pipeline: expand the question, collect
// vector and optional BM25 legs per expanded query with oversampling,
// fuse, trim to topK, and hydrate each result with its best-matching
// chunk text. A query where every leg fails returns an empty result.
// status, when non-nil, receives the labels "expanding" and "searching"
// as those phases begin.
func (ix *Index) Query(ctx context.Context, question string, topK, queryCount int, hybrid bool, status func(string)) ([]store.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	if status != nil {
		status("expanding")
	}
	queries := ix.expander.Expand(ctx, question, queryCount)
	if len(queries) == 0 {
		return nil, nil
	}

	fetchK := topK * ix.oversample

	if status != nil {
		status("searching")
	}
	var lists [][]store.SearchResult
	var hydrationKey []byte
	for _, q := range queries {
		vec, err := ix.client.Embed(ctx, q)
		if err != nil {
			slog.Warn("query embedding failed, skipping leg", "query", q, "error", err)
			continue
		}
		blob := store.EncodeVector(vec)
		if hydrationKey == nil {
			hydrationKey = blob
		}

		vecResults, err := ix.store.VectorSearch(ctx, blob, fetchK)
		if err != nil {
			slog.Warn("vector search failed, skipping leg", "query", q, "error", err)
		} else if len(vecResults) > 0 {
			lists = append(lists, vecResults)
		}

		if hybrid {
			ftsResults, err := ix.store.BM25Search(ctx, q, fetchK)
			if err != nil {
				slog.Warn("bm25 search failed", "query", q, "error", err)
			} else if len(ftsResults) > 0 {
				lists = append(lists, ftsResults)
			}
		}
	}

	if len(lists) == 0 {
		return nil, nil
	}

	fused := Fuse(lists)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	// BM25 hits carry full-note content up to this point; vector hits
	// carry a chunk already. Both get the same best-chunk treatment so
	// every result leaves with comparable context.
	if hydrationKey != nil {
		for i := range fused {
			text, err := ix.store.BestChunkText(ctx, fused[i].NoteID, hydrationKey)
			if err != nil {
				slog.Warn("chunk hydration failed", "note_id", fused[i].NoteID, "error", err)
				continue
			}
			if text != "" {
				fused[i].Content = text
			}
		}
	}

	return fused, nil
}
