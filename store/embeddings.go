package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// ChunkVector pairs a chunk's text with its encoded embedding blob.
// Invariant: the text is exactly the text that produced the vector.
type ChunkVector struct {
	Text string
	Blob []byte
}

// SearchResult is one retrieval candidate: a note with the chunk text that
// matched best. Distance is the cosine distance from vector search (kept
// for debugging); Score is the RRF score attached during fusion.
type SearchResult struct {
	NoteID   int64   `json:"id"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Distance float64 `json:"cosine_distance,omitempty"`
	Score    float64 `json:"rrf_score,omitempty"`
}

// ReplaceChunks atomically deletes all embedding chunks for a note and
// inserts the new set with contiguous chunk indices starting at 0. Readers
// see either the old set or the new one, never a mix.
func (s *Store) ReplaceChunks(ctx context.Context, noteID int64, chunks []ChunkVector) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM note_embeddings WHERE note_id = ?", noteID); err != nil {
			return err
		}
		for idx, c := range chunks {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO note_embeddings(note_id, chunk_index, chunk_text, vector, updated_at)
				VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
				noteID, idx, c.Text, c.Blob); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing chunks for note %d: %w", noteID, err)
	}
	slog.Debug("stored embedding chunks", "note_id", noteID, "chunks", len(chunks))
	return nil
}

// ClearAllChunks erases every embedding chunk. Used before a full rebuild.
func (s *Store) ClearAllChunks(ctx context.Context) error {
	slog.Info("clearing all embeddings")
	_, err := s.db.ExecContext(ctx, "DELETE FROM note_embeddings")
	if err != nil {
		return fmt.Errorf("clearing embeddings: %w", err)
	}
	return nil
}

// ChunkCount returns the number of stored embedding chunks for a note.
func (s *Store) ChunkCount(ctx context.Context, noteID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM note_embeddings WHERE note_id = ?", noteID).Scan(&n)
	return n, err
}

// VectorSearch returns up to k notes ordered by ascending minimum cosine
// distance between the query blob and any of the note's chunks: one row
// per note, carrying the note's best-matching chunk text as Content.
// When no chunks exist at all it returns empty and logs a warning.
func (s *Store) VectorSearch(ctx context.Context, queryBlob []byte, k int) ([]SearchResult, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM note_embeddings").Scan(&total); err != nil {
		return nil, fmt.Errorf("counting embeddings: %w", err)
	}
	if total == 0 {
		slog.Warn("no embeddings stored, run a reindex first")
		return nil, nil
	}

	// SQLite resolves bare columns from the MIN-bearing row, so chunk_text
	// is the text of the note's closest chunk.
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.title, ne.chunk_text,
		       MIN(vec_distance_cosine(ne.vector, ?)) AS cosine_distance
		FROM notes n
		JOIN note_embeddings ne ON ne.note_id = n.id
		GROUP BY n.id
		ORDER BY cosine_distance ASC
		LIMIT ?`, queryBlob, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.NoteID, &r.Title, &r.Content, &r.Distance); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	slog.Debug("vector search", "chunks", total, "results", len(results))
	return results, rows.Err()
}

// BestChunkText returns the text of the note's chunk closest to the query
// blob. Used to swap full-note content for focused chunk content at
// presentation time. Returns empty when the note has no chunks.
func (s *Store) BestChunkText(ctx context.Context, noteID int64, queryBlob []byte) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `
		SELECT chunk_text
		FROM note_embeddings
		WHERE note_id = ?
		ORDER BY vec_distance_cosine(vector, ?) ASC
		LIMIT 1`, noteID, queryBlob).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("best chunk for note %d: %w", noteID, err)
	}
	return text, nil
}

// BM25Search runs a sanitized FTS5 full-text query and returns up to k notes
// ordered by BM25 relevance, best first. The results carry full note content;
// callers hydrate with BestChunkText afterwards. FTS engine errors are
// degraded to empty results: the lexical leg is supplemental.
func (s *Store) BM25Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	safe := SanitizeFTSQuery(query)
	if safe == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.title, n.content
		FROM notes_fts
		JOIN notes n ON n.id = notes_fts.rowid
		WHERE notes_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, safe, k)
	if err != nil {
		slog.Warn("BM25 search failed, continuing without lexical results", "error", err)
		return nil, nil
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.NoteID, &r.Title, &r.Content); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	slog.Debug("BM25 search", "query", safe, "results", len(results))
	return results, rows.Err()
}

var ftsMetaRe = regexp.MustCompile(`["\^*()\[\]]`)

// SanitizeFTSQuery strips FTS5 meta-characters and wraps every surviving
// token in double quotes, preventing operator injection while keeping
// multi-word matching implicit-AND. Returns "" when no tokens survive.
func SanitizeFTSQuery(query string) string {
	cleaned := ftsMetaRe.ReplaceAllString(query, " ")
	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return ""
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + w + `"`
	}
	return strings.Join(quoted, " ")
}
