package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateTag is returned when a tag rename collides with an existing
// name, compared case-insensitively.
var ErrDuplicateTag = errors.New("tag name already exists")

// Note is a row in the notes table. The retrieval core reads notes; it never
// mutates them outside the embedding tables.
type Note struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	IsMarkdown  bool   `json:"is_markdown"`
	IsFavourite bool   `json:"is_favourite"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Tag is a row in the tags table.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CreateNote inserts a note and returns its ID. The FTS insert trigger
// mirrors the row into the lexical index.
func (s *Store) CreateNote(ctx context.Context, title, content string, markdown bool) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO notes(title, content, is_markdown) VALUES (?, ?, ?)",
		title, content, boolInt(markdown))
	if err != nil {
		return 0, fmt.Errorf("creating note: %w", err)
	}
	return res.LastInsertId()
}

// UpdateNote replaces a note's title and content and bumps updated_at.
func (s *Store) UpdateNote(ctx context.Context, id int64, title, content string, markdown bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notes
		SET title = ?, content = ?, is_markdown = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		title, content, boolInt(markdown), id)
	if err != nil {
		return fmt.Errorf("updating note %d: %w", id, err)
	}
	return nil
}

// DeleteNote removes a note. Embeddings cascade-delete; the FTS delete
// trigger removes the lexical entry.
func (s *Store) DeleteNote(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting note %d: %w", id, err)
	}
	return nil
}

// GetNote retrieves a note by ID. Returns sql.ErrNoRows when absent.
func (s *Store) GetNote(ctx context.Context, id int64) (*Note, error) {
	n := &Note{}
	var markdown, favourite int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, is_markdown, is_favourite, created_at, updated_at
		FROM notes WHERE id = ?`, id,
	).Scan(&n.ID, &n.Title, &n.Content, &markdown, &favourite, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.IsMarkdown = markdown != 0
	n.IsFavourite = favourite != 0
	return n, nil
}

// ListNotes returns notes ordered by most recently updated, optionally
// filtered to notes carrying every one of the given tags, or to notes
// carrying no tags at all.
func (s *Store) ListNotes(ctx context.Context, tagIDs []int64, withoutTags bool) ([]Note, error) {
	var rows *sql.Rows
	var err error

	switch {
	case withoutTags:
		rows, err = s.db.QueryContext(ctx, `
			SELECT n.id, n.title, n.content, n.is_markdown, n.is_favourite, n.created_at, n.updated_at
			FROM notes n
			LEFT JOIN note_tags nt ON nt.note_id = n.id
			WHERE nt.note_id IS NULL
			ORDER BY n.updated_at DESC`)
	case len(tagIDs) > 0:
		placeholders := strings.Repeat("?,", len(tagIDs)-1) + "?"
		args := make([]any, 0, len(tagIDs)+1)
		for _, id := range tagIDs {
			args = append(args, id)
		}
		args = append(args, len(tagIDs))
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT n.id, n.title, n.content, n.is_markdown, n.is_favourite, n.created_at, n.updated_at
			FROM notes n
			JOIN note_tags nt ON nt.note_id = n.id
			WHERE nt.tag_id IN (%s)
			GROUP BY n.id
			HAVING COUNT(DISTINCT nt.tag_id) = ?
			ORDER BY n.updated_at DESC`, placeholders), args...)
	default:
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, title, content, is_markdown, is_favourite, created_at, updated_at
			FROM notes ORDER BY updated_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// ListNotesForEmbedding returns every note, in id order, for a full rebuild.
func (s *Store) ListNotesForEmbedding(ctx context.Context) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, is_markdown, is_favourite, created_at, updated_at
		FROM notes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing notes for embedding: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// ToggleFavourite flips the is_favourite flag and returns the new value.
func (s *Store) ToggleFavourite(ctx context.Context, id int64) (bool, error) {
	var current int
	err := s.db.QueryRowContext(ctx, "SELECT is_favourite FROM notes WHERE id = ?", id).Scan(&current)
	if err != nil {
		return false, err
	}
	next := 1 - current
	if _, err := s.db.ExecContext(ctx, "UPDATE notes SET is_favourite = ? WHERE id = ?", next, id); err != nil {
		return false, fmt.Errorf("toggling favourite on note %d: %w", id, err)
	}
	return next != 0, nil
}

// --- tags ---

// ListTags returns all tags sorted case-insensitively by name.
func (s *Store) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM tags ORDER BY name COLLATE NOCASE")
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()
	return scanTags(rows)
}

// GetNoteTags returns the tags of a note sorted by name.
func (s *Store) GetNoteTags(ctx context.Context, noteID int64) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name
		FROM tags t
		JOIN note_tags nt ON nt.tag_id = t.id
		WHERE nt.note_id = ?
		ORDER BY t.name COLLATE NOCASE`, noteID)
	if err != nil {
		return nil, fmt.Errorf("listing tags for note %d: %w", noteID, err)
	}
	defer rows.Close()
	return scanTags(rows)
}

// EnsureTag returns the ID of the named tag, creating it if needed.
func (s *Store) EnsureTag(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("tag name is empty")
	}
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM tags WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "INSERT INTO tags(name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("creating tag %q: %w", name, err)
	}
	return res.LastInsertId()
}

// SetNoteTags replaces the full tag set of a note.
func (s *Store) SetNoteTags(ctx context.Context, noteID int64, names []string) error {
	tagIDs := make([]int64, 0, len(names))
	for _, name := range names {
		id, err := s.EnsureTag(ctx, name)
		if err != nil {
			return err
		}
		tagIDs = append(tagIDs, id)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM note_tags WHERE note_id = ?", noteID); err != nil {
			return err
		}
		for _, tagID := range tagIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO note_tags(note_id, tag_id) VALUES (?, ?)",
				noteID, tagID); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteTag removes a tag; note_tags rows cascade away.
func (s *Store) DeleteTag(ctx context.Context, tagID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", tagID)
	return err
}

// RenameTag renames a tag, rejecting case-insensitive duplicates.
func (s *Store) RenameTag(ctx context.Context, tagID int64, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("tag name is empty")
	}
	var existing int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM tags WHERE LOWER(name) = LOWER(?) AND id != ?",
		newName, tagID).Scan(&existing)
	if err == nil {
		return fmt.Errorf("renaming tag to %q: %w", newName, ErrDuplicateTag)
	}
	if err != sql.ErrNoRows {
		return err
	}
	_, err = s.db.ExecContext(ctx, "UPDATE tags SET name = ? WHERE id = ?", newName, tagID)
	return err
}

// TagUsageCount returns how many notes carry the tag.
func (s *Store) TagUsageCount(ctx context.Context, tagID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM note_tags WHERE tag_id = ?", tagID).Scan(&n)
	return n, err
}

// --- helpers ---

func scanNotes(rows *sql.Rows) ([]Note, error) {
	var notes []Note
	for rows.Next() {
		var n Note
		var markdown, favourite int
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &markdown, &favourite,
			&n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		n.IsMarkdown = markdown != 0
		n.IsFavourite = favourite != 0
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func scanTags(rows *sql.Rows) ([]Tag, error) {
	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
