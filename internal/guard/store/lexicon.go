package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Lexicon match types. TOKEN entries match single normalized tokens, PHRASE
// entries (normalized form contains inner whitespace) match as substrings of
// the normalized text.
const (
	MatchToken  = "TOKEN"
	MatchPhrase = "PHRASE"
)

// ProhibitedWord is one lexicon entry. Word holds the canonical normalized
// form and is unique; Original preserves what the admin typed.
type ProhibitedWord struct {
	ID        int64
	Word      string
	Original  sql.NullString
	Enabled   bool
	MatchType string
	CreatedAt time.Time
	CreatedBy int64
}

// Display returns the admin-facing spelling of the entry.
func (w *ProhibitedWord) Display() string {
	if w.Original.Valid && w.Original.String != "" {
		return w.Original.String
	}
	return w.Word
}

const wordColumns = `id, word, original, enabled, match_type, created_at, created_by`

func scanWord(row interface{ Scan(...any) error }) (*ProhibitedWord, error) {
	w := &ProhibitedWord{}
	err := row.Scan(&w.ID, &w.Word, &w.Original, &w.Enabled, &w.MatchType, &w.CreatedAt, &w.CreatedBy)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func scanWords(rows *sql.Rows) ([]*ProhibitedWord, error) {
	defer rows.Close()
	var words []*ProhibitedWord
	for rows.Next() {
		w, err := scanWord(rows)
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

// InsertWord adds a new lexicon entry. Inserting a duplicate normalized word
// fails with the storage layer's uniqueness error.
func (s *Store) InsertWord(ctx context.Context, norm, original, matchType string, createdBy int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prohibited_words (word, original, enabled, match_type, created_at, created_by)
		VALUES (?, NULLIF(?, ''), 1, ?, ?, ?)
	`, norm, original, matchType, time.Now().UTC(), createdBy)
	if err != nil {
		return fmt.Errorf("store: insert word: %w", err)
	}
	return nil
}

// SeedWords inserts entries in one transaction, skipping duplicates. It
// returns the number of rows actually inserted.
func (s *Store) SeedWords(ctx context.Context, words []*ProhibitedWord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: seed words: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	inserted := 0
	for _, w := range words {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO prohibited_words (word, original, enabled, match_type, created_at, created_by)
			VALUES (?, ?, 1, ?, ?, ?)
			ON CONFLICT (word) DO NOTHING
		`, w.Word, w.Original, w.MatchType, now, w.CreatedBy)
		if err != nil {
			return 0, fmt.Errorf("store: seed word %q: %w", w.Word, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: seed words commit: %w", err)
	}
	return inserted, nil
}

// GetWordByNorm returns the entry whose normalized form equals norm, or
// ErrNotFound.
func (s *Store) GetWordByNorm(ctx context.Context, norm string) (*ProhibitedWord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+wordColumns+` FROM prohibited_words WHERE word = ?
	`, norm)
	w, err := scanWord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: word %q: %w", norm, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get word: %w", err)
	}
	return w, nil
}

// GetWordByID returns the entry with the given id, or ErrNotFound.
func (s *Store) GetWordByID(ctx context.Context, id int64) (*ProhibitedWord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+wordColumns+` FROM prohibited_words WHERE id = ?
	`, id)
	w, err := scanWord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: word %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get word: %w", err)
	}
	return w, nil
}

// ListEnabledWords returns all enabled entries in insertion order. This is
// the lexicon cache's snapshot source.
func (s *Store) ListEnabledWords(ctx context.Context) ([]*ProhibitedWord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+wordColumns+` FROM prohibited_words WHERE enabled = 1 ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list enabled words: %w", err)
	}
	words, err := scanWords(rows)
	if err != nil {
		return nil, fmt.Errorf("store: list enabled words: %w", err)
	}
	return words, nil
}

// ListWordsPage returns one page of entries (enabled and disabled) ordered by
// normalized form.
func (s *Store) ListWordsPage(ctx context.Context, offset, limit int) ([]*ProhibitedWord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+wordColumns+` FROM prohibited_words ORDER BY word LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list words page: %w", err)
	}
	words, err := scanWords(rows)
	if err != nil {
		return nil, fmt.Errorf("store: list words page: %w", err)
	}
	return words, nil
}

// CountWords returns the total number of lexicon entries.
func (s *Store) CountWords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM prohibited_words`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count words: %w", err)
	}
	return n, nil
}

// SearchWords returns entries whose normalized form contains the normalized
// query as a substring.
func (s *Store) SearchWords(ctx context.Context, normQuery string, limit int) ([]*ProhibitedWord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+wordColumns+` FROM prohibited_words
		WHERE word LIKE '%' || ? || '%'
		ORDER BY word
		LIMIT ?
	`, normQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search words: %w", err)
	}
	words, err := scanWords(rows)
	if err != nil {
		return nil, fmt.Errorf("store: search words: %w", err)
	}
	return words, nil
}

// SetWordEnabled flips the enabled flag on the entry with the given id.
func (s *Store) SetWordEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE prohibited_words SET enabled = ? WHERE id = ?
	`, enabled, id)
	if err != nil {
		return fmt.Errorf("store: set word enabled: %w", err)
	}
	return nil
}

// DeleteWord removes the entry with the given id.
func (s *Store) DeleteWord(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM prohibited_words WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete word: %w", err)
	}
	return nil
}
