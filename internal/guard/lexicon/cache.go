// Package lexicon keeps the enabled prohibited-word entries in memory and
// matches group messages against them. The cache is rebuilt from the store
// on demand and published with a single atomic swap, so readers always see
// one consistent snapshot.
package lexicon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"guardbot/internal/guard/normalize"
	"guardbot/internal/guard/store"
)

// Entry is one cached lexicon entry. Word holds the normalized form used for
// matching; Original is the admin-facing spelling reported on a hit.
type Entry struct {
	Word      string
	Original  string
	MatchType string
}

type snapshot struct {
	tokens  map[string]*Entry
	phrases []*Entry
}

// Cache is the in-memory index of enabled prohibited entries.
type Cache struct {
	store *store.Store
	norm  *normalize.Normalizer
	snap  atomic.Pointer[snapshot]
}

// NewCache returns an empty cache. Call Refresh before first use.
func NewCache(st *store.Store, norm *normalize.Normalizer) *Cache {
	c := &Cache{store: st, norm: norm}
	c.snap.Store(&snapshot{tokens: map[string]*Entry{}})
	return c
}

// Refresh rebuilds the token and phrase indexes from the enabled entries and
// swaps them in atomically.
func (c *Cache) Refresh(ctx context.Context) error {
	rows, err := c.store.ListEnabledWords(ctx)
	if err != nil {
		return fmt.Errorf("lexicon: refresh: %w", err)
	}

	tokens := make(map[string]*Entry, len(rows))
	var phrases []*Entry
	for _, row := range rows {
		entry := &Entry{Word: row.Word, Original: row.Display(), MatchType: row.MatchType}
		if row.MatchType == store.MatchPhrase {
			entry.Word = c.norm.Text(row.Word)
			phrases = append(phrases, entry)
		} else {
			tokens[c.norm.Token(row.Word)] = entry
		}
	}

	c.snap.Store(&snapshot{tokens: tokens, phrases: phrases})
	slog.Info("lexicon cache refreshed", "tokens", len(tokens), "phrases", len(phrases))
	return nil
}

// Match reports the first enabled entry the text hits, or nil. Single tokens
// are looked up directly; phrases are matched as substrings of the normalized
// space-joined text, which defeats trivial punctuation and spacing evasion.
func (c *Cache) Match(text string) *Entry {
	if text == "" {
		return nil
	}
	snap := c.snap.Load()

	cleaned := c.norm.Text(text)
	seen := make(map[string]struct{})
	for _, token := range c.norm.Tokenize(cleaned) {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		if entry, ok := snap.tokens[token]; ok {
			return entry
		}
	}

	for _, entry := range snap.phrases {
		if entry.Word != "" && strings.Contains(cleaned, entry.Word) {
			return entry
		}
	}
	return nil
}

// Size returns the number of cached token and phrase entries.
func (c *Cache) Size() (tokens, phrases int) {
	snap := c.snap.Load()
	return len(snap.tokens), len(snap.phrases)
}
