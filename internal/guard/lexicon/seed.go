package lexicon

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"guardbot/internal/guard/normalize"
	"guardbot/internal/guard/store"
)

// minWordLen filters out seed entries too short to be meaningful after
// normalization.
const minWordLen = 3

const seedSchemaJSON = `{
	"type": "object",
	"required": ["words"],
	"properties": {
		"words": {
			"type": "array",
			"items": {"type": "string"}
		}
	}
}`

var seedSchema = jsonschema.MustCompileString("seed.schema.json", seedSchemaJSON)

// ParseSeedFile reads a seed word list from disk. A ".json" file must match
// {"words": [...]}; anything else is treated as newline-delimited with "#"
// comment lines. A missing file yields an empty list.
func ParseSeedFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lexicon: read seed file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return parseSeedJSON(data)
	}

	var words []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, nil
}

func parseSeedJSON(data []byte) ([]string, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("lexicon: parse seed json: %w", err)
	}
	if err := seedSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("lexicon: seed json schema: %w", err)
	}

	var payload struct {
		Words []string `json:"words"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("lexicon: parse seed json: %w", err)
	}

	var words []string
	for _, w := range payload.Words {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words, nil
}

// SeedFromFile populates an empty lexicon table from the seed file and leaves
// a non-empty table alone. Entries whose normalized form is shorter than
// three characters are skipped. Multi-word entries become PHRASE rows in the
// space-preserving normalized form so phrase matching can find them.
func SeedFromFile(ctx context.Context, st *store.Store, norm *normalize.Normalizer, path string, createdBy int64) (int, error) {
	if path == "" {
		return 0, nil
	}

	count, err := st.CountWords(ctx)
	if err != nil {
		return 0, fmt.Errorf("lexicon: seed: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	raw, err := ParseSeedFile(path)
	if err != nil {
		return 0, err
	}

	var rows []*store.ProhibitedWord
	for _, w := range raw {
		text := norm.Text(w)
		if len(text) < minWordLen {
			continue
		}
		row := &store.ProhibitedWord{Original: sqlString(w), CreatedBy: createdBy}
		if strings.Contains(text, " ") {
			row.Word = text
			row.MatchType = store.MatchPhrase
		} else {
			row.Word = norm.Token(w)
			row.MatchType = store.MatchToken
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	inserted, err := st.SeedWords(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("lexicon: seed: %w", err)
	}
	return inserted, nil
}

func sqlString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
