// Package normalize produces the canonical text form shared by the prohibited
// lexicon and the message matcher. Lexicon words and incoming text must pass
// through the same transformation or matching silently degrades, so every
// caller goes through a single Normalizer.
package normalize

import (
	"regexp"
	"strings"
)

var (
	tokenRe    = regexp.MustCompile(`[a-zA-Z0-9]+`)
	digitPlusRe = regexp.MustCompile(`(\d+)\+`)
)

// apostrophes is the class of apostrophe-like characters stripped during
// normalization. Covers the plain ASCII quote, the typographic variants and
// the modifier letters used in Uzbek Latin orthography (o'/oʻ etc.).
const apostrophes = "'’‘ʻʼ`´ˈ"

// Normalizer holds the normalization options. The zero value folds case;
// construct with New to make the choice explicit.
type Normalizer struct {
	caseFold bool
}

// New returns a Normalizer. When caseFold is true (the default configuration)
// text is lowered before matching.
func New(caseFold bool) *Normalizer {
	return &Normalizer{caseFold: caseFold}
}

// clean applies the shared transformation steps up to token extraction:
// trim, optional case fold, digit-plus rewrite ("1+bet" → "1plusbet"),
// apostrophe and bare-plus stripping.
func (n *Normalizer) clean(s string) string {
	s = strings.TrimSpace(s)
	if n.caseFold {
		s = strings.ToLower(s)
	}
	s = digitPlusRe.ReplaceAllString(s, "${1}plus")
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(apostrophes, r) || r == '+' {
			return -1
		}
		return r
	}, s)
	return s
}

// Text normalizes free text or a multi-word phrase: alphanumeric runs joined
// by single spaces, so word boundaries survive for phrase matching.
func (n *Normalizer) Text(s string) string {
	return strings.Join(tokenRe.FindAllString(n.clean(s), -1), " ")
}

// Token normalizes a single lexicon word: alphanumeric runs concatenated with
// no separator, so "don't" and "dont" collapse to the same identifier.
func (n *Normalizer) Token(s string) string {
	return strings.Join(tokenRe.FindAllString(n.clean(s), -1), "")
}

// Tokenize returns the ordered alphanumeric runs of the normalized text.
func (n *Normalizer) Tokenize(s string) []string {
	return tokenRe.FindAllString(n.clean(s), -1)
}
