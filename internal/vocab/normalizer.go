package vocab

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Normalizer rewrites raw transcripts into the canonical domain vocabulary.
//
// Normalize first applies Unicode NFKC so that full-width digits and
// half-width kana fold to the forms the extraction patterns expect, then
// substitutes every dictionary match in entry declaration order.
//
// Substitution is by substring, not word boundary — short readings are meant
// to match inside longer transcribed words. Because each entry scans the text
// already rewritten by earlier entries, an entry whose spoken form equals an
// earlier entry's normalized form cascades. That matches the behaviour the
// record collaborators rely on and is pinned by tests; it is not to be
// "fixed" here.
//
// Normalize is a pure function of its input and the dictionary; a Normalizer
// is safe for concurrent use.
type Normalizer struct {
	dict *Dictionary
}

// NewNormalizer creates a Normalizer over dict. The dictionary must not be
// mutated afterwards.
func NewNormalizer(dict *Dictionary) *Normalizer {
	return &Normalizer{dict: dict}
}

// Normalize returns text with every spoken-form occurrence replaced by its
// normalized form. Matching is case-insensitive (relevant for romanised unit
// abbreviations; kana and kanji are unaffected).
func (n *Normalizer) Normalize(text string) string {
	out := norm.NFKC.String(text)
	for _, e := range n.dict.entries {
		out = replaceFold(out, e.Spoken, e.Normalized)
	}
	return out
}

// replaceFold replaces every case-insensitive occurrence of old in s with new.
// Matching compares runes under unicode simple case folding, so it is safe
// for mixed Japanese/ASCII text where byte-level lowering could shift offsets.
func replaceFold(s, old, new string) string {
	if old == "" {
		return s
	}

	var b strings.Builder
	for {
		start, length := indexFold(s, old)
		if start < 0 {
			if b.Len() == 0 {
				return s
			}
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:start])
		b.WriteString(new)
		s = s[start+length:]
	}
}

// indexFold returns the byte offset and matched byte length of the first
// case-insensitive occurrence of substr in s, or (-1, 0) when absent.
func indexFold(s, substr string) (int, int) {
	for i := 0; i < len(s); {
		if length, ok := matchFoldAt(s[i:], substr); ok {
			return i, length
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return -1, 0
}

// matchFoldAt reports whether s begins with substr under case folding,
// returning the number of bytes of s consumed by the match.
func matchFoldAt(s, substr string) (int, bool) {
	consumed := 0
	for _, want := range substr {
		r, size := utf8.DecodeRuneInString(s[consumed:])
		if size == 0 {
			return 0, false
		}
		if unicode.ToLower(r) != unicode.ToLower(want) {
			return 0, false
		}
		consumed += size
	}
	return consumed, true
}
