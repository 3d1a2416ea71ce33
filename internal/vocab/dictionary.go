// Package vocab holds the agricultural term dictionary and the transcript
// normalizer built on it.
//
// Recognition engines transcribe domain vocabulary phonetically (kana, or the
// wrong kanji); the dictionary maps those spoken variants onto the canonical
// domain spelling the inference rules expect. Entry order matters: the
// normalizer applies entries in declaration order, and later entries scan text
// already rewritten by earlier ones.
package vocab

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Category classifies a dictionary entry.
type Category string

const (
	CategoryCrop    Category = "crop"
	CategoryWork    Category = "work"
	CategoryDisease Category = "disease"
	CategoryPest    Category = "pest"
	CategoryUnit    Category = "unit"
)

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryCrop, CategoryWork, CategoryDisease, CategoryPest, CategoryUnit:
		return true
	}
	return false
}

// TermEntry maps one spoken variant to its normalized domain form.
type TermEntry struct {
	// Spoken is the variant as the recognition engine tends to transcribe it.
	Spoken string `yaml:"spoken"`

	// Normalized is the canonical domain spelling substituted for Spoken.
	Normalized string `yaml:"normalized"`

	// Category classifies the term.
	Category Category `yaml:"category"`
}

// Dictionary is an ordered, immutable-after-construction list of term
// entries. Construct with [Builtin] or [NewDictionary]; extend with [Extend]
// before handing it to a normalizer.
type Dictionary struct {
	entries []TermEntry
}

// NewDictionary creates a dictionary from the given entries, preserving
// order. The entries are validated; see [Dictionary.Validate] for the rules.
func NewDictionary(entries []TermEntry) (*Dictionary, error) {
	d := &Dictionary{entries: append([]TermEntry(nil), entries...)}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Builtin returns the built-in agricultural dictionary: crop names, work
// actions, pest and disease names, and unit readings. Entry order is load
// order and is part of the normalizer's observable behaviour.
func Builtin() *Dictionary {
	return &Dictionary{entries: []TermEntry{
		// Crops.
		{Spoken: "いね", Normalized: "稲", Category: CategoryCrop},
		{Spoken: "こめ", Normalized: "稲", Category: CategoryCrop},
		{Spoken: "むぎ", Normalized: "麦", Category: CategoryCrop},
		{Spoken: "とうもろこし", Normalized: "トウモロコシ", Category: CategoryCrop},
		{Spoken: "だいず", Normalized: "大豆", Category: CategoryCrop},
		{Spoken: "じゃがいも", Normalized: "ジャガイモ", Category: CategoryCrop},
		{Spoken: "とまと", Normalized: "トマト", Category: CategoryCrop},
		{Spoken: "きゃべつ", Normalized: "キャベツ", Category: CategoryCrop},
		{Spoken: "れたす", Normalized: "レタス", Category: CategoryCrop},

		// Work actions.
		{Spoken: "はしゅ", Normalized: "播種", Category: CategoryWork},
		{Spoken: "たねまき", Normalized: "播種", Category: CategoryWork},
		{Spoken: "うえつけ", Normalized: "植付", Category: CategoryWork},
		{Spoken: "しひ", Normalized: "施肥", Category: CategoryWork},
		{Spoken: "ひりょう", Normalized: "施肥", Category: CategoryWork},
		{Spoken: "のうやく", Normalized: "農薬散布", Category: CategoryWork},
		{Spoken: "さんぷ", Normalized: "農薬散布", Category: CategoryWork},
		{Spoken: "じょそう", Normalized: "除草", Category: CategoryWork},
		{Spoken: "くさとり", Normalized: "除草", Category: CategoryWork},
		{Spoken: "しゅうかく", Normalized: "収穫", Category: CategoryWork},
		{Spoken: "かり", Normalized: "収穫", Category: CategoryWork},
		{Spoken: "てんけん", Normalized: "点検", Category: CategoryWork},

		// Diseases and pests.
		{Spoken: "いもち", Normalized: "いもち病", Category: CategoryDisease},
		{Spoken: "あぶらむし", Normalized: "アブラムシ", Category: CategoryPest},
		{Spoken: "うどんこ", Normalized: "うどんこ病", Category: CategoryDisease},
		{Spoken: "あかだに", Normalized: "ハダニ", Category: CategoryPest},

		// Units.
		{Spoken: "きろ", Normalized: "kg", Category: CategoryUnit},
		{Spoken: "キロ", Normalized: "kg", Category: CategoryUnit},
		{Spoken: "へくたーる", Normalized: "ha", Category: CategoryUnit},
		{Spoken: "アール", Normalized: "a", Category: CategoryUnit},
		{Spoken: "たん", Normalized: "反", Category: CategoryUnit},
		{Spoken: "つぼ", Normalized: "坪", Category: CategoryUnit},
	}}
}

// Entries returns a copy of the dictionary entries in declaration order.
func (d *Dictionary) Entries() []TermEntry {
	return append([]TermEntry(nil), d.entries...)
}

// Len returns the number of entries.
func (d *Dictionary) Len() int { return len(d.entries) }

// Extend appends entries after the existing ones and revalidates.
// Appended entries are applied by the normalizer after all earlier ones.
func (d *Dictionary) Extend(entries []TermEntry) error {
	old := d.entries
	d.entries = append(d.entries, entries...)
	if err := d.Validate(); err != nil {
		d.entries = old
		return err
	}
	return nil
}

// Validate checks every entry and rejects two entries whose identical spoken
// form maps to different normalized forms within the same category.
// Exact duplicates are harmless and accepted. All problems found are reported
// in one joined error.
func (d *Dictionary) Validate() error {
	var errs []error

	type key struct {
		spoken   string
		category Category
	}
	seen := make(map[key]string, len(d.entries))

	for i, e := range d.entries {
		prefix := fmt.Sprintf("terms[%d]", i)
		if e.Spoken == "" {
			errs = append(errs, fmt.Errorf("%s: spoken form is required", prefix))
			continue
		}
		if e.Normalized == "" {
			errs = append(errs, fmt.Errorf("%s (%q): normalized form is required", prefix, e.Spoken))
		}
		if !e.Category.IsValid() {
			errs = append(errs, fmt.Errorf("%s (%q): category %q is invalid; valid values: crop, work, disease, pest, unit", prefix, e.Spoken, e.Category))
		}

		k := key{spoken: e.Spoken, category: e.Category}
		if prev, ok := seen[k]; ok && prev != e.Normalized {
			errs = append(errs, fmt.Errorf("%s: spoken form %q maps to both %q and %q in category %q", prefix, e.Spoken, prev, e.Normalized, e.Category))
			continue
		}
		seen[k] = e.Normalized
	}

	return errors.Join(errs...)
}

// termsFile is the top-level structure of a supplemental terms YAML file.
type termsFile struct {
	Terms []TermEntry `yaml:"terms"`
}

// LoadTerms reads supplemental dictionary entries from the YAML file at path.
// File order is preserved.
func LoadTerms(path string) ([]TermEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: open terms file %q: %w", path, err)
	}
	defer f.Close()

	entries, err := LoadTermsFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("vocab: parse terms file %q: %w", path, err)
	}
	return entries, nil
}

// LoadTermsFromReader parses supplemental dictionary entries from r.
func LoadTermsFromReader(r io.Reader) ([]TermEntry, error) {
	var tf termsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&tf); err != nil {
		return nil, fmt.Errorf("vocab: decode terms yaml: %w", err)
	}
	return tf.Terms, nil
}
