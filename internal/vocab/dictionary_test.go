package vocab_test

import (
	"strings"
	"testing"

	"github.com/skawahara/agrivoice/internal/vocab"
)

func TestBuiltin(t *testing.T) {
	t.Parallel()

	dict := vocab.Builtin()
	if dict.Len() == 0 {
		t.Fatal("Builtin() is empty")
	}
	if err := dict.Validate(); err != nil {
		t.Errorf("Builtin().Validate() = %v", err)
	}

	// The first entries are the crop readings; order is load order.
	entries := dict.Entries()
	if entries[0].Spoken != "いね" || entries[0].Normalized != "稲" {
		t.Errorf("entries[0] = %+v, want いね → 稲", entries[0])
	}

	// Entries() must be a copy, not a view.
	entries[0].Normalized = "corrupted"
	if got := dict.Entries()[0].Normalized; got != "稲" {
		t.Errorf("Entries() leaked internal state: entries[0].Normalized = %q", got)
	}
}

func TestDictionary_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []vocab.TermEntry
		wantErr []string // substrings that must appear in the error
	}{
		{
			name: "valid",
			entries: []vocab.TermEntry{
				{Spoken: "いちご", Normalized: "イチゴ", Category: vocab.CategoryCrop},
			},
		},
		{
			name: "exact duplicates are accepted",
			entries: []vocab.TermEntry{
				{Spoken: "いちご", Normalized: "イチゴ", Category: vocab.CategoryCrop},
				{Spoken: "いちご", Normalized: "イチゴ", Category: vocab.CategoryCrop},
			},
		},
		{
			name: "same spoken form in different categories is accepted",
			entries: []vocab.TermEntry{
				{Spoken: "かり", Normalized: "収穫", Category: vocab.CategoryWork},
				{Spoken: "かり", Normalized: "カリウム", Category: vocab.CategoryUnit},
			},
		},
		{
			name: "conflicting mapping within a category",
			entries: []vocab.TermEntry{
				{Spoken: "いちご", Normalized: "イチゴ", Category: vocab.CategoryCrop},
				{Spoken: "いちご", Normalized: "苺", Category: vocab.CategoryCrop},
			},
			wantErr: []string{"terms[1]", "いちご", "maps to both"},
		},
		{
			name: "missing fields and bad category are all reported",
			entries: []vocab.TermEntry{
				{Spoken: "", Normalized: "イチゴ", Category: vocab.CategoryCrop},
				{Spoken: "いちご", Normalized: "", Category: "fruit"},
			},
			wantErr: []string{"terms[0]", "spoken form is required", "terms[1]", "normalized form is required", `"fruit"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := vocab.NewDictionary(tt.entries)
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("NewDictionary() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("NewDictionary() error = nil, want error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not contain %q", err, want)
				}
			}
		})
	}
}

func TestDictionary_Extend(t *testing.T) {
	t.Parallel()

	t.Run("appends after builtin entries", func(t *testing.T) {
		t.Parallel()

		dict := vocab.Builtin()
		before := dict.Len()

		err := dict.Extend([]vocab.TermEntry{
			{Spoken: "いちご", Normalized: "イチゴ", Category: vocab.CategoryCrop},
		})
		if err != nil {
			t.Fatalf("Extend() error = %v", err)
		}
		if dict.Len() != before+1 {
			t.Errorf("Len() = %d, want %d", dict.Len(), before+1)
		}
		last := dict.Entries()[dict.Len()-1]
		if last.Spoken != "いちご" {
			t.Errorf("last entry = %+v, want いちご appended last", last)
		}
	})

	t.Run("rolls back on invalid entries", func(t *testing.T) {
		t.Parallel()

		dict := vocab.Builtin()
		before := dict.Len()

		err := dict.Extend([]vocab.TermEntry{
			{Spoken: "いね", Normalized: "別の稲", Category: vocab.CategoryCrop},
		})
		if err == nil {
			t.Fatal("Extend() error = nil, want conflict error")
		}
		if dict.Len() != before {
			t.Errorf("Len() = %d after failed Extend, want %d (rollback)", dict.Len(), before)
		}
	})
}

func TestLoadTermsFromReader(t *testing.T) {
	t.Parallel()

	t.Run("parses entries in file order", func(t *testing.T) {
		t.Parallel()

		const doc = `
terms:
  - spoken: いちご
    normalized: イチゴ
    category: crop
  - spoken: ねぎ
    normalized: ネギ
    category: crop
`
		entries, err := vocab.LoadTermsFromReader(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("LoadTermsFromReader() error = %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("len(entries) = %d, want 2", len(entries))
		}
		if entries[0].Spoken != "いちご" || entries[1].Spoken != "ねぎ" {
			t.Errorf("entries out of order: %+v", entries)
		}
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		t.Parallel()

		const doc = `
terms:
  - spoken: いちご
    normalised: イチゴ
    category: crop
`
		if _, err := vocab.LoadTermsFromReader(strings.NewReader(doc)); err == nil {
			t.Error("LoadTermsFromReader() error = nil, want unknown-key error")
		}
	})
}
