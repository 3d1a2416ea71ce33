// Package fieldreg implements the registry of known fields: named real-world
// plots with a recorded coordinate.
//
// The registry is a flat, insertion-ordered list with at most one entry per
// name. Upserting an existing name replaces its coordinate in place — the
// entry keeps its original position. There is no delete operation.
//
// Three Store implementations are provided: in-memory (tests, ephemeral
// sessions), SQLite (the default on-device store), and PostgreSQL (shared
// deployments).
package fieldreg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/skawahara/agrivoice/pkg/geo"
)

// ErrInvalidField is wrapped by Upsert when a field fails validation.
var ErrInvalidField = errors.New("fieldreg: invalid field")

// KnownField is a previously confirmed plot with its last-known coordinate.
type KnownField struct {
	// Name identifies the field. Matching is case-sensitive and exact.
	Name string

	// Location is the coordinate recorded at the last confirmation.
	Location geo.Coordinate
}

// Validate checks that the field has a name and a plausible coordinate.
func (f KnownField) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidField)
	}
	if err := f.Location.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	return nil
}

// Store is the persistence contract for the field registry.
//
// All implements enumeration in insertion order; an entry updated by Upsert
// keeps the position of its original insertion. Implementations must be safe
// for concurrent use even though the application drives them from a single
// logical thread.
type Store interface {
	// Upsert replaces the entry with the same name or appends a new one.
	// Last write wins.
	Upsert(ctx context.Context, field KnownField) error

	// All returns the current registry contents in insertion order.
	All(ctx context.Context) ([]KnownField, error)
}

// Nearest returns the registered field closest to current, provided it lies
// strictly within the matcher's threshold. Ties are broken by registry
// enumeration order (first encountered wins). The fields slice is not
// modified.
func Nearest(m geo.Matcher, current geo.Coordinate, fields []KnownField) (KnownField, bool) {
	locations := make([]geo.Coordinate, len(fields))
	for i, f := range fields {
		locations[i] = f.Location
	}
	idx, ok := m.Nearest(current, locations)
	if !ok {
		return KnownField{}, false
	}
	return fields[idx], true
}

// similarityThreshold is the minimum Jaro-Winkler score for a fuzzy name
// match. Tuned for short Japanese field names, where a single transcribed
// character off should still match.
const similarityThreshold = 0.85

// FindSimilar returns the registered field whose name best matches name under
// Jaro-Winkler similarity, provided the score reaches the threshold. An exact
// (case-insensitive) match wins immediately. Used to reconcile a spoken field
// name with the registry when the recognition engine got it nearly right.
func FindSimilar(ctx context.Context, s Store, name string) (KnownField, bool, error) {
	fields, err := s.All(ctx)
	if err != nil {
		return KnownField{}, false, fmt.Errorf("fieldreg: find similar: %w", err)
	}

	var best KnownField
	bestScore := 0.0
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return f, true, nil
		}
		if score := matchr.JaroWinkler(f.Name, name, false); score > bestScore {
			best = f
			bestScore = score
		}
	}

	if bestScore < similarityThreshold {
		return KnownField{}, false, nil
	}
	return best, true, nil
}
