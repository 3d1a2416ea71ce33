// Package records stores the work records built from inferred fields.
//
// The record store is administrative plumbing around the inference core: the
// form collaborator assembles a [Record] from the operator-reviewed fields
// and hands it here for persistence, listing, search, and statistics.
package records

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/skawahara/agrivoice/internal/inference"
	"github.com/skawahara/agrivoice/pkg/geo"
)

// ErrNotFound is returned when a record ID does not exist.
var ErrNotFound = errors.New("records: not found")

// Record is one confirmed unit of farm work.
type Record struct {
	// ID is a random hex identifier assigned on Add.
	ID string

	// CreatedAt is when the record was stored (UTC).
	CreatedAt time.Time

	// WorkType and CropType are the confirmed categorical fields.
	// Either may be empty when the operator left them unset.
	WorkType inference.WorkType
	CropType inference.CropType

	// FieldName is the plot the work happened on, e.g. "第3圃場".
	FieldName string

	// WorkDetails is the free-text description, typically the raw utterance.
	WorkDetails string

	// Quantity is the verbatim number+unit pair, e.g. "5kg".
	Quantity string

	// Location is where the record was made, when known.
	Location *geo.Coordinate
}

// Filter narrows a List call. Zero-valued members match everything.
type Filter struct {
	// WorkType and CropType match exactly when set.
	WorkType inference.WorkType
	CropType inference.CropType

	// FieldName matches as a substring when set.
	FieldName string

	// From and To bound CreatedAt inclusively when non-zero.
	From time.Time
	To   time.Time
}

// Matches reports whether r satisfies every set condition of f.
func (f Filter) Matches(r Record) bool {
	if f.WorkType != "" && r.WorkType != f.WorkType {
		return false
	}
	if f.CropType != "" && r.CropType != f.CropType {
		return false
	}
	if f.FieldName != "" && !strings.Contains(r.FieldName, f.FieldName) {
		return false
	}
	if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// Statistics summarises the stored records.
type Statistics struct {
	// TotalRecords is the record count.
	TotalRecords int

	// ByWorkType and ByCropType count records per Japanese display label.
	ByWorkType map[string]int
	ByCropType map[string]int

	// FieldsUsed lists the distinct non-empty field names, in first-use order.
	FieldsUsed []string

	// LastWeek counts records created in the trailing seven days.
	LastWeek int
}

// Store is the persistence contract for work records.
type Store interface {
	// Add assigns an ID and CreatedAt (when unset) and stores the record.
	// The stored record is returned.
	Add(ctx context.Context, r Record) (Record, error)

	// List returns records matching filter, most recent first.
	List(ctx context.Context, filter Filter) ([]Record, error)

	// Update replaces the record with the same ID. Returns [ErrNotFound]
	// when the ID does not exist.
	Update(ctx context.Context, r Record) error

	// Delete removes the record with the given ID. Returns [ErrNotFound]
	// when the ID does not exist.
	Delete(ctx context.Context, id string) error

	// Search returns records whose details, field name, or display labels
	// contain query (case-insensitive), most recent first.
	Search(ctx context.Context, query string) ([]Record, error)

	// Statistics summarises the current contents.
	Statistics(ctx context.Context) (Statistics, error)
}

// generateID produces a random 16-byte hex string using crypto/rand.
func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// matchesQuery reports whether r matches the lower-cased search term.
func matchesQuery(r Record, term string) bool {
	for _, s := range []string{
		r.WorkDetails,
		r.FieldName,
		r.WorkType.Label(),
		r.CropType.Label(),
	} {
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

// summarise computes [Statistics] over records.
func summarise(recs []Record, now time.Time) Statistics {
	stats := Statistics{
		TotalRecords: len(recs),
		ByWorkType:   make(map[string]int),
		ByCropType:   make(map[string]int),
	}

	weekAgo := now.AddDate(0, 0, -7)
	seen := make(map[string]struct{})

	for _, r := range recs {
		if r.WorkType != "" {
			stats.ByWorkType[r.WorkType.Label()]++
		}
		if r.CropType != "" {
			stats.ByCropType[r.CropType.Label()]++
		}
		if r.FieldName != "" {
			if _, ok := seen[r.FieldName]; !ok {
				seen[r.FieldName] = struct{}{}
				stats.FieldsUsed = append(stats.FieldsUsed, r.FieldName)
			}
		}
		if !r.CreatedAt.Before(weekAgo) {
			stats.LastWeek++
		}
	}
	return stats
}
