package records

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/skawahara/agrivoice/internal/inference"
	"github.com/skawahara/agrivoice/pkg/geo"
)

// SQLiteSchema is the DDL for the work_records table.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS work_records (
    position     INTEGER PRIMARY KEY AUTOINCREMENT,
    id           TEXT NOT NULL UNIQUE,
    created_at   TEXT NOT NULL,
    work_type    TEXT NOT NULL DEFAULT '',
    crop_type    TEXT NOT NULL DEFAULT '',
    field_name   TEXT NOT NULL DEFAULT '',
    work_details TEXT NOT NULL DEFAULT '',
    quantity     TEXT NOT NULL DEFAULT '',
    lat          REAL,
    lng          REAL,
    accuracy_m   REAL
);
CREATE INDEX IF NOT EXISTS idx_work_records_created ON work_records(created_at);
`

// timeLayout is the CreatedAt storage format (sortable, UTC).
const timeLayout = time.RFC3339Nano

// Compile-time assertion that SQLiteStore satisfies the Store interface.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is a [Store] backed by an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps the given database handle (driver "sqlite"). The
// caller remains responsible for closing it. Call [SQLiteStore.Migrate]
// before issuing queries.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate executes [SQLiteSchema].
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("records: sqlite migrate: %w", err)
	}
	return nil
}

// Add implements [Store.Add].
func (s *SQLiteStore) Add(ctx context.Context, r Record) (Record, error) {
	if r.ID == "" {
		id, err := generateID()
		if err != nil {
			return Record{}, fmt.Errorf("records: generate id: %w", err)
		}
		r.ID = id
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	lat, lng, acc := locationColumns(r.Location)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work_records
			(id, created_at, work_type, crop_type, field_name, work_details, quantity, lat, lng, accuracy_m)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.UTC().Format(timeLayout),
		string(r.WorkType), string(r.CropType),
		r.FieldName, r.WorkDetails, r.Quantity,
		lat, lng, acc,
	)
	if err != nil {
		return Record{}, fmt.Errorf("records: sqlite add: %w", err)
	}
	return r, nil
}

// List implements [Store.List]. Filtering happens in SQL where it maps
// directly; the substring and time-bound checks reuse [Filter.Matches].
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	recs, err := s.selectAll(ctx, "ORDER BY position DESC")
	if err != nil {
		return nil, err
	}

	out := recs[:0]
	for _, r := range recs {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Update implements [Store.Update].
func (s *SQLiteStore) Update(ctx context.Context, r Record) error {
	lat, lng, acc := locationColumns(r.Location)
	res, err := s.db.ExecContext(ctx, `
		UPDATE work_records SET
			work_type = ?, crop_type = ?, field_name = ?,
			work_details = ?, quantity = ?, lat = ?, lng = ?, accuracy_m = ?
		WHERE id = ?`,
		string(r.WorkType), string(r.CropType), r.FieldName,
		r.WorkDetails, r.Quantity, lat, lng, acc, r.ID,
	)
	if err != nil {
		return fmt.Errorf("records: sqlite update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("records: sqlite update: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements [Store.Delete].
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM work_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("records: sqlite delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("records: sqlite delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Search implements [Store.Search]. Label matching needs Go-side logic, so
// the scan happens here rather than in SQL.
func (s *SQLiteStore) Search(ctx context.Context, query string) ([]Record, error) {
	recs, err := s.selectAll(ctx, "ORDER BY position DESC")
	if err != nil {
		return nil, err
	}

	term := strings.ToLower(query)
	out := recs[:0]
	for _, r := range recs {
		if matchesQuery(r, term) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Statistics implements [Store.Statistics].
func (s *SQLiteStore) Statistics(ctx context.Context) (Statistics, error) {
	recs, err := s.selectAll(ctx, "ORDER BY position")
	if err != nil {
		return Statistics{}, err
	}
	return summarise(recs, time.Now().UTC()), nil
}

// selectAll reads every record with the given ORDER BY clause.
func (s *SQLiteStore) selectAll(ctx context.Context, order string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, work_type, crop_type, field_name, work_details, quantity, lat, lng, accuracy_m
		FROM work_records `+order)
	if err != nil {
		return nil, fmt.Errorf("records: sqlite select: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var created, workType, cropType string
		var lat, lng, acc sql.NullFloat64
		if err := rows.Scan(&r.ID, &created, &workType, &cropType,
			&r.FieldName, &r.WorkDetails, &r.Quantity, &lat, &lng, &acc); err != nil {
			return nil, fmt.Errorf("records: sqlite scan: %w", err)
		}
		r.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("records: sqlite parse created_at %q: %w", created, err)
		}
		r.WorkType = inference.WorkType(workType)
		r.CropType = inference.CropType(cropType)
		if lat.Valid && lng.Valid {
			r.Location = &geo.Coordinate{Lat: lat.Float64, Lng: lng.Float64, AccuracyMeters: acc.Float64}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: sqlite rows: %w", err)
	}
	return out, nil
}

// locationColumns splits an optional coordinate into nullable columns.
func locationColumns(c *geo.Coordinate) (lat, lng, acc any) {
	if c == nil {
		return nil, nil, nil
	}
	return c.Lat, c.Lng, c.AccuracyMeters
}
