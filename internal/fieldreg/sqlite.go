package fieldreg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skawahara/agrivoice/pkg/geo"
)

// SQLiteSchema is the DDL for the known_fields table. The AUTOINCREMENT
// position column records insertion order; the name upsert never touches it,
// so updated entries keep their original position.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS known_fields (
    position    INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL UNIQUE,
    lat         REAL NOT NULL,
    lng         REAL NOT NULL,
    accuracy_m  REAL NOT NULL DEFAULT 0
);
`

// Compile-time assertion that SQLiteStore satisfies the Store interface.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is a [Store] backed by an embedded SQLite database. It is the
// default registry store: the application runs offline in the field and the
// registry must survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps the given database handle. The caller opens the
// handle (driver "sqlite") and remains responsible for closing it. Call
// [SQLiteStore.Migrate] before issuing queries.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate executes [SQLiteSchema], creating the known_fields table if it does
// not already exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("fieldreg: sqlite migrate: %w", err)
	}
	return nil
}

// Ping verifies the database connection. Used by readiness checks.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Upsert implements [Store.Upsert].
func (s *SQLiteStore) Upsert(ctx context.Context, field KnownField) error {
	if err := field.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO known_fields (name, lat, lng, accuracy_m)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			accuracy_m = excluded.accuracy_m`,
		field.Name, field.Location.Lat, field.Location.Lng, field.Location.AccuracyMeters,
	)
	if err != nil {
		return fmt.Errorf("fieldreg: sqlite upsert %q: %w", field.Name, err)
	}
	return nil
}

// All implements [Store.All].
func (s *SQLiteStore) All(ctx context.Context) ([]KnownField, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, lat, lng, accuracy_m
		FROM known_fields
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("fieldreg: sqlite list: %w", err)
	}
	defer rows.Close()

	var out []KnownField
	for rows.Next() {
		var f KnownField
		var loc geo.Coordinate
		if err := rows.Scan(&f.Name, &loc.Lat, &loc.Lng, &loc.AccuracyMeters); err != nil {
			return nil, fmt.Errorf("fieldreg: sqlite scan: %w", err)
		}
		f.Location = loc
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fieldreg: sqlite rows: %w", err)
	}
	return out, nil
}
