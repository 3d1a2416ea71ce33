package fieldreg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/skawahara/agrivoice/pkg/geo"
)

// PostgresSchema is the DDL for the known_fields table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS known_fields (
    position    BIGSERIAL,
    name        TEXT PRIMARY KEY,
    lat         DOUBLE PRECISION NOT NULL,
    lng         DOUBLE PRECISION NOT NULL,
    accuracy_m  DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// PostgresStore is a [Store] backed by PostgreSQL, for deployments where
// several devices share one registry.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a [PostgresStore] over the given connection or
// pool. Call [PostgresStore.Migrate] to ensure the schema exists before
// issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes [PostgresSchema] against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("fieldreg: postgres migrate: %w", err)
	}
	return nil
}

// Upsert implements [Store.Upsert]. The position column is assigned on first
// insert only, so updates keep their original enumeration position.
func (s *PostgresStore) Upsert(ctx context.Context, field KnownField) error {
	if err := field.Validate(); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO known_fields (name, lat, lng, accuracy_m)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			accuracy_m = excluded.accuracy_m,
			updated_at = now()`,
		field.Name, field.Location.Lat, field.Location.Lng, field.Location.AccuracyMeters,
	)
	if err != nil {
		return fmt.Errorf("fieldreg: postgres upsert %q: %w", field.Name, err)
	}
	return nil
}

// All implements [Store.All].
func (s *PostgresStore) All(ctx context.Context) ([]KnownField, error) {
	rows, err := s.db.Query(ctx, `
		SELECT name, lat, lng, accuracy_m
		FROM known_fields
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("fieldreg: postgres list: %w", err)
	}
	defer rows.Close()

	var out []KnownField
	for rows.Next() {
		var f KnownField
		var loc geo.Coordinate
		if err := rows.Scan(&f.Name, &loc.Lat, &loc.Lng, &loc.AccuracyMeters); err != nil {
			return nil, fmt.Errorf("fieldreg: postgres scan: %w", err)
		}
		f.Location = loc
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fieldreg: postgres rows: %w", err)
	}
	return out, nil
}
