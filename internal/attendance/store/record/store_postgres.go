package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"mantrip/internal/attendance/models"
	"mantrip/pkg/platform/sentinel"
)

// uniqueViolation is the SQLSTATE postgres raises for a duplicate key.
const uniqueViolation = "23505"

// Schema is applied by EnsureSchema; kept exported so integration tests and
// operators can run it by hand.
const Schema = `
CREATE TABLE IF NOT EXISTS man_trip_attendance (
	id          TEXT PRIMARY KEY,
	person_name TEXT NOT NULL,
	year        INTEGER NOT NULL,
	attended    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	CONSTRAINT man_trip_attendance_person_year UNIQUE (person_name, year)
)`

// PostgresStore persists attendance records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed attendance store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the attendance table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure attendance schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_name, year, attended, created_at, updated_at
		FROM man_trip_attendance
		ORDER BY person_name, year`)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, person_name, year, attended, created_at, updated_at
		FROM man_trip_attendance
		WHERE id = $1`, id)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Create(ctx context.Context, r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO man_trip_attendance (id, person_name, year, attended, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.PersonName, r.Year, r.Attended, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("record for %s/%d: %w", r.PersonName, r.Year, sentinel.ErrConflict)
		}
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is required")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE man_trip_attendance
		SET attended = $2, updated_at = $3
		WHERE id = $1`,
		r.ID, r.Attended, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	return requireAffected(res, r.ID)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM man_trip_attendance WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	return requireAffected(res, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var r models.Record
	if err := row.Scan(&r.ID, &r.PersonName, &r.Year, &r.Attended, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}
