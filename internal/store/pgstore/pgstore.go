// Package pgstore implements the candle store on PostgreSQL or TimescaleDB.
//
// Each source maps to a schema and each instrument/timeframe to a table:
//
//	"tr_ticks_mt5_Alpari"."EURUSD_T5" (dt timestamptz, candle double precision[])
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/candlefeed/internal/model"
)

// ErrDuplicate is returned when a row with the same dt already exists.
var ErrDuplicate = errors.New("duplicate candle open time")

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// Store writes candle rows to PostgreSQL.
type Store struct {
	db DB
}

// New creates a store over an open pool.
func New(db DB) *Store {
	return &Store{db: db}
}

func tableIdent(dest model.Destination) string {
	return pgx.Identifier{dest.Database, dest.Collection}.Sanitize()
}

// ddl returns the statements creating the schema, table and unique dt index.
func ddl(dest model.Destination) []string {
	table := tableIdent(dest)
	index := pgx.Identifier{dest.Collection + "_dt_key"}.Sanitize()
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{dest.Database}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			dt     TIMESTAMPTZ        NOT NULL,
			candle DOUBLE PRECISION[] NOT NULL
		)`, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (dt DESC)`, index, table),
	}
}

func insertSQL(dest model.Destination) string {
	return fmt.Sprintf(`INSERT INTO %s (dt, candle) VALUES ($1, $2)`, tableIdent(dest))
}

// EnsureIndex creates the schema, table and unique dt index if missing.
func (s *Store) EnsureIndex(ctx context.Context, dest model.Destination) error {
	for _, stmt := range ddl(dest) {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("prepare %s: %w", dest, err)
		}
	}
	return nil
}

// Insert writes one candle row. A duplicate dt is rejected.
func (s *Store) Insert(ctx context.Context, dest model.Destination, doc model.Document) error {
	_, err := s.db.Exec(ctx, insertSQL(dest), doc.DT.UTC(), doc.Candle)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s: %s", ErrDuplicate, dest, pgErr.Detail)
		}
		return fmt.Errorf("insert into %s: %w", dest, err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close(context.Context) error {
	s.db.Close()
	return nil
}
