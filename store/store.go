// Package store is the Storage Gateway (A): CRUD over persisted entities,
// the atomic balance update, and the stuck-task scan query. Grounded on
// livepeer-catalyst-api's use of database/sql + lib/pq, and on the
// transaction/FOR UPDATE idiom in
// Livepeer-FrameWorks-monorepo/api_billing/internal/handlers/checkout.go
// and jobs_prepaid_test.go, which this package's tests mirror with
// DATA-DOG/go-sqlmock.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// translateNotFound converts sql.ErrNoRows into the package's own
// ErrNotFound so callers never need to import database/sql themselves.
func translateNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("store: %w", err)
}

// ErrNotFound is returned by single-row lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Gateway wraps a *sql.DB (or a sqlmock-backed stand-in satisfying DB) and
// implements every Storage Gateway operation the rest of the engine needs.
type Gateway struct {
	db DB
}

func New(db DB) *Gateway {
	return &Gateway{db: db}
}

// Open connects to Postgres via lib/pq, the way cmd/http-server wires its
// metrics DB in the teacher.
func Open(postgresURL string) (*Gateway, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(time.Hour)
	return New(db), nil
}
