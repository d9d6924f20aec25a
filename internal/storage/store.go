// Package storage is the narrow transactional API of §4.1: schema, upserts,
// range queries, and atomic multi-row mutations. It is grounded on the
// teacher's internal/database/repo.go (*sqlx.DB + *logrus.Logger held on a
// Repo-shaped struct, query-then-scan methods, BeginTxx/Commit/Rollback for
// multi-row writes) but targets a SQLite-class backend per spec.md's
// storage requirement, using modernc.org/sqlite (the pure-Go driver
// aristath-sentinel carries) instead of the teacher's lib/pq.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/solankidhruvraj/stocky-ledger/internal/apperr"
)

// Store is the engine's single transactional gateway to the relational
// store. One Store wraps one *sqlx.DB; the teacher's assumption of a single
// writer per database (§5) means callers do not share a Store across
// independently-migrated databases.
type Store struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// Open connects to the SQLite-class database at path and applies the
// schema. It mirrors the teacher's initDB in cmd/server/main.go: open,
// configure pool limits, apply schema, return (there is no separate ping).
func Open(path string, log *logrus.Logger) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageError, "open database", err)
	}
	// SQLite-class backends serialize writers already (§5); one connection
	// keeps the single-writer discipline the ledger's transactions rely on.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.StorageError, "apply schema", err)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version) SELECT 1 WHERE NOT EXISTS (SELECT 1 FROM schema_version)`); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.StorageError, "seed schema_version", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for packages (tests, migration tools)
// that need raw access; production code should prefer the typed methods
// below.
func (s *Store) DB() *sqlx.DB { return s.db }

// WithTransaction runs fn inside a single database transaction, committing
// on success and rolling back on error or panic. It is the storage layer's
// version of the teacher's inline BeginTxx/defer Rollback/Commit pattern in
// repo.go, generalized into a scoped primitive per spec.md §4.1's
// with_transaction(f).
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, txErr := s.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return apperr.Wrap(apperr.StorageError, "begin transaction", txErr)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return apperr.Wrap(apperr.StorageError, "commit transaction", err)
	}
	return nil
}

// classify turns a raw sql error into a categorized apperr, the way the
// teacher's CreateReward inspects *pq.Error for code "23505" but adapted to
// SQLite's constraint-violation error text.
func classify(msg string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.StorageError, msg, err)
	}
	if isConstraintViolation(err) {
		return apperr.Wrap(apperr.ConstraintViolation, msg, err)
	}
	return apperr.Wrap(apperr.StorageError, msg, err)
}

func isConstraintViolation(err error) bool {
	s := err.Error()
	return strings.Contains(s, "UNIQUE constraint failed") ||
		strings.Contains(s, "constraint failed") ||
		strings.Contains(s, "CHECK constraint failed")
}

// ErrNotFound is a not-found storage error value. The single-row lookups in
// this package do not return it: they report a missing row as a nil result
// with a nil error.
var ErrNotFound = apperr.New(apperr.StorageError, "not found")

func wrapf(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}
