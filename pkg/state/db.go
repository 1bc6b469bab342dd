package state

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/sps2/pm/pkg/log"
	"github.com/sps2/pm/pkg/pmerrors"
)

// Manager owns the state database connection and its write mutex.
// The pool holds a single connection, so reads and writes take turns on
// it rather than running concurrently; the mutex serialises writes to
// match SQLite's single-writer model and keep multi-table commits atomic.
type Manager struct {
	db      *sql.DB
	writeMu sync.Mutex
	dbPath  string
}

// Open opens (creating if necessary) the SQLite database at path,
// enables WAL journaling and foreign-key enforcement, and applies the
// schema.
func Open(path string) (*Manager, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &pmerrors.DatabaseError{Operation: "open", Cause: err}
	}

	// a single physical connection keeps WAL semantics predictable and
	// matches the process-wide write mutex below
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = FULL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, &pmerrors.DatabaseError{Operation: p, Cause: err}
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &pmerrors.DatabaseError{Operation: "apply schema", Cause: err}
	}

	return &Manager{db: db, dbPath: path}, nil
}

// Close closes the underlying database connection.
func (m *Manager) Close() error {
	return m.db.Close()
}

// WithWriteTx runs fn inside a single write transaction guarded by the
// manager's process-wide write mutex, committing on success and rolling
// back on any error fn returns. Exported so pkg/transition and pkg/guard
// can compose multi-table mutations into the same atomic commit §4.6
// describes without each reimplementing the transaction/lock dance.
func (m *Manager) WithWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return m.withWriteTx(ctx, fn)
}

// withWriteTx runs fn inside a single write transaction guarded by the
// manager's process-wide write mutex, committing on success and rolling
// back on any error fn returns.
func (m *Manager) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return &pmerrors.DatabaseError{Operation: "begin transaction", Cause: err}
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithComponent("state").Error().Err(rbErr).Msg("rollback failed after transaction error")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return &pmerrors.DatabaseError{Operation: "commit transaction", Cause: err}
	}
	return nil
}

// withReadTx runs fn inside a read-only transaction. Because the pool
// holds a single connection, it waits until any open transaction or
// query has released that connection, and holds it until fn returns.
func (m *Manager) withReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return &pmerrors.DatabaseError{Operation: "begin read transaction", Cause: err}
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return nil
}

func dbErr(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &pmerrors.DatabaseError{Operation: operation, Cause: err}
}

func notFound(kind, id string) error {
	return &pmerrors.UserError{Message: fmt.Sprintf("%s %q not found", kind, id)}
}
