// Package sqlstore implements the dispatch store contracts on an embedded
// SQLite database. It is meant for single-node camp deployments and tests.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/linesmerrill/camp-cad-api/databases"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DB wraps the sql.DB for connection management
type DB struct {
	conn *sql.DB
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Open connects to the database file at path (":memory:" works too) and
// applies pending migrations. A single connection is kept so writers are
// serialized and an in-memory database survives between calls.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	db := &DB{conn: conn}
	if err := Migrate(ctx, db, migrationFS); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the DB connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// q returns the transaction bound to ctx, or the pool
func (db *DB) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.conn
}

// WithTransaction implements databases.Transactor
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return databases.RunTransaction(ctx, func(txCtx context.Context, body func(context.Context) error) error {
		tx, err := db.conn.BeginTx(txCtx, nil)
		if err != nil {
			return err
		}
		if err := body(context.WithValue(txCtx, txKey{}, tx)); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}, fn)
}

// NewStore wires every table of db into a databases.Store
func NewStore(db *DB) *databases.Store {
	return &databases.Store{
		Calls:       &callTable{db: db},
		Units:       &unitTable{db: db},
		CallUpdates: &callUpdateTable{db: db},
		CallTypes:   &callTypeTable{db: db},
		Questions:   &questionTable{db: db},
		Answers:     &answerTable{db: db},
		Counters:    &counterTable{db: db},
		Users:       &userTable{db: db},
		Locks:       &lockTable{db: db},
		Tx:          db,
	}
}
