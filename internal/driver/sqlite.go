package driver

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// sequencesDDL backs NextValue on SQLite, which has no native sequences.
const sequencesDDL = `CREATE TABLE IF NOT EXISTS strata_sequences(
 name TEXT NOT NULL,
 value INTEGER NOT NULL DEFAULT 0,
 PRIMARY KEY(name)
);`

// SQLiteConn is the embedded-engine session.
type SQLiteConn struct {
	sqlConn
}

// NewSQLite returns an unconnected SQLite session.
func NewSQLite() *SQLiteConn {
	return &SQLiteConn{sqlConn: sqlConn{driverName: "sqlite"}}
}

// WrapSQLiteDB adapts an existing database handle, for tests.
func WrapSQLiteDB(db *sql.DB) *SQLiteConn {
	return &SQLiteConn{sqlConn: sqlConn{driverName: "sqlite", db: db}}
}

// Prepare compiles a statement against the session, inside the open
// transaction when one is active.
func (c *SQLiteConn) Prepare(query string, expectedParams int) (Statement, error) {
	return newStatement(c.execer(), query, expectedParams, bindSQLite)
}

// NextValue increments and returns the named counter. The counter table
// is created on first use; the increment joins the open transaction so
// serial ids commit or roll back with their rows.
func (c *SQLiteConn) NextValue(sequence string) (int64, error) {
	if !validIdent.MatchString(sequence) {
		return 0, fmt.Errorf("driver: invalid sequence name %q", sequence)
	}
	// IF NOT EXISTS keeps this cheap, and re-running it every call keeps
	// the table present even after a rollback dropped a fresh one.
	if _, err := c.execer().Exec(sequencesDDL); err != nil {
		return 0, fmt.Errorf("driver: create sequences table: %w", err)
	}
	_, err := c.execer().Exec(
		`INSERT INTO strata_sequences(name, value) VALUES(?1, 1)
		 ON CONFLICT(name) DO UPDATE SET value = value + 1;`, sequence)
	if err != nil {
		return 0, fmt.Errorf("driver: advance sequence %s: %w", sequence, err)
	}
	var v int64
	err = c.execer().QueryRow(
		`SELECT value FROM strata_sequences WHERE name = ?1;`, sequence).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("driver: read sequence %s: %w", sequence, err)
	}
	return v, nil
}

var _ Conn = (*SQLiteConn)(nil)

// Factory returns a connection constructor for the dialect, used by the
// pool to populate its free list.
func Factory(d types.Dialect) func() Conn {
	if d == types.Postgres {
		return func() Conn { return NewPostgres() }
	}
	return func() Conn { return NewSQLite() }
}
