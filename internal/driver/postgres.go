package driver

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresConn is the networked-engine session.
type PostgresConn struct {
	sqlConn
}

// NewPostgres returns an unconnected Postgres session.
func NewPostgres() *PostgresConn {
	return &PostgresConn{sqlConn: sqlConn{driverName: "postgres"}}
}

// WrapPostgresDB adapts an existing database handle, for tests with
// sqlmock or a shared pool.
func WrapPostgresDB(db *sql.DB) *PostgresConn {
	return &PostgresConn{sqlConn: sqlConn{driverName: "postgres", db: db}}
}

// Prepare compiles a statement against the session, inside the open
// transaction when one is active.
func (c *PostgresConn) Prepare(query string, expectedParams int) (Statement, error) {
	return newStatement(c.execer(), query, expectedParams, bindPostgres)
}

// NextValue advances the named server-side sequence, creating it on
// first use.
func (c *PostgresConn) NextValue(sequence string) (int64, error) {
	if !validIdent.MatchString(sequence) {
		return 0, fmt.Errorf("driver: invalid sequence name %q", sequence)
	}
	if _, err := c.execer().Exec("CREATE SEQUENCE IF NOT EXISTS " + sequence); err != nil {
		return 0, fmt.Errorf("driver: create sequence %s: %w", sequence, err)
	}
	var v int64
	if err := c.execer().QueryRow("SELECT nextval($1)", sequence).Scan(&v); err != nil {
		return 0, fmt.Errorf("driver: nextval %s: %w", sequence, err)
	}
	return v, nil
}

var _ Conn = (*PostgresConn)(nil)
