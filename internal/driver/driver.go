// Package driver adapts the two SQL engines to the connection and
// statement contract the pool and write pipeline rely on. A Conn owns
// one database session; all transaction state lives on the connection.
package driver

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/mesh-intelligence/strata/internal/jsondoc"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// Conn is one engine session. Begin/Commit/Rollback bracket a single
// transaction: nested Begin is a no-op, Commit without a transaction
// returns ErrNoTransaction, Rollback without one does nothing.
type Conn interface {
	Connect(dsn string) error
	Disconnect() error

	Begin() error
	Commit() error
	Rollback()
	InTx() bool

	Prepare(query string, expectedParams int) (Statement, error)
	ExecDDL(query string) error
	ExecDML(query string, params []any) (int64, error)
	NextValue(sequence string) (int64, error)
}

// Statement is a prepared statement with positional 1-based binds.
// Bind converts the JSON value by the declared property type and the
// dialect's conventions; Exec returns affected rows.
type Statement interface {
	Bind(index int, v jsondoc.Value, t types.PropType) error
	Exec() (int64, error)
	Close() error
}

// ScalarQuerier is the optional statement extension for single-column
// scalar fetches, the engine's only read path beyond NextValue.
type ScalarQuerier interface {
	QueryScalar() (int64, error)
}

// ErrNoTransaction reports Commit called with no transaction open.
var ErrNoTransaction = errors.New("driver: no transaction open")

// validIdent allows plain SQL identifiers for sequence names.
var validIdent = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// execer is the statement target: the open transaction when one is
// active, the session otherwise.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	Prepare(query string) (*sql.Stmt, error)
}

// sqlConn implements the shared session bookkeeping over database/sql.
// Each Conn pins a single underlying connection (max open conns 1) so
// statement order and transaction state are session-local.
type sqlConn struct {
	driverName string
	db         *sql.DB
	tx         *sql.Tx
}

func (c *sqlConn) Connect(dsn string) error {
	if c.db != nil {
		return nil
	}
	db, err := sql.Open(c.driverName, dsn)
	if err != nil {
		return fmt.Errorf("driver: open %s: %w", c.driverName, err)
	}
	db.SetMaxOpenConns(1)
	c.db = db
	return nil
}

func (c *sqlConn) Disconnect() error {
	if c.db == nil {
		return nil
	}
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *sqlConn) Begin() error {
	if c.tx != nil {
		return nil
	}
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrBeginFailed, err)
	}
	c.tx = tx
	return nil
}

func (c *sqlConn) Commit() error {
	if c.tx == nil {
		return ErrNoTransaction
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrCommitFailed, err)
	}
	return nil
}

func (c *sqlConn) Rollback() {
	if c.tx == nil {
		return
	}
	_ = c.tx.Rollback()
	c.tx = nil
}

func (c *sqlConn) InTx() bool { return c.tx != nil }

func (c *sqlConn) execer() execer {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

func (c *sqlConn) ExecDDL(query string) error {
	if _, err := c.execer().Exec(query); err != nil {
		return fmt.Errorf("%w: %v", types.ErrDDLExecFailed, err)
	}
	return nil
}

func (c *sqlConn) ExecDML(query string, params []any) (int64, error) {
	res, err := c.execer().Exec(query, params...)
	if err != nil {
		return 0, fmt.Errorf("driver: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// sqlStatement accumulates converted binds and executes through
// database/sql. The convert hook applies dialect binding conventions.
type sqlStatement struct {
	stmt    *sql.Stmt
	args    []any
	convert func(v jsondoc.Value, t types.PropType) (any, error)
}

func newStatement(ex execer, query string, expectedParams int,
	convert func(jsondoc.Value, types.PropType) (any, error)) (*sqlStatement, error) {
	stmt, err := ex.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPrepareFailed, err)
	}
	if expectedParams < 0 {
		expectedParams = 0
	}
	return &sqlStatement{
		stmt:    stmt,
		args:    make([]any, expectedParams),
		convert: convert,
	}, nil
}

func (s *sqlStatement) Bind(index int, v jsondoc.Value, t types.PropType) error {
	if index < 1 {
		panic("driver: bind index is 1-based")
	}
	for len(s.args) < index {
		s.args = append(s.args, nil)
	}
	val, err := s.convert(v, t)
	if err != nil {
		return err
	}
	s.args[index-1] = val
	return nil
}

func (s *sqlStatement) Exec() (int64, error) {
	res, err := s.stmt.Exec(s.args...)
	if err != nil {
		return 0, fmt.Errorf("driver: exec: %w", err)
	}
	// Reset binds so the statement can be reused across rows.
	for i := range s.args {
		s.args[i] = nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// QueryScalar executes the statement as a single-scalar fetch.
func (s *sqlStatement) QueryScalar() (int64, error) {
	var v int64
	err := s.stmt.QueryRow(s.args...).Scan(&v)
	for i := range s.args {
		s.args[i] = nil
	}
	if err != nil {
		return 0, fmt.Errorf("driver: scalar query: %w", err)
	}
	return v, nil
}

func (s *sqlStatement) Close() error { return s.stmt.Close() }
