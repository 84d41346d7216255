// Package storage is the top-level facade over the Strata engine: it
// owns the connection pool, the schema registry, and the id generators,
// and orchestrates the write pipeline from JSON payload to committed
// rows.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/strata/internal/driver"
	"github.com/mesh-intelligence/strata/internal/ident"
	"github.com/mesh-intelligence/strata/internal/jsondoc"
	"github.com/mesh-intelligence/strata/internal/pool"
	"github.com/mesh-intelligence/strata/internal/registry"
	"github.com/mesh-intelligence/strata/internal/sqlgen"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// NotifyFunc is invoked after a successful commit with the schema name
// and the operation that ran.
type NotifyFunc func(schemaName string, op types.Op)

// AuditFunc records a write for tracking. It runs inside the write's
// transaction, once per row, whenever trackInfo is non-empty.
type AuditFunc func(conn driver.Conn, schemaName string, op types.Op, trackInfo string, row *jsondoc.Object) error

// Option configures a Storage.
type Option func(*Storage)

// WithNotify installs the post-commit notification hook.
func WithNotify(fn NotifyFunc) Option {
	return func(s *Storage) { s.notify = fn }
}

// WithAudit installs the in-transaction audit hook.
func WithAudit(fn AuditFunc) Option {
	return func(s *Storage) { s.audit = fn }
}

// WithConnFactory overrides the driver connection constructor. Tests
// inject sqlmock-backed connections through this.
func WithConnFactory(factory func() driver.Conn) Option {
	return func(s *Storage) { s.factory = factory }
}

// Storage is the engine facade.
type Storage struct {
	cfg     types.Config
	dialect types.Dialect
	pool    *pool.Pool
	reg     *registry.Registry
	ids     *ident.Suite
	notify  NotifyFunc
	audit   AuditFunc
	factory func() driver.Conn
}

// New validates the configuration, connects the pool, and returns a
// ready Storage. Call InitCatalog before adding schemas.
func New(cfg types.Config, opts ...Option) (*Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := types.ParseDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	ids, err := ident.NewSuite(cfg.WorkerID, cfg.DatacenterID)
	if err != nil {
		return nil, err
	}

	s := &Storage{
		cfg:     cfg,
		dialect: d,
		reg:     registry.New(),
		ids:     ids,
		factory: driver.Factory(d),
	}
	for _, opt := range opts {
		opt(s)
	}

	p, err := pool.New(cfg.PoolSize, cfg.DSN, s.factory, pool.Policy{
		AcquireTimeout: cfg.AcquireTimeoutDuration(),
		WriterPriority: cfg.WriterPriority,
	})
	if err != nil {
		return nil, err
	}
	s.pool = p
	s.reg.SetOnApply(s.persistApplied)
	return s, nil
}

// Dialect returns the engine dialect.
func (s *Storage) Dialect() types.Dialect { return s.dialect }

// Registry exposes the schema registry for inspection.
func (s *Storage) Registry() *registry.Registry { return s.reg }

// Close shuts the pool down. Outstanding leases stay valid; their
// connections close on release.
func (s *Storage) Close() {
	s.pool.Shutdown()
}

// withConn runs fn with a leased connection.
func (s *Storage) withConn(intent pool.Intent, fn func(conn driver.Conn) error) error {
	lease, err := s.pool.Acquire(intent, s.cfg.AcquireTimeoutDuration())
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(lease.Conn())
}

// withTx runs fn inside a transaction on a leased write connection.
// A transaction already open on the leased connection is joined, not
// nested; in that case the caller keeps commit responsibility.
func (s *Storage) withTx(fn func(conn driver.Conn) error) error {
	return s.withConn(pool.Write, func(conn driver.Conn) error {
		opened := !conn.InTx()
		if opened {
			if err := conn.Begin(); err != nil {
				return err
			}
		}
		if err := fn(conn); err != nil {
			if opened {
				conn.Rollback()
			}
			return err
		}
		if opened {
			if err := conn.Commit(); err != nil {
				conn.Rollback()
				return err
			}
		}
		return nil
	})
}

// ExecDDL executes raw DDL on a write connection.
func (s *Storage) ExecDDL(sql string) error {
	return s.withConn(pool.Write, func(conn driver.Conn) error {
		return conn.ExecDDL(sql)
	})
}

// ExecDML executes a raw parameterized statement and returns affected
// rows.
func (s *Storage) ExecDML(sql string, params []any) (int64, error) {
	var affected int64
	err := s.withConn(pool.Write, func(conn driver.Conn) error {
		n, err := conn.ExecDML(sql, params)
		affected = n
		return err
	})
	return affected, err
}

// GetSchema resolves the active version of a schema, migrating forward
// on demand.
func (s *Storage) GetSchema(name string) (*types.Schema, error) {
	return s.reg.Get(name, s.migrate)
}

// migrate is the registry's migration function: a fresh application
// executes the schema's CREATE batch; a forward step executes the ALTER
// plan between versions. Each step runs in its own write transaction.
func (s *Storage) migrate(from, to *types.Schema) error {
	return s.withTx(func(conn driver.Conn) error {
		if from == nil {
			return conn.ExecDDL(sqlgen.DDL(to, s.dialect))
		}
		for _, stmt := range sqlgen.MigratePlan(from, to, s.dialect) {
			if err := conn.ExecDDL(stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// persistApplied records an applied version in the meta tables: the
// catalog's current_version advances and the version row flips to
// applied. Schemas never persisted to the catalog are skipped silently.
func (s *Storage) persistApplied(applied *types.Schema, oldVersion int) error {
	if !s.reg.Has(metaCatalog) {
		// Catalog not initialized; in-memory only.
		return nil
	}
	if applied.Name == metaCatalog || applied.Name == metaVersions {
		return nil
	}
	return s.withTx(func(conn driver.Conn) error {
		ph := placeholders(s.dialect)
		if _, err := conn.ExecDML(
			"UPDATE schema_catalog SET current_version = "+ph[0]+
				", updated_at = CURRENT_TIMESTAMP WHERE name = "+ph[1]+";",
			[]any{applied.Version, applied.Name}); err != nil {
			return err
		}
		_, err := conn.ExecDML(
			"UPDATE schema_versions SET applied = "+boolLiteral(s.dialect, true)+
				" WHERE version = "+ph[0]+
				" AND schema_id IN (SELECT id FROM schema_catalog WHERE name = "+ph[1]+");",
			[]any{applied.Version, applied.Name})
		return err
	})
}

// notifyHook reports a committed operation to the configured sink.
func (s *Storage) notifyHook(name string, op types.Op) {
	if s.notify != nil {
		s.notify(name, op)
	}
}

// placeholders returns the dialect's first two placeholder tokens.
func placeholders(d types.Dialect) [2]string {
	if d == types.Postgres {
		return [2]string{"$1", "$2"}
	}
	return [2]string{"?1", "?2"}
}

// boolLiteral renders a boolean constant for the dialect.
func boolLiteral(d types.Dialect, v bool) string {
	if d == types.Postgres {
		if v {
			return "true"
		}
		return "false"
	}
	if v {
		return "1"
	}
	return "0"
}

// pkValid reports whether a row value is a usable primary key: numeric
// PKs need a non-zero number, textual PKs a non-empty string.
func pkValid(v jsondoc.Value, t types.PropType) bool {
	if v == nil {
		return false
	}
	if t.Numeric() {
		n, ok := v.(json.Number)
		if !ok {
			return false
		}
		f, err := n.Float64()
		return err == nil && f != 0
	}
	str, ok := v.(string)
	return ok && str != ""
}

// errStep wraps an error with the pipeline step that failed.
func errStep(step string, err error) error {
	return fmt.Errorf("%s: %w", step, err)
}
