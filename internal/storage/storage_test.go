package storage

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/strata/internal/driver"
	"github.com/mesh-intelligence/strata/internal/jsondoc"
	"github.com/mesh-intelligence/strata/pkg/types"
)

const usersV1 = `{"name":"users","version":1,"properties":{
	"id":{"type":"integer","idprop":true,"idkind":"snowflake"},
	"name":{"type":"string"},
	"age":{"type":"integer"}
},"required":["name"]}`

const usersV2 = `{"name":"users","version":2,"properties":{
	"id":{"type":"integer","idprop":true,"idkind":"snowflake"},
	"name":{"type":"string"},
	"age":{"type":"integer"},
	"email":{"type":"string"}
},"required":["name"]}`

// newSQLiteStore opens a Storage over a fresh SQLite file.
func newSQLiteStore(t *testing.T, opts ...Option) *Storage {
	t.Helper()
	s, err := New(types.Config{
		Dialect: "sqlite",
		DSN:     filepath.Join(t.TempDir(), "strata.db"),
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// scalar runs a single-value query against the store's database for
// assertions.
func scalar(t *testing.T, s *Storage, query string, args ...any) int64 {
	t.Helper()
	conn := driver.NewSQLite()
	require.NoError(t, conn.Connect(s.cfg.DSN))
	defer conn.Disconnect()

	stmt, err := conn.Prepare(query, len(args))
	require.NoError(t, err)
	defer stmt.Close()
	for i, a := range args {
		require.NoError(t, stmt.Bind(i+1, a, types.String))
	}
	v, err := stmt.(driver.ScalarQuerier).QueryScalar()
	require.NoError(t, err)
	return v
}

func TestInitCatalog(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())

	// Both meta tables exist and carry their own catalog rows.
	assert.Equal(t, int64(2), scalar(t, s, "SELECT COUNT(*) FROM schema_catalog"))
	assert.Equal(t, int64(2), scalar(t, s, "SELECT COUNT(*) FROM schema_versions"))

	// Re-running InitCatalog on a fresh process over the same file is
	// idempotent.
	s2, err := New(types.Config{Dialect: "sqlite", DSN: s.cfg.DSN, PoolSize: 1})
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s2.InitCatalog())
	assert.Equal(t, int64(2), scalar(t, s, "SELECT COUNT(*) FROM schema_catalog"))
}

func TestAddSchema_PersistsCatalogRows(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))

	assert.Equal(t, int64(1), scalar(t, s,
		"SELECT COUNT(*) FROM schema_catalog WHERE name = ?1", "users"))
	assert.Equal(t, int64(1), scalar(t, s,
		"SELECT COUNT(*) FROM schema_versions WHERE schema_id IN (SELECT id FROM schema_catalog WHERE name = ?1)",
		"users"))

	// Declaring the same version twice is rejected by the registry.
	err := s.AddSchema([]byte(usersV1), nil)
	assert.ErrorIs(t, err, types.ErrDuplicateVersion)
}

func TestInsert_GeneratesPK(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))

	n, err := s.Insert("users", []byte(`{"name":"Alice","age":30}`), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, int64(1), scalar(t, s, "SELECT COUNT(*) FROM users"))
	// The snowflake id is a positive integer.
	assert.Positive(t, scalar(t, s, "SELECT MAX(id) FROM users"))
}

func TestInsert_ArrayReusesStatements(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))

	n, err := s.Insert("users", []byte(`[
		{"name":"Alice","age":30},
		{"name":"Bob","age":31},
		{"name":"Carol","age":32}
	]`), "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, int64(3), scalar(t, s, "SELECT COUNT(*) FROM users"))
	// Every row received a distinct generated id.
	assert.Equal(t, int64(3), scalar(t, s, "SELECT COUNT(DISTINCT id) FROM users"))
}

func TestInsert_UpsertRoute(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))

	// Valid PK routes to the upsert form: same id twice yields one row.
	_, err := s.Insert("users", []byte(`{"id":42,"name":"Carol","age":25}`), "")
	require.NoError(t, err)
	_, err = s.Insert("users", []byte(`{"id":42,"name":"Carol","age":26}`), "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), scalar(t, s, "SELECT COUNT(*) FROM users"))
	assert.Equal(t, int64(26), scalar(t, s, "SELECT age FROM users WHERE id = 42"))
}

func TestInsert_InvalidPKReplacedInPlace(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))

	// id 0 is invalid for a numeric PK; a fresh id is synthesized.
	n, err := s.Insert("users", []byte(`{"id":0,"name":"Bob"}`), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(0), scalar(t, s, "SELECT COUNT(*) FROM users WHERE id = 0"))
	assert.Equal(t, int64(1), scalar(t, s, "SELECT COUNT(*) FROM users"))
}

func TestInsert_EmptyArray(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))

	_, err := s.Insert("users", []byte(`[]`), "")
	assert.ErrorIs(t, err, types.ErrEmptyPayload)
}

func TestInsert_UnknownSchema(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())

	_, err := s.Insert("ghosts", []byte(`{"a":1}`), "")
	assert.ErrorIs(t, err, types.ErrUnknownSchema)
}

func TestUpdate(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))

	_, err := s.Insert("users", []byte(`{"id":7,"name":"Dave","age":50}`), "")
	require.NoError(t, err)

	n, err := s.Update("users", []byte(`{"id":7,"age":51}`), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(51), scalar(t, s, "SELECT age FROM users WHERE id = 7"))

	// A row without a valid PK fails the whole call.
	_, err = s.Update("users", []byte(`{"age":52}`), "")
	assert.ErrorIs(t, err, types.ErrMissingPk)
	_, err = s.Update("users", []byte(`{"id":0,"age":52}`), "")
	assert.ErrorIs(t, err, types.ErrMissingPk)
}

func TestDelete(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))

	_, err := s.Insert("users", []byte(`[{"id":1,"name":"A"},{"id":2,"name":"B"}]`), "")
	require.NoError(t, err)

	n, err := s.Delete("users", []byte(`{"id":1}`), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), scalar(t, s, "SELECT COUNT(*) FROM users"))

	_, err = s.Delete("users", []byte(`{"name":"B"}`), "")
	assert.ErrorIs(t, err, types.ErrMissingPk)
}

func TestMigration_ForwardOnDemand(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))

	// v1 applied by first use.
	_, err := s.Insert("users", []byte(`{"name":"Alice"}`), "")
	require.NoError(t, err)

	// Declare v2; next use migrates and the new column is writable.
	require.NoError(t, s.AddSchema([]byte(usersV2), nil))
	sc, err := s.GetSchema("users")
	require.NoError(t, err)
	assert.Equal(t, 2, sc.Version)

	_, err = s.Insert("users", []byte(`{"name":"Bob","email":"bob@example.com"}`), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), scalar(t, s,
		"SELECT COUNT(*) FROM users WHERE email = ?1", "bob@example.com"))

	// The catalog records the applied version.
	assert.Equal(t, int64(2), scalar(t, s,
		"SELECT current_version FROM schema_catalog WHERE name = ?1", "users"))
	assert.Equal(t, []int(nil), s.Registry().UnappliedVersions("users"))
}

func TestNotifyHook(t *testing.T) {
	var mu sync.Mutex
	type event struct {
		name string
		op   types.Op
	}
	var events []event

	s := newSQLiteStore(t, WithNotify(func(name string, op types.Op) {
		mu.Lock()
		events = append(events, event{name, op})
		mu.Unlock()
	}))
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))

	_, err := s.Insert("users", []byte(`{"name":"Alice"}`), "")
	require.NoError(t, err)
	_, err = s.Insert("users", []byte(`{"id":9,"name":"Nine"}`), "")
	require.NoError(t, err)
	_, err = s.Update("users", []byte(`{"id":9,"age":1}`), "")
	require.NoError(t, err)
	_, err = s.Delete("users", []byte(`{"id":9}`), "")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 4)
	assert.Equal(t, event{"users", types.OpInsert}, events[0])
	assert.Equal(t, event{"users", types.OpUpsert}, events[1])
	assert.Equal(t, event{"users", types.OpUpdate}, events[2])
	assert.Equal(t, event{"users", types.OpDelete}, events[3])
}

func TestAuditHook(t *testing.T) {
	var audited []string
	s := newSQLiteStore(t, WithAudit(func(conn driver.Conn, name string, op types.Op, trackInfo string, row *jsondoc.Object) error {
		audited = append(audited, trackInfo)
		// The hook runs inside the write transaction.
		if !conn.InTx() {
			t.Error("audit hook should run inside the transaction")
		}
		return nil
	}))
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))

	_, err := s.Insert("users", []byte(`[{"name":"A"},{"name":"B"}]`), "req-123")
	require.NoError(t, err)
	assert.Equal(t, []string{"req-123", "req-123"}, audited)

	// Empty trackInfo skips the hook.
	audited = nil
	_, err = s.Insert("users", []byte(`{"name":"C"}`), "")
	require.NoError(t, err)
	assert.Empty(t, audited)
}

func TestAuditFailureRollsBack(t *testing.T) {
	boom := errors.New("audit store unavailable")
	s := newSQLiteStore(t, WithAudit(func(conn driver.Conn, name string, op types.Op, trackInfo string, row *jsondoc.Object) error {
		return boom
	}))
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))

	_, err := s.Insert("users", []byte(`{"name":"A"}`), "req-1")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), scalar(t, s, "SELECT COUNT(*) FROM users"))
}

func TestRemoveSchema(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))

	require.NoError(t, s.RemoveSchema("users"))
	assert.Equal(t, int64(0), scalar(t, s,
		"SELECT COUNT(*) FROM schema_catalog WHERE name = ?1", "users"))

	_, err := s.GetSchema("users")
	assert.ErrorIs(t, err, types.ErrUnknownSchema)
	assert.ErrorIs(t, s.RemoveSchema("users"), types.ErrUnknownSchema)
}

func TestExecDDLAndDML(t *testing.T) {
	s := newSQLiteStore(t)

	require.NoError(t, s.ExecDDL("CREATE TABLE IF NOT EXISTS raw(v INTEGER);"))
	n, err := s.ExecDML("INSERT INTO raw (v) VALUES (?1);", []any{int64(5)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(5), scalar(t, s, "SELECT v FROM raw"))
}

func TestInsertWith_CallerTransaction(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(usersV1), nil))
	sc, err := s.GetSchema("users")
	require.NoError(t, err)

	conn := driver.NewSQLite()
	require.NoError(t, conn.Connect(s.cfg.DSN))
	defer conn.Disconnect()

	require.NoError(t, conn.Begin())
	n, err := s.InsertWith(conn, sc, []byte(`{"name":"Joined"}`), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	// The row is invisible until the caller commits.
	conn.Rollback()
	assert.Equal(t, int64(0), scalar(t, s, "SELECT COUNT(*) FROM users"))

	require.NoError(t, conn.Begin())
	_, err = s.InsertWith(conn, sc, []byte(`{"name":"Joined"}`), "")
	require.NoError(t, err)
	require.NoError(t, conn.Commit())
	assert.Equal(t, int64(1), scalar(t, s, "SELECT COUNT(*) FROM users"))
}

func TestUUIDv7PrimaryKey(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(`{"name":"notes","properties":{
		"id":{"type":"string","idprop":true},
		"body":{"type":"string"}
	}}`), nil))

	_, err := s.Insert("notes", []byte(`{"body":"hello"}`), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), scalar(t, s,
		"SELECT COUNT(*) FROM notes WHERE length(id) = 36"))
}

func TestTBSerialPrimaryKey(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.InitCatalog())
	require.NoError(t, s.AddSchema([]byte(`{"name":"tickets","properties":{
		"id":{"type":"integer","idprop":true,"idkind":"tbserial"},
		"title":{"type":"string"}
	}}`), nil))

	_, err := s.Insert("tickets", []byte(`[{"title":"one"},{"title":"two"}]`), "")
	require.NoError(t, err)
	// Per-table serials count up from 1.
	assert.Equal(t, int64(1), scalar(t, s, "SELECT MIN(id) FROM tickets"))
	assert.Equal(t, int64(2), scalar(t, s, "SELECT MAX(id) FROM tickets"))
}
