package storage

import (
	_ "embed"
	"encoding/json"
	"strconv"

	"github.com/mesh-intelligence/strata/internal/driver"
	"github.com/mesh-intelligence/strata/internal/jsondoc"
	"github.com/mesh-intelligence/strata/internal/schema"
	"github.com/mesh-intelligence/strata/internal/sqlgen"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// Meta-schema names seeded by InitCatalog.
const (
	metaCatalog  = "schema_catalog"
	metaVersions = "schema_versions"
)

//go:embed schema_catalog.json
var schemaCatalogJSON []byte

//go:embed schema_versions.json
var schemaVersionsJSON []byte

// InitCatalog materializes the two meta tables and records them in the
// catalog, all within one write transaction. Idempotent: the DDL uses
// IF NOT EXISTS and existing catalog rows are left in place.
func (s *Storage) InitCatalog() error {
	if s.reg.Has(metaCatalog) && s.reg.Has(metaVersions) {
		return nil
	}
	catalogSchema, err := schema.Load(schemaCatalogJSON)
	if err != nil {
		return errStep("load schema_catalog", err)
	}
	versionsSchema, err := schema.Load(schemaVersionsJSON)
	if err != nil {
		return errStep("load schema_versions", err)
	}

	err = s.withTx(func(conn driver.Conn) error {
		for _, meta := range []*types.Schema{catalogSchema, versionsSchema} {
			if err := conn.ExecDDL(sqlgen.DDL(meta, s.dialect)); err != nil {
				return err
			}
		}
		// Tables exist; register both meta schemas, then record them.
		for _, meta := range []*types.Schema{catalogSchema, versionsSchema} {
			if err := s.reg.Add(meta); err != nil {
				return err
			}
			if _, err := s.reg.Get(meta.Name, alreadyApplied); err != nil {
				return err
			}
		}
		for _, meta := range []*types.Schema{catalogSchema, versionsSchema} {
			if err := s.persistSchemaRows(conn, meta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Leave the registry consistent with the database.
		s.reg.Remove(metaCatalog)
		s.reg.Remove(metaVersions)
		return err
	}
	return nil
}

// alreadyApplied is the migration function for schemas whose DDL the
// caller has just executed.
func alreadyApplied(from, to *types.Schema) error { return nil }

// AddSchema declares a schema from its JSON source. The registry's
// version rules apply: versions per name are strictly increasing and
// never replace. With a non-nil conn the declaration is also persisted
// to the meta tables inside the caller's transaction; passing nil adds
// it in memory and persists in a transaction of its own when the
// catalog is initialized.
func (s *Storage) AddSchema(source []byte, conn driver.Conn) error {
	sc, err := schema.Load(source)
	if err != nil {
		return err
	}
	if err := s.reg.Add(sc); err != nil {
		return err
	}

	if conn != nil {
		return s.persistSchemaRows(conn, sc)
	}
	if s.reg.Has(metaCatalog) && sc.Name != metaCatalog && sc.Name != metaVersions {
		return s.withTx(func(conn driver.Conn) error {
			return s.persistSchemaRows(conn, sc)
		})
	}
	return nil
}

// RemoveSchema drops a schema from the in-memory catalog and deletes
// its catalog and version rows. The table itself is left in place.
func (s *Storage) RemoveSchema(name string) error {
	if !s.reg.Remove(name) {
		return types.ErrUnknownSchema
	}
	if !s.reg.Has(metaCatalog) {
		return nil
	}
	return s.withTx(func(conn driver.Conn) error {
		ph := placeholders(s.dialect)
		if _, err := conn.ExecDML(
			"DELETE FROM schema_versions WHERE schema_id IN (SELECT id FROM schema_catalog WHERE name = "+ph[0]+");",
			[]any{name}); err != nil {
			return err
		}
		_, err := conn.ExecDML(
			"DELETE FROM schema_catalog WHERE name = "+ph[0]+";",
			[]any{name})
		return err
	})
}

// persistSchemaRows writes one schema_catalog row (if the name is new)
// and one schema_versions row for the declared version, on the caller's
// connection.
func (s *Storage) persistSchemaRows(conn driver.Conn, sc *types.Schema) error {
	catalogSchema, err := s.reg.Get(metaCatalog, alreadyApplied)
	if err != nil {
		return err
	}
	versionsSchema, err := s.reg.Get(metaVersions, alreadyApplied)
	if err != nil {
		return err
	}

	schemaID, err := s.catalogRowID(conn, sc.Name)
	if err != nil {
		return err
	}
	if schemaID == 0 {
		row := jsondoc.NewObject()
		row.Set("name", sc.Name)
		row.Set("current_version", json.Number("0"))
		id, err := s.execInsert(conn, catalogSchema, row)
		if err != nil {
			return errStep("insert schema_catalog row", err)
		}
		schemaID = id
	}

	exists, err := s.versionRowExists(conn, schemaID, sc.Version)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	vrow := jsondoc.NewObject()
	vrow.Set("schema_id", json.Number(strconv.FormatInt(schemaID, 10)))
	vrow.Set("version", json.Number(strconv.Itoa(sc.Version)))
	vrow.Set("applied", sc.Applied)
	vrow.Set("json", sc.SourceJSON)
	if _, err := s.execInsert(conn, versionsSchema, vrow); err != nil {
		return errStep("insert schema_versions row", err)
	}
	return nil
}

// versionRowExists reports whether a schema_versions row already
// records (schemaID, version), keeping re-declarations across process
// restarts idempotent.
func (s *Storage) versionRowExists(conn driver.Conn, schemaID int64, version int) (bool, error) {
	ph := placeholders(s.dialect)
	stmt, err := conn.Prepare(
		"SELECT COUNT(*) FROM schema_versions WHERE schema_id = "+ph[0]+" AND version = "+ph[1], 2)
	if err != nil {
		return false, err
	}
	defer stmt.Close()
	if err := stmt.Bind(1, json.Number(strconv.FormatInt(schemaID, 10)), types.Integer); err != nil {
		return false, err
	}
	if err := stmt.Bind(2, json.Number(strconv.Itoa(version)), types.Integer); err != nil {
		return false, err
	}
	scalar, ok := stmt.(driver.ScalarQuerier)
	if !ok {
		return false, nil
	}
	n, err := scalar.QueryScalar()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// catalogRowID returns the schema_catalog id for name, or 0 when no row
// exists yet.
func (s *Storage) catalogRowID(conn driver.Conn, name string) (int64, error) {
	// The meta tables key catalog lookups by unique name; serial ids
	// come from the engine, so a lookup has to go through the driver's
	// scalar fetch.
	stmt, err := conn.Prepare(
		"SELECT COALESCE(MAX(id), 0) FROM schema_catalog WHERE name = "+placeholders(s.dialect)[0],
		1)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	if err := stmt.Bind(1, name, types.String); err != nil {
		return 0, err
	}
	scalar, ok := stmt.(driver.ScalarQuerier)
	if !ok {
		return 0, nil
	}
	return scalar.QueryScalar()
}

// execInsert runs one generated INSERT for a single row, synthesizing
// the PK, and returns the synthesized id when it is an integer.
func (s *Storage) execInsert(conn driver.Conn, sc *types.Schema, row *jsondoc.Object) (int64, error) {
	stmt, err := sqlgen.Insert(sc, jsondoc.Value(row), s.dialect)
	if err != nil {
		return 0, err
	}
	prepared, err := conn.Prepare(stmt.SQL, stmt.ExpectedParams)
	if err != nil {
		return 0, errStep("prepare", err)
	}
	defer prepared.Close()

	pk, hasPK := sc.PK()
	var id jsondoc.Value
	if hasPK {
		if v, ok := row.Get(pk.Name); !ok || !pkValid(v, pk.Type) {
			id, err = s.ids.Next(pk, sc.Name, conn)
			if err != nil {
				return 0, err
			}
		}
	}
	if err := s.bindRow(prepared, stmt.Bind, row, id); err != nil {
		return 0, err
	}
	if _, err := prepared.Exec(); err != nil {
		return 0, err
	}

	if n, ok := id.(json.Number); ok {
		v, err := n.Int64()
		if err == nil {
			return v, nil
		}
	}
	return 0, nil
}
