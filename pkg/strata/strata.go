// Package strata provides the public API for the Strata engine. It
// exposes the storage facade while keeping pipeline details internal.
//
// Example:
//
//	store, err := strata.Open(types.Config{
//	    Dialect: "sqlite",
//	    DSN:     filepath.Join(dir, "strata.db"),
//	})
//	if err != nil { ... }
//	defer store.Close()
//	store.InitCatalog()
//	store.AddSchema(schemaJSON)
//	store.Insert("users", []byte(`{"name":"Alice"}`), "")
package strata

import (
	"github.com/mesh-intelligence/strata/internal/storage"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// Store is the public handle over the engine facade.
type Store struct {
	inner *storage.Storage
}

// Open validates cfg, connects the pool, and returns a Store.
func Open(cfg types.Config) (*Store, error) {
	inner, err := storage.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{inner: inner}, nil
}

// InitCatalog materializes the meta tables and registers the meta schemas
// on this Store; it is idempotent and runs once per Store before AddSchema
// records catalog rows.
func (s *Store) InitCatalog() error { return s.inner.InitCatalog() }

// AddSchema declares a schema from its JSON-Schema source.
func (s *Store) AddSchema(source []byte) error { return s.inner.AddSchema(source, nil) }

// GetSchema resolves the active version of a schema, migrating forward
// on demand.
func (s *Store) GetSchema(name string) (*types.Schema, error) { return s.inner.GetSchema(name) }

// Insert writes a JSON object or array of objects. Returns affected rows.
func (s *Store) Insert(name string, payload []byte, trackInfo string) (int64, error) {
	return s.inner.Insert(name, payload, trackInfo)
}

// Update writes non-PK fields by primary key.
func (s *Store) Update(name string, payload []byte, trackInfo string) (int64, error) {
	return s.inner.Update(name, payload, trackInfo)
}

// Delete removes rows by primary key.
func (s *Store) Delete(name string, payload []byte, trackInfo string) (int64, error) {
	return s.inner.Delete(name, payload, trackInfo)
}

// RemoveSchema drops a schema from the catalog; its table is left in
// place.
func (s *Store) RemoveSchema(name string) error { return s.inner.RemoveSchema(name) }

// ExecDDL executes raw DDL.
func (s *Store) ExecDDL(sql string) error { return s.inner.ExecDDL(sql) }

// ExecDML executes a raw parameterized statement and returns affected
// rows.
func (s *Store) ExecDML(sql string, params []any) (int64, error) {
	return s.inner.ExecDML(sql, params)
}

// Close shuts the engine down.
func (s *Store) Close() { s.inner.Close() }
