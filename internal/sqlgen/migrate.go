package sqlgen

import (
	"strings"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// MigratePlan computes the forward DDL batch that evolves a table from
// one schema version to the next: added and dropped columns, default and
// nullability changes, and index additions and removals. Only DDL
// evolution is planned; data is never rewritten.
func MigratePlan(from, to *types.Schema, d types.Dialect) []string {
	var stmts []string

	// Added and altered columns, in the new schema's property order.
	for i := range to.Properties {
		nf := &to.Properties[i]
		of, existed := propByName(from, nf.Name)
		if !existed {
			stmts = append(stmts, "ALTER TABLE "+to.Name+" ADD COLUMN "+columnDef(nf, d)+";")
			continue
		}
		if nf.Type != of.Type {
			stmts = append(stmts, "ALTER TABLE "+to.Name+" ALTER COLUMN "+nf.Name+
				" TYPE "+sqlType(nf.Type, d)+";")
		}
		if nf.Default != of.Default {
			def := strings.TrimPrefix(sqlDefault(nf.Default), " DEFAULT ")
			if def == "" {
				def = "NULL"
			}
			stmts = append(stmts, "ALTER TABLE "+to.Name+" ALTER COLUMN "+nf.Name+
				" SET DEFAULT "+def+";")
		}
		if nf.Required != of.Required {
			if nf.Required {
				stmts = append(stmts, "ALTER TABLE "+to.Name+" ALTER COLUMN "+nf.Name+" SET NOT NULL;")
			} else {
				stmts = append(stmts, "ALTER TABLE "+to.Name+" ALTER COLUMN "+nf.Name+" DROP NOT NULL;")
			}
		}
	}

	// Dropped columns.
	for i := range from.Properties {
		of := &from.Properties[i]
		if _, kept := propByName(to, of.Name); !kept {
			stmts = append(stmts, "ALTER TABLE "+to.Name+" DROP COLUMN "+of.Name+";")
		}
	}

	// Composite index diff, keyed by shape.
	oldIdx := indexKeys(from)
	newIdx := indexKeys(to)
	for key, idx := range newIdx {
		if _, ok := oldIdx[key]; !ok {
			stmts = append(stmts, indexDDL(to.Name, idx.Fields, idx.Unique, idx.Name))
		}
	}
	for key, idx := range oldIdx {
		if _, ok := newIdx[key]; !ok && idx.Name != "" {
			stmts = append(stmts, "DROP INDEX "+idx.Name+";")
		}
	}

	return stmts
}

func propByName(s *types.Schema, name string) (*types.Property, bool) {
	if s == nil {
		return nil, false
	}
	return s.Property(name)
}

// indexKeys maps each composite index to a shape key so renames and
// reorders diff cleanly.
func indexKeys(s *types.Schema) map[string]types.CompositeIndex {
	m := make(map[string]types.CompositeIndex)
	if s == nil {
		return m
	}
	for _, idx := range s.Indexes {
		key := idx.Name + ":" + strings.Join(idx.Fields, ",") + ":" + idx.Type
		if idx.Unique {
			key += ":U"
		}
		m[key] = idx
	}
	return m
}
