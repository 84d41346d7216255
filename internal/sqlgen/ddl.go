// Package sqlgen generates dialect-specific DDL and DML from the schema
// model. Generation is pure: functions return SQL text and bind plans and
// never touch a connection.
package sqlgen

import (
	"strings"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// sqlType maps a property type to its column type for the dialect.
func sqlType(t types.PropType, d types.Dialect) string {
	if d == types.Postgres {
		switch t {
		case types.String:
			return "TEXT"
		case types.Integer:
			return "INTEGER"
		case types.Number:
			return "NUMERIC"
		case types.Bool:
			return "BOOLEAN"
		case types.Date:
			return "DATE"
		case types.Time:
			return "TIME"
		case types.DateTime:
			return "TIMESTAMP"
		case types.Timestamp:
			return "TIMESTAMP WITH TIME ZONE"
		case types.Binary:
			return "BYTEA"
		case types.Json:
			return "JSON"
		}
		return "TEXT"
	}
	switch t {
	case types.String:
		return "TEXT"
	case types.Integer:
		return "INTEGER"
	case types.Number:
		return "REAL"
	case types.Bool:
		return "BOOLEAN"
	case types.Date:
		return "DATE"
	case types.Time:
		return "TIME"
	case types.DateTime:
		return "TIMESTAMP"
	case types.Timestamp:
		return "TEXT"
	case types.Binary:
		return "BLOB"
	case types.Json:
		return "TEXT"
	}
	return "TEXT"
}

// escapeSingleQuotes doubles single quotes for SQL string literals.
func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// sqlDefault renders a property's DEFAULT clause, or "" when none.
func sqlDefault(def types.Default) string {
	switch def.Kind {
	case types.DefaultString:
		return " DEFAULT '" + escapeSingleQuotes(def.Literal) + "'"
	case types.DefaultBoolean, types.DefaultNumber, types.DefaultRaw:
		return " DEFAULT " + def.Literal
	default:
		return ""
	}
}

// columnDef renders one column definition without trailing separator.
func columnDef(p *types.Property, d types.Dialect) string {
	var b strings.Builder
	b.WriteString(p.Name)
	b.WriteByte(' ')
	b.WriteString(sqlType(p.Type, d))
	if p.Required {
		b.WriteString(" NOT NULL")
	}
	if p.Unique {
		b.WriteString(" UNIQUE")
	}
	b.WriteString(sqlDefault(p.Default))
	return b.String()
}

// DDL emits the CREATE TABLE batch for a schema: the table with columns
// in property insertion order and a PRIMARY KEY clause, followed by one
// CREATE INDEX statement per indexed non-PK property and per composite
// index. Every statement is idempotent (IF NOT EXISTS).
func DDL(s *types.Schema, d types.Dialect) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(s.Name)
	b.WriteString("(\n")

	var pkCols []string
	for i := range s.Properties {
		p := &s.Properties[i]
		b.WriteString(" ")
		b.WriteString(columnDef(p, d))
		if p.IsID {
			pkCols = append(pkCols, p.Name)
		}
		if i+1 < len(s.Properties) {
			b.WriteString(",\n")
		} else {
			b.WriteString("\n")
		}
	}

	if len(pkCols) == 0 {
		if pk, ok := s.PK(); ok {
			pkCols = append(pkCols, pk.Name)
		}
	}
	if len(pkCols) > 0 {
		b.WriteString(", PRIMARY KEY(")
		b.WriteString(strings.Join(pkCols, ", "))
		b.WriteString(")\n")
	}
	b.WriteString(");")

	for i := range s.Properties {
		p := &s.Properties[i]
		if p.Indexed && !p.IsID {
			b.WriteByte('\n')
			b.WriteString(indexDDL(s.Name, []string{p.Name}, p.Unique, p.IndexName))
		}
	}
	for _, idx := range s.Indexes {
		b.WriteByte('\n')
		b.WriteString(indexDDL(s.Name, idx.Fields, idx.Unique, idx.Name))
	}
	return b.String()
}

// indexDDL renders one CREATE INDEX IF NOT EXISTS statement. An index
// without a declared name is named <table>_<fields joined by _>_idx.
func indexDDL(table string, fields []string, unique bool, name string) string {
	if name == "" {
		name = table + "_" + strings.Join(fields, "_") + "_idx"
	}
	var b strings.Builder
	b.WriteString("CREATE ")
	if unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX IF NOT EXISTS ")
	b.WriteString(name)
	b.WriteString(" ON ")
	b.WriteString(table)
	b.WriteString("(")
	b.WriteString(strings.Join(fields, ", "))
	b.WriteString(");")
	return b.String()
}
