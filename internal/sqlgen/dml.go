package sqlgen

import (
	"strconv"
	"strings"

	"github.com/mesh-intelligence/strata/internal/jsondoc"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// BindSlot is one entry of a statement's parameter-binding plan: which
// column the 1-based placeholder index carries and its declared type.
type BindSlot struct {
	Index  int
	Column string
	Type   types.PropType
	IsPK   bool
}

// Statement is generated SQL plus its ordered bind plan.
type Statement struct {
	SQL            string
	ExpectedParams int
	Bind           []BindSlot
}

// ph renders the dialect's 1-based placeholder.
func ph(d types.Dialect, i int) string {
	if d == types.Postgres {
		return "$" + strconv.Itoa(i)
	}
	return "?" + strconv.Itoa(i)
}

// sample extracts the column-defining object from a payload. An array's
// first object defines the column set for every row.
func sample(payload jsondoc.Value) (*jsondoc.Object, error) {
	if arr, ok := payload.([]jsondoc.Value); ok && len(arr) == 0 {
		return nil, types.ErrEmptyPayload
	}
	obj, ok := jsondoc.Sample(payload)
	if !ok {
		return nil, types.ErrEmptyPayload
	}
	return obj, nil
}

// presentColumns returns the schema properties named by the sample, in
// JSON key order. Keys not declared in the schema are ignored.
func presentColumns(s *types.Schema, obj *jsondoc.Object) []*types.Property {
	var cols []*types.Property
	for _, key := range obj.Keys() {
		if p, ok := s.Property(key); ok {
			cols = append(cols, p)
		}
	}
	return cols
}

// Insert generates the INSERT statement for a payload. Columns follow the
// sample's key order; when the PK is absent from the sample it is appended
// as the last column so a synthesized id binds in the trailing slot.
func Insert(s *types.Schema, payload jsondoc.Value, d types.Dialect) (Statement, error) {
	obj, err := sample(payload)
	if err != nil {
		return Statement{}, err
	}

	pk, hasPK := s.PK()
	cols := presentColumns(s, obj)

	pkPresent := false
	if hasPK {
		for _, c := range cols {
			if c.Name == pk.Name {
				pkPresent = true
				break
			}
		}
		if !pkPresent {
			cols = append(cols, pk)
		}
	}
	if len(cols) == 0 {
		return Statement{}, types.ErrEmptyPayload
	}

	names := make([]string, len(cols))
	vals := make([]string, len(cols))
	bind := make([]BindSlot, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		vals[i] = ph(d, i+1)
		bind[i] = BindSlot{Index: i + 1, Column: c.Name, Type: c.Type, IsPK: hasPK && c.Name == pk.Name}
	}

	sql := "INSERT INTO " + s.Name + " (" + strings.Join(names, ", ") +
		") VALUES (" + strings.Join(vals, ", ") + ");"
	return Statement{SQL: sql, ExpectedParams: len(cols), Bind: bind}, nil
}

// Upsert generates INSERT .. ON CONFLICT for a payload carrying its PK.
// The SET clause assigns excluded.<col> for every non-PK present column;
// a payload holding only the PK degrades to DO NOTHING.
func Upsert(s *types.Schema, payload jsondoc.Value, d types.Dialect) (Statement, error) {
	obj, err := sample(payload)
	if err != nil {
		return Statement{}, err
	}
	pk, ok := s.PK()
	if !ok {
		return Statement{}, types.ErrNoPk
	}

	// Same column list as INSERT: an absent PK is appended last.
	cols := presentColumns(s, obj)
	pkPresent := false
	for _, c := range cols {
		if c.Name == pk.Name {
			pkPresent = true
			break
		}
	}
	if !pkPresent {
		cols = append(cols, pk)
	}
	if len(cols) == 0 {
		return Statement{}, types.ErrEmptyPayload
	}

	names := make([]string, len(cols))
	vals := make([]string, len(cols))
	bind := make([]BindSlot, len(cols))
	var sets []string
	for i, c := range cols {
		names[i] = c.Name
		vals[i] = ph(d, i+1)
		bind[i] = BindSlot{Index: i + 1, Column: c.Name, Type: c.Type, IsPK: c.Name == pk.Name}
		if c.Name != pk.Name {
			sets = append(sets, c.Name+" = excluded."+c.Name)
		}
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.Name)
	b.WriteString(" (")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(vals, ", "))
	b.WriteString(") ON CONFLICT(")
	b.WriteString(pk.Name)
	if len(sets) == 0 {
		b.WriteString(") DO NOTHING;")
	} else {
		b.WriteString(") DO UPDATE SET ")
		b.WriteString(strings.Join(sets, ", "))
		b.WriteString(";")
	}
	return Statement{SQL: b.String(), ExpectedParams: len(cols), Bind: bind}, nil
}

// Update generates UPDATE .. SET for the sample's non-PK columns, with
// the PK bound in the final (highest-numbered) slot for the WHERE clause.
func Update(s *types.Schema, payload jsondoc.Value, d types.Dialect) (Statement, error) {
	obj, err := sample(payload)
	if err != nil {
		return Statement{}, err
	}
	pk, ok := s.PK()
	if !ok {
		return Statement{}, types.ErrNoPk
	}

	var sets []string
	var bind []BindSlot
	i := 0
	for _, c := range presentColumns(s, obj) {
		if c.Name == pk.Name {
			continue
		}
		i++
		sets = append(sets, c.Name+" = "+ph(d, i))
		bind = append(bind, BindSlot{Index: i, Column: c.Name, Type: c.Type})
	}
	if len(sets) == 0 {
		return Statement{}, types.ErrNoUpdatableFields
	}

	pkIdx := i + 1
	bind = append(bind, BindSlot{Index: pkIdx, Column: pk.Name, Type: pk.Type, IsPK: true})
	sql := "UPDATE " + s.Name + " SET " + strings.Join(sets, ", ") +
		" WHERE " + pk.Name + " = " + ph(d, pkIdx) + ";"
	return Statement{SQL: sql, ExpectedParams: pkIdx, Bind: bind}, nil
}

// Delete generates DELETE by PK; the PK is the only parameter.
func Delete(s *types.Schema, d types.Dialect) (Statement, error) {
	pk, ok := s.PK()
	if !ok {
		return Statement{}, types.ErrNoPk
	}
	sql := "DELETE FROM " + s.Name + " WHERE " + pk.Name + " = " + ph(d, 1) + ";"
	return Statement{
		SQL:            sql,
		ExpectedParams: 1,
		Bind:           []BindSlot{{Index: 1, Column: pk.Name, Type: pk.Type, IsPK: true}},
	}, nil
}
