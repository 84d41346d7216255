package types

// Dialect selects the SQL engine the generators and drivers target.
// The set is closed: Strata speaks exactly two dialects.
type Dialect int

const (
	// SQLite is the embedded, file-backed engine.
	SQLite Dialect = iota
	// Postgres is the networked engine.
	Postgres
)

// String returns the dialect name used in configuration and DSNs.
func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// ParseDialect maps a configuration string to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "sqlite":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	default:
		return SQLite, ErrDialectUnknown
	}
}

// PropType is the declared type of a schema property.
type PropType int

const (
	String PropType = iota
	Integer
	Number
	Bool
	Date
	Time
	DateTime
	Timestamp
	Binary
	Json
)

// propTypeNames maps JSON-Schema type strings to PropType.
var propTypeNames = map[string]PropType{
	"string":    String,
	"integer":   Integer,
	"number":    Number,
	"boolean":   Bool,
	"date":      Date,
	"time":      Time,
	"datetime":  DateTime,
	"timestamp": Timestamp,
	"binary":    Binary,
	"json":      Json,
}

// ParsePropType maps a JSON-Schema type string to a PropType.
// Unknown strings return ErrUnknownType.
func ParsePropType(s string) (PropType, error) {
	t, ok := propTypeNames[s]
	if !ok {
		return String, ErrUnknownType
	}
	return t, nil
}

// Numeric reports whether values of this type bind as numbers.
func (t PropType) Numeric() bool {
	return t == Integer || t == Number
}

// IdKind selects the generation strategy for a primary key property.
type IdKind int

const (
	// UUIDv7 generates a time-ordered UUID string client-side.
	UUIDv7 IdKind = iota
	// HighLow generates a sortable textual identifier client-side.
	HighLow
	// Snowflake generates a 64-bit time-ordered integer client-side.
	Snowflake
	// DBSerial delegates to the engine using one global sequence.
	DBSerial
	// TBSerial delegates to the engine using one sequence per schema.
	TBSerial
)

// ParseIdKind maps an idkind string to an IdKind. Unrecognized strings
// fall back to UUIDv7, the default strategy.
func ParseIdKind(s string) IdKind {
	switch s {
	case "highlow":
		return HighLow
	case "snowflake":
		return Snowflake
	case "dbserial":
		return DBSerial
	case "tbserial":
		return TBSerial
	default:
		return UUIDv7
	}
}

// DefaultKind classifies how a property default renders into DDL.
type DefaultKind int

const (
	// DefaultNone means the column has no DEFAULT clause.
	DefaultNone DefaultKind = iota
	// DefaultString renders single-quoted with escaping.
	DefaultString
	// DefaultBoolean renders as a true/false literal.
	DefaultBoolean
	// DefaultNumber renders as a numeric literal.
	DefaultNumber
	// DefaultRaw renders verbatim, e.g. NULL or datetime('now').
	DefaultRaw
)

// Default holds a property's default value classification and literal.
type Default struct {
	Kind    DefaultKind
	Literal string
}

// Property describes one column-like member of a Schema.
type Property struct {
	Name       string
	SchemaName string
	Type       PropType
	IsID       bool
	IDKind     IdKind
	Required   bool
	Encoding   string
	Default    Default
	Indexed    bool
	IndexType  string
	Unique     bool
	IndexName  string
}

// CompositeIndex is a top-level multi-column index declaration.
type CompositeIndex struct {
	Fields []string
	Type   string
	Unique bool
	Name   string
}

// Schema is the internal representation of a table-like schema.
// Properties preserve JSON key order from load time; that order drives
// both column order in DDL and parameter order in DML.
type Schema struct {
	ID         int64
	Name       string
	Version    int
	Applied    bool
	SourceJSON string
	Properties []Property
	Indexes    []CompositeIndex
	Parent     *Schema

	byName map[string]int
}

// Property returns the named property, if declared.
func (s *Schema) Property(name string) (*Property, bool) {
	if s.byName == nil {
		s.reindex()
	}
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return &s.Properties[i], true
}

// AddProperty appends a property, preserving insertion order.
// Returns ErrDuplicateField if the name is already declared.
func (s *Schema) AddProperty(p Property) error {
	if s.byName == nil {
		s.reindex()
	}
	if _, ok := s.byName[p.Name]; ok {
		return ErrDuplicateField
	}
	p.SchemaName = s.Name
	s.byName[p.Name] = len(s.Properties)
	s.Properties = append(s.Properties, p)
	return nil
}

// PK returns the primary key property: the property with IsID set, or
// failing that a property named "id". Returns false if neither exists.
func (s *Schema) PK() (*Property, bool) {
	for i := range s.Properties {
		if s.Properties[i].IsID {
			return &s.Properties[i], true
		}
	}
	return s.Property("id")
}

func (s *Schema) reindex() {
	s.byName = make(map[string]int, len(s.Properties))
	for i := range s.Properties {
		s.byName[s.Properties[i].Name] = i
	}
}

// Op identifies a write operation for notification and audit hooks.
type Op int

const (
	OpInsert Op = iota
	OpUpsert
	OpUpdate
	OpDelete
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpsert:
		return "upsert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}
