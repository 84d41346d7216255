// Package schema loads JSON-Schema documents into the internal model.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/strata/internal/jsondoc"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// Load parses a JSON-Schema document into a Schema. The source text is
// retained on the schema for catalog persistence.
func Load(data []byte) (*types.Schema, error) {
	doc, err := jsondoc.ParseObject(data)
	if err != nil {
		return nil, fmt.Errorf("parse schema document: %w", err)
	}
	return LoadDocument(doc, string(data))
}

// LoadDocument hydrates a Schema from a parsed document. Property order
// matches the document's key order.
func LoadDocument(doc *jsondoc.Object, source string) (*types.Schema, error) {
	props, ok := doc.Get("properties")
	if !ok {
		return nil, types.ErrMalformedSchema
	}
	propObj, ok := props.(*jsondoc.Object)
	if !ok {
		return nil, types.ErrMalformedSchema
	}

	s := &types.Schema{
		Name:       documentName(doc),
		Version:    intOr(doc, "version", 1),
		SourceJSON: source,
	}

	required := stringSet(doc, "required")

	for _, key := range propObj.Keys() {
		raw, _ := propObj.Get(key)
		spec, ok := raw.(*jsondoc.Object)
		if !ok {
			return nil, fmt.Errorf("property %q: %w", key, types.ErrMalformedSchema)
		}
		p, err := loadProperty(key, spec)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
		p.Required = required[key]
		if err := s.AddProperty(p); err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
	}

	if err := loadIndexes(doc, s); err != nil {
		return nil, err
	}
	return s, nil
}

// documentName resolves the schema name: "name", else "title", else the
// last path segment of "$id", else "unnamed".
func documentName(doc *jsondoc.Object) string {
	if name := stringOr(doc, "name", ""); name != "" {
		return name
	}
	if title := stringOr(doc, "title", ""); title != "" {
		return title
	}
	if id := stringOr(doc, "$id", ""); id != "" {
		seg := id[strings.LastIndexByte(id, '/')+1:]
		seg = strings.TrimSuffix(seg, ".json")
		if seg != "" {
			return seg
		}
	}
	return "unnamed"
}

func loadProperty(name string, spec *jsondoc.Object) (types.Property, error) {
	p := types.Property{Name: name}

	t, err := types.ParsePropType(stringOr(spec, "type", "string"))
	if err != nil {
		return p, err
	}
	p.Type = t

	p.IsID = boolOr(spec, "idprop", false)
	p.IDKind = types.ParseIdKind(stringOr(spec, "idkind", ""))
	p.Encoding = stringOr(spec, "encoding", "")
	p.Indexed = boolOr(spec, "index", false)
	p.IndexType = stringOr(spec, "indexType", "")
	p.Unique = boolOr(spec, "unique", false)
	p.IndexName = stringOr(spec, "indexName", "")
	p.Default = classifyDefault(spec)

	return p, nil
}

// classifyDefault maps the "default" member into a rendered-kind pair:
// string literals are quoted, booleans and numbers are emitted as-is,
// null becomes a raw NULL, and structured values are embedded verbatim
// as JSON text.
func classifyDefault(spec *jsondoc.Object) types.Default {
	// "defaultRaw" carries a SQL expression emitted verbatim, e.g.
	// CURRENT_TIMESTAMP; a plain "default" string is quoted text.
	if expr := stringOr(spec, "defaultRaw", ""); expr != "" {
		return types.Default{Kind: types.DefaultRaw, Literal: expr}
	}
	raw, ok := spec.Get("default")
	if !ok {
		return types.Default{Kind: types.DefaultNone}
	}
	switch v := raw.(type) {
	case string:
		return types.Default{Kind: types.DefaultString, Literal: v}
	case bool:
		lit := "false"
		if v {
			lit = "true"
		}
		return types.Default{Kind: types.DefaultBoolean, Literal: lit}
	case json.Number:
		return types.Default{Kind: types.DefaultNumber, Literal: v.String()}
	case nil:
		return types.Default{Kind: types.DefaultRaw, Literal: "NULL"}
	case *jsondoc.Object, []jsondoc.Value:
		return types.Default{Kind: types.DefaultRaw, Literal: jsondoc.Dump(v)}
	default:
		return types.Default{Kind: types.DefaultNone}
	}
}

func loadIndexes(doc *jsondoc.Object, s *types.Schema) error {
	raw, ok := doc.Get("indexes")
	if !ok {
		return nil
	}
	arr, ok := raw.([]jsondoc.Value)
	if !ok {
		return fmt.Errorf("indexes: %w", types.ErrMalformedSchema)
	}
	for _, e := range arr {
		spec, ok := e.(*jsondoc.Object)
		if !ok {
			return fmt.Errorf("indexes: %w", types.ErrMalformedSchema)
		}
		idx := types.CompositeIndex{
			Type:   stringOr(spec, "type", ""),
			Unique: boolOr(spec, "unique", false),
			Name:   stringOr(spec, "indexName", ""),
		}
		if fieldsRaw, ok := spec.Get("fields"); ok {
			fields, ok := fieldsRaw.([]jsondoc.Value)
			if !ok {
				return fmt.Errorf("indexes: %w", types.ErrMalformedSchema)
			}
			for _, f := range fields {
				name, ok := f.(string)
				if !ok {
					return fmt.Errorf("indexes: %w", types.ErrMalformedSchema)
				}
				idx.Fields = append(idx.Fields, name)
			}
		}
		s.Indexes = append(s.Indexes, idx)
	}
	return nil
}

// Document accessor helpers. Absent or mistyped members return the
// fallback, matching the tolerant reads the loader performs everywhere.

func stringOr(o *jsondoc.Object, key, fallback string) string {
	if v, ok := o.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

func boolOr(o *jsondoc.Object, key string, fallback bool) bool {
	if v, ok := o.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

func intOr(o *jsondoc.Object, key string, fallback int) int {
	if v, ok := o.Get(key); ok {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
		}
	}
	return fallback
}

func stringSet(o *jsondoc.Object, key string) map[string]bool {
	set := make(map[string]bool)
	if v, ok := o.Get(key); ok {
		if arr, ok := v.([]jsondoc.Value); ok {
			for _, e := range arr {
				if s, ok := e.(string); ok {
					set[s] = true
				}
			}
		}
	}
	return set
}
