package driver

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/strata/internal/jsondoc"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// bindSQLite converts a JSON value per SQLite conventions: booleans as
// integers 1/0, binary as BLOB, date/time as ISO-8601 text, JSON as its
// canonical serialization.
func bindSQLite(v jsondoc.Value, t types.PropType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case types.String:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(v, t)
		}
		return s, nil
	case types.Integer:
		n, err := asInt64(v)
		if err != nil {
			return nil, mismatch(v, t)
		}
		return n, nil
	case types.Number:
		f, err := asFloat64(v)
		if err != nil {
			return nil, mismatch(v, t)
		}
		return f, nil
	case types.Bool:
		b, ok := asBool(v)
		if !ok {
			return nil, mismatch(v, t)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case types.Date, types.Time, types.DateTime, types.Timestamp:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(v, t)
		}
		return s, nil
	case types.Json:
		return jsonText(v), nil
	case types.Binary:
		raw, err := binaryBytes(v)
		if err != nil {
			return nil, err
		}
		return raw, nil
	default:
		return nil, mismatch(v, t)
	}
}

// bindPostgres converts a JSON value per Postgres conventions: booleans
// as true/false text, binary as \x-prefixed hex text, date/time as
// ISO-8601 text the server casts.
func bindPostgres(v jsondoc.Value, t types.PropType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case types.String:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(v, t)
		}
		return s, nil
	case types.Integer:
		n, err := asInt64(v)
		if err != nil {
			return nil, mismatch(v, t)
		}
		return n, nil
	case types.Number:
		f, err := asFloat64(v)
		if err != nil {
			return nil, mismatch(v, t)
		}
		return f, nil
	case types.Bool:
		b, ok := asBool(v)
		if !ok {
			return nil, mismatch(v, t)
		}
		if b {
			return "true", nil
		}
		return "false", nil
	case types.Date, types.Time, types.DateTime, types.Timestamp:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(v, t)
		}
		return s, nil
	case types.Json:
		return jsonText(v), nil
	case types.Binary:
		raw, err := binaryBytes(v)
		if err != nil {
			return nil, err
		}
		return `\x` + hex.EncodeToString(raw), nil
	default:
		return nil, mismatch(v, t)
	}
}

func mismatch(v jsondoc.Value, t types.PropType) error {
	return fmt.Errorf("%w: %T for type %d", types.ErrBindTypeMismatch, v, t)
}

func asInt64(v jsondoc.Value) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}

func asFloat64(v jsondoc.Value) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func asBool(v jsondoc.Value) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case json.Number:
		i, err := b.Int64()
		if err != nil {
			return false, false
		}
		return i != 0, true
	default:
		return false, false
	}
}

// jsonText serializes a JSON-typed bind: strings pass through as-is,
// structured values use canonical serialization.
func jsonText(v jsondoc.Value) string {
	if s, ok := v.(string); ok {
		return s
	}
	return jsondoc.Dump(v)
}

// binaryBytes decodes a binary payload carried as a JSON string.
// Base64 is the wire encoding; hex is accepted as a fallback.
func binaryBytes(v jsondoc.Value) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, mismatch(v, types.Binary)
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	if raw, err := hex.DecodeString(s); err == nil {
		return raw, nil
	}
	return []byte(s), nil
}
