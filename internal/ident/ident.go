// Package ident produces primary-key values for the write pipeline.
// UUIDv7, HighLow, and Snowflake ids are generated client-side; serial
// kinds delegate to the engine through a sequence source.
package ident

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/strata/internal/jsondoc"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// SequenceSource yields the next value of a named sequence. Driver
// connections satisfy this.
type SequenceSource interface {
	NextValue(sequence string) (int64, error)
}

// GlobalSequence is the sequence name DBSerial ids draw from.
const GlobalSequence = "strata_seq"

// Suite holds the generators for every IdKind.
type Suite struct {
	snowflake *SnowflakeGenerator
	highlow   *HighLowGenerator
}

// NewSuite constructs a generator suite. Worker and datacenter ids must
// fit the Snowflake 5-bit fields.
func NewSuite(workerID, datacenterID int) (*Suite, error) {
	sf, err := NewSnowflakeGenerator(workerID, datacenterID)
	if err != nil {
		return nil, err
	}
	return &Suite{snowflake: sf, highlow: NewHighLowGenerator()}, nil
}

// Next synthesizes a primary-key value for prop. The produced value's
// type must match the column type: textual kinds require a String PK,
// integer kinds a numeric PK.
func (g *Suite) Next(prop *types.Property, schemaName string, seq SequenceSource) (jsondoc.Value, error) {
	switch prop.IDKind {
	case types.UUIDv7:
		if prop.Type != types.String {
			return nil, types.ErrIDTypeMismatch
		}
		return NewUUIDv7(), nil
	case types.HighLow:
		if prop.Type != types.String {
			return nil, types.ErrIDTypeMismatch
		}
		return g.highlow.Next(), nil
	case types.Snowflake:
		if !prop.Type.Numeric() {
			return nil, types.ErrIDTypeMismatch
		}
		id, err := g.snowflake.Next()
		if err != nil {
			return nil, err
		}
		return json.Number(strconv.FormatInt(id, 10)), nil
	case types.DBSerial, types.TBSerial:
		if !prop.Type.Numeric() {
			return nil, types.ErrIDTypeMismatch
		}
		name := GlobalSequence
		if prop.IDKind == types.TBSerial {
			name = schemaName + "_seq"
		}
		id, err := seq.NextValue(name)
		if err != nil {
			return nil, err
		}
		return json.Number(strconv.FormatInt(id, 10)), nil
	default:
		return nil, types.ErrIDTypeMismatch
	}
}

// NewUUIDv7 returns a time-ordered UUID string. Falls back to a random
// UUID if the monotonic source fails.
func NewUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
