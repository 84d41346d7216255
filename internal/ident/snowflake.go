package ident

import (
	"sync"
	"time"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// Snowflake bit layout: 41 bits of epoch-adjusted milliseconds, 5 bits
// datacenter, 5 bits worker, 12 bits per-millisecond sequence.
const (
	snowflakeEpoch = int64(1288834974657)

	sequenceBits     = 12
	workerIDBits     = 5
	datacenterIDBits = 5

	maxWorkerID     = (1 << workerIDBits) - 1
	maxDatacenterID = (1 << datacenterIDBits) - 1
	sequenceMask    = (1 << sequenceBits) - 1

	workerIDShift     = sequenceBits
	datacenterIDShift = sequenceBits + workerIDBits
	timestampShift    = sequenceBits + workerIDBits + datacenterIDBits
)

// SnowflakeGenerator produces strictly increasing 64-bit ids. Access is
// serialized; the generator refuses to emit while the clock is behind
// the last observed timestamp.
type SnowflakeGenerator struct {
	mu            sync.Mutex
	workerID      int64
	datacenterID  int64
	lastTimestamp int64
	sequence      int64

	// now is swappable for tests.
	now func() int64
}

// NewSnowflakeGenerator validates the 5-bit node identity fields.
func NewSnowflakeGenerator(workerID, datacenterID int) (*SnowflakeGenerator, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, types.ErrWorkerIDOutOfRange
	}
	if datacenterID < 0 || datacenterID > maxDatacenterID {
		return nil, types.ErrDatacenterOutOfRange
	}
	return &SnowflakeGenerator{
		workerID:     int64(workerID),
		datacenterID: int64(datacenterID),
		now:          func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Next returns a new id. Within one millisecond the 12-bit sequence
// increments; when it saturates the generator spins to the next
// millisecond. A clock regress returns ErrClockRegress.
func (g *SnowflakeGenerator) Next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	if ts < g.lastTimestamp {
		return 0, types.ErrClockRegress
	}

	if ts == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			ts = g.waitNextMillis(g.lastTimestamp)
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = ts

	id := ((ts - snowflakeEpoch) << timestampShift) |
		(g.datacenterID << datacenterIDShift) |
		(g.workerID << workerIDShift) |
		g.sequence
	return id, nil
}

// waitNextMillis spins until the clock advances past last.
func (g *SnowflakeGenerator) waitNextMillis(last int64) int64 {
	ts := g.now()
	for ts <= last {
		ts = g.now()
	}
	return ts
}
