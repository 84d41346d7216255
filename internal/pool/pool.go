// Package pool provides a bounded, intent-tagged pool of driver
// connections. Callers lease connections with a scoped handle; leases
// release their connection back on Release unless the pool has shut
// down, in which case the connection is closed instead.
package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/mesh-intelligence/strata/internal/driver"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// Intent tags what a lease will be used for. With writer priority
// enabled, waiting writers gate reader acquisition.
type Intent int

const (
	Read Intent = iota
	Write
)

// Policy bounds acquisition and lease lifetimes.
type Policy struct {
	// AcquireTimeout caps how long Acquire blocks when no timeout is
	// passed explicitly.
	AcquireTimeout time.Duration
	// MaxLeaseTime is carried on the policy; the pool does not read it and
	// does not limit how long a lease is held.
	MaxLeaseTime time.Duration
	// WriterPriority makes reader acquisition yield while writers wait.
	WriterPriority bool
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Size    int
	InUse   int
	Waiters int
}

// Pool owns a fixed set of connections created up front from a factory.
// The free list is guarded by a mutex; waiters block on a broadcast
// channel that is replaced whenever a connection frees up or the pool
// shuts down.
type Pool struct {
	mu             sync.Mutex
	free           []driver.Conn
	inUse          int
	waiters        int
	waitingWriters int
	shutdown       bool
	signal         chan struct{}

	capacity int
	dsn      string
	policy   Policy
}

// New builds a pool of capacity connections, each connected to dsn.
// A factory error or connect error closes everything already opened.
func New(capacity int, dsn string, factory func() driver.Conn, policy Policy) (*Pool, error) {
	if policy.AcquireTimeout <= 0 {
		policy.AcquireTimeout = types.DefaultAcquireTimeout
	}
	p := &Pool{
		capacity: capacity,
		dsn:      dsn,
		policy:   policy,
		signal:   make(chan struct{}),
	}
	for i := 0; i < capacity; i++ {
		conn := factory()
		if conn == nil {
			p.closeAll()
			return nil, fmt.Errorf("pool: factory returned nil connection")
		}
		if err := conn.Connect(dsn); err != nil {
			p.closeAll()
			return nil, fmt.Errorf("pool: connect: %w", err)
		}
		p.free = append(p.free, conn)
	}
	return p, nil
}

// Acquire leases a connection for the given intent. A zero timeout
// falls back to the policy's acquire timeout. Returns ErrAcquireTimeout
// when the wait expires and ErrPoolShutdown once Shutdown has run.
func (p *Pool) Acquire(intent Intent, timeout time.Duration) (*Lease, error) {
	if timeout <= 0 {
		timeout = p.policy.AcquireTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	p.mu.Lock()
	p.waiters++
	if intent == Write {
		p.waitingWriters++
	}
	defer func() {
		p.waiters--
		if intent == Write {
			p.waitingWriters--
		}
		p.mu.Unlock()
	}()

	for {
		if p.shutdown {
			return nil, types.ErrPoolShutdown
		}
		if len(p.free) > 0 && p.mayAcquire(intent) {
			conn := p.free[len(p.free)-1]
			p.free = p.free[:len(p.free)-1]
			p.inUse++
			return &Lease{pool: p, conn: conn, intent: intent}, nil
		}

		ch := p.signal
		p.mu.Unlock()
		select {
		case <-ch:
			p.mu.Lock()
		case <-deadline.C:
			p.mu.Lock()
			return nil, types.ErrAcquireTimeout
		}
	}
}

// mayAcquire applies writer-priority fairness: a reader yields while
// writers are queued. The caller holds p.mu. The acquiring writer still
// counts itself among waitingWriters here, so writers always pass.
func (p *Pool) mayAcquire(intent Intent) bool {
	if !p.policy.WriterPriority || intent == Write {
		return true
	}
	return p.waitingWriters == 0
}

// release returns a connection from a lease. After shutdown the
// connection is closed instead of recycled.
func (p *Pool) release(conn driver.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inUse > 0 {
		p.inUse--
	}
	if p.shutdown {
		_ = conn.Disconnect()
		return
	}
	p.free = append(p.free, conn)
	p.broadcast()
}

// Shutdown is terminal: it wakes every waiter with ErrPoolShutdown and
// closes the free connections. Outstanding leases stay valid; their
// connections are closed on release.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return
	}
	p.shutdown = true
	for _, conn := range p.free {
		_ = conn.Disconnect()
	}
	p.free = nil
	p.broadcast()
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Size: p.capacity, InUse: p.inUse, Waiters: p.waiters}
}

// broadcast wakes every waiter by closing and replacing the signal
// channel. The caller holds p.mu.
func (p *Pool) broadcast() {
	close(p.signal)
	p.signal = make(chan struct{})
}

func (p *Pool) closeAll() {
	for _, conn := range p.free {
		_ = conn.Disconnect()
	}
	p.free = nil
}

// Lease is a scoped handle over a pooled connection. It must not be
// copied; exactly one Release returns the connection.
type Lease struct {
	pool     *Pool
	conn     driver.Conn
	intent   Intent
	released bool
}

// Conn exposes the leased connection.
func (l *Lease) Conn() driver.Conn { return l.conn }

// Intent returns the intent the lease was acquired with.
func (l *Lease) Intent() Intent { return l.intent }

// Release returns the connection to the pool. Idempotent.
func (l *Lease) Release() {
	if l.released || l.conn == nil {
		return
	}
	l.released = true
	l.pool.release(l.conn)
	l.conn = nil
}
