package pool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mesh-intelligence/strata/internal/driver"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// fakeConn is a no-op driver connection for pool tests.
type fakeConn struct {
	connected    bool
	disconnected atomic.Bool
	inTx         bool
}

func (c *fakeConn) Connect(dsn string) error { c.connected = true; return nil }
func (c *fakeConn) Disconnect() error        { c.disconnected.Store(true); return nil }
func (c *fakeConn) Begin() error             { c.inTx = true; return nil }
func (c *fakeConn) Commit() error {
	if !c.inTx {
		return driver.ErrNoTransaction
	}
	c.inTx = false
	return nil
}
func (c *fakeConn) Rollback()  { c.inTx = false }
func (c *fakeConn) InTx() bool { return c.inTx }
func (c *fakeConn) Prepare(query string, expectedParams int) (driver.Statement, error) {
	return nil, nil
}
func (c *fakeConn) ExecDDL(query string) error                      { return nil }
func (c *fakeConn) ExecDML(query string, params []any) (int64, error) { return 0, nil }
func (c *fakeConn) NextValue(sequence string) (int64, error)        { return 0, nil }

var _ driver.Conn = (*fakeConn)(nil)

func newTestPool(t *testing.T, capacity int, policy Policy) *Pool {
	t.Helper()
	p, err := New(capacity, "test-dsn", func() driver.Conn { return &fakeConn{} }, policy)
	if err != nil {
		t.Fatalf("New pool failed: %v", err)
	}
	return p
}

func TestAcquire_Timeout(t *testing.T) {
	p := newTestPool(t, 0, Policy{})

	start := time.Now()
	_, err := p.Acquire(Read, 100*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, types.ErrAcquireTimeout) {
		t.Fatalf("expected ErrAcquireTimeout, got %v", err)
	}
	if elapsed < 80*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Errorf("timeout after %v, expected roughly 100ms", elapsed)
	}
}

func TestAcquire_ReleaseCycle(t *testing.T) {
	p := newTestPool(t, 2, Policy{})

	l1, err := p.Acquire(Write, time.Second)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	l2, err := p.Acquire(Read, time.Second)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}

	stats := p.Stats()
	if stats.InUse != 2 || stats.Size != 2 {
		t.Errorf("stats: %+v", stats)
	}

	// Third acquire blocks until a release.
	done := make(chan error, 1)
	go func() {
		l3, err := p.Acquire(Read, time.Second)
		if err == nil {
			l3.Release()
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	l1.Release()
	if err := <-done; err != nil {
		t.Fatalf("blocked acquire: %v", err)
	}
	l2.Release()

	stats = p.Stats()
	if stats.InUse != 0 || stats.Waiters != 0 {
		t.Errorf("idle stats: %+v", stats)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	p := newTestPool(t, 1, Policy{})
	l, err := p.Acquire(Write, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	l.Release()
	l.Release() // second release is a no-op

	if got := p.Stats().InUse; got != 0 {
		t.Errorf("in_use after double release: %d", got)
	}
	// The connection is reusable.
	l2, err := p.Acquire(Read, time.Second)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	l2.Release()
}

func TestShutdown_FailsNewAcquires(t *testing.T) {
	p := newTestPool(t, 1, Policy{})
	p.Shutdown()

	start := time.Now()
	_, err := p.Acquire(Read, time.Second)
	if !errors.Is(err, types.ErrPoolShutdown) {
		t.Fatalf("expected ErrPoolShutdown, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("shutdown acquire took %v, expected immediate", elapsed)
	}
}

func TestShutdown_WakesWaiters(t *testing.T) {
	p := newTestPool(t, 1, Policy{})
	l, err := p.Acquire(Write, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Acquire(Read, 5*time.Second)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	p.Shutdown()

	select {
	case err := <-done:
		if !errors.Is(err, types.ErrPoolShutdown) {
			t.Fatalf("waiter got %v, expected ErrPoolShutdown", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by shutdown")
	}

	// Existing lease remains valid; its connection closes on release.
	conn := l.Conn().(*fakeConn)
	l.Release()
	if !conn.disconnected.Load() {
		t.Error("connection should close when released after shutdown")
	}
}

func TestWriterPriority(t *testing.T) {
	p := newTestPool(t, 1, Policy{WriterPriority: true})
	l, err := p.Acquire(Write, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	var order []string
	var mu sync.Mutex
	record := func(tag string) {
		mu.Lock()
		order = append(order, tag)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		lw, err := p.Acquire(Write, 2*time.Second)
		if err == nil {
			record("writer")
			time.Sleep(10 * time.Millisecond)
			lw.Release()
		}
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		lr, err := p.Acquire(Read, 2*time.Second)
		if err == nil {
			record("reader")
			lr.Release()
		}
	}()
	time.Sleep(20 * time.Millisecond)

	l.Release()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "writer" {
		t.Errorf("writer should acquire before reader: %v", order)
	}
}

func TestCapacityInvariant(t *testing.T) {
	const capacity = 3
	p := newTestPool(t, capacity, Policy{})

	var wg sync.WaitGroup
	var peak atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := p.Acquire(Write, 2*time.Second)
			if err != nil {
				return
			}
			inUse := int32(p.Stats().InUse)
			for {
				cur := peak.Load()
				if inUse <= cur || peak.CompareAndSwap(cur, inUse) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			l.Release()
		}()
	}
	wg.Wait()

	if peak.Load() > capacity {
		t.Errorf("in_use exceeded capacity: %d > %d", peak.Load(), capacity)
	}
	stats := p.Stats()
	if stats.InUse != 0 || stats.Waiters != 0 {
		t.Errorf("idle stats: %+v", stats)
	}
}
