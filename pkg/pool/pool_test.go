package pool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(maxConns int, acquireTimeout time.Duration) *Pool {
	return New(Config{
		MaxConnections: maxConns,
		MaxIdleTime:    time.Minute,
		AcquireTimeout: acquireTimeout,
		Enabled:        true,
	})
}

func TestPoolDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Equal(t, 30*time.Second, cfg.MaxIdleTime)
	assert.Equal(t, 5*time.Second, cfg.AcquireTimeout)
	assert.True(t, cfg.Enabled)
}

func TestPool_DisabledReturnsUntrackedConns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.MaxConnections = 1
	p := New(cfg)
	defer p.Close()

	ctx := context.Background()

	// No capacity limit applies when pooling is disabled.
	for i := 0; i < 5; i++ {
		conn, err := p.Acquire(ctx, "https://api.example.com")
		require.NoError(t, err)
		require.NotNil(t, conn)
	}

	assert.Equal(t, 0, p.Metrics().Total, "disabled pool must not track connections")
}

func TestPool_CapacityNeverExceeded(t *testing.T) {
	p := newTestPool(3, 50*time.Millisecond)
	defer p.Close()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Acquire(ctx, fmt.Sprintf("https://api%d.example.com", i))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, p.Metrics().Total)

	// Pool full, nothing idle: the fourth caller queues and times out.
	_, err := p.Acquire(ctx, "https://api9.example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquireTimeout)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "https://api9.example.com", timeoutErr.BaseURL)
	assert.GreaterOrEqual(t, timeoutErr.Waited, 50*time.Millisecond)

	assert.Equal(t, 3, p.Metrics().Total)
}

func TestPool_ReuseIdleConnection(t *testing.T) {
	p := newTestPool(5, time.Second)
	defer p.Close()

	ctx := context.Background()

	conn, err := p.Acquire(ctx, "https://api.example.com")
	require.NoError(t, err)

	p.Release(conn.ID)

	again, err := p.Acquire(ctx, "https://api.example.com")
	require.NoError(t, err)
	assert.Equal(t, conn.ID, again.ID, "idle connection for the same URL must be reused")
	assert.Equal(t, 1, p.Metrics().Total)
}

func TestPool_RepurposeIdleForDifferentURL(t *testing.T) {
	p := newTestPool(1, 50*time.Millisecond)
	defer p.Close()

	ctx := context.Background()

	connA, err := p.Acquire(ctx, "https://a.example.com")
	require.NoError(t, err)
	p.Release(connA.ID)

	// Pool full, but the idle connection for A is repurposed for B
	// instead of queueing the caller.
	connB, err := p.Acquire(ctx, "https://b.example.com")
	require.NoError(t, err)
	assert.NotEqual(t, connA.ID, connB.ID)
	assert.Equal(t, "https://b.example.com", connB.BaseURL)
	assert.Equal(t, 1, p.Metrics().Total)

	// The repurposed connection's old ID is gone; releasing it is a no-op.
	p.Release(connA.ID)
	assert.Equal(t, 1, p.Metrics().Active)
}

func TestPool_QueuedCallerSatisfiedByRelease(t *testing.T) {
	p := newTestPool(1, time.Second)
	defer p.Close()

	ctx := context.Background()

	conn, err := p.Acquire(ctx, "https://api.example.com")
	require.NoError(t, err)

	got := make(chan *Conn, 1)
	go func() {
		c, err := p.Acquire(ctx, "https://api.example.com")
		if err != nil {
			t.Errorf("queued Acquire: %v", err)
			close(got)
			return
		}
		got <- c
	}()

	// Give the goroutine time to enqueue, then free the connection.
	time.Sleep(20 * time.Millisecond)
	p.Release(conn.ID)

	select {
	case c := <-got:
		require.NotNil(t, c)
		assert.Equal(t, conn.ID, c.ID)
	case <-time.After(time.Second):
		t.Fatal("queued caller was never satisfied")
	}
}

func TestPool_TimeoutNotBeforeDeadline(t *testing.T) {
	timeout := 80 * time.Millisecond
	p := newTestPool(1, timeout)
	defer p.Close()

	ctx := context.Background()

	_, err := p.Acquire(ctx, "https://api.example.com")
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Acquire(ctx, "https://api.example.com")
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout-5*time.Millisecond,
		"timeout fired before the configured deadline")
}

func TestPool_AcquireHonorsContext(t *testing.T) {
	p := newTestPool(1, time.Minute)
	defer p.Close()

	_, err := p.Acquire(context.Background(), "https://api.example.com")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx, "https://api.example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_DrainSkipsUnsatisfiableHead(t *testing.T) {
	p := newTestPool(1, 500*time.Millisecond)
	defer p.Close()

	ctx := context.Background()

	connA, err := p.Acquire(ctx, "https://a.example.com")
	require.NoError(t, err)

	// First waiter wants B (unsatisfiable by an idle A connection at
	// full capacity), second wants A.
	resB := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx, "https://b.example.com")
		resB <- err
	}()
	time.Sleep(20 * time.Millisecond)

	resA := make(chan *Conn, 1)
	go func() {
		c, err := p.Acquire(ctx, "https://a.example.com")
		if err != nil {
			t.Errorf("Acquire(a): %v", err)
			close(resA)
			return
		}
		resA <- c
	}()
	time.Sleep(20 * time.Millisecond)

	p.Release(connA.ID)

	// The A waiter behind the blocked B waiter must be served.
	select {
	case c := <-resA:
		require.NotNil(t, c)
		assert.Equal(t, connA.ID, c.ID)
	case <-time.After(time.Second):
		t.Fatal("A waiter head-of-line-blocked behind unsatisfiable B waiter")
	}

	// The B waiter eventually times out; releases of A never satisfy it.
	err = <-resB
	assert.ErrorIs(t, err, ErrAcquireTimeout)
}

func TestPool_SameURLWaitersServedInArrivalOrder(t *testing.T) {
	p := newTestPool(1, 2*time.Second)
	defer p.Close()

	ctx := context.Background()

	conn, err := p.Acquire(ctx, "https://api.example.com")
	require.NoError(t, err)

	order := make(chan int, 2)
	var ready sync.WaitGroup
	for i := 1; i <= 2; i++ {
		ready.Add(1)
		go func(i int) {
			ready.Done()
			c, err := p.Acquire(ctx, "https://api.example.com")
			if err != nil {
				t.Errorf("waiter %d: %v", i, err)
				return
			}
			order <- i
			// Hold briefly so the next waiter is only served by our release.
			time.Sleep(10 * time.Millisecond)
			p.Release(c.ID)
		}(i)
		ready.Wait()
		time.Sleep(20 * time.Millisecond) // enforce distinct arrival order
	}

	p.Release(conn.ID)

	first := <-order
	second := <-order
	assert.Equal(t, 1, first, "same-URL waiters must be served in arrival order")
	assert.Equal(t, 2, second)
}

func TestPool_RecordRequestAndMetrics(t *testing.T) {
	p := newTestPool(5, time.Second)
	defer p.Close()

	ctx := context.Background()

	conn, err := p.Acquire(ctx, "https://api.example.com")
	require.NoError(t, err)

	p.RecordRequest(conn.ID)
	p.RecordRequest(conn.ID)
	p.RecordRequest("unknown-id") // no-op

	other, err := p.Acquire(ctx, "https://other.example.com")
	require.NoError(t, err)
	p.Release(other.ID)

	m := p.Metrics()
	assert.Equal(t, 2, m.Total)
	assert.Equal(t, 1, m.Active)
	assert.Equal(t, 1, m.Idle)
	assert.InDelta(t, 0.5, m.Utilization, 0.001)
	assert.Equal(t, int64(2), m.TotalRequests)
	assert.InDelta(t, 1.0, m.AvgRequestsPerConn, 0.001)
}

func TestPool_MetricsEmpty(t *testing.T) {
	p := newTestPool(5, time.Second)
	defer p.Close()

	m := p.Metrics()
	assert.Zero(t, m.Total)
	assert.Zero(t, m.Utilization)
	assert.Zero(t, m.AvgRequestsPerConn)
}

func TestPool_ClearAbandonsQueue(t *testing.T) {
	p := newTestPool(1, 150*time.Millisecond)
	defer p.Close()

	ctx := context.Background()

	_, err := p.Acquire(ctx, "https://api.example.com")
	require.NoError(t, err)

	res := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx, "https://api.example.com")
		res <- err
	}()
	time.Sleep(20 * time.Millisecond)

	p.Clear()
	assert.Equal(t, 0, p.Metrics().Total)

	// Abandoned, not rejected: the waiter runs into its own timeout.
	err = <-res
	assert.ErrorIs(t, err, ErrAcquireTimeout)
}

func TestPool_CloseRejectsWaiters(t *testing.T) {
	p := newTestPool(1, time.Minute)

	ctx := context.Background()

	_, err := p.Acquire(ctx, "https://api.example.com")
	require.NoError(t, err)

	res := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx, "https://api.example.com")
		res <- err
	}()
	time.Sleep(20 * time.Millisecond)

	p.Close()
	p.Close() // idempotent

	select {
	case err := <-res:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter was not rejected on close")
	}
}

func TestPool_IdleReaping(t *testing.T) {
	p := New(Config{
		MaxConnections: 5,
		MaxIdleTime:    40 * time.Millisecond,
		AcquireTimeout: time.Second,
		Enabled:        true,
	})
	defer p.Close()

	ctx := context.Background()

	conn, err := p.Acquire(ctx, "https://api.example.com")
	require.NoError(t, err)

	busy, err := p.Acquire(ctx, "https://busy.example.com")
	require.NoError(t, err)

	p.Release(conn.ID)

	time.Sleep(120 * time.Millisecond)

	// The idle connection is reaped; the active one survives.
	m := p.Metrics()
	assert.Equal(t, 1, m.Total)
	assert.Equal(t, 1, m.Active)
	_ = busy
}

func TestPool_ConcurrentAcquireRelease(t *testing.T) {
	maxConns := 4
	p := newTestPool(maxConns, 2*time.Second)
	defer p.Close()

	ctx := context.Background()
	urls := []string{
		"https://a.example.com",
		"https://b.example.com",
		"https://c.example.com",
	}

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				conn, err := p.Acquire(ctx, urls[(g+i)%len(urls)])
				if err != nil {
					t.Errorf("Acquire: %v", err)
					return
				}
				p.RecordRequest(conn.ID)
				if total := p.Metrics().Total; total > maxConns {
					t.Errorf("tracked connections = %d, want <= %d", total, maxConns)
					return
				}
				p.Release(conn.ID)
			}
		}(g)
	}
	wg.Wait()

	m := p.Metrics()
	assert.LessOrEqual(t, m.Total, maxConns)
	assert.Equal(t, 0, m.Active)
	assert.Equal(t, int64(16*25), m.TotalRequests)
}
