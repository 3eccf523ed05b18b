package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	alive  atomic.Bool
	closed atomic.Bool
}

func newFakeConn() *fakeConn {
	c := &fakeConn{}
	c.alive.Store(true)
	return c
}

func (c *fakeConn) IsAlive(context.Context) bool { return c.alive.Load() }
func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func fakeFactory(created *atomic.Int64) Factory {
	return func(context.Context) (Conn, error) {
		created.Add(1)
		return newFakeConn(), nil
	}
}

func TestPoolAcquireRelease(t *testing.T) {
	var created atomic.Int64
	p, err := New(context.Background(), fakeFactory(&created), Config{Size: 2, AcquireTimeout: time.Second})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	assert.Equal(t, int64(2), created.Load())

	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	b, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stats().Idle)

	p.Release(a)
	p.Release(b)
	assert.Equal(t, 2, p.Stats().Idle)
	assert.Equal(t, int64(2), p.Stats().Acquired)
}

func TestPoolAcquireTimeout(t *testing.T) {
	var created atomic.Int64
	p, err := New(context.Background(), fakeFactory(&created), Config{Size: 1, AcquireTimeout: 30 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.Equal(t, int64(1), p.Stats().Timeouts)

	p.Release(conn)
}

func TestPoolAcquireRespectsContext(t *testing.T) {
	var created atomic.Int64
	p, err := New(context.Background(), fakeFactory(&created), Config{Size: 1, AcquireTimeout: time.Minute})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolClosedAcquireFails(t *testing.T) {
	var created atomic.Int64
	p, err := New(context.Background(), fakeFactory(&created), Config{Size: 1, AcquireTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolReplacesDeadConnections(t *testing.T) {
	var created atomic.Int64
	p, err := New(context.Background(), fakeFactory(&created), Config{
		Size:           1,
		AcquireTimeout: time.Second,
		// Sweep manually, no background loop in this test.
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	conn.(*fakeConn).alive.Store(false)
	p.Release(conn)

	p.sweepOnce()
	assert.Equal(t, int64(1), p.Stats().Replaced)
	assert.True(t, conn.(*fakeConn).closed.Load())

	fresh, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, fresh.(*fakeConn).IsAlive(context.Background()))
	p.Release(fresh)
}
