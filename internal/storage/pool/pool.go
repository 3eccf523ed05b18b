// Package pool provides a fixed-size connection pool for backend client
// handles. Acquire blocks until a handle is free or the acquire timeout
// elapses; a background loop replaces handles that fail their health check.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrAcquireTimeout is returned when no handle frees up in time.
	ErrAcquireTimeout = errors.New("pool: acquire timed out")
	// ErrPoolClosed is returned after Close.
	ErrPoolClosed = errors.New("pool: closed")
)

// Conn is a pooled backend handle.
type Conn interface {
	// IsAlive reports whether the handle is still usable.
	IsAlive(ctx context.Context) bool
	Close() error
}

// Factory creates a new backend handle.
type Factory func(ctx context.Context) (Conn, error)

// Config tunes the pool.
type Config struct {
	Size                int
	AcquireTimeout      time.Duration
	HealthCheckInterval time.Duration
}

// DefaultConfig returns sensible pool defaults.
func DefaultConfig() Config {
	return Config{
		Size:                4,
		AcquireTimeout:      5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Size       int   `json:"size"`
	Idle       int   `json:"idle"`
	Acquired   int64 `json:"acquired"`
	Timeouts   int64 `json:"timeouts"`
	Replaced   int64 `json:"replaced"`
	InFlightHW int64 `json:"in_flight_high_water"`
}

// Pool holds a fixed set of handles.
type Pool struct {
	cfg     Config
	factory Factory
	conns   chan Conn

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	done   sync.WaitGroup

	acquired atomic.Int64
	timeouts atomic.Int64
	replaced atomic.Int64
	inFlight atomic.Int64
	highWatr atomic.Int64
}

// New builds the pool and eagerly creates all handles.
func New(ctx context.Context, factory Factory, cfg Config) (*Pool, error) {
	if cfg.Size < 1 {
		cfg.Size = 1
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	p := &Pool{
		cfg:     cfg,
		factory: factory,
		conns:   make(chan Conn, cfg.Size),
		stop:    make(chan struct{}),
	}
	for i := 0; i < cfg.Size; i++ {
		conn, err := factory(ctx)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.conns <- conn
	}
	if cfg.HealthCheckInterval > 0 {
		p.done.Add(1)
		go p.healthCheckLoop()
	}
	return p, nil
}

// Acquire checks out a handle. It fails with ErrAcquireTimeout when every
// handle stays busy for the configured acquire timeout.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case conn := <-p.conns:
		p.acquired.Add(1)
		n := p.inFlight.Add(1)
		for {
			hw := p.highWatr.Load()
			if n <= hw || p.highWatr.CompareAndSwap(hw, n) {
				break
			}
		}
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		p.timeouts.Add(1)
		return nil, ErrAcquireTimeout
	}
}

// Release returns a handle to the pool. A handle that reports dead is closed
// and replaced with a fresh one.
func (p *Pool) Release(conn Conn) {
	p.inFlight.Add(-1)
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		_ = conn.Close()
		return
	}
	select {
	case p.conns <- conn:
	default:
		// Pool already full; should not happen, but never block.
		_ = conn.Close()
	}
}

// Close drains and closes every handle.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stop)
	p.mu.Unlock()
	p.done.Wait()

	var firstErr error
	for {
		select {
		case conn := <-p.conns:
			if err := conn.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
			return firstErr
		}
	}
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Size:       p.cfg.Size,
		Idle:       len(p.conns),
		Acquired:   p.acquired.Load(),
		Timeouts:   p.timeouts.Load(),
		Replaced:   p.replaced.Load(),
		InFlightHW: p.highWatr.Load(),
	}
}

func (p *Pool) healthCheckLoop() {
	defer p.done.Done()
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

// sweepOnce checks each currently idle handle once and replaces dead ones.
func (p *Pool) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	idle := len(p.conns)
	for i := 0; i < idle; i++ {
		var conn Conn
		select {
		case conn = <-p.conns:
		default:
			return
		}
		if conn.IsAlive(ctx) {
			p.conns <- conn
			continue
		}
		_ = conn.Close()
		fresh, err := p.factory(ctx)
		if err != nil {
			// Put the dead handle back so the pool keeps its size; the
			// next sweep retries the replacement.
			p.conns <- conn
			continue
		}
		p.replaced.Add(1)
		p.conns <- fresh
	}
}
