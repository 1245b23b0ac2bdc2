package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	syncerrors "github.com/joe/depot-sync/pkg/errors"
)

// Exported variables.
var (
	ErrPoolClosed = errors.New("connection pool is closed")
)

// Pool hands out backend connections, at most maxSize live at once.
// Connections are created lazily on first demand and reused after Release.
// It uses a channel-based semaphore so Acquire blocks while every connection is in use.
type Pool struct {
	connector Connector
	idle      chan Conn     // connections ready for reuse
	slots     chan struct{} // one token per live connection
	maxSize   int
	size      int32 // live connections (atomic)
	mu        sync.Mutex
	closed    bool
}

// NewPool creates a pool of up to maxSize connections from connector.
func NewPool(connector Connector, maxSize int) (*Pool, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0, got %d", maxSize) //nolint:err113 // Validation error with actual value
	}

	return &Pool{
		connector: connector,
		idle:      make(chan Conn, maxSize),
		slots:     make(chan struct{}, maxSize),
		maxSize:   maxSize,
	}, nil
}

// Acquire returns an idle connection, creates one if the pool has room, or blocks
// until one is released or ctx is done. Connect failures are returned as
// *syncerrors.ConnectionError.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	// Prefer reuse over growth.
	select {
	case conn := <-p.idle:
		return conn, nil
	default:
	}

	select {
	case conn := <-p.idle:
		return conn, nil
	case p.slots <- struct{}{}:
		conn, err := p.connector.Connect(ctx)
		if err != nil {
			<-p.slots
			return nil, &syncerrors.ConnectionError{Err: err}
		}

		atomic.AddInt32(&p.size, 1)

		return conn, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire connection: %w", ctx.Err())
	}
}

// Close closes idle connections and marks the pool closed. Connections still
// held by workers are closed when they are released. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	var firstErr error

	for {
		select {
		case conn := <-p.idle:
			if err := p.retire(conn); err != nil && firstErr == nil { //nolint:noinlineerr // Cleanup error capture
				firstErr = err
			}
		default:
			return firstErr
		}
	}
}

// Discard closes a connection that must not be reused, freeing its slot.
func (p *Pool) Discard(conn Conn) {
	if conn == nil {
		return
	}

	_ = p.retire(conn)
}

// MaxSize returns the maximum number of live connections.
func (p *Pool) MaxSize() int {
	return p.maxSize
}

// Release returns a connection to the pool, or closes it if the pool is closed.
func (p *Pool) Release(conn Conn) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = p.retire(conn)
		return
	}

	select {
	case p.idle <- conn:
	default:
		// More connections than slots should be impossible.
		_ = p.retire(conn)
	}
}

// Size returns the number of live connections.
func (p *Pool) Size() int {
	return int(atomic.LoadInt32(&p.size))
}

// WithConn runs fn with a pooled connection. A connection whose command failed
// with a connection error, or whose fn panicked, is discarded instead of reused.
// The panic itself is re-raised to the caller.
func (p *Pool) WithConn(ctx context.Context, fn func(Conn) error) (err error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	panicked := true

	defer func() {
		var connErr *syncerrors.ConnectionError
		if panicked || errors.As(err, &connErr) {
			p.Discard(conn)
		} else {
			p.Release(conn)
		}
	}()

	err = fn(conn)
	panicked = false

	return err
}

func (p *Pool) retire(conn Conn) error {
	atomic.AddInt32(&p.size, -1)
	<-p.slots

	return conn.Close() //nolint:wrapcheck // Close error from the backend connection
}
