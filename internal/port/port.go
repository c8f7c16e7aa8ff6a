// Package port carries listener connections: one JSON object per line over a
// unix socket. Outbound snapshots are queued per connection so a slow
// listener never blocks the broadcaster.
package port

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/five82/jpdict/internal/protocol"
)

// DefaultQueueSize is the number of snapshots a connection buffers before
// Post starts failing.
const DefaultQueueSize = 16

const maxLineSize = 64 * 1024

var (
	// ErrQueueFull is returned by Post when the listener is not keeping up.
	ErrQueueFull = errors.New("listener queue full")
	// ErrClosed is returned by Post after the connection has gone away.
	ErrClosed = errors.New("listener connection closed")
)

// Handler receives the messages a listener sends.
type Handler func(msg protocol.ListenerMessage)

// Options configures a Conn.
type Options struct {
	QueueSize int
	Logger    *slog.Logger
}

// Conn is the server side of one listener connection.
type Conn struct {
	conn   net.Conn
	out    chan protocol.DbStateUpdate
	logger *slog.Logger

	once sync.Once
	done chan struct{}
}

// NewConn wraps an accepted connection.
func NewConn(conn net.Conn, opts Options) *Conn {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Conn{
		conn:   conn,
		out:    make(chan protocol.DbStateUpdate, size),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Post queues msg for delivery without blocking.
func (c *Conn) Post(msg protocol.DbStateUpdate) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

// Serve writes queued snapshots and passes decoded requests to handle until
// the peer disconnects or ctx ends. Malformed lines are logged and skipped.
func (c *Conn) Serve(ctx context.Context, handle Handler) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
			_ = c.Close()
		case <-c.done:
		}
		return nil
	})

	g.Go(func() error {
		enc := json.NewEncoder(c.conn)
		for {
			select {
			case <-c.done:
				return nil
			case msg := <-c.out:
				if err := enc.Encode(msg); err != nil {
					if c.closed() {
						return nil
					}
					_ = c.Close()
					return fmt.Errorf("write snapshot: %w", err)
				}
			}
		}
	})

	g.Go(func() error {
		defer func() { _ = c.Close() }()
		scanner := bufio.NewScanner(c.conn)
		scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
		for scanner.Scan() {
			msg, err := protocol.DecodeListenerMessage(scanner.Bytes())
			if err != nil {
				c.logger.Warn("ignoring listener message", "error", err)
				continue
			}
			handle(msg)
		}
		if c.closed() {
			return nil
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("read listener: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close disconnects the listener. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed once the connection has been closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}
