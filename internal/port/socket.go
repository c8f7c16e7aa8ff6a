package port

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/five82/jpdict/internal/protocol"
)

// Listen opens the unix socket at path, replacing a stale socket file left
// by a previous run.
func Listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return ln, nil
}

// Accept hands every connection accepted on ln to serve, each on its own
// goroutine, until ctx ends. It waits for those goroutines before returning.
func Accept(ctx context.Context, ln net.Listener, serve func(ctx context.Context, conn net.Conn)) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept listener: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(ctx, conn)
		}()
	}
}

// Client is the listener side of a connection.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner

	mu  sync.Mutex
	enc *json.Encoder
}

// Dial connects to the orchestrator's socket.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", path, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Client{conn: conn, scanner: scanner, enc: json.NewEncoder(conn)}
}

// Recv blocks for the next snapshot.
func (c *Client) Recv() (protocol.DbStateUpdate, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return protocol.DbStateUpdate{}, fmt.Errorf("read snapshot: %w", err)
		}
		return protocol.DbStateUpdate{}, ErrClosed
	}
	var msg protocol.DbStateUpdate
	if err := json.Unmarshal(c.scanner.Bytes(), &msg); err != nil {
		return protocol.DbStateUpdate{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return msg, nil
}

// Send writes a request of the given type.
func (c *Client) Send(msgType, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(protocol.ListenerMessage{Type: msgType, Message: message}); err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	return nil
}

// Close disconnects.
func (c *Client) Close() error {
	return c.conn.Close()
}
