package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client dials a Unix socket on demand and exchanges one Message/Response
// pair per call, matching the reference platform's state-service client:
// newline-delimited JSON over a single persistent connection, reconnected
// lazily if dropped.
type Client struct {
	socketPath string
	dialer     net.Dialer

	mu      sync.Mutex
	conn    net.Conn
	scanner *bufio.Scanner
	seq     int64
}

// NewClient returns a Client that dials socketPath on first use.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends msg and waits for the matching Response, or ctx's deadline,
// whichever comes first.
func (c *Client) Call(ctx context.Context, msg Message) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	msg.RequestID = fmt.Sprintf("%s-%d", msg.Operation, c.seq)

	if c.conn == nil {
		if err := c.connectLocked(ctx); err != nil {
			return nil, fmt.Errorf("ipc: dial %s: %w", c.socketPath, err)
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	}

	encoded, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("ipc: encode request: %w", err)
	}
	if _, err := c.conn.Write(append(encoded, '\n')); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("ipc: write request: %w", err)
	}

	if !c.scanner.Scan() {
		err := c.scanner.Err()
		c.closeLocked()
		if err == nil {
			return nil, fmt.Errorf("ipc: connection closed by server")
		}
		return nil, fmt.Errorf("ipc: read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("ipc: decode response: %w", err)
	}
	return &resp, nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	conn, err := c.dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return err
	}
	c.conn = conn
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	c.scanner = scanner
	return nil
}

func (c *Client) closeLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

// Ping round-trips OpPing, used by callers that want a fast liveness
// check before handing the client to the coordinator.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := c.Call(ctx, Message{Operation: OpPing})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("ipc: ping failed: %s", resp.Error)
	}
	return nil
}
