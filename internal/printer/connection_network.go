package printer

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/thereceipt/printlink/internal/connection"
)

// NetworkConnection is a raw TCP printer connection (port 9100 style)
type NetworkConnection struct {
	conn net.Conn
	desc connection.Descriptor
	mu   sync.Mutex
}

// ConnectNetwork dials a plain network descriptor
func ConnectNetwork(ctx context.Context, d connection.Descriptor, timeout time.Duration) (*NetworkConnection, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.HostPort())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to network printer %s: %w", d.HostPort(), err)
	}

	return &NetworkConnection{conn: conn, desc: d}, nil
}

// Write sends data to the network printer
func (c *NetworkConnection) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.Write(data)
}

// Read reads a reply from the printer
func (c *NetworkConnection) Read(p []byte) (int, error) {
	return c.conn.Read(p)
}

// SetReadDeadline bounds the next Read
func (c *NetworkConnection) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Descriptor returns what this connection was opened from
func (c *NetworkConnection) Descriptor() connection.Descriptor {
	return c.desc
}

// Close closes the network connection
func (c *NetworkConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
