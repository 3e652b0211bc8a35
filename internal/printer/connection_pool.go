package printer

import (
	"context"
	"sync"

	"github.com/thereceipt/printlink/internal/connection"
)

// Opener opens descriptors; Factory implements it
type Opener interface {
	Open(ctx context.Context, d connection.Descriptor) (Conn, error)
}

// ConnectionPool keeps open connections keyed by descriptor string
type ConnectionPool struct {
	opener      Opener
	connections map[string]Conn
	mu          sync.RWMutex
}

// NewConnectionPool creates a new connection pool
func NewConnectionPool(opener Opener) *ConnectionPool {
	return &ConnectionPool{
		opener:      opener,
		connections: make(map[string]Conn),
	}
}

// Connect returns the pooled connection for d, opening it if needed
func (p *ConnectionPool) Connect(ctx context.Context, d connection.Descriptor) (Conn, error) {
	key := d.String()

	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, exists := p.connections[key]; exists {
		return conn, nil
	}

	conn, err := p.opener.Open(ctx, d)
	if err != nil {
		return nil, err
	}

	p.connections[key] = conn
	return conn, nil
}

// Disconnect closes a pooled connection
func (p *ConnectionPool) Disconnect(d connection.Descriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := d.String()
	conn, exists := p.connections[key]
	if !exists {
		return nil
	}

	err := conn.Close()
	delete(p.connections, key)

	return err
}

// DisconnectAll closes all connections
func (p *ConnectionPool) DisconnectAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, conn := range p.connections {
		conn.Close()
		delete(p.connections, key)
	}
}

// IsConnected reports whether d has a pooled connection
func (p *ConnectionPool) IsConnected(d connection.Descriptor) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, exists := p.connections[d.String()]
	return exists
}

// Connected lists the descriptors currently held
func (p *ConnectionPool) Connected() []connection.Descriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]connection.Descriptor, 0, len(p.connections))
	for _, conn := range p.connections {
		out = append(out, conn.Descriptor())
	}
	return out
}
