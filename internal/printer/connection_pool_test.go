package printer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereceipt/printlink/internal/connection"
)

type memConn struct {
	desc   connection.Descriptor
	data   []byte
	closed bool
}

func (c *memConn) Write(p []byte) (int, error) {
	c.data = append(c.data, p...)
	return len(p), nil
}

func (c *memConn) Close() error {
	c.closed = true
	return nil
}

func (c *memConn) Descriptor() connection.Descriptor { return c.desc }

type fakeOpener struct {
	opened []*memConn
	err    error
}

func (f *fakeOpener) Open(_ context.Context, d connection.Descriptor) (Conn, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := &memConn{desc: d}
	f.opened = append(f.opened, c)
	return c, nil
}

func TestConnectionPool(t *testing.T) {
	opener := &fakeOpener{}
	pool := NewConnectionPool(opener)
	d := connection.TCP("10.0.0.5", 9100)

	c1, err := pool.Connect(context.Background(), d)
	require.NoError(t, err)
	c2, err := pool.Connect(context.Background(), d)
	require.NoError(t, err)
	assert.Same(t, c1, c2, "second connect reuses the pooled connection")
	assert.Len(t, opener.opened, 1)
	assert.True(t, pool.IsConnected(d))
	assert.Equal(t, []connection.Descriptor{d}, pool.Connected())

	require.NoError(t, pool.Disconnect(d))
	assert.True(t, opener.opened[0].closed)
	assert.False(t, pool.IsConnected(d))
	require.NoError(t, pool.Disconnect(d), "disconnecting twice is fine")
}

func TestConnectionPool_OpenError(t *testing.T) {
	boom := errors.New("handshake refused")
	pool := NewConnectionPool(&fakeOpener{err: boom})

	_, err := pool.Connect(context.Background(), connection.TLS("h", 9143, connection.TrustAll()))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, pool.Connected())
}

func TestConnectionPool_DisconnectAll(t *testing.T) {
	opener := &fakeOpener{}
	pool := NewConnectionPool(opener)
	_, err := pool.Connect(context.Background(), connection.TCP("a", 1))
	require.NoError(t, err)
	_, err = pool.Connect(context.Background(), connection.USB("0a5f:0166"))
	require.NoError(t, err)

	pool.DisconnectAll()
	assert.Empty(t, pool.Connected())
	for _, c := range opener.opened {
		assert.True(t, c.closed)
	}
}
