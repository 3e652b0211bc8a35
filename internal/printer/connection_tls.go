package printer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/thereceipt/printlink/internal/connection"
)

// TLSConnection is a TLS-wrapped network printer connection
type TLSConnection struct {
	conn *tls.Conn
	desc connection.Descriptor
	mu   sync.Mutex
}

// ConnectTLS dials a TLS descriptor and completes the handshake using the
// descriptor's trust policy.
func ConnectTLS(ctx context.Context, d connection.Descriptor, timeout time.Duration) (*TLSConnection, error) {
	cfg, err := TLSConfig(d.Host, d.Trust)
	if err != nil {
		return nil, err
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config:    cfg,
	}
	conn, err := dialer.DialContext(ctx, "tcp", d.HostPort())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TLS printer %s: %w", d.HostPort(), err)
	}

	return &TLSConnection{conn: conn.(*tls.Conn), desc: d}, nil
}

// TLSConfig builds the client configuration for a trust policy
func TLSConfig(host string, trust connection.TrustConfig) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	switch trust.Mode {
	case connection.TrustModeAll, "":
		cfg.InsecureSkipVerify = true
	case connection.TrustModeSystem:
		// nil RootCAs uses the host's trust store
	case connection.TrustModeCertFile:
		pem, err := os.ReadFile(trust.CertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no PEM certificates found in %s", trust.CertPath)
		}
		cfg.RootCAs = pool
	default:
		return nil, fmt.Errorf("%w: %q", connection.ErrUnknownTrustMode, trust.Mode)
	}

	return cfg, nil
}

// Write sends data to the printer
func (c *TLSConnection) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.Write(data)
}

// Read reads a reply from the printer
func (c *TLSConnection) Read(p []byte) (int, error) {
	return c.conn.Read(p)
}

// SetReadDeadline bounds the next Read
func (c *TLSConnection) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Descriptor returns what this connection was opened from
func (c *TLSConnection) Descriptor() connection.Descriptor {
	return c.desc
}

// Close closes the TLS connection
func (c *TLSConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
