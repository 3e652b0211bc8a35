// Package printer opens printer connections from descriptors and discovers
// printers reachable through local drivers.
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/logging"
)

// Conn is an open printer connection
type Conn interface {
	io.Writer
	io.Closer
	Descriptor() connection.Descriptor
}

// deadlineReader is implemented by connections that can answer queries
type deadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// ErrNoReply is returned by Probe when the transport cannot read responses
var ErrNoReply = errors.New("connection cannot read printer replies")

// hostStatusQuery is the Zebra ~HS host status request
var hostStatusQuery = []byte("~HS\r\n")

// Factory opens descriptors
type Factory struct {
	DialTimeout time.Duration
	// DeviceDir resolves bare driver printer names such as "lp0"
	DeviceDir string

	log *slog.Logger
}

// NewFactory creates a factory with the given dial timeout
func NewFactory(dialTimeout time.Duration) *Factory {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &Factory{
		DialTimeout: dialTimeout,
		DeviceDir:   "/dev/usb",
		log:         logging.For("printer"),
	}
}

// Open opens the transport described by d
func (f *Factory) Open(ctx context.Context, d connection.Descriptor) (Conn, error) {
	f.log.Debug("opening connection", "target", d.String())

	var (
		conn Conn
		err  error
	)
	switch d.Mode {
	case connection.ModeTLS:
		conn, err = ConnectTLS(ctx, d, f.DialTimeout)
	case connection.ModeNetwork:
		conn, err = ConnectNetwork(ctx, d, f.DialTimeout)
	case connection.ModeUSBDriver:
		conn, err = ConnectDriver(d, f.DeviceDir)
	case connection.ModeUSBDirect:
		if isSerialAddress(d.Address) {
			conn, err = ConnectSerial(d, 9600)
		} else {
			conn, err = ConnectUSB(d)
		}
	default:
		return nil, fmt.Errorf("%w: %q", connection.ErrUnknownMode, d.Mode)
	}
	if err != nil {
		f.log.Warn("connection failed", "target", d.String(), "error", err)
		return nil, err
	}
	f.log.Info("connection opened", "target", d.String())
	return conn, nil
}

// Probe sends a host status query and returns the raw reply. Transports
// that cannot read return ErrNoReply after the query is written.
func Probe(conn Conn, timeout time.Duration) (string, error) {
	if _, err := conn.Write(hostStatusQuery); err != nil {
		return "", fmt.Errorf("failed to send status query: %w", err)
	}

	r, ok := conn.(deadlineReader)
	if !ok {
		return "", ErrNoReply
	}
	if err := r.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}

	buf := make([]byte, 512)
	n, err := r.Read(buf)
	if n > 0 {
		return strings.TrimSpace(string(buf[:n])), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read status reply: %w", err)
	}
	return "", nil
}

func isSerialAddress(addr string) bool {
	a := strings.TrimSpace(addr)
	upper := strings.ToUpper(a)
	return strings.HasPrefix(a, "/dev/tty") ||
		strings.HasPrefix(a, "/dev/cu.") ||
		(strings.HasPrefix(upper, "COM") && len(upper) > 3)
}
