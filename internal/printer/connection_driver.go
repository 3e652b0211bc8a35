package printer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/thereceipt/printlink/internal/connection"
)

// DriverConnection writes to a printer through its kernel driver device
// (for example /dev/usb/lp0). Printers discovered through libusb are
// named "vid:pid" and are opened over USB instead.
type DriverConnection struct {
	file *os.File
	desc connection.Descriptor
	mu   sync.Mutex
}

// ConnectDriver opens the device behind a driver printer name. Bare names
// are resolved against deviceDir.
func ConnectDriver(d connection.Descriptor, deviceDir string) (Conn, error) {
	name := strings.TrimSpace(d.PrinterName)
	if name == "" {
		return nil, fmt.Errorf("%w: empty driver printer name", connection.ErrInvalidState)
	}

	if _, _, ok := parseVIDPID(name); ok {
		usb, err := ConnectUSB(connection.USB(name))
		if err != nil {
			return nil, err
		}
		usb.desc = d
		return usb, nil
	}

	path := name
	if !filepath.IsAbs(path) && deviceDir != "" {
		path = filepath.Join(deviceDir, name)
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open printer device %s: %w", path, err)
	}
	return &DriverConnection{file: f, desc: d}, nil
}

// Write sends data to the printer device
func (c *DriverConnection) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.file.Write(data)
	if err == nil && n != len(data) {
		return n, fmt.Errorf("short write to %s: %d/%d", c.file.Name(), n, len(data))
	}
	return n, err
}

// Descriptor returns what this connection was opened from
func (c *DriverConnection) Descriptor() connection.Descriptor {
	return c.desc
}

// Close closes the device
func (c *DriverConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
