package printer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tarm/serial"

	"github.com/thereceipt/printlink/internal/connection"
)

// SerialConnection is a USB direct printer exposed as a serial port
// (USB CDC adapters show up as /dev/ttyACM*, /dev/cu.* or COMn).
type SerialConnection struct {
	port *serial.Port
	desc connection.Descriptor
	mu   sync.Mutex
}

// ConnectSerial opens the serial port named by the descriptor's address
func ConnectSerial(d connection.Descriptor, baud int) (*SerialConnection, error) {
	if baud == 0 {
		baud = 9600 // Default baud rate for most thermal printers
	}

	port, err := serial.OpenPort(&serial.Config{
		Name: strings.TrimSpace(d.Address),
		Baud: baud,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	return &SerialConnection{port: port, desc: d}, nil
}

// Write sends data to the serial printer
func (c *SerialConnection) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.port.Write(data)
}

// Descriptor returns what this connection was opened from
func (c *SerialConnection) Descriptor() connection.Descriptor {
	return c.desc
}

// Close closes the serial connection
func (c *SerialConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port != nil {
		return c.port.Close()
	}

	return nil
}
