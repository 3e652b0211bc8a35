package printer

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/gousb"

	"github.com/thereceipt/printlink/internal/connection"
)

// USBConnection talks to a printer's bulk OUT endpoint through libusb
type USBConnection struct {
	ctx      *gousb.Context
	device   *gousb.Device
	iface    *gousb.Interface
	done     func()
	endpoint *gousb.OutEndpoint
	desc     connection.Descriptor
	mu       sync.Mutex
}

// parseVIDPID parses "vvvv:pppp" (hex, optional 0x prefixes)
func parseVIDPID(addr string) (gousb.ID, gousb.ID, bool) {
	parts := strings.Split(strings.TrimSpace(addr), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	vid, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(parts[0]), "0x"), 16, 16)
	if err != nil {
		return 0, 0, false
	}
	pid, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(parts[1]), "0x"), 16, 16)
	if err != nil {
		return 0, 0, false
	}
	return gousb.ID(vid), gousb.ID(pid), true
}

// ConnectUSB opens the USB direct descriptor. The address is a "vid:pid"
// pair in hex.
func ConnectUSB(d connection.Descriptor) (conn *USBConnection, err error) {
	vid, pid, ok := parseVIDPID(d.Address)
	if !ok {
		return nil, fmt.Errorf("invalid USB address %q: want vid:pid in hex", d.Address)
	}

	ctx, err := newUSBContext()
	if err != nil {
		return nil, err
	}

	dev, err := ctx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("failed to open USB device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device not found: %s:%s", vid, pid)
	}

	// Claim the default interface first; most printers expose their bulk
	// OUT endpoint there. Kernel drivers such as usblp must be detached.
	dev.SetAutoDetach(true)
	iface, done, err := dev.DefaultInterface()
	if err == nil {
		if ep := findOutEndpoint(iface); ep != nil {
			return &USBConnection{ctx: ctx, device: dev, iface: iface, done: done, endpoint: ep, desc: d}, nil
		}
		done()
	}

	// Fall back to every interface of every configuration
	var lastErr error
	for _, cfgDesc := range dev.Desc.Configs {
		cfg, err := dev.Config(cfgDesc.Number)
		if err != nil {
			lastErr = fmt.Errorf("failed to set config %d: %w", cfgDesc.Number, err)
			continue
		}
		for _, ifaceDesc := range cfgDesc.Interfaces {
			iface, err := cfg.Interface(ifaceDesc.Number, 0)
			if err != nil {
				lastErr = fmt.Errorf("failed to claim interface %d: %w", ifaceDesc.Number, err)
				continue
			}
			if ep := findOutEndpoint(iface); ep != nil {
				done := func() {
					iface.Close()
					cfg.Close()
				}
				return &USBConnection{ctx: ctx, device: dev, iface: iface, done: done, endpoint: ep, desc: d}, nil
			}
			iface.Close()
		}
		cfg.Close()
	}

	dev.Close()
	ctx.Close()

	if lastErr != nil {
		return nil, fmt.Errorf("failed to connect to USB printer: %w", lastErr)
	}
	return nil, fmt.Errorf("no suitable interface/endpoint found for USB printer %s:%s", vid, pid)
}

func findOutEndpoint(iface *gousb.Interface) *gousb.OutEndpoint {
	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction != gousb.EndpointDirectionOut {
			continue
		}
		if ep, err := iface.OutEndpoint(epDesc.Number); err == nil {
			return ep
		}
	}
	return nil
}

// newUSBContext initialises libusb. gousb panics when libusb cannot start,
// which is reported as an unsupported platform instead.
func newUSBContext() (ctx *gousb.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx = nil
			err = fmt.Errorf("%w: libusb unavailable: %v", connection.ErrUnsupportedPlatform, r)
		}
	}()
	return gousb.NewContext(), nil
}

// Write sends data to the USB printer
func (c *USBConnection) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.endpoint.Write(data)
}

// Descriptor returns what this connection was opened from
func (c *USBConnection) Descriptor() connection.Descriptor {
	return c.desc
}

// Close releases the interface, device and libusb context
func (c *USBConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		c.done()
		c.done = nil
	}
	var err error
	if c.device != nil {
		err = c.device.Close()
		c.device = nil
	}
	if c.ctx != nil {
		if cerr := c.ctx.Close(); err == nil {
			err = cerr
		}
		c.ctx = nil
	}
	return err
}
