// Package selector holds the state behind the printer connection panel:
// one card of inputs per connection mode, the active mode, and the
// operations that turn that state into a connection descriptor.
package selector

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/logging"
)

// Discoverer enumerates printers reachable through local drivers
type Discoverer interface {
	ListDriverPrinters() ([]connection.DriverPrinter, error)
}

// DiscovererFunc adapts a function to Discoverer
type DiscovererFunc func() ([]connection.DriverPrinter, error)

// ListDriverPrinters calls f
func (f DiscovererFunc) ListDriverPrinters() ([]connection.DriverPrinter, error) {
	return f()
}

// FilePicker presents a modal chooser limited to the given extensions. It
// returns ok=false when the user cancels.
type FilePicker interface {
	PickFile(extensions []string) (path string, ok bool, err error)
}

// Selector is the connection panel state. It is not safe for concurrent use.
type Selector struct {
	mode      connection.Mode
	tls       TLSInputs
	network   NetworkInputs
	usbDriver USBDriverInputs
	usbDirect USBDirectInputs
	focused   bool

	discoverer Discoverer
	log        *slog.Logger
}

// Option customises a new Selector
type Option func(*Selector)

// WithMode sets the initial mode
func WithMode(m connection.Mode) Option {
	return func(s *Selector) {
		if m.Valid() {
			s.mode = m
		}
	}
}

// WithTLS seeds the TLS card
func WithTLS(in TLSInputs) Option {
	return func(s *Selector) {
		if in.TrustMode == "" {
			in.TrustMode = connection.TrustModeAll
		}
		s.tls = in
	}
}

// WithNetwork seeds the Network card
func WithNetwork(in NetworkInputs) Option {
	return func(s *Selector) { s.network = in }
}

// WithUSBDirectAddress seeds the USB Direct card
func WithUSBDirectAddress(addr string) Option {
	return func(s *Selector) { s.usbDirect.Address = addr }
}

// WithLogger overrides the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) { s.log = l }
}

// New creates a selector in TLS mode and loads the driver printer list once.
func New(discoverer Discoverer, opts ...Option) *Selector {
	s := &Selector{
		mode:       connection.ModeTLS,
		tls:        TLSInputs{TrustMode: connection.TrustModeAll},
		usbDriver:  USBDriverInputs{Selected: -1},
		discoverer: discoverer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.For("selector")
	}
	s.RefreshDiscoveredPrinters()
	return s
}

// Mode returns the active mode
func (s *Selector) Mode() connection.Mode {
	return s.mode
}

// SetMode switches the active card. It reports whether the mode changed;
// no card's inputs are touched either way.
func (s *Selector) SetMode(m connection.Mode) (bool, error) {
	if !m.Valid() {
		return false, fmt.Errorf("%w: %q", connection.ErrUnknownMode, m)
	}
	if m == s.mode {
		return false, nil
	}
	s.log.Debug("mode changed", "from", s.mode, "to", m)
	s.mode = m
	return true, nil
}

// TLS returns a copy of the TLS card
func (s *Selector) TLS() TLSInputs { return s.tls }

// Network returns a copy of the Network card
func (s *Selector) Network() NetworkInputs { return s.network }

// USBDirect returns a copy of the USB Direct card
func (s *Selector) USBDirect() USBDirectInputs { return s.usbDirect }

// USBDriver returns a copy of the USB driver card
func (s *Selector) USBDriver() USBDriverInputs {
	in := s.usbDriver
	in.Entries = append([]DriverEntry(nil), in.Entries...)
	return in
}

func (s *Selector) SetTLSHost(host string)          { s.tls.Host = host }
func (s *Selector) SetTLSPort(port string)          { s.tls.Port = port }
func (s *Selector) SetCertPath(path string)         { s.tls.CertPath = path }
func (s *Selector) SetNetworkHost(host string)      { s.network.Host = host }
func (s *Selector) SetNetworkPort(port string)      { s.network.Port = port }
func (s *Selector) SetUSBDirectAddress(addr string) { s.usbDirect.Address = addr }
func (s *Selector) TrustMode() connection.TrustMode { return s.tls.TrustMode }
func (s *Selector) CertPathEnabled() bool           { return s.tls.TrustMode == connection.TrustModeCertFile }

// SetTrustMode changes the TLS trust policy. The stored certificate path is
// kept; it is only read while the mode is TrustModeCertFile.
func (s *Selector) SetTrustMode(t connection.TrustMode) error {
	switch t {
	case connection.TrustModeAll, connection.TrustModeSystem, connection.TrustModeCertFile:
	default:
		return fmt.Errorf("%w: %q", connection.ErrUnknownTrustMode, t)
	}
	s.tls.TrustMode = t
	return nil
}

// Browse opens picker to choose a CA certificate file. It is only
// available while the certificate path is enabled. A cancelled dialog
// leaves the path unchanged and returns false.
func (s *Selector) Browse(picker FilePicker) (bool, error) {
	if !s.CertPathEnabled() {
		return false, fmt.Errorf("%w: certificate path is disabled for trust mode %q",
			connection.ErrInvalidState, s.tls.TrustMode)
	}
	path, ok, err := picker.PickFile(connection.CertificateExtensions)
	if err != nil {
		return false, fmt.Errorf("certificate file picker: %w", err)
	}
	if !ok {
		return false, nil
	}
	s.tls.CertPath = path
	return true, nil
}

// Focused reports whether the panel currently has input focus
func (s *Selector) Focused() bool { return s.focused }

// FocusGained marks the panel focused. Regaining focus after it was lost
// refreshes the driver printer list; it reports whether a refresh ran.
func (s *Selector) FocusGained() bool {
	if s.focused {
		return false
	}
	s.focused = true
	s.RefreshDiscoveredPrinters()
	return true
}

// FocusLost marks the panel unfocused
func (s *Selector) FocusLost() {
	s.focused = false
}

// RefreshDiscoveredPrinters reloads the driver printer list. The previous
// selection index survives if it is still in range. A discovery failure
// leaves a single placeholder entry in the list.
func (s *Selector) RefreshDiscoveredPrinters() {
	prev := s.usbDriver.Selected
	s.usbDriver = USBDriverInputs{Selected: -1}

	if s.discoverer == nil {
		s.setPlaceholder(connection.ErrUnsupportedPlatform)
		return
	}
	printers, err := s.discoverer.ListDriverPrinters()
	if err != nil {
		s.setPlaceholder(err)
		return
	}

	entries := make([]DriverEntry, 0, len(printers))
	for _, p := range printers {
		entries = append(entries, DriverEntry{Printer: p})
	}
	s.usbDriver.Entries = entries
	if s.usbDriver.selectable(prev) {
		s.usbDriver.Selected = prev
	}
	s.log.Debug("driver printers refreshed", "count", len(entries), "selected", s.usbDriver.Selected)
}

func (s *Selector) setPlaceholder(err error) {
	s.log.Warn("driver printer discovery failed", "error", err)
	s.usbDriver.Entries = []DriverEntry{{Placeholder: true}}
}

// SelectDriverPrinter selects the i-th entry of the driver list
func (s *Selector) SelectDriverPrinter(i int) error {
	if !s.usbDriver.selectable(i) {
		return fmt.Errorf("%w: driver printer index %d is not selectable", connection.ErrInvalidState, i)
	}
	s.usbDriver.Selected = i
	return nil
}

// SelectDriverPrinterByName selects the first entry whose printer name matches
func (s *Selector) SelectDriverPrinterByName(name string) error {
	for i, e := range s.usbDriver.Entries {
		if !e.Placeholder && e.Printer.Name == name {
			s.usbDriver.Selected = i
			return nil
		}
	}
	return fmt.Errorf("%w: no driver printer named %q", connection.ErrInvalidState, name)
}

// SelectedDriverPrinter returns the selected printer, if any
func (s *Selector) SelectedDriverPrinter() (connection.DriverPrinter, bool) {
	if !s.usbDriver.selectable(s.usbDriver.Selected) {
		return connection.DriverPrinter{}, false
	}
	return s.usbDriver.Entries[s.usbDriver.Selected].Printer, true
}

// CurrentIPAddress returns the host text of the TLS or Network card,
// whichever is active, and "" for the USB modes.
func (s *Selector) CurrentIPAddress() string {
	switch s.mode {
	case connection.ModeTLS:
		return s.tls.Host
	case connection.ModeNetwork:
		return s.network.Host
	default:
		return ""
	}
}

// SetIPAddress writes addr into both the TLS and Network host fields
func (s *Selector) SetIPAddress(addr string) {
	s.tls.Host = addr
	s.network.Host = addr
}

// BuildConnection turns the active card into a descriptor. Host text is
// passed through uninterpreted and bad port text falls back to the mode's
// default port.
func (s *Selector) BuildConnection() (connection.Descriptor, error) {
	switch s.mode {
	case connection.ModeTLS:
		host := strings.TrimSpace(s.tls.Host)
		port := ParsePort(s.tls.Port, connection.DefaultTLSPort)
		return connection.TLS(host, port, s.trustConfig()), nil

	case connection.ModeNetwork:
		host := strings.TrimSpace(s.network.Host)
		port := ParsePort(s.network.Port, connection.DefaultNetworkPort)
		return connection.TCP(host, port), nil

	case connection.ModeUSBDriver:
		p, ok := s.SelectedDriverPrinter()
		if !ok {
			return connection.Descriptor{}, fmt.Errorf("%w: no USB driver printer selected", connection.ErrInvalidState)
		}
		return connection.Driver(p.Name), nil

	case connection.ModeUSBDirect:
		return connection.USB(s.usbDirect.Address), nil
	}
	return connection.Descriptor{}, fmt.Errorf("%w: %q", connection.ErrUnknownMode, s.mode)
}

func (s *Selector) trustConfig() connection.TrustConfig {
	switch s.tls.TrustMode {
	case connection.TrustModeSystem:
		return connection.TrustSystemStore()
	case connection.TrustModeCertFile:
		return connection.FromCertificateFile(strings.TrimSpace(s.tls.CertPath))
	default:
		return connection.TrustAll()
	}
}

// Snapshot is a copy of the whole selector state
type Snapshot struct {
	Mode            connection.Mode `json:"mode"`
	TLS             TLSInputs       `json:"tls"`
	Network         NetworkInputs   `json:"network"`
	USBDriver       USBDriverInputs `json:"usb_driver"`
	USBDirect       USBDirectInputs `json:"usb_direct"`
	CertPathEnabled bool            `json:"cert_path_enabled"`
	Focused         bool            `json:"focused"`
}

// Snapshot returns a copy of the current state
func (s *Selector) Snapshot() Snapshot {
	return Snapshot{
		Mode:            s.mode,
		TLS:             s.tls,
		Network:         s.network,
		USBDriver:       s.USBDriver(),
		USBDirect:       s.usbDirect,
		CertPathEnabled: s.CertPathEnabled(),
		Focused:         s.focused,
	}
}
