package selector

import (
	"strconv"
	"strings"

	"github.com/thereceipt/printlink/internal/connection"
)

// PlaceholderLabel is shown in the driver list when discovery fails
const PlaceholderLabel = "OS not supported"

// TLSInputs is the Network-TLS card
type TLSInputs struct {
	Host      string               `json:"host"`
	Port      string               `json:"port"`
	TrustMode connection.TrustMode `json:"trust_mode"`
	CertPath  string               `json:"cert_path"`
}

// NetworkInputs is the plain Network card
type NetworkInputs struct {
	Host string `json:"host"`
	Port string `json:"port"`
}

// DriverEntry is one row of the USB driver printer list. A placeholder row
// carries no printer and cannot be selected.
type DriverEntry struct {
	Printer     connection.DriverPrinter `json:"printer"`
	Placeholder bool                     `json:"placeholder,omitempty"`
}

// Label returns the text shown for the entry
func (e DriverEntry) Label() string {
	if e.Placeholder {
		return PlaceholderLabel
	}
	return e.Printer.DisplayName()
}

// USBDriverInputs is the USB card
type USBDriverInputs struct {
	Entries  []DriverEntry `json:"entries"`
	Selected int           `json:"selected"`
}

// Printers returns the real printers in the list
func (in USBDriverInputs) Printers() []connection.DriverPrinter {
	var out []connection.DriverPrinter
	for _, e := range in.Entries {
		if !e.Placeholder {
			out = append(out, e.Printer)
		}
	}
	return out
}

// Unsupported reports whether the list holds the discovery-failure placeholder
func (in USBDriverInputs) Unsupported() bool {
	return len(in.Entries) == 1 && in.Entries[0].Placeholder
}

func (in USBDriverInputs) selectable(i int) bool {
	return i >= 0 && i < len(in.Entries) && !in.Entries[i].Placeholder
}

// USBDirectInputs is the USB Direct card
type USBDirectInputs struct {
	Address string `json:"address"`
}

// ParsePort parses port text, returning def when the text is empty, not an
// integer, or not a usable TCP port.
func ParsePort(text string, def int) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return def
	}
	port, err := strconv.Atoi(text)
	if err != nil || port < 1 || port > 65535 {
		return def
	}
	return port
}
