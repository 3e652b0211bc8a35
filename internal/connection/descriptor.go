package connection

import (
	"fmt"
	"net"
	"strconv"
)

const (
	DefaultTLSPort     = 9143
	DefaultNetworkPort = 9100
)

// CertificateExtensions are the file types offered when browsing for a CA file
var CertificateExtensions = []string{"crt", "cer", "pem"}

// DriverPrinter is a printer reachable through a locally installed driver
type DriverPrinter struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Device      string `json:"device,omitempty"`
	VendorID    string `json:"vendor_id,omitempty"`
	ProductID   string `json:"product_id,omitempty"`
	ID          string `json:"id,omitempty"`
}

// DisplayName returns the best label for the printer
func (p DriverPrinter) DisplayName() string {
	if p.Description != "" {
		return p.Description
	}
	return p.Name
}

// Descriptor describes how to open a printer connection. Only the fields
// that belong to Mode are populated.
type Descriptor struct {
	Mode        Mode        `json:"mode"`
	Host        string      `json:"host,omitempty"`
	Port        int         `json:"port,omitempty"`
	Trust       TrustConfig `json:"trust,omitzero"`
	PrinterName string      `json:"printer_name,omitempty"`
	Address     string      `json:"address,omitempty"`
}

// TLS builds a TLS-over-network descriptor
func TLS(host string, port int, trust TrustConfig) Descriptor {
	return Descriptor{Mode: ModeTLS, Host: host, Port: port, Trust: trust}
}

// TCP builds a plain network descriptor
func TCP(host string, port int) Descriptor {
	return Descriptor{Mode: ModeNetwork, Host: host, Port: port}
}

// Driver builds a descriptor for a driver-backed printer
func Driver(printerName string) Descriptor {
	return Descriptor{Mode: ModeUSBDriver, PrinterName: printerName}
}

// USB builds a USB direct descriptor
func USB(address string) Descriptor {
	return Descriptor{Mode: ModeUSBDirect, Address: address}
}

// HostPort joins host and port for dialing
func (d Descriptor) HostPort() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// String renders the descriptor as a URI-like string. It is also used as
// the connection pool key.
func (d Descriptor) String() string {
	switch d.Mode {
	case ModeTLS:
		s := fmt.Sprintf("tls://%s?trust=%s", d.HostPort(), d.Trust.Mode)
		if d.Trust.Mode == TrustModeCertFile {
			s += "&ca=" + d.Trust.CertPath
		}
		return s
	case ModeNetwork:
		return "tcp://" + d.HostPort()
	case ModeUSBDriver:
		return "driver://" + d.PrinterName
	case ModeUSBDirect:
		return "usb://" + d.Address
	default:
		return "unknown://"
	}
}
