// Package connection defines the printer connection modes, trust policies
// and the descriptor produced from a selector.
package connection

import (
	"fmt"
	"strings"
)

// Mode is one of the four transports a printer can be reached over
type Mode string

const (
	ModeTLS       Mode = "tls"
	ModeNetwork   Mode = "network"
	ModeUSBDriver Mode = "usb-driver"
	ModeUSBDirect Mode = "usb-direct"
)

// Modes lists every mode in display order
var Modes = []Mode{ModeTLS, ModeNetwork, ModeUSBDriver, ModeUSBDirect}

// Label returns the human-readable name shown in the mode picker
func (m Mode) Label() string {
	switch m {
	case ModeTLS:
		return "Network-TLS"
	case ModeNetwork:
		return "Network"
	case ModeUSBDriver:
		return "USB"
	case ModeUSBDirect:
		return "USB Direct"
	default:
		return string(m)
	}
}

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMode accepts either the mode value or its label, case-insensitively
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	for _, m := range Modes {
		if strings.EqualFold(s, string(m)) || strings.EqualFold(s, m.Label()) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// TrustMode is the policy used to validate a TLS printer's certificate
type TrustMode string

const (
	TrustModeAll      TrustMode = "all"
	TrustModeSystem   TrustMode = "system"
	TrustModeCertFile TrustMode = "cert-file"
)

// TrustModes lists every trust mode in display order
var TrustModes = []TrustMode{TrustModeAll, TrustModeSystem, TrustModeCertFile}

// Label returns the radio button text for the trust mode
func (t TrustMode) Label() string {
	switch t {
	case TrustModeAll:
		return "None"
	case TrustModeSystem:
		return "System trust store"
	case TrustModeCertFile:
		return "CA certificate file"
	default:
		return string(t)
	}
}

// ParseTrustMode parses a trust mode value
func ParseTrustMode(s string) (TrustMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "all", "none", "trust-all":
		return TrustModeAll, nil
	case "system", "system-store", "keystore":
		return TrustModeSystem, nil
	case "cert-file", "cert", "file", "ca":
		return TrustModeCertFile, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTrustMode, s)
}

// TrustConfig is the resolved TLS trust policy of a descriptor
type TrustConfig struct {
	Mode     TrustMode `json:"mode"`
	CertPath string    `json:"cert_path,omitempty"`
}

// TrustAll accepts any server certificate
func TrustAll() TrustConfig {
	return TrustConfig{Mode: TrustModeAll}
}

// TrustSystemStore validates against the operating system's roots
func TrustSystemStore() TrustConfig {
	return TrustConfig{Mode: TrustModeSystem}
}

// FromCertificateFile validates against the CA certificate(s) at path
func FromCertificateFile(path string) TrustConfig {
	return TrustConfig{Mode: TrustModeCertFile, CertPath: path}
}
