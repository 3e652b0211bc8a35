// Package registry manages persistent printer IDs and custom names
package registry

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/logging"
)

// Registry manages printer identities and custom names
type Registry struct {
	filePath string
	data     map[string]*PrinterEntry
	mu       sync.RWMutex
}

// PrinterEntry stores persistent information about a printer
type PrinterEntry struct {
	ID          string          `json:"id"`
	IdentityKey string          `json:"identity_key"`
	Mode        connection.Mode `json:"mode"`
	VendorID    string          `json:"vendor_id,omitempty"`
	ProductID   string          `json:"product_id,omitempty"`
	Device      string          `json:"device,omitempty"`
	Target      string          `json:"target,omitempty"`
	Description string          `json:"description"`
	Name        string          `json:"name,omitempty"` // Custom user-set name
}

// PrinterInfo is what discovery knows about a printer
type PrinterInfo struct {
	Mode        connection.Mode
	Description string
	Device      string
	VendorID    string
	ProductID   string
	// Target is the descriptor string for network printers
	Target string
}

// InfoFromDriverPrinter converts a discovered driver printer. Device is the
// driver name, which is all a driver descriptor carries.
func InfoFromDriverPrinter(p connection.DriverPrinter) PrinterInfo {
	return PrinterInfo{
		Mode:        connection.ModeUSBDriver,
		Description: p.DisplayName(),
		Device:      p.Name,
		VendorID:    p.VendorID,
		ProductID:   p.ProductID,
	}
}

// InfoFromDescriptor converts a descriptor the user connected to
func InfoFromDescriptor(d connection.Descriptor) PrinterInfo {
	info := PrinterInfo{Mode: d.Mode, Description: d.String()}
	switch d.Mode {
	case connection.ModeUSBDriver:
		info.Device = d.PrinterName
	case connection.ModeUSBDirect:
		info.Device = d.Address
	default:
		info.Target = d.HostPort()
	}
	return info
}

// New creates a new Registry
func New(filePath string) (*Registry, error) {
	r := &Registry{
		filePath: filePath,
		data:     make(map[string]*PrinterEntry),
	}

	if err := r.load(); err != nil {
		// A missing file is created on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load registry: %w", err)
		}
	}

	return r, nil
}

// GetPrinterID gets or creates a persistent ID for a printer
func (r *Registry) GetPrinterID(info PrinterInfo) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	identityKey := generateIdentityKey(info)

	if entry, exists := r.data[identityKey]; exists {
		return entry.ID
	}

	printerID := uuid.New().String()

	r.data[identityKey] = &PrinterEntry{
		ID:          printerID,
		IdentityKey: identityKey,
		Mode:        info.Mode,
		VendorID:    info.VendorID,
		ProductID:   info.ProductID,
		Device:      info.Device,
		Target:      info.Target,
		Description: info.Description,
	}

	if err := r.save(); err != nil {
		logging.For("registry").Warn("failed to save registry", "path", r.filePath, "error", err)
	}

	return printerID
}

// GetPrinterName gets the custom name for a printer, or empty string if not set
func (r *Registry) GetPrinterName(printerID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry := r.find(printerID); entry != nil {
		return entry.Name
	}
	return ""
}

// SetPrinterName sets a custom name for a printer
func (r *Registry) SetPrinterName(printerID string, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.find(printerID)
	if entry == nil {
		return false
	}
	entry.Name = name
	if err := r.save(); err != nil {
		logging.For("registry").Warn("failed to save registry", "path", r.filePath, "error", err)
	}
	return true
}

// GetPrinterInfo gets all stored information for a printer
func (r *Registry) GetPrinterInfo(printerID string) *PrinterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry := r.find(printerID); entry != nil {
		entryCopy := *entry
		return &entryCopy
	}
	return nil
}

// RemovePrinter removes a printer from the registry
func (r *Registry) RemovePrinter(printerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, entry := range r.data {
		if entry.ID == printerID {
			delete(r.data, key)
			if err := r.save(); err != nil {
				logging.For("registry").Warn("failed to save registry", "path", r.filePath, "error", err)
			}
			return true
		}
	}
	return false
}

// GetAll returns copies of all registered printers ordered by description
func (r *Registry) GetAll() []PrinterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]PrinterEntry, 0, len(r.data))
	for _, v := range r.data {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Description != result[j].Description {
			return result[i].Description < result[j].Description
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (r *Registry) find(printerID string) *PrinterEntry {
	for _, entry := range r.data {
		if entry.ID == printerID {
			return entry
		}
	}
	return nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &r.data)
}

func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(r.filePath, data, 0644)
}

// generateIdentityKey creates a unique key for a printer based on its characteristics
func generateIdentityKey(info PrinterInfo) string {
	switch info.Mode {
	case connection.ModeUSBDriver:
		// Driver printers are opened by name, so the name is the identity
		if info.Device != "" {
			return fmt.Sprintf("%s:%s", info.Mode, info.Device)
		}
	case connection.ModeUSBDirect:
		if info.VendorID != "" && info.ProductID != "" {
			return fmt.Sprintf("usb:%s:%s:%s", info.VendorID, info.ProductID, info.Device)
		}
		if info.Device != "" {
			return fmt.Sprintf("%s:%s", info.Mode, info.Device)
		}
	case connection.ModeTLS, connection.ModeNetwork:
		if info.Target != "" {
			return fmt.Sprintf("%s:%s", info.Mode, info.Target)
		}
	}

	// Fallback: hash the description
	hash := md5.Sum([]byte(info.Description))
	return fmt.Sprintf("hash:%x", hash)
}
