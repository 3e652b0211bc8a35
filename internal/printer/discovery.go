package printer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/google/gousb"

	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/logging"
	"github.com/thereceipt/printlink/internal/registry"
)

// zebraVendorID is the USB vendor ID of Zebra Technologies
const zebraVendorID = "0a5f"

// Discovery lists printers reachable through local drivers. On Linux these
// are usblp character devices described by sysfs; elsewhere printer-class
// USB devices are enumerated through libusb.
type Discovery struct {
	DeviceGlob    string
	SysfsRoot     string
	DisableLibUSB bool
	Registry      *registry.Registry

	goos string
	log  *slog.Logger
}

// NewDiscovery creates a discovery service. reg may be nil.
func NewDiscovery(deviceGlob, sysfsRoot string, disableLibUSB bool, reg *registry.Registry) *Discovery {
	return &Discovery{
		DeviceGlob:    deviceGlob,
		SysfsRoot:     sysfsRoot,
		DisableLibUSB: disableLibUSB,
		Registry:      reg,
		goos:          runtime.GOOS,
		log:           logging.For("discovery"),
	}
}

// ListDriverPrinters enumerates driver printers, Zebra devices first
func (d *Discovery) ListDriverPrinters() ([]connection.DriverPrinter, error) {
	var (
		printers []connection.DriverPrinter
		err      error
	)

	switch {
	case d.goos == "linux":
		printers, err = d.listUSBLP()
	case !d.DisableLibUSB:
		printers, err = d.listLibUSB()
	default:
		err = fmt.Errorf("%w: %s", connection.ErrUnsupportedPlatform, d.goos)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(printers, func(i, j int) bool {
		zi, zj := isZebra(printers[i]), isZebra(printers[j])
		if zi != zj {
			return zi
		}
		return printers[i].Name < printers[j].Name
	})

	if d.Registry != nil {
		for i := range printers {
			id := d.Registry.GetPrinterID(registry.InfoFromDriverPrinter(printers[i]))
			printers[i].ID = id
			if name := d.Registry.GetPrinterName(id); name != "" {
				printers[i].Description = name
			}
		}
	}

	d.log.Debug("driver printers listed", "count", len(printers))
	return printers, nil
}

func (d *Discovery) listUSBLP() ([]connection.DriverPrinter, error) {
	devices, err := filepath.Glob(d.DeviceGlob)
	if err != nil {
		return nil, fmt.Errorf("bad device glob %q: %w", d.DeviceGlob, err)
	}

	printers := make([]connection.DriverPrinter, 0, len(devices))
	for _, dev := range devices {
		p := connection.DriverPrinter{Name: dev, Device: dev}
		d.fillSysfs(&p)
		printers = append(printers, p)
	}
	return printers, nil
}

// fillSysfs reads vendor and product strings from the USB device that owns
// the usblp interface.
func (d *Discovery) fillSysfs(p *connection.DriverPrinter) {
	base := filepath.Base(p.Device)
	ifacePath, err := filepath.EvalSymlinks(filepath.Join(d.SysfsRoot, base, "device"))
	if err != nil {
		return
	}

	parent := filepath.Dir(ifacePath)
	p.VendorID = readTrim(filepath.Join(parent, "idVendor"))
	p.ProductID = readTrim(filepath.Join(parent, "idProduct"))
	manufacturer := readTrim(filepath.Join(parent, "manufacturer"))
	product := readTrim(filepath.Join(parent, "product"))
	p.Description = strings.TrimSpace(manufacturer + " " + product)
}

func readTrim(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (d *Discovery) listLibUSB() ([]connection.DriverPrinter, error) {
	ctx, err := newUSBContext()
	if err != nil {
		return nil, err
	}
	defer ctx.Close()

	devices, err := ctx.OpenDevices(isPrinterClass)
	// OpenDevices returns the devices it could open alongside the error
	// for the ones it could not
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	var printers []connection.DriverPrinter
	for _, dev := range devices {
		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()

		vid := dev.Desc.Vendor.String()
		pid := dev.Desc.Product.String()
		description := strings.TrimSpace(manufacturer + " " + product)
		if description == "" {
			description = fmt.Sprintf("USB: %s:%s", vid, pid)
		}

		printers = append(printers, connection.DriverPrinter{
			Name:        vid + ":" + pid,
			Description: description,
			VendorID:    vid,
			ProductID:   pid,
		})
		dev.Close()
	}
	return printers, nil
}

// isPrinterClass matches devices whose class or any interface class is
// USB printer (7)
func isPrinterClass(desc *gousb.DeviceDesc) bool {
	if desc.Class == gousb.ClassPrinter {
		return true
	}
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}

func isZebra(p connection.DriverPrinter) bool {
	if strings.EqualFold(p.VendorID, zebraVendorID) {
		return true
	}
	text := strings.ToLower(p.Description)
	return strings.Contains(text, "zebra") || strings.Contains(text, "ztc")
}
