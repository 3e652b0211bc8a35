// Package config loads printlink settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/selector"
)

const (
	FileName         = "printlink.yaml"
	registryFileName = "printer_registry.json"
	appDirName       = "printlink"
	defaultPort      = "12212"
)

// For mocking in tests
var (
	osExecutable = os.Executable
	osGetwd      = os.Getwd
	osGetenv     = os.Getenv
)

// Config is the full application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LogLevel  string          `yaml:"log_level"`
	Registry  string          `yaml:"registry"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Dial      DialConfig      `yaml:"dial"`
	Selector  SelectorConfig  `yaml:"selector"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// Addr returns host:port for listening
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// DiscoveryConfig locates driver-backed printers
type DiscoveryConfig struct {
	DeviceGlob    string `yaml:"device_glob"`
	SysfsRoot     string `yaml:"sysfs_root"`
	DisableLibUSB bool   `yaml:"disable_libusb"`
}

// DialConfig bounds connection attempts
type DialConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// SelectorConfig seeds the connection panel
type SelectorConfig struct {
	Mode        string `yaml:"mode"`
	Host        string `yaml:"host"`
	TLSPort     string `yaml:"tls_port"`
	NetworkPort string `yaml:"network_port"`
	TrustMode   string `yaml:"trust_mode"`
	CertPath    string `yaml:"cert_path"`
	USBAddress  string `yaml:"usb_address"`
}

// Options converts the seed values into selector options. Validate must
// have accepted the config first.
func (c SelectorConfig) Options() []selector.Option {
	mode, _ := connection.ParseMode(c.Mode)
	trust, _ := connection.ParseTrustMode(c.TrustMode)
	return []selector.Option{
		selector.WithMode(mode),
		selector.WithTLS(selector.TLSInputs{
			Host:      c.Host,
			Port:      c.TLSPort,
			TrustMode: trust,
			CertPath:  c.CertPath,
		}),
		selector.WithNetwork(selector.NetworkInputs{Host: c.Host, Port: c.NetworkPort}),
		selector.WithUSBDirectAddress(c.USBAddress),
	}
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: defaultPort},
		LogLevel: "info",
		Discovery: DiscoveryConfig{
			DeviceGlob: "/dev/usb/lp*",
			SysfsRoot:  "/sys/class/usbmisc",
		},
		Dial: DialConfig{Timeout: 5 * time.Second},
		Selector: SelectorConfig{
			Mode:      string(connection.ModeTLS),
			TrustMode: string(connection.TrustModeAll),
		},
	}
}

// Load builds the configuration. An explicit path must exist; otherwise
// printlink.yaml in the working directory is used when present.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		if wd, err := osGetwd(); err == nil {
			candidate := filepath.Join(wd, FileName)
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}

	if path != "" {
		overlay, err := loadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
		}
		cfg = merge(cfg, overlay)
	}

	if port := osGetenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}
	if lvl := osGetenv("PRINTLINK_LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if cfg.Registry == "" {
		cfg.Registry = RegistryPath()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime
func (c Config) Validate() error {
	if _, err := connection.ParseMode(c.Selector.Mode); err != nil {
		return fmt.Errorf("selector.mode: %w", err)
	}
	if _, err := connection.ParseTrustMode(c.Selector.TrustMode); err != nil {
		return fmt.Errorf("selector.trust_mode: %w", err)
	}
	if c.Dial.Timeout <= 0 {
		return fmt.Errorf("dial.timeout must be positive, got %s", c.Dial.Timeout)
	}
	return nil
}

func loadFile(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// merge overlays the non-zero fields of overlay on base
func merge(base, overlay Config) Config {
	out := base

	if overlay.Server.Host != "" {
		out.Server.Host = overlay.Server.Host
	}
	if overlay.Server.Port != "" {
		out.Server.Port = overlay.Server.Port
	}
	if overlay.LogLevel != "" {
		out.LogLevel = overlay.LogLevel
	}
	if overlay.Registry != "" {
		out.Registry = overlay.Registry
	}
	if overlay.Discovery.DeviceGlob != "" {
		out.Discovery.DeviceGlob = overlay.Discovery.DeviceGlob
	}
	if overlay.Discovery.SysfsRoot != "" {
		out.Discovery.SysfsRoot = overlay.Discovery.SysfsRoot
	}
	if overlay.Discovery.DisableLibUSB {
		out.Discovery.DisableLibUSB = true
	}
	if overlay.Dial.Timeout != 0 {
		out.Dial.Timeout = overlay.Dial.Timeout
	}

	sel := overlay.Selector
	if sel.Mode != "" {
		out.Selector.Mode = sel.Mode
	}
	if sel.Host != "" {
		out.Selector.Host = sel.Host
	}
	if sel.TLSPort != "" {
		out.Selector.TLSPort = sel.TLSPort
	}
	if sel.NetworkPort != "" {
		out.Selector.NetworkPort = sel.NetworkPort
	}
	if sel.TrustMode != "" {
		out.Selector.TrustMode = sel.TrustMode
	}
	if sel.CertPath != "" {
		out.Selector.CertPath = sel.CertPath
	}
	if sel.USBAddress != "" {
		out.Selector.USBAddress = sel.USBAddress
	}
	return out
}

// RegistryPath returns where the printer registry is kept: next to the
// executable when that directory is writable, else the working directory,
// else the user config directory.
func RegistryPath() string {
	if exePath, err := osExecutable(); err == nil {
		exeDir := filepath.Dir(exePath)
		if writable(exeDir) {
			return filepath.Join(exeDir, registryFileName)
		}
	}

	if wd, err := osGetwd(); err == nil {
		return filepath.Join(wd, registryFileName)
	}

	var configDir string
	if runtime.GOOS == "windows" {
		if appData := osGetenv("APPDATA"); appData != "" {
			configDir = filepath.Join(appData, appDirName)
		} else {
			configDir = filepath.Join(osGetenv("USERPROFILE"), appDirName)
		}
	} else if home := osGetenv("HOME"); home != "" {
		configDir = filepath.Join(home, ".config", appDirName)
	}

	if configDir != "" {
		os.MkdirAll(configDir, 0755)
		return filepath.Join(configDir, registryFileName)
	}
	return registryFileName
}

func writable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	testFile := filepath.Join(dir, ".printlink-write-test")
	f, err := os.Create(testFile)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(testFile)
	return true
}
