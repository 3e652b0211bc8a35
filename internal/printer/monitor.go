package printer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/logging"
)

// Lister is satisfied by Discovery
type Lister interface {
	ListDriverPrinters() ([]connection.DriverPrinter, error)
}

// Monitor polls discovery and reports driver printers that appear or vanish
type Monitor struct {
	lister   Lister
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      *slog.Logger

	onAdded   func(connection.DriverPrinter)
	onRemoved func(connection.DriverPrinter)
}

// NewMonitor creates a new printer monitor
func NewMonitor(lister Lister, interval time.Duration) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		lister:   lister,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		log:      logging.For("monitor"),
	}
}

// OnPrinterAdded sets a callback for when a printer appears
func (m *Monitor) OnPrinterAdded(fn func(connection.DriverPrinter)) {
	m.onAdded = fn
}

// OnPrinterRemoved sets a callback for when a printer disappears
func (m *Monitor) OnPrinterRemoved(fn func(connection.DriverPrinter)) {
	m.onRemoved = fn
}

// Start begins monitoring. Printers present at start are reported as added
// on the first tick.
func (m *Monitor) Start() {
	previous := make(map[string]connection.DriverPrinter)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.checkChanges(previous)
			}
		}
	}()
}

// Stop stops the monitor and waits for the poll loop to exit
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) checkChanges(previous map[string]connection.DriverPrinter) {
	printers, err := m.lister.ListDriverPrinters()
	if err != nil {
		m.log.Debug("printer detection failed", "error", err)
		return
	}

	current := make(map[string]connection.DriverPrinter, len(printers))
	for _, p := range printers {
		current[p.Name] = p
	}

	for name, p := range current {
		if _, exists := previous[name]; !exists {
			m.log.Info("printer added", "name", p.Name, "description", p.Description)
			if m.onAdded != nil {
				m.onAdded(p)
			}
		}
	}

	for name, p := range previous {
		if _, exists := current[name]; !exists {
			m.log.Info("printer removed", "name", p.Name)
			if m.onRemoved != nil {
				m.onRemoved(p)
			}
		}
	}

	for name := range previous {
		delete(previous, name)
	}
	for name, p := range current {
		previous[name] = p
	}
}
