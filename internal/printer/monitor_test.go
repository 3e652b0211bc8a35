package printer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/thereceipt/printlink/internal/connection"
)

type stubLister struct {
	printers []connection.DriverPrinter
	err      error
}

func (s *stubLister) ListDriverPrinters() ([]connection.DriverPrinter, error) {
	return s.printers, s.err
}

func TestMonitorCheckChanges(t *testing.T) {
	lister := &stubLister{printers: []connection.DriverPrinter{{Name: "lp0"}, {Name: "lp1"}}}
	m := NewMonitor(lister, 0)

	var added, removed []string
	m.OnPrinterAdded(func(p connection.DriverPrinter) { added = append(added, p.Name) })
	m.OnPrinterRemoved(func(p connection.DriverPrinter) { removed = append(removed, p.Name) })

	previous := make(map[string]connection.DriverPrinter)
	m.checkChanges(previous)
	assert.ElementsMatch(t, []string{"lp0", "lp1"}, added)
	assert.Empty(t, removed)

	added = nil
	lister.printers = []connection.DriverPrinter{{Name: "lp1"}, {Name: "lp2"}}
	m.checkChanges(previous)
	assert.Equal(t, []string{"lp2"}, added)
	assert.Equal(t, []string{"lp0"}, removed)

	added, removed = nil, nil
	lister.err = errors.New("boom")
	m.checkChanges(previous)
	assert.Empty(t, added)
	assert.Empty(t, removed)
	assert.Len(t, previous, 2, "a failed poll keeps the previous state")
}
