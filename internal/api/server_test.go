package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/printer"
	"github.com/thereceipt/printlink/internal/registry"
	"github.com/thereceipt/printlink/internal/selector"
)

type memConn struct {
	desc connection.Descriptor
	data []byte
}

func (c *memConn) Write(p []byte) (int, error) {
	c.data = append(c.data, p...)
	return len(p), nil
}

func (c *memConn) Close() error                      { return nil }
func (c *memConn) Descriptor() connection.Descriptor { return c.desc }

type fakeOpener struct {
	mu     sync.Mutex
	opened []connection.Descriptor
	err    error
}

func (f *fakeOpener) Open(_ context.Context, d connection.Descriptor) (printer.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.opened = append(f.opened, d)
	return &memConn{desc: d}, nil
}

type countingDiscoverer struct {
	mu       sync.Mutex
	printers []connection.DriverPrinter
	calls    int
}

func (d *countingDiscoverer) ListDriverPrinters() ([]connection.DriverPrinter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.printers, nil
}

type fixture struct {
	server *Server
	sel    *selector.Selector
	opener *fakeOpener
	disc   *countingDiscoverer
	reg    *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	disc := &countingDiscoverer{printers: []connection.DriverPrinter{
		{Name: "/dev/usb/lp0", Description: "Zebra ZD421"},
		{Name: "/dev/usb/lp1", Description: "Generic Printer"},
	}}
	reg, err := registry.New(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)

	sel := selector.New(disc)
	opener := &fakeOpener{}
	srv := NewServer(Deps{
		Selector: sel,
		Opener:   opener,
		Pool:     printer.NewConnectionPool(opener),
		Registry: reg,
	})
	return &fixture{server: srv, sel: sel, opener: opener, disc: disc, reg: reg}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, 200, code)
	assert.Equal(t, "ok", body["status"])
}

func TestGetSelectorDefaults(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/selector", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "tls", body["mode"])
	assert.Equal(t, "all", body["tls"].(map[string]interface{})["trust_mode"])
	assert.Equal(t, false, body["cert_path_enabled"])

	driver := body["usb_driver"].(map[string]interface{})
	assert.Len(t, driver["entries"], 2)
	assert.EqualValues(t, -1, driver["selected"])
}

func TestSetMode(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPut, "/selector/mode", map[string]string{"mode": "network"})
	assert.Equal(t, 200, code)
	assert.Equal(t, "network", body["mode"])

	code, body = f.do(t, http.MethodPut, "/selector/mode", map[string]string{"mode": "USB Direct"})
	assert.Equal(t, 200, code)
	assert.Equal(t, "usb-direct", body["mode"])

	code, _ = f.do(t, http.MethodPut, "/selector/mode", map[string]string{"mode": "bluetooth"})
	assert.Equal(t, 400, code)

	code, _ = f.do(t, http.MethodPut, "/selector/mode", map[string]string{})
	assert.Equal(t, 400, code)
}

func TestBuildNetworkConnectionFallsBackToDefaultPort(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPut, "/selector/mode", map[string]string{"mode": "network"})
	code, _ := f.do(t, http.MethodPut, "/selector/network", map[string]string{"host": " 10.0.0.5 ", "port": "abc"})
	require.Equal(t, 200, code)

	code, body := f.do(t, http.MethodPost, "/connection", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "tcp://10.0.0.5:9100", body["uri"])
}

func TestBuildTLSWithCertificateFile(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodPut, "/selector/tls", map[string]string{
		"host":       "printer.local",
		"port":       "9243",
		"trust_mode": "cert-file",
		"cert_path":  " /etc/printlink/ca.pem ",
	})
	require.Equal(t, 200, code)
	assert.Equal(t, true, body["cert_path_enabled"])

	code, body = f.do(t, http.MethodPost, "/connection", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "tls://printer.local:9243?trust=cert-file&ca=/etc/printlink/ca.pem", body["uri"])

	code, _ = f.do(t, http.MethodPut, "/selector/trust", map[string]string{"trust_mode": "system"})
	require.Equal(t, 200, code)
	_, body = f.do(t, http.MethodPost, "/connection", nil)
	assert.Equal(t, "tls://printer.local:9243?trust=system", body["uri"])
	assert.Equal(t, " /etc/printlink/ca.pem ", f.sel.TLS().CertPath, "cert path survives a trust change")

	code, _ = f.do(t, http.MethodPut, "/selector/trust", map[string]string{"trust_mode": "pinned"})
	assert.Equal(t, 400, code)
}

func TestBuildDriverRequiresSelection(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPut, "/selector/mode", map[string]string{"mode": "usb-driver"})

	code, body := f.do(t, http.MethodPost, "/connection", nil)
	assert.Equal(t, 400, code)
	assert.Contains(t, body["error"], connection.ErrInvalidState.Error())

	code, _ = f.do(t, http.MethodPost, "/selector/usb-driver/select", map[string]int{"index": 5})
	assert.Equal(t, 400, code)

	code, _ = f.do(t, http.MethodPost, "/selector/usb-driver/select", map[string]int{"index": 1})
	require.Equal(t, 200, code)
	_, body = f.do(t, http.MethodPost, "/connection", nil)
	assert.Equal(t, "driver:///dev/usb/lp1", body["uri"])

	code, _ = f.do(t, http.MethodPost, "/selector/usb-driver/select", map[string]string{"name": "/dev/usb/lp0"})
	require.Equal(t, 200, code)
	_, body = f.do(t, http.MethodPost, "/connection", nil)
	assert.Equal(t, "driver:///dev/usb/lp0", body["uri"])
}

func TestSetIPAddress(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodPut, "/selector/ip", map[string]string{"address": "192.168.1.20"})
	require.Equal(t, 200, code)
	assert.Equal(t, "192.168.1.20", f.sel.TLS().Host)
	assert.Equal(t, "192.168.1.20", f.sel.Network().Host)

	_, body := f.do(t, http.MethodGet, "/selector/ip", nil)
	assert.Equal(t, "192.168.1.20", body["address"])

	f.do(t, http.MethodPut, "/selector/mode", map[string]string{"mode": "usb-direct"})
	_, body = f.do(t, http.MethodGet, "/selector/ip", nil)
	assert.Equal(t, "", body["address"])
}

func TestFocusRefreshesOnce(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 1, f.disc.calls)

	f.do(t, http.MethodPost, "/selector/focus", map[string]bool{"focused": true})
	f.do(t, http.MethodPost, "/selector/focus", map[string]bool{"focused": true})
	assert.Equal(t, 2, f.disc.calls)

	f.do(t, http.MethodPost, "/selector/focus", map[string]bool{"focused": false})
	f.do(t, http.MethodPost, "/selector/focus", map[string]bool{"focused": true})
	assert.Equal(t, 3, f.disc.calls)

	f.do(t, http.MethodPost, "/selector/refresh", nil)
	assert.Equal(t, 4, f.disc.calls)
}

func TestTestConnection(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPut, "/selector/mode", map[string]string{"mode": "network"})
	f.do(t, http.MethodPut, "/selector/network", map[string]string{"host": "10.0.0.5"})

	code, body := f.do(t, http.MethodPost, "/connection/test", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []connection.Descriptor{connection.TCP("10.0.0.5", 9100)}, f.opener.opened)

	f.opener.err = errors.New("connection refused")
	code, body = f.do(t, http.MethodPost, "/connection/test", nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body["error"], "connection refused")
}

func TestOpenConnectionRegistersPrinter(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPut, "/selector/mode", map[string]string{"mode": "network"})
	f.do(t, http.MethodPut, "/selector/network", map[string]string{"host": "10.0.0.5", "port": "9101"})

	code, body := f.do(t, http.MethodPost, "/connection/open", nil)
	require.Equal(t, 200, code)
	id, _ := body["printer_id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, false, body["already_open"])

	_, body = f.do(t, http.MethodPost, "/connection/open", nil)
	assert.Equal(t, true, body["already_open"])
	assert.Equal(t, id, body["printer_id"])
	assert.Len(t, f.opener.opened, 1)

	_, body = f.do(t, http.MethodGet, "/connections", nil)
	assert.Equal(t, []interface{}{"tcp://10.0.0.5:9101"}, body["uris"])

	code, body = f.do(t, http.MethodGet, "/printer/"+id, nil)
	require.Equal(t, 200, code)
	entry, _ := body["printer"].(map[string]interface{})
	assert.Equal(t, "network", entry["mode"])
	assert.Equal(t, "10.0.0.5:9101", entry["target"])
	code, _ = f.do(t, http.MethodGet, "/printer/unknown", nil)
	assert.Equal(t, 404, code)

	code, body = f.do(t, http.MethodPost, "/connection/close", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, true, body["was_open"])
	_, body = f.do(t, http.MethodPost, "/connection/close", nil)
	assert.Equal(t, false, body["was_open"])
	f.do(t, http.MethodPost, "/connection/open", nil)

	code, _ = f.do(t, http.MethodPost, "/printer/"+id+"/name", map[string]string{"name": "Front desk"})
	require.Equal(t, 200, code)
	assert.Equal(t, "Front desk", f.reg.GetPrinterName(id))

	code, _ = f.do(t, http.MethodPost, "/printer/unknown/name", map[string]string{"name": "x"})
	assert.Equal(t, 404, code)

	f.do(t, http.MethodDelete, "/connections", nil)
	_, body = f.do(t, http.MethodGet, "/connections", nil)
	assert.Empty(t, body["uris"])

	code, _ = f.do(t, http.MethodDelete, "/printer/"+id, nil)
	assert.Equal(t, 200, code)
	code, _ = f.do(t, http.MethodDelete, "/printer/"+id, nil)
	assert.Equal(t, 404, code)
}

type blockingOpener struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingOpener) Open(ctx context.Context, d connection.Descriptor) (printer.Conn, error) {
	close(b.entered)
	select {
	case <-b.release:
		return &memConn{desc: d}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCommandTestReleasesSelectorWhileDialing(t *testing.T) {
	opener := &blockingOpener{entered: make(chan struct{}), release: make(chan struct{})}
	sel := selector.New(&countingDiscoverer{})
	sel.SetIPAddress("10.0.0.5")
	srv := NewServer(Deps{Selector: sel, Opener: opener})

	done := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(`{"command":"test"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		done <- w.Code
	}()
	<-opener.entered

	served := make(chan int, 1)
	go func() {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/selector", nil))
		served <- w.Code
	}()
	select {
	case code := <-served:
		assert.Equal(t, 200, code)
	case <-time.After(2 * time.Second):
		t.Fatal("selector route blocked while a connection test was dialing")
	}

	close(opener.release)
	assert.Equal(t, 200, <-done)
}

func TestCommandEndpoint(t *testing.T) {
	f := newFixture(t)
	changes := 0
	f.server.OnChange = func() { changes++ }

	code, body := f.do(t, http.MethodPost, "/command", map[string]string{"command": "mode usb-direct"})
	require.Equal(t, 200, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, connection.ModeUSBDirect, f.sel.Mode())
	assert.Equal(t, 1, changes)

	code, body = f.do(t, http.MethodPost, "/command", map[string]string{"command": "frobnicate"})
	assert.Equal(t, 400, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, 1, changes)

	code, _ = f.do(t, http.MethodPost, "/command", map[string]string{})
	assert.Equal(t, 400, code)
}

func TestWebSocketStateAndCommands(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() WSMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	assert.Equal(t, EventState, first.Event)

	require.NoError(t, conn.WriteJSON(WSMessage{Event: EventCommand, Data: map[string]interface{}{"command": "mode network"}}))
	resp := read()
	assert.Equal(t, EventResponse, resp.Event)
	assert.Equal(t, true, resp.Data["success"])

	state := read()
	require.Equal(t, EventState, state.Event)
	assert.Equal(t, "network", state.Data["state"].(map[string]interface{})["mode"])

	require.NoError(t, conn.WriteJSON(WSMessage{Event: "print"}))
	errMsg := read()
	assert.Equal(t, EventError, errMsg.Event)

	// HTTP mutations are pushed as well
	f.do(t, http.MethodPut, "/selector/mode", map[string]string{"mode": "usb-driver"})
	pushed := read()
	require.Equal(t, EventState, pushed.Event)
	assert.Equal(t, "usb-driver", pushed.Data["state"].(map[string]interface{})["mode"])

	f.server.BroadcastPrinterAdded(connection.DriverPrinter{Name: "/dev/usb/lp2"})
	added := read()
	assert.Equal(t, EventPrinterAdded, added.Event)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, 400, errorStatus(connection.ErrInvalidState))
	assert.Equal(t, 400, errorStatus(connection.ErrUnknownMode))
	assert.Equal(t, 502, errorStatus(errors.New("dial tcp: timeout")))
}

func TestConnectionQRCode(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPut, "/selector/tls", map[string]string{"host": "10.0.0.5"})

	req := httptest.NewRequest(http.MethodGet, "/connection/qr?size=128", nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte("\x89PNG"), w.Body.Bytes()[:4])

	req = httptest.NewRequest(http.MethodGet, "/connection/qr?size=big", nil)
	w = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, 400, w.Code)
}
