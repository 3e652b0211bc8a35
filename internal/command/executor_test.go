package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/printer"
	"github.com/thereceipt/printlink/internal/selector"
)

type recordingConn struct {
	desc    connection.Descriptor
	written []byte
	closed  bool
}

func (c *recordingConn) Write(p []byte) (int, error) {
	c.written = append(c.written, p...)
	return len(p), nil
}

func (c *recordingConn) Close() error {
	c.closed = true
	return nil
}

func (c *recordingConn) Descriptor() connection.Descriptor { return c.desc }

type stubOpener struct {
	conn *recordingConn
	err  error
}

func (s *stubOpener) Open(_ context.Context, d connection.Descriptor) (printer.Conn, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.conn = &recordingConn{desc: d}
	return s.conn, nil
}

func newExecutor(t *testing.T, opener printer.Opener) (*Executor, *selector.Selector) {
	t.Helper()
	sel := selector.New(selector.DiscovererFunc(func() ([]connection.DriverPrinter, error) {
		return []connection.DriverPrinter{
			{Name: "/dev/usb/lp0", Description: "Zebra ZT410"},
			{Name: "/dev/usb/lp1", Description: "EPSON TM-T20"},
		}, nil
	}))
	return NewExecutor(sel, opener), sel
}

func run(t *testing.T, e *Executor, cmd string) *Result {
	t.Helper()
	return e.Execute(context.Background(), cmd)
}

func TestParseCommand(t *testing.T) {
	assert.Equal(t, []string{}, parseCommand("   "))
	assert.Equal(t, []string{"mode", "usb", "direct"}, parseCommand("mode usb direct"))
	assert.Equal(t, []string{"select", "Zebra ZT410"}, parseCommand(`select "Zebra ZT410"`))
	assert.Equal(t, []string{"cert", "/a b/it's.pem"}, parseCommand(`cert "/a b/it's.pem"`))
	assert.Equal(t, []string{"port", ""}, parseCommand(`port ""`))
}

func TestExecute_Unknown(t *testing.T) {
	e, _ := newExecutor(t, nil)
	assert.False(t, run(t, e, "").Success)

	res := run(t, e, "print 1 receipt.json")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown command")
}

func TestExecute_NetworkFlow(t *testing.T) {
	e, sel := newExecutor(t, nil)

	res := run(t, e, "mode network")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, true, res.Data["changed"])

	res = run(t, e, "mode Network")
	require.True(t, res.Success)
	assert.Equal(t, false, res.Data["changed"])

	require.True(t, run(t, e, "ip 10.0.0.5").Success)
	require.True(t, run(t, e, "port abc").Success)
	assert.Equal(t, "abc", sel.Network().Port)

	res = run(t, e, "build")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, connection.TCP("10.0.0.5", 9100), res.Data["descriptor"])
	assert.Equal(t, "tcp://10.0.0.5:9100", res.Message)
}

func TestExecute_TLSTrust(t *testing.T) {
	e, sel := newExecutor(t, nil)

	res := run(t, e, "cert /ca.pem")
	assert.False(t, res.Success, "cert path is disabled under trust all")

	require.True(t, run(t, e, "trust cert-file").Success)
	require.True(t, run(t, e, "cert /ca.pem").Success)
	require.True(t, run(t, e, "host printer.local").Success)
	require.True(t, run(t, e, "port 9999").Success)

	res = run(t, e, "build")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, connection.TLS("printer.local", 9999, connection.FromCertificateFile("/ca.pem")), res.Data["descriptor"])
	assert.Equal(t, "", sel.Network().Host, "host only touches the active card")

	assert.False(t, run(t, e, "trust pinned").Success)
}

func TestExecute_USBDriver(t *testing.T) {
	e, _ := newExecutor(t, nil)
	require.True(t, run(t, e, "mode usb").Success)

	res := run(t, e, "build")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no USB driver printer selected")

	res = run(t, e, "printers")
	require.True(t, res.Success)
	assert.Len(t, res.Data["printers"], 2)

	assert.False(t, run(t, e, `select "EPSON TM-T20"`).Success, "select by name matches the driver name")
	require.True(t, run(t, e, "select /dev/usb/lp1").Success)

	res = run(t, e, "build")
	require.True(t, res.Success)
	assert.Equal(t, connection.Driver("/dev/usb/lp1"), res.Data["descriptor"])

	res = run(t, e, "refresh")
	require.True(t, res.Success)
	assert.Equal(t, "refreshed driver printer list", res.Message)

	assert.False(t, run(t, e, "select 7").Success)
	assert.False(t, run(t, e, "host x").Success)
	assert.False(t, run(t, e, "port 1").Success)
}

func TestExecute_USBDirect(t *testing.T) {
	e, _ := newExecutor(t, nil)
	require.True(t, run(t, e, "mode usb-direct").Success)
	require.True(t, run(t, e, "address 0a5f:0166").Success)

	res := run(t, e, "build")
	require.True(t, res.Success)
	assert.Equal(t, "usb://0a5f:0166", res.Message)
}

func TestExecute_Test(t *testing.T) {
	e, _ := newExecutor(t, nil)
	assert.False(t, run(t, e, "test").Success, "no opener configured")

	opener := &stubOpener{}
	e, _ = newExecutor(t, opener)
	run(t, e, "ip 10.0.0.5")

	res := run(t, e, "test")
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Message, "no reply channel")
	assert.Equal(t, "~HS\r\n", string(opener.conn.written))
	assert.True(t, opener.conn.closed)

	e, _ = newExecutor(t, &stubOpener{err: errors.New("connection refused")})
	res = run(t, e, "test")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "connection refused")
}

func TestPrepare_TestDialsOutsideSelector(t *testing.T) {
	opener := &stubOpener{}
	e, sel := newExecutor(t, opener)
	sel.SetIPAddress("10.0.0.5")

	res, dial := e.Prepare("test")
	assert.Nil(t, res)
	require.NotNil(t, dial)
	assert.Nil(t, opener.conn, "nothing is opened before the dial runs")

	sel.SetIPAddress("10.0.0.6")
	res = dial(context.Background())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "tls://10.0.0.5:9143?trust=all", opener.conn.desc.String())

	res, dial = e.Prepare("mode network")
	assert.True(t, res.Success)
	assert.Nil(t, dial)
}

func TestExecute_StateAndHelp(t *testing.T) {
	e, _ := newExecutor(t, nil)

	res := run(t, e, "state")
	require.True(t, res.Success)
	snap, isSnap := res.Data["state"].(selector.Snapshot)
	require.True(t, isSnap)
	assert.Equal(t, connection.ModeTLS, snap.Mode)

	res = run(t, e, "help")
	require.True(t, res.Success)
	assert.Contains(t, res.Message, "trust <all|system|cert-file>")

	res = run(t, e, "mode")
	require.True(t, res.Success)
	assert.Equal(t, "mode is Network-TLS", res.Message)
}
