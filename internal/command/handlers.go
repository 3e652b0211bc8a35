package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/printer"
)

// handleMode switches the active card
// Usage: mode [tls|network|usb-driver|usb-direct]
func (e *Executor) handleMode(args []string) *Result {
	if len(args) == 0 {
		m := e.selector.Mode()
		return ok(fmt.Sprintf("mode is %s", m.Label()), map[string]interface{}{"mode": m})
	}

	m, err := connection.ParseMode(strings.Join(args, " "))
	if err != nil {
		return fail("%v", err)
	}
	changed, err := e.selector.SetMode(m)
	if err != nil {
		return fail("%v", err)
	}
	msg := fmt.Sprintf("switched to %s", m.Label())
	if !changed {
		msg = fmt.Sprintf("already on %s", m.Label())
	}
	return ok(msg, map[string]interface{}{"mode": m, "changed": changed})
}

// handleIP sets both network host fields
// Usage: ip <address>
func (e *Executor) handleIP(args []string) *Result {
	if len(args) != 1 {
		return fail("usage: ip <address>")
	}
	e.selector.SetIPAddress(args[0])
	return ok(fmt.Sprintf("IP address set to %s", args[0]), nil)
}

// handleHost sets the host of the active network card only
// Usage: host <address>
func (e *Executor) handleHost(args []string) *Result {
	if len(args) != 1 {
		return fail("usage: host <address>")
	}
	switch e.selector.Mode() {
	case connection.ModeTLS:
		e.selector.SetTLSHost(args[0])
	case connection.ModeNetwork:
		e.selector.SetNetworkHost(args[0])
	default:
		return fail("host only applies to Network-TLS and Network modes")
	}
	return ok(fmt.Sprintf("host set to %s", args[0]), nil)
}

// handlePort stores port text for the active network card. The text is
// kept verbatim; build falls back to the default port if it is unusable.
// Usage: port <text>
func (e *Executor) handlePort(args []string) *Result {
	text := strings.Join(args, " ")
	switch e.selector.Mode() {
	case connection.ModeTLS:
		e.selector.SetTLSPort(text)
	case connection.ModeNetwork:
		e.selector.SetNetworkPort(text)
	default:
		return fail("port only applies to Network-TLS and Network modes")
	}
	return ok(fmt.Sprintf("port set to %q", text), nil)
}

// handleTrust sets the TLS trust policy
// Usage: trust <all|system|cert-file>
func (e *Executor) handleTrust(args []string) *Result {
	if len(args) != 1 {
		return fail("usage: trust <all|system|cert-file>")
	}
	t, err := connection.ParseTrustMode(args[0])
	if err != nil {
		return fail("%v", err)
	}
	if err := e.selector.SetTrustMode(t); err != nil {
		return fail("%v", err)
	}
	return ok(fmt.Sprintf("trust set to %s", t.Label()), map[string]interface{}{
		"trust_mode":        t,
		"cert_path_enabled": e.selector.CertPathEnabled(),
	})
}

// handleCert sets the CA certificate path. Like the disabled text field,
// it is refused unless trust is cert-file.
// Usage: cert <path>
func (e *Executor) handleCert(args []string) *Result {
	if len(args) != 1 {
		return fail("usage: cert <path>")
	}
	if !e.selector.CertPathEnabled() {
		return fail("certificate path is disabled; run 'trust cert-file' first")
	}
	e.selector.SetCertPath(args[0])
	return ok(fmt.Sprintf("certificate path set to %s", args[0]), nil)
}

// handleAddress sets the USB direct address verbatim
// Usage: address <usb-address>
func (e *Executor) handleAddress(args []string) *Result {
	if len(args) != 1 {
		return fail("usage: address <usb-address>")
	}
	e.selector.SetUSBDirectAddress(args[0])
	return ok(fmt.Sprintf("USB direct address set to %s", args[0]), nil)
}

func (e *Executor) handlePrinters() *Result {
	in := e.selector.USBDriver()
	rows := make([]map[string]interface{}, 0, len(in.Entries))
	for i, entry := range in.Entries {
		rows = append(rows, map[string]interface{}{
			"index":       i,
			"label":       entry.Label(),
			"name":        entry.Printer.Name,
			"placeholder": entry.Placeholder,
			"selected":    i == in.Selected,
		})
	}
	return ok(fmt.Sprintf("%d entr(ies)", len(rows)), map[string]interface{}{
		"printers":    rows,
		"unsupported": in.Unsupported(),
	})
}

// handleSelect selects a driver printer by index or name
// Usage: select <index|name>
func (e *Executor) handleSelect(args []string) *Result {
	if len(args) == 0 {
		return fail("usage: select <index|name>")
	}
	arg := strings.Join(args, " ")

	var err error
	if i, convErr := strconv.Atoi(arg); convErr == nil {
		err = e.selector.SelectDriverPrinter(i)
	} else {
		err = e.selector.SelectDriverPrinterByName(arg)
	}
	if err != nil {
		return fail("%v", err)
	}

	p, _ := e.selector.SelectedDriverPrinter()
	return ok(fmt.Sprintf("selected %s", p.DisplayName()), map[string]interface{}{"printer": p})
}

func (e *Executor) handleRefresh() *Result {
	e.selector.RefreshDiscoveredPrinters()
	res := e.handlePrinters()
	res.Message = "refreshed driver printer list"
	return res
}

func (e *Executor) handleBuild() *Result {
	d, err := e.selector.BuildConnection()
	if err != nil {
		return fail("%v", err)
	}
	return ok(d.String(), map[string]interface{}{"descriptor": d})
}

// handleTest builds the descriptor and returns the dial that opens it,
// sends a host status query and closes the connection again
func (e *Executor) handleTest() (*Result, Dial) {
	if e.opener == nil {
		return fail("connection testing is not available"), nil
	}
	d, err := e.selector.BuildConnection()
	if err != nil {
		return fail("%v", err), nil
	}
	opener, timeout := e.opener, e.probeTimeout
	return nil, func(ctx context.Context) *Result {
		return probe(ctx, opener, d, timeout)
	}
}

func probe(ctx context.Context, opener printer.Opener, d connection.Descriptor, timeout time.Duration) *Result {
	conn, err := opener.Open(ctx, d)
	if err != nil {
		return fail("connection failed: %v", err)
	}
	defer conn.Close()

	data := map[string]interface{}{"descriptor": d}
	reply, err := printer.Probe(conn, timeout)
	switch {
	case errors.Is(err, printer.ErrNoReply):
		return ok(fmt.Sprintf("connected to %s (status query sent, no reply channel)", d), data)
	case err != nil:
		return fail("connected to %s but status query failed: %v", d, err)
	}
	data["status"] = reply
	return ok(fmt.Sprintf("connected to %s", d), data)
}

func (e *Executor) handleState() *Result {
	snap := e.selector.Snapshot()
	return ok(fmt.Sprintf("mode %s", snap.Mode.Label()), map[string]interface{}{"state": snap})
}

func (e *Executor) handleHelp() *Result {
	help := `Available commands:
  mode [tls|network|usb-driver|usb-direct]  Show or switch connection mode
  ip <address>                              Set IP for both Network-TLS and Network
  host <address>                            Set host of the active network mode
  port <number>                             Set port of the active network mode
  trust <all|system|cert-file>              Set TLS certificate validation
  cert <path>                               Set CA certificate file (trust cert-file)
  address <usb-address>                     Set USB direct address (vid:pid or serial port)
  printers                                  List discovered USB driver printers
  select <index|name>                       Select a USB driver printer
  refresh                                   Re-run USB driver printer discovery
  build                                     Show the connection descriptor
  test                                      Open the connection and query host status
  state                                     Dump the whole selector state
  help                                      Show this help`

	return ok(help, nil)
}
