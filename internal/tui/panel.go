package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/selector"
)

// field identifies a focusable control on the panel
type field int

const (
	fieldMode field = iota
	fieldHost
	fieldPort
	fieldTrust
	fieldCertPath
	fieldBrowse
	fieldPrinters
	fieldAddress
)

// browseRequestMsg asks the app to open the certificate file picker
type browseRequestMsg struct{}

// selectionFailedMsg reports a driver list row that cannot be selected
type selectionFailedMsg struct {
	err error
}

// PanelModel renders and edits a selector. Text inputs mirror the
// selector fields; the selector stays the source of truth.
type PanelModel struct {
	sel *selector.Selector

	tlsHost     textinput.Model
	tlsPort     textinput.Model
	certPath    textinput.Model
	networkHost textinput.Model
	networkPort textinput.Model
	address     textinput.Model

	focus  int
	cursor int // highlighted row of the driver printer list
	width  int
	height int
}

func newInput(placeholder string, limit, width int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Width = width
	return in
}

// NewPanelModel creates a panel bound to sel
func NewPanelModel(sel *selector.Selector) PanelModel {
	p := PanelModel{
		sel:         sel,
		tlsHost:     newInput("192.168.1.100", 253, 30),
		tlsPort:     newInput(fmt.Sprint(connection.DefaultTLSPort), 5, 10),
		certPath:    newInput("/path/to/ca.pem", 1024, 40),
		networkHost: newInput("192.168.1.100", 253, 30),
		networkPort: newInput(fmt.Sprint(connection.DefaultNetworkPort), 5, 10),
		address:     newInput("0a5f:0166 or /dev/ttyACM0", 256, 40),
	}
	p.Sync()
	return p
}

// SetSize sets the component size
func (p *PanelModel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// Sync copies the selector state into the text inputs
func (p *PanelModel) Sync() {
	tls := p.sel.TLS()
	net := p.sel.Network()
	p.tlsHost.SetValue(tls.Host)
	p.tlsPort.SetValue(tls.Port)
	p.certPath.SetValue(tls.CertPath)
	p.networkHost.SetValue(net.Host)
	p.networkPort.SetValue(net.Port)
	p.address.SetValue(p.sel.USBDirect().Address)

	if sel := p.sel.USBDriver().Selected; sel >= 0 {
		p.cursor = sel
	}
	p.clampCursor()
	p.clampFocus()
	p.applyFocus()
}

// fields lists the focusable controls of the active card. The certificate
// path and browse button only exist while trust is cert-file.
func (p PanelModel) fields() []field {
	switch p.sel.Mode() {
	case connection.ModeTLS:
		f := []field{fieldMode, fieldHost, fieldPort, fieldTrust}
		if p.sel.CertPathEnabled() {
			f = append(f, fieldCertPath, fieldBrowse)
		}
		return f
	case connection.ModeNetwork:
		return []field{fieldMode, fieldHost, fieldPort}
	case connection.ModeUSBDriver:
		return []field{fieldMode, fieldPrinters}
	default:
		return []field{fieldMode, fieldAddress}
	}
}

func (p PanelModel) focused() field {
	f := p.fields()
	if p.focus < 0 || p.focus >= len(f) {
		return fieldMode
	}
	return f[p.focus]
}

// inputFocused reports whether a text input has the keyboard
func (p PanelModel) inputFocused() bool {
	return p.input(p.focused()) != nil
}

func (p *PanelModel) input(f field) *textinput.Model {
	switch f {
	case fieldHost:
		if p.sel.Mode() == connection.ModeTLS {
			return &p.tlsHost
		}
		return &p.networkHost
	case fieldPort:
		if p.sel.Mode() == connection.ModeTLS {
			return &p.tlsPort
		}
		return &p.networkPort
	case fieldCertPath:
		return &p.certPath
	case fieldAddress:
		return &p.address
	}
	return nil
}

func (p *PanelModel) clampFocus() {
	if n := len(p.fields()); p.focus >= n {
		p.focus = n - 1
	}
	if p.focus < 0 {
		p.focus = 0
	}
}

func (p *PanelModel) clampCursor() {
	n := len(p.sel.USBDriver().Entries)
	if p.cursor >= n {
		p.cursor = n - 1
	}
	if p.cursor < 0 {
		p.cursor = 0
	}
}

func (p *PanelModel) applyFocus() tea.Cmd {
	for _, in := range []*textinput.Model{&p.tlsHost, &p.tlsPort, &p.certPath, &p.networkHost, &p.networkPort, &p.address} {
		in.Blur()
	}
	if in := p.input(p.focused()); in != nil {
		return in.Focus()
	}
	return nil
}

func (p *PanelModel) moveFocus(delta int) tea.Cmd {
	n := len(p.fields())
	p.focus = (p.focus + delta + n) % n
	return p.applyFocus()
}

// store writes the value of an edited input back into the selector
func (p *PanelModel) store(f field) {
	switch f {
	case fieldHost:
		if p.sel.Mode() == connection.ModeTLS {
			p.sel.SetTLSHost(p.tlsHost.Value())
		} else {
			p.sel.SetNetworkHost(p.networkHost.Value())
		}
	case fieldPort:
		if p.sel.Mode() == connection.ModeTLS {
			p.sel.SetTLSPort(p.tlsPort.Value())
		} else {
			p.sel.SetNetworkPort(p.networkPort.Value())
		}
	case fieldCertPath:
		p.sel.SetCertPath(p.certPath.Value())
	case fieldAddress:
		p.sel.SetUSBDirectAddress(p.address.Value())
	}
}

func (p *PanelModel) cycleMode(delta int) {
	modes := connection.Modes
	idx := 0
	for i, m := range modes {
		if m == p.sel.Mode() {
			idx = i
		}
	}
	next := modes[(idx+delta+len(modes))%len(modes)]
	// next comes from connection.Modes, so it is always valid
	_, _ = p.sel.SetMode(next)
	p.clampFocus()
}

func (p *PanelModel) cycleTrust(delta int) {
	modes := connection.TrustModes
	idx := 0
	for i, t := range modes {
		if t == p.sel.TrustMode() {
			idx = i
		}
	}
	_ = p.sel.SetTrustMode(modes[(idx+delta+len(modes))%len(modes)])
	p.clampFocus()
}

// Update handles messages
func (p PanelModel) Update(msg tea.Msg) (PanelModel, tea.Cmd) {
	key, isKey := msg.(tea.KeyMsg)
	if !isKey {
		return p, nil
	}

	switch key.String() {
	case "tab", "down":
		if p.focused() != fieldPrinters || key.String() == "tab" {
			return p, p.moveFocus(1)
		}
	case "shift+tab", "up":
		if p.focused() != fieldPrinters || key.String() == "shift+tab" {
			return p, p.moveFocus(-1)
		}
	}

	f := p.focused()
	switch f {
	case fieldMode:
		switch key.String() {
		case "left", "h":
			p.cycleMode(-1)
		case "right", "l", " ", "space":
			p.cycleMode(1)
		}
		return p, nil

	case fieldTrust:
		switch key.String() {
		case "left", "h":
			p.cycleTrust(-1)
		case "right", "l", " ", "space":
			p.cycleTrust(1)
		}
		return p, nil

	case fieldBrowse:
		if k := key.String(); k == "enter" || k == " " || k == "space" {
			return p, func() tea.Msg { return browseRequestMsg{} }
		}
		return p, nil

	case fieldPrinters:
		entries := p.sel.USBDriver().Entries
		switch key.String() {
		case "up", "k":
			if p.cursor > 0 {
				p.cursor--
			}
		case "down", "j":
			if p.cursor < len(entries)-1 {
				p.cursor++
			}
		case " ", "space", "enter":
			if err := p.sel.SelectDriverPrinter(p.cursor); err != nil {
				return p, func() tea.Msg { return selectionFailedMsg{err: err} }
			}
		}
		return p, nil
	}

	in := p.input(f)
	if in == nil {
		return p, nil
	}
	var cmd tea.Cmd
	*in, cmd = in.Update(key)
	p.store(f)
	return p, cmd
}

// View renders the panel
func (p PanelModel) View() string {
	var b strings.Builder

	b.WriteString(CardTitleStyle.Render("Printer Connection"))
	b.WriteString("\n")
	b.WriteString(p.viewModePicker())
	b.WriteString("\n\n")

	switch p.sel.Mode() {
	case connection.ModeTLS:
		b.WriteString(p.viewTLS())
	case connection.ModeNetwork:
		b.WriteString(p.viewHostPort(&p.networkHost, &p.networkPort))
	case connection.ModeUSBDriver:
		b.WriteString(p.viewPrinters())
	case connection.ModeUSBDirect:
		b.WriteString(p.viewLabeledInput("USB Direct", fieldAddress, &p.address))
	}
	return b.String()
}

func (p PanelModel) viewModePicker() string {
	var tabs []string
	for _, m := range connection.Modes {
		style := ButtonInactiveStyle.MarginTop(0).Padding(0, 1)
		if m == p.sel.Mode() {
			style = ButtonStyle.MarginTop(0).Padding(0, 1)
		}
		tabs = append(tabs, style.Render(m.Label()))
	}
	label := InputLabelStyle.Render("Connection ")
	if p.focused() == fieldMode {
		label = InputLabelFocusedStyle.Render("Connection ")
	}
	return label + lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (p PanelModel) viewLabeledInput(label string, f field, in *textinput.Model) string {
	var b strings.Builder
	if p.focused() == f {
		b.WriteString(InputLabelFocusedStyle.Render(label))
		b.WriteString("\n")
		b.WriteString(InputFocusedStyle.Render(in.View()))
	} else {
		b.WriteString(InputLabelStyle.Render(label))
		b.WriteString("\n")
		b.WriteString(InputStyle.Render(in.View()))
	}
	return b.String()
}

func (p PanelModel) viewHostPort(host, port *textinput.Model) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		p.viewLabeledInput("IP Address", fieldHost, host),
		"  ",
		p.viewLabeledInput("Port", fieldPort, port),
	)
}

func (p PanelModel) viewTLS() string {
	var b strings.Builder
	b.WriteString(p.viewHostPort(&p.tlsHost, &p.tlsPort))
	b.WriteString("\n\n")

	var group strings.Builder
	title := SectionHeaderStyle.Render("TLS Certificate Validation")
	if p.focused() == fieldTrust {
		title = InputLabelFocusedStyle.Render("TLS Certificate Validation")
	}
	group.WriteString(title)
	group.WriteString("\n")
	for _, t := range connection.TrustModes {
		mark := "( )"
		style := ListItemStyle
		if t == p.sel.TrustMode() {
			mark = "(•)"
			style = SelectedItemStyle
		}
		group.WriteString(style.Render(mark + " " + t.Label()))
		group.WriteString("\n")
	}
	group.WriteString("\n")

	if p.sel.CertPathEnabled() {
		group.WriteString(p.viewLabeledInput("Path to CA certificate", fieldCertPath, &p.certPath))
		group.WriteString("\n")
		browse := ButtonInactiveStyle.Render("Browse...")
		if p.focused() == fieldBrowse {
			browse = ButtonStyle.Render("Browse...")
		}
		group.WriteString(browse)
	} else {
		group.WriteString(TextMuted.Render("Path to CA certificate"))
		group.WriteString("\n")
		group.WriteString(TextMuted.Render("  " + valueOr(p.sel.TLS().CertPath, "(disabled)")))
	}

	b.WriteString(CardStyle.Render(group.String()))
	return b.String()
}

func (p PanelModel) viewPrinters() string {
	var b strings.Builder
	in := p.sel.USBDriver()

	title := InputLabelStyle.Render("USB Printer")
	if p.focused() == fieldPrinters {
		title = InputLabelFocusedStyle.Render("USB Printer")
	}
	b.WriteString(title)
	b.WriteString("\n")

	if len(in.Entries) == 0 {
		b.WriteString(TextMuted.Render("No driver printers found. Focus the window again to rescan."))
		return b.String()
	}

	for i, e := range in.Entries {
		cursor := "  "
		if i == p.cursor && p.focused() == fieldPrinters {
			cursor = "▸ "
		}
		style := ListItemStyle
		mark := StatusIcon("pending")
		if e.Placeholder {
			style = ErrorStyle.PaddingLeft(2)
			mark = StatusIcon("offline")
		} else if i == in.Selected {
			style = SelectedItemStyle
			mark = StatusIcon("online")
		}
		line := fmt.Sprintf("%s%s %s", cursor, mark, e.Label())
		if !e.Placeholder && e.Printer.Name != e.Label() {
			line += TextMuted.Render(" • " + e.Printer.Name)
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

// Help returns help text for the focused control
func (p PanelModel) Help() string {
	parts := []string{RenderHelp("tab", "next field")}
	switch p.focused() {
	case fieldMode:
		parts = append(parts, RenderHelp("←/→", "mode"))
	case fieldTrust:
		parts = append(parts, RenderHelp("←/→", "trust"))
	case fieldBrowse:
		parts = append(parts, RenderHelp("enter", "browse"))
	case fieldPrinters:
		parts = append(parts, RenderHelp("↑/↓", "move"), RenderHelp("space", "select"))
	}
	parts = append(parts,
		RenderHelp("ctrl+b", "build"),
		RenderHelp("ctrl+t", "test"),
		RenderHelp("ctrl+y", "copy"),
		RenderHelp("ctrl+e", "QR"),
		RenderHelp("ctrl+r", "rescan"),
		RenderHelp(":", "command"),
	)
	return strings.Join(parts, "  ")
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
