// Package tui implements the terminal connection panel.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/thereceipt/printlink/internal/command"
	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/logging"
	"github.com/thereceipt/printlink/internal/printer"
	"github.com/thereceipt/printlink/internal/selector"
)

const consoleHeight = 6

// Messages
type tickMsg time.Time
type logUpdatedMsg struct{}
type stateChangedMsg struct{}
type testResultMsg struct {
	descriptor connection.Descriptor
	status     string
	err        error
}

type statusLine struct {
	text  string
	level string
}

// App is the main Bubble Tea model
type App struct {
	// Dependencies
	sel     *selector.Selector
	mu      sync.Locker
	opener  printer.Opener
	console *logging.TUIWriter
	addr    string

	// OnChange is called after the selector was modified from the TUI.
	// It runs while the selector lock is held and must not block on it.
	OnChange func()

	program atomic.Pointer[tea.Program]
	ctx     context.Context

	// UI State
	width    int
	height   int
	ready    bool
	quitting bool
	testing  bool
	status   statusLine
	qr       string // descriptor QR code shown instead of the panel

	// Components
	spinner spinner.Model
	panel   PanelModel
	command CommandModel
	picker  CertPickerModel

	probeTimeout time.Duration
	startTime    time.Time
}

// NewApp creates the TUI. mu guards sel and is shared with the other
// surfaces holding it; console supplies the log lines shown at the bottom.
func NewApp(sel *selector.Selector, mu sync.Locker, opener printer.Opener, console *logging.TUIWriter, addr string) *App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	if mu == nil {
		mu = &sync.Mutex{}
	}
	if console == nil {
		console = logging.NewTUIWriter(100)
	}

	return &App{
		sel:          sel,
		mu:           mu,
		opener:       opener,
		console:      console,
		addr:         addr,
		ctx:          context.Background(),
		spinner:      s,
		panel:        NewPanelModel(sel),
		command:      NewCommandModel(command.NewExecutor(sel, opener)),
		picker:       NewCertPickerModel(),
		status:       statusLine{text: "ready"},
		probeTimeout: 2 * time.Second,
		startTime:    time.Now(),
	}
}

// Init initializes the application
func (a *App) Init() tea.Cmd {
	return a.tickCmd()
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(30*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// testCmd opens d off the update loop and sends a host status query
func (a *App) testCmd(d connection.Descriptor) tea.Cmd {
	opener := a.opener
	timeout := a.probeTimeout
	parent := a.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout+5*time.Second)
		defer cancel()

		conn, err := opener.Open(ctx, d)
		if err != nil {
			return testResultMsg{descriptor: d, err: err}
		}
		defer conn.Close()

		reply, err := printer.Probe(conn, timeout)
		if errors.Is(err, printer.ErrNoReply) {
			err = nil
		}
		return testResultMsg{descriptor: d, status: strings.TrimSpace(reply), err: err}
	}
}

// Update handles messages
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.panel.SetSize(a.width-4, a.contentHeight())
		a.command.SetSize(a.width)
		a.command.SetHeight(a.bottomAreaHeight())
		var cmd tea.Cmd
		a.picker.picker, cmd = a.picker.picker.Update(msg)
		return a, cmd

	case tea.FocusMsg:
		if a.sel.FocusGained() {
			a.panel.Sync()
			a.changed()
		}
		return a, nil

	case tea.BlurMsg:
		a.sel.FocusLost()
		return a, nil

	case tickMsg:
		return a, a.tickCmd()

	case logUpdatedMsg:
		return a, nil

	case stateChangedMsg:
		a.panel.Sync()
		return a, nil

	case selectionFailedMsg:
		a.setStatus(msg.err.Error(), "error")
		return a, nil

	case browseRequestMsg:
		return a, a.openPicker()

	case certPickedMsg:
		if ok, err := a.sel.Browse(pickedFile(msg)); err != nil {
			a.setStatus(err.Error(), "error")
		} else if ok {
			a.setStatus("certificate "+a.sel.TLS().CertPath, "success")
			a.changed()
		}
		a.panel.Sync()
		return a, nil

	case commandExecutedMsg:
		a.command.finish(msg.result)
		a.panel.Sync()
		a.changed()
		return a, nil

	case testResultMsg:
		a.testing = false
		switch {
		case msg.err != nil:
			a.setStatus(fmt.Sprintf("%s: %v", msg.descriptor, msg.err), "error")
		case msg.status != "":
			a.setStatus(fmt.Sprintf("%s: %s", msg.descriptor, msg.status), "success")
		default:
			a.setStatus("connected to "+msg.descriptor.String(), "success")
		}
		return a, nil

	case spinner.TickMsg:
		if !a.testing {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		return a, a.handleKey(msg)
	}

	// Directory listings and other picker internals
	if a.picker.IsVisible() {
		var cmd tea.Cmd
		a.picker, cmd = a.picker.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		a.quitting = true
		return tea.Quit
	}

	if a.picker.IsVisible() {
		var cmd tea.Cmd
		a.picker, cmd = a.picker.Update(msg)
		return cmd
	}

	if a.qr != "" {
		switch msg.String() {
		case "esc", "q", "enter", "ctrl+e":
			a.qr = ""
		}
		return nil
	}

	if a.command.IsVisible() {
		var cmd tea.Cmd
		a.command, cmd = a.command.Update(msg)
		return cmd
	}

	switch msg.String() {
	case ":":
		if !a.panel.inputFocused() {
			a.command.SetSize(a.width)
			a.command.SetHeight(a.bottomAreaHeight())
			return a.command.Show()
		}
	case "q":
		if !a.panel.inputFocused() {
			a.quitting = true
			return tea.Quit
		}
	case "ctrl+b":
		if d, ok := a.build(); ok {
			a.setStatus(d.String(), "info")
		}
		return nil
	case "ctrl+y":
		if d, ok := a.build(); ok {
			if err := copyToClipboard(d.String()); err != nil {
				a.setStatus(err.Error(), "warning")
			} else {
				a.setStatus("copied "+d.String(), "success")
			}
		}
		return nil
	case "ctrl+e":
		if d, ok := a.build(); ok {
			qr, err := d.QRCodeText()
			if err != nil {
				a.setStatus(err.Error(), "error")
				return nil
			}
			a.qr = qr
			a.setStatus(d.String(), "info")
		}
		return nil
	case "ctrl+t":
		if a.testing || a.opener == nil {
			return nil
		}
		d, ok := a.build()
		if !ok {
			return nil
		}
		a.testing = true
		a.setStatus("testing "+d.String(), "info")
		return tea.Batch(a.spinner.Tick, a.testCmd(d))
	case "ctrl+r":
		a.sel.RefreshDiscoveredPrinters()
		a.panel.Sync()
		a.changed()
		a.setStatus(fmt.Sprintf("%d driver printer(s)", len(a.sel.USBDriver().Printers())), "info")
		return nil
	}

	var cmd tea.Cmd
	a.panel, cmd = a.panel.Update(msg)
	a.changed()
	return cmd
}

func (a *App) build() (connection.Descriptor, bool) {
	d, err := a.sel.BuildConnection()
	if err != nil {
		a.setStatus(err.Error(), "error")
		return connection.Descriptor{}, false
	}
	return d, true
}

func (a *App) openPicker() tea.Cmd {
	if !a.sel.CertPathEnabled() {
		a.setStatus("select certificate-file validation to browse", "warning")
		return nil
	}
	return a.picker.Open(a.sel.TLS().CertPath)
}

func (a *App) setStatus(text, level string) {
	a.status = statusLine{text: text, level: level}
}

func (a *App) changed() {
	if a.OnChange != nil {
		a.OnChange()
	}
}

// View renders the UI
func (a *App) View() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.quitting {
		return "\n  Goodbye!\n\n"
	}
	if !a.ready {
		return "\n  Loading...\n"
	}

	header := HeaderStyle.Width(a.width).Render("printlink")
	var content string
	switch {
	case a.picker.IsVisible():
		content = a.picker.View()
	case a.qr != "":
		content = CardTitleStyle.Render("Scan to share this connection") + "\n" +
			a.qr + "\n" + RenderHelp("esc", "close")
	default:
		content = a.panel.View()
	}
	content = fitHeight(ContentStyle.Width(a.width).Render(content), a.contentHeight())

	var bottom string
	if a.command.IsVisible() {
		bottom = a.renderCommandArea()
	} else {
		bottom = lipgloss.JoinVertical(lipgloss.Left, a.renderConsole(), a.renderHelp(), a.renderStatusBar())
	}

	return fitHeight(lipgloss.JoinVertical(lipgloss.Left, header, content, bottom), a.height)
}

func (a *App) contentHeight() int {
	// header (2 with margin) + bottom area
	h := a.height - 2 - a.bottomAreaHeight()
	if h < 1 {
		h = 1
	}
	return h
}

func (a *App) renderConsole() string {
	lines := a.console.Tail(consoleHeight - 1)
	for i, line := range lines {
		lines[i] = Truncate(line, maxInt(10, a.width-2))
	}
	for len(lines) < consoleHeight-1 {
		lines = append(lines, "")
	}
	return ConsoleStyle.Width(a.width).Render(strings.Join(lines, "\n"))
}

func (a *App) renderHelp() string {
	return HelpBarStyle.Width(a.width).Render(a.panel.Help())
}

func (a *App) renderStatusBar() string {
	base := lipgloss.NewStyle().Background(BgCard).Foreground(colorTextNormal)

	seg := func(text string, fg, bg lipgloss.Color, bold bool) string {
		s := lipgloss.NewStyle().Foreground(fg).Background(bg).Padding(0, 1)
		if bold {
			s = s.Bold(true)
		}
		return s.Render(text)
	}
	pipe := base.Render(" | ")

	modeText := "NAV"
	modeBg := BgHover
	if a.panel.inputFocused() {
		modeText = "EDIT"
		modeBg = Secondary
	}
	mode := seg(modeText, colorTextBright, modeBg, true)
	conn := seg(a.sel.Mode().Label(), colorTextBright, Primary, true)
	api := seg("api "+a.addr, colorTextBright, BgHover, false)

	msgText := a.status.text
	if a.testing {
		msgText = a.spinner.View() + " " + msgText
	}
	msgFg, msgBg := colorTextBright, BgConsole
	switch a.status.level {
	case "error":
		msgBg = Error
	case "warning":
		msgBg = Warning
	case "success":
		msgBg = Success
	}

	uptime := time.Since(a.startTime)
	up := seg(fmt.Sprintf("up %02d:%02d", int(uptime.Hours()), int(uptime.Minutes())%60), colorTextBright, Primary, true)

	leftFixed := mode + pipe + conn + pipe + api + pipe
	remaining := a.width - lipgloss.Width(leftFixed) - lipgloss.Width(pipe) - lipgloss.Width(up) - 2
	if remaining < 10 {
		remaining = 10
	}
	msg := seg(Truncate(msgText, remaining), msgFg, msgBg, false)

	left := leftFixed + msg
	gap := a.width - lipgloss.Width(left) - lipgloss.Width(pipe) - lipgloss.Width(up)
	if gap < 1 {
		gap = 1
	}
	return base.Width(a.width).Render(left + strings.Repeat(" ", gap) + pipe + up)
}

func (a *App) renderCommandArea() string {
	base := lipgloss.NewStyle().Background(BgCard).Foreground(colorTextNormal)
	lines := strings.Split(a.command.View(), "\n")
	h := a.bottomAreaHeight()
	if len(lines) > h {
		lines = lines[len(lines)-h:]
	}
	return base.Width(a.width).Height(h).Render(strings.Join(lines, "\n"))
}

func (a *App) bottomAreaHeight() int {
	if a.command.IsVisible() {
		h := a.height / 3
		if h < 6 {
			h = 6
		}
		if h > 14 {
			h = 14
		}
		return h
	}
	// console (+1 border) + help + status
	return consoleHeight + 2
}

// Notify tells the TUI the selector was changed by another surface
func (a *App) Notify() {
	a.send(stateChangedMsg{})
}

// send delivers msg without blocking the caller, which may be running
// inside the update loop itself
func (a *App) send(msg tea.Msg) {
	if p := a.program.Load(); p != nil {
		go p.Send(msg)
	}
}

// Run starts the TUI and blocks until it exits
func (a *App) Run(ctx context.Context) error {
	p := tea.NewProgram(a,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
	)
	a.mu.Lock()
	a.ctx = ctx
	a.command.ctx = ctx
	a.mu.Unlock()
	a.program.Store(p)
	a.console.OnChange(func() { a.send(logUpdatedMsg{}) })
	defer a.console.OnChange(nil)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func fitHeight(s string, height int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
