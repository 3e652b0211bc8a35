package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/thereceipt/printlink/internal/command"
	"github.com/thereceipt/printlink/internal/connection"
)

// commandExecutedMsg is emitted after a command ran so the panel can pick
// up selector changes
type commandExecutedMsg struct {
	result *command.Result
}

// commandTimeout bounds a command that dials a printer
const commandTimeout = 30 * time.Second

// CommandModel handles command input
type CommandModel struct {
	executor   *command.Executor
	ctx        context.Context
	input      textinput.Model
	visible    bool
	running    bool
	lastResult *command.Result
	width      int
	height     int
	scrollPos  int
}

// NewCommandModel creates a new command model
func NewCommandModel(executor *command.Executor) CommandModel {
	input := textinput.New()
	input.Placeholder = "Enter command (e.g., 'mode network', 'help')"
	input.CharLimit = 200
	input.Prompt = "> "
	input.PromptStyle = lipgloss.NewStyle().Foreground(Secondary)

	return CommandModel{
		executor: executor,
		ctx:      context.Background(),
		input:    input,
		width:    80,
	}
}

// SetSize sets the component size
func (m *CommandModel) SetSize(width int) {
	if width < 40 {
		width = 40
	}
	m.width = width
	m.input.Width = width - 6
}

// SetHeight sets the maximum height for the command view
func (m *CommandModel) SetHeight(height int) {
	m.height = height
}

// Show shows the command input
func (m *CommandModel) Show() tea.Cmd {
	m.visible = true
	m.lastResult = nil
	m.scrollPos = 0
	return m.input.Focus()
}

// Hide hides the command input
func (m *CommandModel) Hide() {
	m.visible = false
	m.input.Blur()
	m.input.SetValue("")
}

// IsVisible returns whether the command input is visible
func (m *CommandModel) IsVisible() bool {
	return m.visible
}

// finish records the result of a command that dialed off the update loop
func (m *CommandModel) finish(res *command.Result) {
	m.running = false
	m.lastResult = res
	m.scrollPos = 0
}

// Update handles messages
func (m CommandModel) Update(msg tea.Msg) (CommandModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "enter":
		cmdStr := strings.TrimSpace(m.input.Value())
		if cmdStr == "" || m.running {
			return m, nil
		}
		res, dial := m.executor.Prepare(cmdStr)
		m.input.SetValue("")
		m.scrollPos = 0
		if dial == nil {
			m.lastResult = res
			return m, func() tea.Msg { return commandExecutedMsg{result: res} }
		}

		m.running = true
		m.lastResult = &command.Result{Success: true, Message: "testing connection..."}
		parent := m.ctx
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(parent, commandTimeout)
			defer cancel()
			return commandExecutedMsg{result: dial(ctx)}
		}

	case "esc":
		m.Hide()
		return m, nil

	case "up":
		if m.scrollPos > 0 {
			m.scrollPos--
		}
		return m, nil

	case "down":
		m.scrollPos++
		return m, nil

	case "pageup":
		m.scrollPos -= 5
		if m.scrollPos < 0 {
			m.scrollPos = 0
		}
		return m, nil

	case "pagedown":
		m.scrollPos += 5
		return m, nil

	case "ctrl+y":
		if d, ok := resultDescriptor(m.lastResult); ok {
			if err := copyToClipboard(d.String()); err != nil {
				m.lastResult.Message = fmt.Sprintf("%s (copy failed: %v)", m.lastResult.Message, err)
			} else {
				m.lastResult.Message = fmt.Sprintf("%s (copied)", m.lastResult.Message)
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command input
func (m CommandModel) View() string {
	if !m.visible {
		return ""
	}

	availableHeight := m.height - 5
	if m.height == 0 {
		availableHeight = 15
	}
	if availableHeight < 3 {
		availableHeight = 3
	}

	var b strings.Builder
	boxStyle := InputFocusedStyle.
		Width(m.width - 4).
		BorderForeground(Secondary)
	b.WriteString(boxStyle.Render(m.input.View()))
	b.WriteString("\n")

	resultLines := m.resultLines()

	totalLines := len(resultLines)
	maxScroll := totalLines - availableHeight
	if maxScroll < 0 {
		maxScroll = 0
	}
	scrollPos := m.scrollPos
	if scrollPos > maxScroll {
		scrollPos = maxScroll
	}
	end := scrollPos + availableHeight
	if end > totalLines {
		end = totalLines
	}
	for _, line := range resultLines[scrollPos:end] {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if totalLines > availableHeight {
		b.WriteString(TextMuted.Render(fmt.Sprintf("  ... (↑/↓ to scroll, %d/%d lines)", scrollPos+1, totalLines)))
		b.WriteString("\n")
	}

	helpText := "Press Enter to execute, Esc to close"
	if _, ok := resultDescriptor(m.lastResult); ok {
		helpText += ", Ctrl+Y copy descriptor"
	}
	b.WriteString(TextMuted.Render(helpText))
	return b.String()
}

func (m CommandModel) resultLines() []string {
	res := m.lastResult
	if res == nil {
		return nil
	}
	width := m.width - 4

	var lines []string
	if !res.Success {
		for _, line := range wrapText("✗ "+res.Error, width) {
			lines = append(lines, ErrorStyle.Render(line))
		}
		return lines
	}

	if strings.HasPrefix(res.Message, "Available commands:") {
		for _, line := range strings.Split(res.Message, "\n") {
			lines = append(lines, TextMuted.Render(Truncate(line, width)))
		}
		return lines
	}
	for _, line := range wrapText("✓ "+res.Message, width) {
		lines = append(lines, SuccessStyle.Render(line))
	}

	if rows, ok := res.Data["printers"].([]map[string]interface{}); ok {
		lines = append(lines, SectionHeaderStyle.Render("Printers:"))
		for _, row := range rows {
			lines = append(lines, formatPrinterRow(row))
		}
	}
	if status, ok := res.Data["status"].(string); ok && status != "" {
		lines = append(lines, InfoStyle.Render("  status: "+strings.TrimSpace(status)))
	}
	return lines
}

// resultDescriptor extracts the descriptor of a build or test result
func resultDescriptor(res *command.Result) (connection.Descriptor, bool) {
	if res == nil || !res.Success || res.Data == nil {
		return connection.Descriptor{}, false
	}
	d, ok := res.Data["descriptor"].(connection.Descriptor)
	return d, ok
}

func formatPrinterRow(row map[string]interface{}) string {
	index, _ := row["index"].(int)
	label, _ := row["label"].(string)
	name, _ := row["name"].(string)
	selected, _ := row["selected"].(bool)
	placeholder, _ := row["placeholder"].(bool)

	line := fmt.Sprintf("  [%d] %s", index, label)
	if name != "" && name != label {
		line += " (" + name + ")"
	}
	switch {
	case placeholder:
		return ErrorStyle.Render(line)
	case selected:
		return SuccessStyle.Render(line + " *")
	}
	return TextNormal.Render(line)
}

func copyToClipboard(text string) error {
	// Prefer system clipboard (works in most setups including alt-screen).
	if err := clipboard.WriteAll(text); err == nil {
		return nil
	}

	// Fallback to OSC52 for terminals that support it (incl. tmux/screen).
	seq := osc52.New(text).Tmux().Screen()
	_, _ = fmt.Fprint(os.Stderr, seq)
	return fmt.Errorf("system clipboard unavailable; sent OSC52 copy sequence")
}

// wrapText wraps text to fit within a given width
func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	currentLine := words[0]
	for _, word := range words[1:] {
		if len(currentLine)+1+len(word) <= width {
			currentLine += " " + word
		} else {
			lines = append(lines, currentLine)
			currentLine = word
		}
	}
	return append(lines, currentLine)
}
