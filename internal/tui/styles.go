package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	Primary   = lipgloss.Color("#7C3AED") // Purple
	Secondary = lipgloss.Color("#06B6D4") // Cyan
	Success   = lipgloss.Color("#10B981") // Green
	Warning   = lipgloss.Color("#F59E0B") // Amber
	Error     = lipgloss.Color("#EF4444") // Red
	Muted     = lipgloss.Color("#6B7280") // Gray

	BgCard    = lipgloss.Color("#1E293B") // Slate 800
	BgHover   = lipgloss.Color("#334155") // Slate 700
	BgConsole = lipgloss.Color("#09090B") // Zinc 950

	colorTextBright = lipgloss.Color("#F8FAFC") // Slate 50
	colorTextNormal = lipgloss.Color("#CBD5E1") // Slate 300
	colorTextMuted  = lipgloss.Color("#64748B") // Slate 500
)

var (
	TextNormal = lipgloss.NewStyle().Foreground(colorTextNormal)
	TextMuted  = lipgloss.NewStyle().Foreground(colorTextMuted)
)

// Layout and widget styles
var (
	ContentStyle = lipgloss.NewStyle().
			Padding(1, 2)

	// Console
	ConsoleStyle = lipgloss.NewStyle().
			Background(BgConsole).
			Foreground(colorTextNormal).
			Padding(0, 1).
			BorderTop(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(BgHover)

	// Header
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorTextBright).
			Background(Primary).
			Padding(0, 2).
			MarginBottom(1)

	// Connection cards
	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Muted).
			Padding(1, 2)

	CardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Secondary).
			MarginBottom(1)

	// List rows
	ListItemStyle = lipgloss.NewStyle().
			Foreground(colorTextNormal).
			PaddingLeft(2)

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(colorTextBright).
				Background(BgHover).
				Bold(true).
				PaddingLeft(2)

	// Driver printer state dots
	StatusOnline = lipgloss.NewStyle().
			Foreground(Success).
			SetString("●")

	StatusOffline = lipgloss.NewStyle().
			Foreground(Error).
			SetString("●")

	StatusPending = lipgloss.NewStyle().
			Foreground(Warning).
			SetString("●")

	// Input
	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Muted).
			Padding(0, 1)

	InputFocusedStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(Primary).
				Padding(0, 1)

	InputLabelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginBottom(0)

	InputLabelFocusedStyle = lipgloss.NewStyle().
				Foreground(Secondary).
				Bold(true).
				MarginBottom(0)

	// Mode tabs and the browse button
	ButtonStyle = lipgloss.NewStyle().
			Foreground(colorTextBright).
			Background(Primary).
			Padding(0, 3).
			MarginTop(1)

	ButtonInactiveStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted).
				Background(BgCard).
				Padding(0, 3).
				MarginTop(1)

	// Help bar
	HelpStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	HelpBarStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Background(BgCard).
			Padding(0, 2)

	// Messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error)

	InfoStyle = lipgloss.NewStyle().
			Foreground(Secondary)

	// Spinner
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(Primary)

	SectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted).
				Bold(true).
				MarginBottom(1)
)

// RenderHelp renders a key binding followed by its description
func RenderHelp(key, desc string) string {
	return HelpKeyStyle.Render(key) + HelpStyle.Render(" "+desc)
}

// StatusIcon returns a colored dot for online, offline or pending
func StatusIcon(status string) string {
	switch status {
	case "online", "connected", "selected":
		return StatusOnline.String()
	case "offline", "disconnected", "unsupported":
		return StatusOffline.String()
	default:
		return StatusPending.String()
	}
}

// Truncate shortens s to at most max runes
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
