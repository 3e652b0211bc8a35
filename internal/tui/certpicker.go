package tui

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/thereceipt/printlink/internal/connection"
)

// certPickedMsg carries the outcome of a certificate browse
type certPickedMsg struct {
	path string
	ok   bool
}

// CertPickerModel is a modal file picker limited to certificate files
type CertPickerModel struct {
	picker  filepicker.Model
	visible bool
	err     string
}

// NewCertPickerModel creates a picker rooted at the user's home directory
func NewCertPickerModel() CertPickerModel {
	fp := filepicker.New()
	fp.AllowedTypes = certificateTypes()
	fp.ShowHidden = false
	if home, err := os.UserHomeDir(); err == nil {
		fp.CurrentDirectory = home
	}
	return CertPickerModel{picker: fp}
}

func certificateTypes() []string {
	types := make([]string, 0, len(connection.CertificateExtensions))
	for _, ext := range connection.CertificateExtensions {
		types = append(types, "."+ext)
	}
	return types
}

// Open shows the picker, starting in the directory of current when set
func (m *CertPickerModel) Open(current string) tea.Cmd {
	if dir := filepath.Dir(strings.TrimSpace(current)); current != "" && dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			m.picker.CurrentDirectory = dir
		}
	}
	m.visible = true
	m.err = ""
	return m.picker.Init()
}

// IsVisible reports whether the picker is showing
func (m *CertPickerModel) IsVisible() bool {
	return m.visible
}

// Update handles messages
func (m CertPickerModel) Update(msg tea.Msg) (CertPickerModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && (key.String() == "esc" || key.String() == "q") {
		m.visible = false
		return m, func() tea.Msg { return certPickedMsg{} }
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.visible = false
		return m, func() tea.Msg { return certPickedMsg{path: path, ok: true} }
	}
	if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
		m.err = filepath.Base(path) + " is not a certificate file (" + strings.Join(certificateTypes(), ", ") + ")"
		return m, cmd
	}
	return m, cmd
}

// View renders the picker
func (m CertPickerModel) View() string {
	var b strings.Builder
	b.WriteString(CardTitleStyle.Render("Select CA certificate"))
	b.WriteString("\n")
	b.WriteString(TextMuted.Render(m.picker.CurrentDirectory))
	b.WriteString("\n\n")
	b.WriteString(m.picker.View())
	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.err))
	}
	b.WriteString("\n")
	b.WriteString(RenderHelp("enter", "open/choose") + "  " + RenderHelp("esc", "cancel"))
	return CardStyle.Render(b.String())
}

// pickedFile is a selector.FilePicker that replays a finished browse
type pickedFile certPickedMsg

func (p pickedFile) PickFile([]string) (string, bool, error) {
	if !p.ok {
		return "", false, nil
	}
	abs, err := filepath.Abs(p.path)
	if err != nil {
		return "", false, err
	}
	return abs, true, nil
}
