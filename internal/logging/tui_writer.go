package logging

import (
	"strings"
	"sync"
)

// TUIWriter keeps the most recent log lines so the terminal UI can render
// them in its console pane. It is safe for concurrent use.
type TUIWriter struct {
	mu       sync.Mutex
	lines    []string
	max      int
	partial  string
	onChange func()
}

// NewTUIWriter creates a writer retaining at most max lines
func NewTUIWriter(max int) *TUIWriter {
	if max <= 0 {
		max = 100
	}
	return &TUIWriter{max: max}
}

// OnChange registers a callback invoked after new lines arrive
func (w *TUIWriter) OnChange(fn func()) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// Write implements io.Writer
func (w *TUIWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	text := w.partial + string(p)
	parts := strings.Split(text, "\n")
	w.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		if line == "" {
			continue
		}
		w.lines = append(w.lines, line)
	}
	if over := len(w.lines) - w.max; over > 0 {
		w.lines = append([]string(nil), w.lines[over:]...)
	}
	cb := w.onChange
	w.mu.Unlock()

	if cb != nil {
		cb()
	}
	return len(p), nil
}

// Lines returns a copy of the retained lines, oldest first
func (w *TUIWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

// Tail returns at most n of the newest lines
func (w *TUIWriter) Tail(n int) []string {
	lines := w.Lines()
	if n >= 0 && len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}
