package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	SetLevel("debug")
	assert.Equal(t, slog.LevelDebug, Level())

	SetLevel("WARN")
	assert.Equal(t, slog.LevelWarn, Level())

	SetLevel("bogus")
	assert.Equal(t, slog.LevelWarn, Level(), "unknown level keeps the previous one")
}

func TestInitAndFor(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, "info")
	defer Init(&bytes.Buffer{}, "info")

	For("selector").Info("refreshed", "count", 2)
	For("selector").Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "subsystem=selector")
	assert.Contains(t, out, "count=2")
	assert.NotContains(t, out, "hidden")
}

func TestTUIWriter(t *testing.T) {
	w := NewTUIWriter(2)
	changes := 0
	w.OnChange(func() { changes++ })

	_, err := w.Write([]byte("one\ntwo\nthr"))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, w.Lines())

	_, err = w.Write([]byte("ee\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, w.Lines())
	assert.Equal(t, []string{"three"}, w.Tail(1))
	assert.Equal(t, 2, changes)
}

func TestTUIWriterAsSlogSink(t *testing.T) {
	w := NewTUIWriter(10)
	l := slog.New(slog.NewTextHandler(w, nil))
	l.Info("printer connected", "mode", "tls")

	lines := w.Lines()
	require.Len(t, lines, 1)
	assert.True(t, strings.Contains(lines[0], "mode=tls"))
}
