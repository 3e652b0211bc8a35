package connection

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"tls":         ModeTLS,
		"Network-TLS": ModeTLS,
		"network":     ModeNetwork,
		" NETWORK ":   ModeNetwork,
		"USB":         ModeUSBDriver,
		"usb-driver":  ModeUSBDriver,
		"usb direct":  ModeUSBDirect,
		"usb-direct":  ModeUSBDirect,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("bluetooth")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestParseTrustMode(t *testing.T) {
	got, err := ParseTrustMode("None")
	require.NoError(t, err)
	assert.Equal(t, TrustModeAll, got)

	got, err = ParseTrustMode("system")
	require.NoError(t, err)
	assert.Equal(t, TrustModeSystem, got)

	got, err = ParseTrustMode("cert-file")
	require.NoError(t, err)
	assert.Equal(t, TrustModeCertFile, got)

	_, err = ParseTrustMode("pinned")
	assert.ErrorIs(t, err, ErrUnknownTrustMode)
}

func TestDescriptorString(t *testing.T) {
	assert.Equal(t, "tls://printer.local:9143?trust=all", TLS("printer.local", 9143, TrustAll()).String())
	assert.Equal(t, "tls://p:1?trust=cert-file&ca=/ca.pem", TLS("p", 1, FromCertificateFile("/ca.pem")).String())
	assert.Equal(t, "tcp://10.0.0.5:9100", TCP("10.0.0.5", 9100).String())
	assert.Equal(t, "tcp://[fe80::1]:9100", TCP("fe80::1", 9100).String())
	assert.Equal(t, "driver://ZDesigner ZT410", Driver("ZDesigner ZT410").String())
	assert.Equal(t, "usb://0a5f:0166", USB("0a5f:0166").String())
}

func TestDescriptorJSONOmitsUnusedFields(t *testing.T) {
	data, err := json.Marshal(TCP("10.0.0.5", 9100))
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"network","host":"10.0.0.5","port":9100}`, string(data))

	data, err = json.Marshal(TLS("h", 9143, TrustSystemStore()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"tls","host":"h","port":9143,"trust":{"mode":"system"}}`, string(data))
}

func TestDriverPrinterDisplayName(t *testing.T) {
	assert.Equal(t, "lp0", DriverPrinter{Name: "lp0"}.DisplayName())
	assert.Equal(t, "Zebra ZT410", DriverPrinter{Name: "lp0", Description: "Zebra ZT410"}.DisplayName())
}

func TestDescriptorQRCode(t *testing.T) {
	d := TCP("10.0.0.5", 9100)

	png, err := d.QRCodePNG(128)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	text, err := d.QRCodeText()
	require.NoError(t, err)
	assert.Contains(t, text, "█")
	assert.Greater(t, strings.Count(text, "\n"), 10)
}
