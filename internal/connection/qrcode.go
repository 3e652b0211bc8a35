package connection

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCodePNG encodes the descriptor URI as a square PNG of size pixels
func (d Descriptor) QRCodePNG(size int) ([]byte, error) {
	png, err := qrcode.Encode(d.String(), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}

// QRCodeText renders the descriptor URI as a QR code drawn with half-block
// characters, two modules per text row
func (d Descriptor) QRCodeText() (string, error) {
	q, err := qrcode.New(d.String(), qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return q.ToSmallString(false), nil
}
