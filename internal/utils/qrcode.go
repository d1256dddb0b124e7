package utils

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	qrCodeSize      = 256
	qrDataURLPrefix = "data:image/png;base64,"
)

// EncodeQRCodeDataURL renders content as a PNG QR code and returns it as a
// data URL that can be dropped straight into an <img> tag.
func EncodeQRCodeDataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, qrCodeSize)
	if err != nil {
		return "", fmt.Errorf("encoding qr code: %w", err)
	}
	return qrDataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
