// Package qrcode renders QRIS payloads as PNG images for clients that cannot
// draw QR codes themselves.
package qrcode

import (
	"encoding/base64"
	"errors"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

var (
	ErrEmptyContent     = errors.New("content cannot be empty")
	ErrFailedToGenerate = errors.New("failed to generate QR code")
)

const DefaultSize = 320

// Generate encodes content as a PNG of size×size pixels. QRIS strings are
// long, so medium error correction keeps the module count scannable.
func Generate(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := skipqrcode.Encode(content, skipqrcode.Medium, size)
	if err != nil {
		return nil, errors.Join(ErrFailedToGenerate, err)
	}
	return png, nil
}

// DataURI returns the PNG as a data:image/png;base64 URI.
func DataURI(content string, size int) (string, error) {
	png, err := Generate(content, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
