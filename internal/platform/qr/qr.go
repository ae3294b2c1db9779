// Package qr renders badge QR codes as PNG data URIs.
package qr

import (
	"encoding/base64"
	"errors"

	"github.com/diagnosis/visitorgate/internal/domain"
	qrcode "github.com/skip2/go-qrcode"
)

const dataURIPrefix = "data:image/png;base64,"

type Encoder interface {
	Encode(payload string) (string, error)
}

type PNGEncoder struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func NewPNGEncoder() *PNGEncoder {
	return &PNGEncoder{Size: 256, Level: qrcode.Medium}
}

// Encode returns payload as a PNG data URI. Failures are BadgeGenerationErrors.
func (e *PNGEncoder) Encode(payload string) (string, error) {
	if payload == "" {
		return "", &domain.BadgeGenerationError{Err: errors.New("empty payload")}
	}
	png, err := qrcode.Encode(payload, e.Level, e.Size)
	if err != nil {
		return "", &domain.BadgeGenerationError{Err: err}
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}
