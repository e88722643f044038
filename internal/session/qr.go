package session

import (
	qrcode "github.com/skip2/go-qrcode"
)

// RenderPNG encodes the session's QR payload as a PNG for display.
func RenderPNG(s *Session, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	text, err := s.Payload().Encode()
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(text, qrcode.Medium, size)
}
