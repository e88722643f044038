package session

import (
	"encoding/json"
	"time"

	"qrattend/internal/apperr"
)

// Session is a short-lived attendance session for one class occurrence.
// Once created it never mutates; validity is purely a function of time.
type Session struct {
	ID                string    `json:"id"`
	ClassID           string    `json:"class_id"`
	IssuerID          string    `json:"-"`
	Token             string    `json:"token"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	LocationRequired  bool      `json:"location_required"`
	RequiredLatitude  *float64  `json:"required_latitude,omitempty"`
	RequiredLongitude *float64  `json:"required_longitude,omitempty"`
	RadiusMeters      float64   `json:"radius_meters,omitempty"`
}

// Valid reports whether the session can still be scanned at the given
// instant. The boundary is hard: exactly at expiry is invalid.
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// QRPayload is the compact object embedded as the QR code's text. Field
// names are short because the payload is round-tripped through a QR code
// and must stay well under 200 bytes.
type QRPayload struct {
	SID string `json:"sid"`
	T   string `json:"t"`
	Exp int64  `json:"exp"`
}

// Payload builds the QR payload for a session.
func (s *Session) Payload() QRPayload {
	return QRPayload{SID: s.ID, T: s.Token, Exp: s.ExpiresAt.Unix()}
}

// Encode serializes the payload to its wire form.
func (p QRPayload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePayload parses a scanned QR payload. Anything that is not a JSON
// object carrying sid and t is rejected.
func DecodePayload(raw string) (QRPayload, error) {
	var p QRPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return QRPayload{}, apperr.New(apperr.BadRequest, "Invalid QR code format")
	}
	if p.SID == "" || p.T == "" {
		return QRPayload{}, apperr.New(apperr.BadRequest, "Invalid QR code format")
	}
	return p, nil
}
