package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"qrattend/internal/apperr"
)

const (
	defaultDuration = 5 * time.Minute
	defaultRadiusM  = 50
)

// Class describes a scheduled class occurrence as the issuer sees it.
type Class struct {
	ID        string
	CourseID  string
	FacultyID string
	StartsAt  time.Time
}

// Store persists sessions and resolves class ownership.
type Store interface {
	GetClass(ctx context.Context, id string) (*Class, error)
	Insert(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
}

// Recorder receives best-effort audit entries. Implementations must not
// fail the calling operation.
type Recorder interface {
	Record(ctx context.Context, actorID, action, sessionID, outcome string)
}

// CreateInput carries faculty-supplied session parameters.
type CreateInput struct {
	ClassID          string
	DurationMinutes  int
	LocationRequired bool
	Latitude         *float64
	Longitude        *float64
	RadiusMeters     float64
}

// Issuer creates attendance sessions on behalf of faculty.
type Issuer struct {
	store Store
	audit Recorder
	now   func() time.Time
}

// NewIssuer creates an issuer. audit may be nil.
func NewIssuer(store Store, audit Recorder) *Issuer {
	return &Issuer{store: store, audit: audit, now: time.Now}
}

// Create validates ownership, generates the capability token and persists
// a new session. The returned session includes the token; it must reach
// students only through the QR payload.
func (i *Issuer) Create(ctx context.Context, issuerID string, in CreateInput) (*Session, error) {
	if issuerID == "" {
		return nil, apperr.New(apperr.Unauthorized, "authentication required")
	}
	if in.ClassID == "" {
		return nil, apperr.New(apperr.BadRequest, "class_id is required")
	}
	if in.LocationRequired && (in.Latitude == nil || in.Longitude == nil) {
		return nil, apperr.New(apperr.BadRequest, "geofence center required when location_required is set")
	}

	// Ownership is enforced by the store's access policy too; re-check
	// here as defense in depth.
	class, err := i.store.GetClass(ctx, in.ClassID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "class lookup failed", err)
	}
	if class == nil {
		return nil, apperr.New(apperr.NotFound, "class not found")
	}
	if class.FacultyID != issuerID {
		i.record(ctx, issuerID, "session.create", "", "forbidden")
		return nil, apperr.New(apperr.Forbidden, "class is not assigned to you")
	}

	token, err := newToken()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "token generation failed", err)
	}

	duration := time.Duration(in.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = defaultDuration
	}
	radius := in.RadiusMeters
	if radius <= 0 {
		radius = defaultRadiusM
	}

	now := i.now()
	s := &Session{
		ClassID:          in.ClassID,
		IssuerID:         issuerID,
		Token:            token,
		CreatedAt:        now,
		ExpiresAt:        now.Add(duration),
		LocationRequired: in.LocationRequired,
	}
	if in.LocationRequired {
		s.RequiredLatitude = in.Latitude
		s.RequiredLongitude = in.Longitude
		s.RadiusMeters = radius
	}

	if err := i.store.Insert(ctx, s); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "session insert failed", err)
	}
	i.record(ctx, issuerID, "session.create", s.ID, "created")
	return s, nil
}

// Get returns a session only to its issuer.
func (i *Issuer) Get(ctx context.Context, issuerID, sessionID string) (*Session, error) {
	s, err := i.store.Get(ctx, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "session lookup failed", err)
	}
	if s == nil {
		return nil, apperr.New(apperr.NotFound, "session not found")
	}
	if s.IssuerID != issuerID {
		return nil, apperr.New(apperr.Forbidden, "session belongs to another issuer")
	}
	return s, nil
}

func (i *Issuer) record(ctx context.Context, actor, action, sessionID, outcome string) {
	if i.audit != nil {
		i.audit.Record(ctx, actor, action, sessionID, outcome)
	}
}

// newToken returns 32 bytes of cryptographically secure randomness as 64
// hex characters.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
