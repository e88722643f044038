package attendance

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"qrattend/internal/apperr"
	"qrattend/internal/geo"
	"qrattend/internal/session"
)

// Attendance statuses. Derived server-side only, never client-chosen.
const (
	StatusPresent = "present"
	StatusLate    = "late"
)

// graceWindow is how long after session creation a scan still counts as
// present. Exactly at the deadline is still present; late requires the
// scan to land strictly after it.
const graceWindow = 15 * time.Minute

// ErrDuplicate is returned by stores when the (session_id, student_id)
// unique constraint rejects an insert.
var ErrDuplicate = errors.New("duplicate attendance record")

// Record is one student's check-in for one session. Append-only.
type Record struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	StudentID        string    `json:"student_id"`
	Status           string    `json:"status"`
	LocationVerified bool      `json:"location_verified"`
	CheckInTime      time.Time `json:"check_in_time"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
}

// Store is the persistence surface the validator needs. Insert must be
// backed by a storage-level unique constraint on (session_id, student_id)
// and return ErrDuplicate when it fires; the pre-check in Mark is only an
// optimistic fast path.
type Store interface {
	GetSession(ctx context.Context, id string) (*session.Session, error)
	IsEnrolled(ctx context.Context, studentID, classID string) (bool, error)
	GetRecord(ctx context.Context, sessionID, studentID string) (*Record, error)
	Insert(ctx context.Context, rec *Record) error
}

// Notifier delivers the out-of-band check-in confirmation. Best effort:
// implementations log failures and never return them.
type Notifier interface {
	AttendanceConfirmed(ctx context.Context, studentID, sessionID, status string)
}

// Service validates scanned QR payloads and records attendance.
type Service struct {
	store  Store
	notify Notifier
	audit  session.Recorder
	now    func() time.Time
}

// NewService creates a validator. notify and audit may be nil.
func NewService(store Store, notify Notifier, audit session.Recorder) *Service {
	return &Service{store: store, notify: notify, audit: audit, now: time.Now}
}

// MarkInput is a scanned payload plus the optional device location.
type MarkInput struct {
	SID       string
	Token     string
	Latitude  *float64
	Longitude *float64
}

// Mark runs the validation gate chain and, if every gate passes, inserts
// exactly one attendance record. Gates are ordered; the first failure
// wins and nothing is written before all gates pass.
func (s *Service) Mark(ctx context.Context, studentID string, in MarkInput) (*Record, error) {
	rec, err := s.mark(ctx, studentID, in)
	if s.audit != nil {
		outcome := "marked"
		if err != nil {
			outcome = apperr.MessageOf(err)
		} else if rec != nil {
			outcome = "marked:" + rec.Status
		}
		s.audit.Record(ctx, studentID, "attendance.mark", in.SID, outcome)
	}
	return rec, err
}

func (s *Service) mark(ctx context.Context, studentID string, in MarkInput) (*Record, error) {
	if studentID == "" {
		return nil, apperr.New(apperr.Unauthorized, "authentication required")
	}
	if in.SID == "" || in.Token == "" {
		return nil, apperr.New(apperr.BadRequest, "Invalid QR code format")
	}

	sess, err := s.store.GetSession(ctx, in.SID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "session lookup failed", err)
	}
	if sess == nil {
		return nil, apperr.New(apperr.NotFound, "session not found")
	}

	// Constant-time compare; the token is a capability secret.
	if subtle.ConstantTimeCompare([]byte(in.Token), []byte(sess.Token)) != 1 {
		return nil, apperr.New(apperr.Unauthorized, "Invalid session token")
	}

	now := s.now()
	if !sess.Valid(now) {
		return nil, apperr.New(apperr.Gone, "Session has expired")
	}

	locationVerified := true
	if sess.LocationRequired {
		if in.Latitude == nil || in.Longitude == nil {
			return nil, apperr.New(apperr.BadRequest, "location is required for this session")
		}
		if sess.RequiredLatitude != nil && sess.RequiredLongitude != nil {
			d := geo.Distance(*in.Latitude, *in.Longitude,
				*sess.RequiredLatitude, *sess.RequiredLongitude)
			if d > sess.RadiusMeters {
				return nil, apperr.Newf(apperr.Forbidden,
					"out of range: you must be within %.0f m of the class location", sess.RadiusMeters)
			}
		}
	}

	enrolled, err := s.store.IsEnrolled(ctx, studentID, sess.ClassID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "enrollment check failed", err)
	}
	if !enrolled {
		return nil, apperr.New(apperr.Forbidden, "you are not enrolled in this class")
	}

	// Optimistic duplicate pre-check; the unique constraint below is the
	// final authority.
	existing, err := s.store.GetRecord(ctx, sess.ID, studentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "record lookup failed", err)
	}
	if existing != nil {
		return nil, duplicateConflict(existing)
	}

	status := StatusPresent
	if now.After(sess.CreatedAt.Add(graceWindow)) {
		status = StatusLate
	}

	rec := &Record{
		SessionID:        sess.ID,
		StudentID:        studentID,
		Status:           status,
		LocationVerified: locationVerified,
		CheckInTime:      now,
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// A racing scan won the constraint. Report the same Conflict
			// the pre-check would have produced.
			if existing, lerr := s.store.GetRecord(ctx, sess.ID, studentID); lerr == nil && existing != nil {
				return nil, duplicateConflict(existing)
			}
			return nil, apperr.New(apperr.Conflict, "attendance already marked")
		}
		return nil, apperr.Wrap(apperr.Internal, "attendance insert failed", err)
	}

	if s.notify != nil {
		s.notify.AttendanceConfirmed(ctx, studentID, sess.ID, status)
	}
	return rec, nil
}

func duplicateConflict(existing *Record) error {
	return apperr.Newf(apperr.Conflict, "attendance already marked as %s", existing.Status)
}
