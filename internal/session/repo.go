package session

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// Repository persists sessions and classes in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetClass returns a class by id, or nil when absent.
func (r *Repository) GetClass(ctx context.Context, id string) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, course_id, faculty_id, starts_at
		FROM classes WHERE id = $1
	`, id)
	var c Class
	if err := row.Scan(&c.ID, &c.CourseID, &c.FacultyID, &c.StartsAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Insert writes a new session, assigning its id.
func (r *Repository) Insert(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions
			(id, class_id, issuer_id, token, created_at, expires_at,
			 location_required, required_latitude, required_longitude, radius_meters)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, s.ID, s.ClassID, s.IssuerID, s.Token, s.CreatedAt, s.ExpiresAt,
		s.LocationRequired, s.RequiredLatitude, s.RequiredLongitude, nullableRadius(s))
	return err
}

func nullableRadius(s *Session) any {
	if !s.LocationRequired {
		return nil
	}
	return s.RadiusMeters
}

// Get returns a session by id, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, issuer_id, token, created_at, expires_at,
		       location_required, required_latitude, required_longitude, radius_meters
		FROM attendance_sessions WHERE id = $1
	`, id)
	var s Session
	var radius sql.NullFloat64
	if err := row.Scan(&s.ID, &s.ClassID, &s.IssuerID, &s.Token, &s.CreatedAt, &s.ExpiresAt,
		&s.LocationRequired, &s.RequiredLatitude, &s.RequiredLongitude, &radius); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if radius.Valid {
		s.RadiusMeters = radius.Float64
	}
	return &s, nil
}
