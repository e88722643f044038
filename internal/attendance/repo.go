package attendance

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"qrattend/internal/session"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetSession returns the session a scan refers to, or nil when absent.
func (r *Repository) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, issuer_id, token, created_at, expires_at,
		       location_required, required_latitude, required_longitude, radius_meters
		FROM attendance_sessions WHERE id = $1
	`, id)
	var s session.Session
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

// IsEnrolled reports whether the student is enrolled in the course the
// class belongs to.
func (r *Repository) IsEnrolled(ctx context.Context, studentID, classID string) (bool, error) {
	var enrolled bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM enrollments e
			JOIN classes c ON c.course_id = e.course_id
			WHERE c.id = $1 AND e.student_id = $2
		)
	`, classID, studentID).Scan(&enrolled)
	return enrolled, err
}

// GetRecord returns the record for (session, student), or nil when absent.
func (r *Repository) GetRecord(ctx context.Context, sessionID, studentID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, student_id, status, location_verified, check_in_time, latitude, longitude
		FROM attendance_records
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Status,
		&rec.LocationVerified, &rec.CheckInTime, &rec.Latitude, &rec.Longitude); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Insert writes a new record. The unique constraint on
// (session_id, student_id) is the final authority on duplicates; a
// violation surfaces as ErrDuplicate.
func (r *Repository) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records
			(id, session_id, student_id, status, location_verified, check_in_time, latitude, longitude)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.ID, rec.SessionID, rec.StudentID, rec.Status, rec.LocationVerified,
		rec.CheckInTime, rec.Latitude, rec.Longitude)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ListBySession returns all records for a session, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, student_id, status, location_verified, check_in_time, latitude, longitude
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY check_in_time DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListByStudent returns a student's records with pagination.
func (r *Repository) ListByStudent(ctx context.Context, studentID string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, student_id, status, location_verified, check_in_time, latitude, longitude
		FROM attendance_records
		WHERE student_id = $1
		ORDER BY check_in_time DESC
		LIMIT $2 OFFSET $3
	`, studentID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Status,
			&rec.LocationVerified, &rec.CheckInTime, &rec.Latitude, &rec.Longitude); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
