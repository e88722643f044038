package notify

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Repository persists notifications and aggregates attendance in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CourseAttendance returns, per course with sessions since the given
// instant, the distinct session count and each enrolled student's count
// of "present" records. Enrolled students with no records appear with a
// zero count.
func (r *Repository) CourseAttendance(ctx context.Context, since time.Time) ([]CourseStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.course_id, COUNT(DISTINCT s.id)
		FROM attendance_sessions s
		JOIN classes c ON c.id = s.class_id
		WHERE s.created_at >= $1
		GROUP BY c.course_id
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byCourse := map[string]*CourseStats{}
	var order []string
	for rows.Next() {
		var cs CourseStats
		if err := rows.Scan(&cs.CourseID, &cs.TotalSessions); err != nil {
			return nil, err
		}
		byCourse[cs.CourseID] = &cs
		order = append(order, cs.CourseID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	srows, err := r.db.QueryContext(ctx, `
		SELECT c.course_id, e.student_id,
		       COUNT(r.id) FILTER (WHERE r.status = 'present')
		FROM enrollments e
		JOIN classes c ON c.course_id = e.course_id
		JOIN attendance_sessions s ON s.class_id = c.id AND s.created_at >= $1
		LEFT JOIN attendance_records r ON r.session_id = s.id AND r.student_id = e.student_id
		GROUP BY c.course_id, e.student_id
	`, since)
	if err != nil {
		return nil, err
	}
	defer srows.Close()

	for srows.Next() {
		var courseID string
		var st StudentCourseStats
		if err := srows.Scan(&courseID, &st.StudentID, &st.PresentSessions); err != nil {
			return nil, err
		}
		if cs := byCourse[courseID]; cs != nil {
			cs.Students = append(cs.Students, st)
		}
	}
	if err := srows.Err(); err != nil {
		return nil, err
	}

	res := make([]CourseStats, 0, len(order))
	for _, id := range order {
		res = append(res, *byCourse[id])
	}
	return res, nil
}

// RecentlyNotified reports whether a notification of the given kind was
// issued to the student (for the given course, or course-independent when
// courseID is nil) since the given instant.
func (r *Repository) RecentlyNotified(ctx context.Context, studentID string, courseID *string, kind string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE student_id = $1 AND kind = $2 AND created_at >= $3
			  AND (($4::text IS NULL AND course_id IS NULL) OR course_id = $4)
		)
	`, studentID, kind, since, courseID).Scan(&exists)
	return exists, err
}

// InsertBatch writes all notifications in one transaction; either the
// whole batch commits or none of it does.
func (r *Repository) InsertBatch(ctx context.Context, batch []Notification) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (id, student_id, course_id, kind, message, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, batch[i].ID, batch[i].StudentID, batch[i].CourseID, batch[i].Kind,
			batch[i].Message, batch[i].CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Insert writes a single notification; used by the worker for
// confirmations.
func (r *Repository) Insert(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, student_id, course_id, kind, message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, n.ID, n.StudentID, n.CourseID, n.Kind, n.Message, n.CreatedAt)
	return err
}
