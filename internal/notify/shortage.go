package notify

import (
	"context"
	"fmt"
	"time"
)

const (
	warnThresholdPct     = 75.0
	criticalThresholdPct = 60.0

	attendanceWindow = 30 * 24 * time.Hour
	dedupWindow      = 7 * 24 * time.Hour
)

// StudentCourseStats is one enrolled student's attendance in one course.
// PresentSessions counts records with status "present" only; late records
// do not count toward the shortage ratio.
type StudentCourseStats struct {
	StudentID       string
	PresentSessions int
}

// CourseStats aggregates one course over the trailing window.
type CourseStats struct {
	CourseID      string
	TotalSessions int
	Students      []StudentCourseStats
}

// ShortageStore is the persistence surface of the batch job.
type ShortageStore interface {
	CourseAttendance(ctx context.Context, since time.Time) ([]CourseStats, error)
	RecentlyNotified(ctx context.Context, studentID string, courseID *string, kind string, since time.Time) (bool, error)
	InsertBatch(ctx context.Context, batch []Notification) error
}

// ShortageJob issues attendance-shortage warnings. It is safe to run more
// than once per day: the dedup window suppresses repeats.
type ShortageJob struct {
	store ShortageStore
	now   func() time.Time
}

// NewShortageJob creates the job.
func NewShortageJob(store ShortageStore) *ShortageJob {
	return &ShortageJob{store: store, now: time.Now}
}

// Run computes per-course and overall attendance ratios over the trailing
// 30-day window and inserts all qualifying notifications as one atomic
// batch. It returns the issued notifications; any batch-insert failure
// fails the whole run.
func (j *ShortageJob) Run(ctx context.Context) ([]Notification, error) {
	asOf := j.now()
	windowStart := asOf.Add(-attendanceWindow)
	dedupStart := asOf.Add(-dedupWindow)

	courses, err := j.store.CourseAttendance(ctx, windowStart)
	if err != nil {
		return nil, fmt.Errorf("shortage: aggregate attendance: %w", err)
	}

	type overall struct {
		present int
		total   int
	}
	totals := map[string]*overall{}
	var batch []Notification

	for _, course := range courses {
		// No sessions held, nothing to measure.
		if course.TotalSessions == 0 {
			continue
		}
		for _, st := range course.Students {
			agg := totals[st.StudentID]
			if agg == nil {
				agg = &overall{}
				totals[st.StudentID] = agg
			}
			agg.present += st.PresentSessions
			agg.total += course.TotalSessions

			pct := float64(st.PresentSessions) / float64(course.TotalSessions) * 100
			if pct >= warnThresholdPct {
				continue
			}
			courseID := course.CourseID
			dup, err := j.store.RecentlyNotified(ctx, st.StudentID, &courseID, KindShortage, dedupStart)
			if err != nil {
				return nil, fmt.Errorf("shortage: dedup check: %w", err)
			}
			if dup {
				continue
			}
			batch = append(batch, Notification{
				StudentID: st.StudentID,
				CourseID:  &courseID,
				Kind:      KindShortage,
				Message: fmt.Sprintf(
					"Your attendance is %.1f%% over the last 30 days, below the required %.0f%%",
					pct, warnThresholdPct),
				CreatedAt: asOf,
			})
		}
	}

	// Overall ratio across all courses, deduplicated independently of the
	// per-course warnings.
	for studentID, agg := range totals {
		if agg.total == 0 {
			continue
		}
		pct := float64(agg.present) / float64(agg.total) * 100
		if pct >= criticalThresholdPct {
			continue
		}
		dup, err := j.store.RecentlyNotified(ctx, studentID, nil, KindCritical, dedupStart)
		if err != nil {
			return nil, fmt.Errorf("shortage: dedup check: %w", err)
		}
		if dup {
			continue
		}
		batch = append(batch, Notification{
			StudentID: studentID,
			Kind:      KindCritical,
			Message: fmt.Sprintf(
				"Your overall attendance is %.1f%% over the last 30 days, below the critical %.0f%% threshold",
				pct, criticalThresholdPct),
			CreatedAt: asOf,
		})
	}

	if len(batch) == 0 {
		return nil, nil
	}
	if err := j.store.InsertBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("shortage: insert batch: %w", err)
	}
	return batch, nil
}
