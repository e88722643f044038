// Package notify holds the outbound notification side of the system: the
// queue-backed check-in confirmation dispatcher and the daily shortage
// batch job.
package notify

import "time"

// Notification kinds.
const (
	KindConfirmation = "attendance_confirmation"
	KindShortage     = "shortage_warning"
	KindCritical     = "critical_shortage"
)

// Notification is a row destined for the notification store. CourseID is
// nil for notifications that are not scoped to one course.
type Notification struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	CourseID  *string   `json:"course_id,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
