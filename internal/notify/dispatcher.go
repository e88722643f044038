package notify

import (
	"context"
	"encoding/json"
	"log"

	"qrattend/internal/queue"
)

// Confirmation is the queue message body for a check-in confirmation.
type Confirmation struct {
	StudentID string `json:"student_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// Dispatcher publishes confirmations to the notification queue. Delivery
// is fire-and-forget: a failed publish is logged and never surfaces to
// the attendance path, which has already committed its record.
type Dispatcher struct {
	q queue.Queue
}

// NewDispatcher creates a dispatcher over the given queue.
func NewDispatcher(q queue.Queue) *Dispatcher {
	return &Dispatcher{q: q}
}

// AttendanceConfirmed enqueues a confirmation for the worker to deliver.
func (d *Dispatcher) AttendanceConfirmed(ctx context.Context, studentID, sessionID, status string) {
	body, err := json.Marshal(Confirmation{StudentID: studentID, SessionID: sessionID, Status: status})
	if err != nil {
		log.Printf("confirmation marshal failed for session %s: %v", sessionID, err)
		return
	}
	if err := d.q.Publish(ctx, queue.Message{Type: "confirmation", Body: body}); err != nil {
		log.Printf("confirmation publish failed for session %s: %v", sessionID, err)
	}
}
