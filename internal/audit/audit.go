// Package audit records who did what to which session, and with what
// outcome. Writes are best effort: a failed audit insert is logged and
// never blocks the operation being audited.
package audit

import (
	"context"
	"database/sql"
	"log"

	"github.com/google/uuid"
)

// Log writes audit entries to Postgres.
type Log struct {
	db *sql.DB
}

// New creates an audit log.
func New(db *sql.DB) *Log {
	return &Log{db: db}
}

// Record inserts one audit entry. sessionID may be empty when the
// operation failed before a session was involved.
func (l *Log) Record(ctx context.Context, actorID, action, sessionID, outcome string) {
	var sid any
	if sessionID != "" {
		sid = sessionID
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, session_id, outcome, created_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
	`, uuid.NewString(), actorID, action, sid, outcome)
	if err != nil {
		log.Printf("audit write failed (actor=%s action=%s): %v", actorID, action, err)
	}
}
