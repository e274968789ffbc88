package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"beaconattend/internal/queue"
)

// Schema creates the audit table. It is idempotent.
const Schema = `CREATE TABLE IF NOT EXISTS attendance_audit (
	id          UUID PRIMARY KEY,
	event_type  TEXT NOT NULL,
	class_id    TEXT NOT NULL DEFAULT '',
	student_id  TEXT NOT NULL DEFAULT '',
	actor_id    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	payload     JSONB NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS attendance_audit_class_idx ON attendance_audit (class_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS attendance_audit_student_idx ON attendance_audit (student_id, occurred_at DESC)`

// Entry is one persisted domain event.
type Entry struct {
	ID         string    `db:"id" json:"id"`
	EventType  string    `db:"event_type" json:"eventType"`
	ClassID    string    `db:"class_id" json:"classId"`
	StudentID  string    `db:"student_id" json:"studentId"`
	ActorID    string    `db:"actor_id" json:"actorId"`
	Status     string    `db:"status" json:"status"`
	Payload    []byte    `db:"payload" json:"-"`
	OccurredAt time.Time `db:"occurred_at" json:"occurredAt"`
}

// FromEvent maps a decoded event and its raw body to an entry.
func FromEvent(evt queue.Event, raw []byte) Entry {
	return Entry{
		ID:         evt.ID,
		EventType:  evt.Type,
		ClassID:    evt.ClassID,
		StudentID:  evt.StudentID,
		ActorID:    evt.ActorID,
		Status:     evt.Status,
		Payload:    raw,
		OccurredAt: evt.OccurredAt,
	}
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	ClassID   string
	StudentID string
	Limit     int
	Offset    int
}

// Repository persists the audit trail in Postgres.
type Repository struct {
	db *sqlx.DB
}

// NewRepository constructs the repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the audit table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Insert stores an entry. Redelivered events are ignored.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	const query = `INSERT INTO attendance_audit (id, event_type, class_id, student_id, actor_id, status, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query,
		e.ID, e.EventType, e.ClassID, e.StudentID, e.ActorID, e.Status, e.Payload, e.OccurredAt); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	const query = `SELECT id, event_type, class_id, student_id, actor_id, status, payload, occurred_at
FROM attendance_audit
WHERE ($1 = '' OR class_id = $1) AND ($2 = '' OR student_id = $2)
ORDER BY occurred_at DESC
LIMIT $3 OFFSET $4`
	var out []Entry
	if err := r.db.SelectContext(ctx, &out, query, f.ClassID, f.StudentID, f.Limit, f.Offset); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return out, nil
}
