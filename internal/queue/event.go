package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Domain event types.
const (
	EventAttendanceRecorded = "attendance.recorded"
	EventBeaconToggled      = "beacon.toggled"
	EventClassAutoActivated = "class.auto_activated"
	EventTimetableImported  = "timetable.imported"
)

// Event is the payload of a domain event message.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	ClassID    string          `json:"classId,omitempty"`
	StudentID  string          `json:"studentId,omitempty"`
	ActorID    string          `json:"actorId,omitempty"`
	Status     string          `json:"status,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Decode parses an event message.
func Decode(msg Message) (Event, error) {
	var evt Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return Event{}, fmt.Errorf("decode %s event: %w", msg.Type, err)
	}
	if evt.Type == "" {
		evt.Type = msg.Type
	}
	return evt, nil
}

// Emitter publishes domain events. Publishing is best effort: failures are
// logged and never fail the operation that produced the event.
type Emitter struct {
	q      Queue
	logger *zap.Logger
	now    func() time.Time
}

// NewEmitter wraps q. A nil q discards events.
func NewEmitter(q Queue, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{q: q, logger: logger, now: time.Now}
}

// Emit stamps evt, attaches data and publishes it.
func (e *Emitter) Emit(ctx context.Context, evt Event, data any) {
	if e == nil || e.q == nil {
		return
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = e.now().UTC()
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			e.logger.Warn("event data not encodable", zap.String("type", evt.Type), zap.Error(err))
		} else {
			evt.Data = raw
		}
	}
	body, err := json.Marshal(evt)
	if err != nil {
		e.logger.Warn("event not encodable", zap.String("type", evt.Type), zap.Error(err))
		return
	}
	if err := e.q.Publish(ctx, Message{Type: evt.Type, Body: body}); err != nil {
		e.logger.Warn("queue publish failed", zap.String("type", evt.Type), zap.Error(err))
	}
}
