package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeSplitsOnFirstSeparator(t *testing.T) {
	msg := deserialize(serialize(Message{Type: "attendance.recorded", Body: []byte(`{"a":"x|y"}`)}))
	assert.Equal(t, "attendance.recorded", msg.Type)
	assert.Equal(t, `{"a":"x|y"}`, string(msg.Body))

	raw := deserialize("no-separator")
	assert.Empty(t, raw.Type)
	assert.Equal(t, "no-separator", string(raw.Body))
}

func TestInMemoryDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewInMemory(4)

	out, err := q.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, Message{Type: "a"}))
	require.NoError(t, q.Publish(ctx, Message{Type: "b"}))

	assert.Equal(t, "a", (<-out).Type)
	assert.Equal(t, "b", (<-out).Type)

	cancel()
	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestEmitterPublishesEvent(t *testing.T) {
	ctx := context.Background()
	q := NewInMemory(1)
	e := NewEmitter(q, nil)
	e.now = func() time.Time { return time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC) }

	e.Emit(ctx, Event{Type: EventAttendanceRecorded, ClassID: "c1", StudentID: "S_a", Status: "PARTIAL"},
		map[string]float64{"distanceMeters": 12})

	out, _ := q.Consume(ctx)
	msg := <-out
	assert.Equal(t, EventAttendanceRecorded, msg.Type)

	evt, err := Decode(msg)
	require.NoError(t, err)
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, "c1", evt.ClassID)
	assert.Equal(t, "PARTIAL", evt.Status)
	assert.JSONEq(t, `{"distanceMeters":12}`, string(evt.Data))
	assert.True(t, evt.OccurredAt.Equal(time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)))
}

type failingQueue struct{ *InMemory }

func (*failingQueue) Publish(context.Context, Message) error { return errors.New("down") }

func TestEmitterSwallowsFailures(t *testing.T) {
	assert.NotPanics(t, func() {
		NewEmitter(&failingQueue{InMemory: NewInMemory(1)}, nil).Emit(context.Background(), Event{Type: EventBeaconToggled}, nil)
		NewEmitter(nil, nil).Emit(context.Background(), Event{Type: EventBeaconToggled}, nil)
		var e *Emitter
		e.Emit(context.Background(), Event{}, nil)
	})

	_, err := Decode(Message{Type: "x", Body: []byte("{")})
	assert.Error(t, err)
}

func TestInMemoryPublishDoesNotBlockWhenFull(t *testing.T) {
	q := NewInMemory(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Publish(ctx, Message{Type: "a"}))
	require.NoError(t, q.Publish(ctx, Message{Type: "b"}))
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "c"}), ErrFull)

	e := NewEmitter(q, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			e.Emit(ctx, Event{Type: EventAttendanceRecorded}, nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full queue")
	}

	out, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", (<-out).Type)
	assert.Equal(t, "b", (<-out).Type)
}
