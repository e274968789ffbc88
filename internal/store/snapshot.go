package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultSnapshotKey is where the state snapshot lives in Redis.
const DefaultSnapshotKey = "beaconattend:snapshot"

// Snapshotter saves and restores a Memory store through Redis so that a
// restart keeps timetables, enrollments and attendance.
type Snapshotter struct {
	mem    *Memory
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewSnapshotter binds mem to a Redis key.
func NewSnapshotter(mem *Memory, client *redis.Client, key string, logger *zap.Logger) *Snapshotter {
	if key == "" {
		key = DefaultSnapshotKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshotter{mem: mem, client: client, key: key, logger: logger}
}

// Load restores the last saved snapshot. A missing snapshot leaves the store
// empty and is not an error.
func (s *Snapshotter) Load(ctx context.Context) error {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.logger.Info("no snapshot found, starting empty", zap.String("key", s.key))
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	s.mem.Restore(state)
	s.logger.Info("snapshot restored",
		zap.Int("classes", len(state.Classes)),
		zap.Int("teacher_sessions", len(state.TeacherSessions)),
		zap.Int("enrollments", len(state.Enrollments)),
		zap.Int("records", len(state.Records)))
	return nil
}

// Save writes the current state. With force unset it skips the write when
// nothing changed since the previous save.
func (s *Snapshotter) Save(ctx context.Context, force bool) error {
	if !s.mem.TakeDirty() && !force {
		return nil
	}
	payload, err := json.Marshal(s.mem.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, payload, 0).Err(); err != nil {
		s.mem.markDirty()
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	s.logger.Debug("snapshot saved", zap.Int("bytes", len(payload)))
	return nil
}
