package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"beaconattend/internal/queue"
	"beaconattend/internal/timetable"
)

// Activator runs one auto-activation scan.
type Activator interface {
	AutoActivate(ctx context.Context) ([]timetable.ClassSession, error)
}

// Saver persists application state.
type Saver interface {
	Save(ctx context.Context, force bool) error
}

// Recorder receives job outcomes for instrumentation.
type Recorder interface {
	AutoActivated(n int)
	JobFailed(job string)
}

// Config holds job intervals. A zero SnapshotInterval disables snapshots.
type Config struct {
	AutoActivateInterval time.Duration
	SnapshotInterval     time.Duration
	Location             *time.Location
}

// Scheduler runs the periodic jobs of the API process.
type Scheduler struct {
	cron      *cron.Cron
	cfg       Config
	activator Activator
	saver     Saver
	emitter   *queue.Emitter
	recorder  Recorder
	logger    *zap.Logger
}

// New builds a scheduler. saver, emitter and recorder may be nil.
func New(cfg Config, activator Activator, saver Saver, emitter *queue.Emitter, recorder Recorder, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AutoActivateInterval <= 0 || cfg.AutoActivateInterval > time.Minute {
		cfg.AutoActivateInterval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	cl := cronLogger{logger.Named("cron")}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
		cfg:       cfg,
		activator: activator,
		saver:     saver,
		emitter:   emitter,
		recorder:  recorder,
		logger:    logger,
	}
}

// Start registers the jobs, runs one activation scan immediately and starts
// the cron engine.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(every(s.cfg.AutoActivateInterval), func() { s.RunAutoActivate(ctx) }); err != nil {
		return fmt.Errorf("add auto-activate job: %w", err)
	}
	if s.saver != nil && s.cfg.SnapshotInterval > 0 {
		if _, err := s.cron.AddFunc(every(s.cfg.SnapshotInterval), func() { s.RunSnapshot(ctx) }); err != nil {
			return fmt.Errorf("add snapshot job: %w", err)
		}
	}

	s.RunAutoActivate(ctx)
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.Duration("auto_activate_interval", s.cfg.AutoActivateInterval),
		zap.Duration("snapshot_interval", s.cfg.SnapshotInterval))
	return nil
}

// Stop halts the engine and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// RunAutoActivate performs one auto-activation scan.
func (s *Scheduler) RunAutoActivate(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	activated, err := s.activator.AutoActivate(jobCtx)
	for _, c := range activated {
		s.emitter.Emit(jobCtx, queue.Event{Type: queue.EventClassAutoActivated, ClassID: c.ID}, c)
	}
	if s.recorder != nil && len(activated) > 0 {
		s.recorder.AutoActivated(len(activated))
	}
	if err != nil {
		s.fail("auto_activate", err)
	}
}

// RunSnapshot saves state if it changed.
func (s *Scheduler) RunSnapshot(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.saver.Save(jobCtx, false); err != nil {
		s.fail("snapshot", err)
	}
}

func (s *Scheduler) fail(job string, err error) {
	if s.recorder != nil {
		s.recorder.JobFailed(job)
	}
	s.logger.Error("job failed", zap.String("job", job), zap.Error(err))
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
