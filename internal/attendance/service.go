package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"beaconattend/internal/apperr"
	"beaconattend/internal/geo"
)

// DefaultMaxBeaconAge bounds how stale a faculty fix may be before it is
// treated as abandoned.
const DefaultMaxBeaconAge = 2 * time.Hour

// ClockLayout is the human-readable capture time stored on records.
const ClockLayout = "3:04:05 PM"

// Locator supplies a fresh location fix on every call.
type Locator interface {
	Locate(ctx context.Context) (geo.Coordinate, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (geo.Coordinate, error)

func (f LocatorFunc) Locate(ctx context.Context) (geo.Coordinate, error) { return f(ctx) }

// Repository is the state the capture flow reads and patches.
type Repository interface {
	Beacon(ctx context.Context, classID string) (Beacon, error)
	Record(ctx context.Context, classID, studentID string) (Record, bool, error)
	SaveRecord(ctx context.Context, rec Record) error
}

// PhotoStore persists an accepted capture and returns the reference to keep
// on the record.
type PhotoStore interface {
	Save(ctx context.Context, stage BeaconType, classID, studentID, dataURL string) (string, error)
}

// Observer receives capture outcomes for instrumentation.
type Observer interface {
	ObserveCheck(phase string, outcome string)
	ObserveDistance(phase string, meters float64)
	ObserveTransition(stage BeaconType)
}

// Options tunes the capture gates.
type Options struct {
	Band         geo.Band
	MaxBeaconAge time.Duration
	Location     *time.Location
	Now          func() time.Time
}

// Check is the result of a passed proximity gate.
type Check struct {
	ClassID  string     `json:"classId"`
	Type     BeaconType `json:"type"`
	Distance float64    `json:"distanceMeters"`
}

// CaptureRequest is one photo capture attempt by a student.
type CaptureRequest struct {
	ClassID string
	Student Student
	// Type may be left empty for classroom captures; the live beacon type is used.
	Type    BeaconType
	Photo   string
	Comment string
	Locator Locator
}

// Service decides whether a capture may advance a record and writes the patch.
type Service struct {
	repo     Repository
	photos   PhotoStore
	observer Observer
	logger   *zap.Logger

	band   geo.Band
	maxAge time.Duration
	loc    *time.Location
	now    func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService wires the capture flow. photos, observer and logger may be nil.
func NewService(repo Repository, photos PhotoStore, observer Observer, logger *zap.Logger, opts Options) *Service {
	if opts.Band == (geo.Band{}) {
		opts.Band = geo.DefaultBand
	}
	if opts.MaxBeaconAge <= 0 {
		opts.MaxBeaconAge = DefaultMaxBeaconAge
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		photos:   photos,
		observer: observer,
		logger:   logger,
		band:     opts.Band,
		maxAge:   opts.MaxBeaconAge,
		loc:      opts.Location,
		now:      opts.Now,
		inflight: make(map[string]struct{}),
	}
}

// Band returns the configured proximity band.
func (s *Service) Band() geo.Band { return s.band }

// Precheck is the gate a student passes before the camera opens.
func (s *Service) Precheck(ctx context.Context, classID string, loc Locator) (Check, error) {
	check, err := s.gate(ctx, classID, loc)
	s.observe("pre", check, err)
	if err != nil {
		return Check{}, err
	}
	return check, nil
}

// Capture runs the post-capture gate for classroom captures and, on success,
// patches the record. On any failure the record is left untouched and the
// photo is discarded.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (Record, error) {
	if req.ClassID == "" || req.Student.ID == "" {
		return Record{}, apperr.Clone(apperr.ErrValidation, "class and student required")
	}
	if req.Photo == "" {
		return Record{}, apperr.Clone(apperr.ErrValidation, "photo required")
	}
	if req.Type != "" && !req.Type.Valid() {
		return Record{}, apperr.Clone(apperr.ErrValidation, fmt.Sprintf("unknown capture type %q", req.Type))
	}

	key := req.ClassID + "|" + req.Student.ID
	if !s.acquire(key) {
		return Record{}, apperr.ErrCaptureInProgress
	}
	defer s.release(key)

	stage := req.Type
	if stage == "" || stage.Proximal() {
		check, err := s.gate(ctx, req.ClassID, req.Locator)
		s.observe("post", check, err)
		if err != nil {
			s.logger.Info("capture discarded",
				zap.String("class_id", req.ClassID),
				zap.String("student_id", req.Student.ID),
				zap.Error(err))
			return Record{}, err
		}
		if stage == "" {
			stage = check.Type
		}
		if stage != check.Type {
			return Record{}, apperr.Clone(apperr.ErrValidation,
				fmt.Sprintf("beacon is accepting %s captures", check.Type))
		}
	} else if _, err := s.repo.Beacon(ctx, req.ClassID); err != nil {
		return Record{}, err
	}

	rec, found, err := s.repo.Record(ctx, req.ClassID, req.Student.ID)
	if err != nil {
		return Record{}, fmt.Errorf("load record: %w", err)
	}
	if !found {
		rec = Record{
			ClassID:       req.ClassID,
			StudentID:     req.Student.ID,
			StudentRollNo: req.Student.RollNo,
			StudentName:   req.Student.Name,
			Status:        StatusAbsent,
		}
	}

	photo := req.Photo
	if s.photos != nil {
		photo, err = s.photos.Save(ctx, stage, req.ClassID, req.Student.ID, req.Photo)
		if err != nil {
			return Record{}, apperr.Wrap(apperr.ErrUpstream, fmt.Errorf("store photo: %w", err))
		}
	}

	now := s.now()
	next := rec.apply(stage, photo, req.Comment, now.In(s.loc).Format(ClockLayout), now)
	if err := s.repo.SaveRecord(ctx, next); err != nil {
		return Record{}, fmt.Errorf("save record: %w", err)
	}
	if s.observer != nil {
		s.observer.ObserveTransition(stage)
	}
	s.logger.Info("attendance recorded",
		zap.String("class_id", next.ClassID),
		zap.String("student_id", next.StudentID),
		zap.String("stage", string(stage)),
		zap.String("status", string(next.Status)))
	return next, nil
}

// gate checks beacon activity, beacon freshness and the student's distance
// using a location fetched now.
func (s *Service) gate(ctx context.Context, classID string, loc Locator) (Check, error) {
	beacon, err := s.repo.Beacon(ctx, classID)
	if err != nil {
		return Check{}, err
	}
	if !beacon.Active || beacon.Location == nil {
		return Check{}, apperr.ErrBeaconInactive
	}
	if beacon.Stale(s.now(), s.maxAge) {
		return Check{}, apperr.ErrLocationExpired
	}
	if loc == nil {
		return Check{}, apperr.ErrLocationUnavailable
	}

	fix, err := loc.Locate(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrLocationUnavailable) {
			return Check{}, err
		}
		return Check{}, apperr.Wrap(apperr.ErrLocationUnavailable, err)
	}

	check := Check{ClassID: classID, Type: beacon.Type, Distance: geo.DistanceMeters(fix, *beacon.Location)}
	switch s.band.Classify(check.Distance) {
	case geo.TooClose:
		return check, proximityError(apperr.ErrProximityTooClose, check.Distance, s.band)
	case geo.TooFar:
		return check, proximityError(apperr.ErrProximityTooFar, check.Distance, s.band)
	}
	return check, nil
}

func proximityError(base *apperr.Error, d float64, band geo.Band) *apperr.Error {
	var msg string
	if base.Code == apperr.ErrProximityTooClose.Code {
		msg = fmt.Sprintf("Too close (%.0fm). Must be %s away.", math.Round(d), band)
	} else {
		msg = fmt.Sprintf("Too far (%.0fm). Must be within %gm.", math.Round(d), band.Max)
	}
	return apperr.WithDetail(apperr.Clone(base, msg), "distanceMeters", d)
}

// Distance extracts the measured distance carried by a proximity error.
func Distance(err error) (float64, bool) {
	e := apperr.FromError(err)
	if e == nil {
		return 0, false
	}
	d, ok := e.Details["distanceMeters"].(float64)
	return d, ok
}

func (s *Service) observe(phase string, check Check, err error) {
	if s.observer == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = apperr.FromError(err).Code
	}
	s.observer.ObserveCheck(phase, outcome)
	if _, measured := Distance(err); measured || err == nil {
		s.observer.ObserveDistance(phase, check.Distance)
	}
	if err != nil && !apperr.Expected(err) {
		s.logger.Warn("proximity check failed", zap.String("phase", phase), zap.Error(err))
	}
}

func (s *Service) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Service) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}
