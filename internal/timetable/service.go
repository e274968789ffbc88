package timetable

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"beaconattend/internal/apperr"
	"beaconattend/internal/attendance"
	"beaconattend/internal/geo"
	"beaconattend/internal/ocr"
)

const (
	// DefaultSection is used when a mentor uploads without naming a section.
	DefaultSection = "AIML-1A"
	// DefaultMentorID owns students whose section has no timetable yet.
	DefaultMentorID = "M_DEFAULT"
)

// Parser extracts timetable rows from an image data URL.
type Parser interface {
	ParseTimetable(ctx context.Context, dataURL string) ([]ocr.Entry, error)
}

// Service manages class timetables, teacher timetables, beacons and enrollments.
type Service struct {
	store  Store
	parser Parser
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the wall clock used by AutoActivate.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a timetable service. loc is the campus time zone used to
// compare wall-clock time against "HH:MM" slots.
func NewService(store Store, parser Parser, logger *zap.Logger, loc *time.Location, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Service{store: store, parser: parser, logger: logger, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportClassTimetable replaces the class timetable with the sessions found in
// the image, all assigned to section.
func (s *Service) ImportClassTimetable(ctx context.Context, mentorID, section, image string) ([]ClassSession, error) {
	entries, err := s.parse(ctx, image)
	if err != nil {
		return nil, err
	}
	section = strings.ToUpper(strings.TrimSpace(section))
	if section == "" {
		section = DefaultSection
	}

	sessions := make([]ClassSession, 0, len(entries))
	for _, e := range entries {
		sessions = append(sessions, ClassSession{
			ID:        uuid.NewString(),
			Subject:   e.Subject,
			TimeStart: e.TimeStart,
			TimeEnd:   e.TimeEnd,
			Room:      e.Room,
			MentorID:  mentorID,
			Section:   section,
			Students:  []string{},
		})
	}
	if err := s.store.ReplaceClasses(ctx, sessions); err != nil {
		return nil, fmt.Errorf("replace classes: %w", err)
	}
	s.logger.Info("class timetable synced", zap.String("section", section), zap.Int("classes", len(sessions)))
	return sessions, nil
}

// ImportTeacherTimetable appends the teacher's sessions found in the image and
// reports how many of them match a class session.
func (s *Service) ImportTeacherTimetable(ctx context.Context, teacherID, teacherEmail, image string) ([]TeacherSession, int, error) {
	entries, err := s.parse(ctx, image)
	if err != nil {
		return nil, 0, err
	}

	sessions := make([]TeacherSession, 0, len(entries))
	for _, e := range entries {
		sessions = append(sessions, TeacherSession{
			ID:           uuid.NewString(),
			TeacherID:    teacherID,
			TeacherEmail: teacherEmail,
			Subject:      e.Subject,
			TimeStart:    e.TimeStart,
			TimeEnd:      e.TimeEnd,
			Room:         e.Room,
		})
	}
	if err := s.store.AppendTeacherSessions(ctx, sessions); err != nil {
		return nil, 0, fmt.Errorf("append teacher sessions: %w", err)
	}

	classes, err := s.store.Classes(ctx)
	if err != nil {
		return nil, 0, err
	}
	matched := 0
	for _, ts := range sessions {
		for _, c := range classes {
			if matches(ts, c) {
				matched++
				break
			}
		}
	}
	s.logger.Info("teacher timetable uploaded",
		zap.String("teacher_id", teacherID),
		zap.Int("sessions", len(sessions)),
		zap.Int("matched", matched))
	return sessions, matched, nil
}

func (s *Service) parse(ctx context.Context, image string) ([]ocr.Entry, error) {
	if image == "" {
		return nil, apperr.Clone(apperr.ErrValidation, "image required")
	}
	entries, err := s.parser.ParseTimetable(ctx, image)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperr.Clone(apperr.ErrInvalidOCRPayload, "no timetable data found in image")
	}
	return entries, nil
}

// ToggleBeacon flips a class beacon and stamps it with the mentor's fix.
func (s *Service) ToggleBeacon(ctx context.Context, classID string, typ attendance.BeaconType, fix *geo.Coordinate) (ClassSession, error) {
	if !typ.Valid() {
		return ClassSession{}, apperr.Clone(apperr.ErrValidation, fmt.Sprintf("unknown beacon type %q", typ))
	}
	if fix == nil {
		return ClassSession{}, apperr.Clone(apperr.ErrLocationUnavailable, "location access required")
	}
	loc := *fix
	return s.store.UpdateClass(ctx, classID, func(c *ClassSession) error {
		c.IsLive = !c.IsLive
		c.LiveType = typ
		c.FacultyLocation = &loc
		c.AutoActivated = false
		return nil
	})
}

// ToggleTracking flips the teacher's location tracking for one of their
// sessions. Turning it on records fix; turning it off clears the location.
// A fix is only required when tracking is being turned on.
func (s *Service) ToggleTracking(ctx context.Context, teacherID, sessionID string, fix *geo.Coordinate) (TeacherSession, error) {
	return s.store.UpdateTeacherSession(ctx, sessionID, func(t *TeacherSession) error {
		if t.TeacherID != teacherID {
			return apperr.ErrForbidden
		}
		if t.IsActive {
			t.IsActive = false
			t.CurrentLocation = nil
			return nil
		}
		if fix == nil {
			return apperr.Clone(apperr.ErrLocationUnavailable, "location access required")
		}
		loc := *fix
		t.IsActive = true
		t.CurrentLocation = &loc
		return nil
	})
}

// RefreshLocation records the latest fix of an actively tracking teacher.
func (s *Service) RefreshLocation(ctx context.Context, teacherID, sessionID string, fix geo.Coordinate) (TeacherSession, error) {
	return s.store.UpdateTeacherSession(ctx, sessionID, func(t *TeacherSession) error {
		if t.TeacherID != teacherID {
			return apperr.ErrForbidden
		}
		if !t.IsActive {
			return apperr.Clone(apperr.ErrBeaconInactive, "location tracking is off")
		}
		t.CurrentLocation = &fix
		return nil
	})
}

func normalizeRoll(rollNo string) string { return strings.ToUpper(strings.TrimSpace(rollNo)) }

// AddStudent adds a roll number to a class roster.
func (s *Service) AddStudent(ctx context.Context, classID, rollNo string) (ClassSession, error) {
	roll := normalizeRoll(rollNo)
	if roll == "" {
		return ClassSession{}, apperr.Clone(apperr.ErrValidation, "roll number required")
	}
	return s.store.UpdateClass(ctx, classID, func(c *ClassSession) error {
		for _, r := range c.Students {
			if r == roll {
				return nil
			}
		}
		c.Students = append(c.Students, roll)
		return nil
	})
}

// RemoveStudent drops a roll number from a class roster.
func (s *Service) RemoveStudent(ctx context.Context, classID, rollNo string) (ClassSession, error) {
	roll := normalizeRoll(rollNo)
	return s.store.UpdateClass(ctx, classID, func(c *ClassSession) error {
		kept := c.Students[:0]
		for _, r := range c.Students {
			if r != roll {
				kept = append(kept, r)
			}
		}
		c.Students = kept
		return nil
	})
}

// ResetSemester clears the class timetable.
func (s *Service) ResetSemester(ctx context.Context) error {
	return s.store.ReplaceClasses(ctx, []ClassSession{})
}

// Class returns one class session.
func (s *Service) Class(ctx context.Context, id string) (ClassSession, error) {
	return s.store.Class(ctx, id)
}

// Classes lists all class sessions.
func (s *Service) Classes(ctx context.Context) ([]ClassSession, error) {
	return s.store.Classes(ctx)
}

// ClassesForSection lists the sessions of a section.
func (s *Service) ClassesForSection(ctx context.Context, section string) ([]ClassSession, error) {
	all, err := s.store.Classes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ClassSession, 0, len(all))
	for _, c := range all {
		if equalFold(c.Section, section) {
			out = append(out, c)
		}
	}
	return out, nil
}

// TeacherSessions lists a teacher's own sessions.
func (s *Service) TeacherSessions(ctx context.Context, teacherID string) ([]TeacherSession, error) {
	all, err := s.store.TeacherSessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TeacherSession, 0, len(all))
	for _, t := range all {
		if t.TeacherID == teacherID {
			out = append(out, t)
		}
	}
	return out, nil
}

// MentorStudents lists the students enrolled under a mentor.
func (s *Service) MentorStudents(ctx context.Context, mentorID string) ([]Enrollment, error) {
	all, err := s.store.Enrollments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Enrollment, 0, len(all))
	for _, e := range all {
		if e.MentorID == mentorID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Enrollment returns a student's enrollment if one exists.
func (s *Service) Enrollment(ctx context.Context, studentID string) (Enrollment, bool, error) {
	return s.store.Enrollment(ctx, studentID)
}

// Enroll registers a first-time student under the mentor of their section.
// An existing enrollment is never overwritten.
func (s *Service) Enroll(ctx context.Context, studentID, email, rollNo, section string) (Enrollment, error) {
	roll := normalizeRoll(rollNo)
	section = strings.ToUpper(strings.TrimSpace(section))
	if roll == "" || section == "" {
		return Enrollment{}, apperr.Clone(apperr.ErrValidation, "roll number and section required")
	}
	if _, exists, err := s.store.Enrollment(ctx, studentID); err != nil {
		return Enrollment{}, err
	} else if exists {
		return Enrollment{}, apperr.ErrAlreadyEnrolled
	}

	mentorID := DefaultMentorID
	classes, err := s.store.Classes(ctx)
	if err != nil {
		return Enrollment{}, err
	}
	for _, c := range classes {
		if strings.ToUpper(c.Section) == section && c.MentorID != "" {
			mentorID = c.MentorID
			break
		}
	}

	e := Enrollment{StudentID: studentID, StudentEmail: email, StudentRollNo: roll, MentorID: mentorID, Section: section}
	if err := s.store.SaveEnrollment(ctx, e); err != nil {
		return Enrollment{}, fmt.Errorf("save enrollment: %w", err)
	}
	return e, nil
}

// AutoActivate makes live every idle class whose slot contains the current
// minute and which a tracking teacher is teaching right now.
func (s *Service) AutoActivate(ctx context.Context) ([]ClassSession, error) {
	now := s.now().In(s.loc)
	cur := now.Format("15:04")

	classes, err := s.store.Classes(ctx)
	if err != nil {
		return nil, err
	}
	teachers, err := s.store.TeacherSessions(ctx)
	if err != nil {
		return nil, err
	}

	var activated []ClassSession
	for _, c := range classes {
		if c.IsLive || cur < c.TimeStart || cur > c.TimeEnd {
			continue
		}
		var match *TeacherSession
		for i := range teachers {
			t := teachers[i]
			if t.IsActive && t.CurrentLocation != nil && matches(t, c) {
				match = &t
				break
			}
		}
		if match == nil {
			continue
		}

		loc := *match.CurrentLocation
		updated, err := s.store.UpdateClass(ctx, c.ID, func(cs *ClassSession) error {
			if cs.IsLive {
				return errAlreadyLive
			}
			cs.IsLive = true
			cs.LiveType = attendance.BeaconEntry
			cs.FacultyLocation = &loc
			cs.AutoActivated = true
			return nil
		})
		if errors.Is(err, errAlreadyLive) {
			continue
		}
		if err != nil {
			return activated, fmt.Errorf("activate %s: %w", c.ID, err)
		}
		s.logger.Info("class auto-activated",
			zap.String("class_id", updated.ID),
			zap.String("subject", updated.Subject),
			zap.String("teacher_id", match.TeacherID))
		activated = append(activated, updated)
	}
	return activated, nil
}

var errAlreadyLive = errors.New("class already live")

func equalFold(a, b string) bool { return strings.EqualFold(a, b) }
