package store

import (
	"context"
	"sort"
	"sync"

	"beaconattend/internal/apperr"
	"beaconattend/internal/attendance"
	"beaconattend/internal/timetable"
)

// State is the full application state. It is the unit of snapshot and restore.
type State struct {
	Classes         []timetable.ClassSession        `json:"timetable"`
	TeacherSessions []timetable.TeacherSession      `json:"teacherTimetables"`
	Enrollments     map[string]timetable.Enrollment `json:"enrollments"`
	Records         map[string]attendance.Record    `json:"attendance"`
}

// Memory holds application state for the lifetime of the process. Every
// method is atomic with respect to the others; values handed out are copies.
type Memory struct {
	mu    sync.RWMutex
	state State
	dirty bool
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{state: emptyState()}
}

func emptyState() State {
	return State{
		Classes:         []timetable.ClassSession{},
		TeacherSessions: []timetable.TeacherSession{},
		Enrollments:     map[string]timetable.Enrollment{},
		Records:         map[string]attendance.Record{},
	}
}

func recordKey(classID, studentID string) string { return classID + "|" + studentID }

// Snapshot returns a deep copy of the current state.
func (m *Memory) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneState(m.state)
}

// Restore replaces the current state with a copy of s.
func (m *Memory) Restore(s State) {
	c := cloneState(s)
	if c.Enrollments == nil {
		c.Enrollments = map[string]timetable.Enrollment{}
	}
	if c.Records == nil {
		c.Records = map[string]attendance.Record{}
	}
	m.mu.Lock()
	m.state = c
	m.dirty = false
	m.mu.Unlock()
}

// TakeDirty reports whether the state changed since the last call and clears
// the flag.
func (m *Memory) TakeDirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.dirty
	m.dirty = false
	return d
}

// ---------- Class sessions ----------

func (m *Memory) Classes(ctx context.Context) ([]timetable.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]timetable.ClassSession, len(m.state.Classes))
	for i, c := range m.state.Classes {
		out[i] = cloneClass(c)
	}
	return out, nil
}

func (m *Memory) Class(ctx context.Context, id string) (timetable.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.state.Classes {
		if c.ID == id {
			return cloneClass(c), nil
		}
	}
	return timetable.ClassSession{}, apperr.Clone(apperr.ErrNotFound, "class not found")
}

func (m *Memory) ReplaceClasses(ctx context.Context, classes []timetable.ClassSession) error {
	next := make([]timetable.ClassSession, len(classes))
	for i, c := range classes {
		next[i] = cloneClass(c)
	}
	m.mu.Lock()
	m.state.Classes = next
	m.dirty = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) UpdateClass(ctx context.Context, id string, fn func(*timetable.ClassSession) error) (timetable.ClassSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.state.Classes {
		if c.ID != id {
			continue
		}
		work := cloneClass(c)
		if err := fn(&work); err != nil {
			return timetable.ClassSession{}, err
		}
		m.state.Classes[i] = work
		m.dirty = true
		return cloneClass(work), nil
	}
	return timetable.ClassSession{}, apperr.Clone(apperr.ErrNotFound, "class not found")
}

// ---------- Teacher sessions ----------

func (m *Memory) TeacherSessions(ctx context.Context) ([]timetable.TeacherSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]timetable.TeacherSession, len(m.state.TeacherSessions))
	for i, t := range m.state.TeacherSessions {
		out[i] = cloneTeacher(t)
	}
	return out, nil
}

func (m *Memory) AppendTeacherSessions(ctx context.Context, sessions []timetable.TeacherSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range sessions {
		m.state.TeacherSessions = append(m.state.TeacherSessions, cloneTeacher(t))
	}
	m.dirty = true
	return nil
}

func (m *Memory) UpdateTeacherSession(ctx context.Context, id string, fn func(*timetable.TeacherSession) error) (timetable.TeacherSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.state.TeacherSessions {
		if t.ID != id {
			continue
		}
		work := cloneTeacher(t)
		if err := fn(&work); err != nil {
			return timetable.TeacherSession{}, err
		}
		m.state.TeacherSessions[i] = work
		m.dirty = true
		return cloneTeacher(work), nil
	}
	return timetable.TeacherSession{}, apperr.Clone(apperr.ErrNotFound, "teacher session not found")
}

// ---------- Enrollments ----------

func (m *Memory) Enrollment(ctx context.Context, studentID string) (timetable.Enrollment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.state.Enrollments[studentID]
	return e, ok, nil
}

func (m *Memory) Enrollments(ctx context.Context) ([]timetable.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]timetable.Enrollment, 0, len(m.state.Enrollments))
	for _, e := range m.state.Enrollments {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentRollNo < out[j].StudentRollNo })
	return out, nil
}

func (m *Memory) SaveEnrollment(ctx context.Context, e timetable.Enrollment) error {
	m.mu.Lock()
	m.state.Enrollments[e.StudentID] = e
	m.dirty = true
	m.mu.Unlock()
	return nil
}

// ---------- Attendance ----------

// Beacon projects a class session onto the attendance beacon.
func (m *Memory) Beacon(ctx context.Context, classID string) (attendance.Beacon, error) {
	c, err := m.Class(ctx, classID)
	if err != nil {
		return attendance.Beacon{}, err
	}
	return c.Beacon(), nil
}

func (m *Memory) Record(ctx context.Context, classID, studentID string) (attendance.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.state.Records[recordKey(classID, studentID)]
	return rec, ok, nil
}

func (m *Memory) SaveRecord(ctx context.Context, rec attendance.Record) error {
	m.mu.Lock()
	m.state.Records[recordKey(rec.ClassID, rec.StudentID)] = rec
	m.dirty = true
	m.mu.Unlock()
	return nil
}

// StudentRecords lists a student's records keyed by class id.
func (m *Memory) StudentRecords(ctx context.Context, studentID string) (map[string]attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string]attendance.Record{}
	for _, rec := range m.state.Records {
		if rec.StudentID == studentID {
			out[rec.ClassID] = rec
		}
	}
	return out, nil
}

// ClassRecords lists the records of one class session.
func (m *Memory) ClassRecords(ctx context.Context, classID string) ([]attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.Record
	for _, rec := range m.state.Records {
		if rec.ClassID == classID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentRollNo < out[j].StudentRollNo })
	return out, nil
}

// ---------- copies ----------

func cloneClass(c timetable.ClassSession) timetable.ClassSession {
	c.Students = append([]string{}, c.Students...)
	if c.FacultyLocation != nil {
		loc := *c.FacultyLocation
		c.FacultyLocation = &loc
	}
	return c
}

func cloneTeacher(t timetable.TeacherSession) timetable.TeacherSession {
	if t.CurrentLocation != nil {
		loc := *t.CurrentLocation
		t.CurrentLocation = &loc
	}
	return t
}

func cloneState(s State) State {
	out := State{
		Classes:         make([]timetable.ClassSession, len(s.Classes)),
		TeacherSessions: make([]timetable.TeacherSession, len(s.TeacherSessions)),
		Enrollments:     make(map[string]timetable.Enrollment, len(s.Enrollments)),
		Records:         make(map[string]attendance.Record, len(s.Records)),
	}
	for i, c := range s.Classes {
		out.Classes[i] = cloneClass(c)
	}
	for i, t := range s.TeacherSessions {
		out.TeacherSessions[i] = cloneTeacher(t)
	}
	for k, e := range s.Enrollments {
		out.Enrollments[k] = e
	}
	for k, r := range s.Records {
		out.Records[k] = r
	}
	return out
}

func (m *Memory) markDirty() {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
}
