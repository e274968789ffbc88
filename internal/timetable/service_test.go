package timetable_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beaconattend/internal/apperr"
	"beaconattend/internal/attendance"
	"beaconattend/internal/geo"
	"beaconattend/internal/ocr"
	"beaconattend/internal/store"
	"beaconattend/internal/timetable"
)

type parserStub struct {
	entries []ocr.Entry
	err     error
}

func (p parserStub) ParseTimetable(ctx context.Context, dataURL string) ([]ocr.Entry, error) {
	return p.entries, p.err
}

var ist = time.FixedZone("IST", 5*3600+1800)

func newService(t *testing.T, entries []ocr.Entry, now time.Time) (*timetable.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := timetable.NewService(mem, parserStub{entries: entries}, nil, ist, timetable.WithClock(func() time.Time { return now }))
	return svc, mem
}

func TestImportClassTimetableReplaces(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t, ocr.MockEntries, time.Now())

	first, err := svc.ImportClassTimetable(ctx, "M_faculty1", "aiml-1a", "data:image/png;base64,AA")
	require.NoError(t, err)
	require.Len(t, first, 4)
	assert.Equal(t, "AIML-1A", first[0].Section)
	assert.Equal(t, "M_faculty1", first[0].MentorID)
	assert.False(t, first[0].IsLive)

	second, err := svc.ImportClassTimetable(ctx, "M_faculty1", "", "data:image/png;base64,AA")
	require.NoError(t, err)
	assert.Equal(t, timetable.DefaultSection, second[0].Section)

	all, _ := mem.Classes(ctx)
	assert.Len(t, all, 4)
	assert.Equal(t, second[0].ID, all[0].ID)
}

func TestImportRejectsEmptyResult(t *testing.T) {
	svc, _ := newService(t, nil, time.Now())
	_, err := svc.ImportClassTimetable(context.Background(), "M_x", "A", "data:image/png;base64,AA")
	assert.ErrorIs(t, err, apperr.ErrInvalidOCRPayload)

	_, _, err = svc.ImportTeacherTimetable(context.Background(), "T_x", "x@mru.edu.in", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestImportTeacherTimetableCountsMatches(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t, []ocr.Entry{
		{Subject: "machine learning", TimeStart: "09:00", TimeEnd: "10:30", Room: "LH-204"},
		{Subject: "Compilers", TimeStart: "09:00", TimeEnd: "10:30", Room: "LH-204"},
		{Subject: "Data Structures", TimeStart: "11:00", TimeEnd: "12:30", Room: "LH-999"},
	}, time.Now())
	require.NoError(t, mem.ReplaceClasses(ctx, []timetable.ClassSession{
		{ID: "c1", Subject: "Machine Learning", TimeStart: "09:00", TimeEnd: "10:30", Room: "LH-204"},
		{ID: "c2", Subject: "Data Structures", TimeStart: "11:00", TimeEnd: "12:30", Room: "LH-101"},
	}))

	sessions, matched, err := svc.ImportTeacherTimetable(ctx, "T_teacher2", "teacher2@mru.edu.in", "img")
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
	assert.Equal(t, 1, matched)

	mine, err := svc.TeacherSessions(ctx, "T_teacher2")
	require.NoError(t, err)
	assert.Len(t, mine, 3)
	none, _ := svc.TeacherSessions(ctx, "T_other")
	assert.Empty(t, none)
}

func TestToggleBeacon(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t, nil, time.Now())
	require.NoError(t, mem.ReplaceClasses(ctx, []timetable.ClassSession{{ID: "c1"}}))
	fix := &geo.Coordinate{Lat: 28.4, Lng: 77.3, Timestamp: 1000}

	_, err := svc.ToggleBeacon(ctx, "c1", attendance.BeaconEntry, nil)
	assert.ErrorIs(t, err, apperr.ErrLocationUnavailable)
	_, err = svc.ToggleBeacon(ctx, "c1", "BOGUS", fix)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	on, err := svc.ToggleBeacon(ctx, "c1", attendance.BeaconEntry, fix)
	require.NoError(t, err)
	assert.True(t, on.IsLive)
	assert.Equal(t, attendance.BeaconEntry, on.LiveType)
	assert.Equal(t, *fix, *on.FacultyLocation)

	off, err := svc.ToggleBeacon(ctx, "c1", attendance.BeaconCompletion, fix)
	require.NoError(t, err)
	assert.False(t, off.IsLive)

	_, err = svc.ToggleBeacon(ctx, "missing", attendance.BeaconEntry, fix)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTrackingAndRefresh(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t, nil, time.Now())
	require.NoError(t, mem.AppendTeacherSessions(ctx, []timetable.TeacherSession{{ID: "t1", TeacherID: "T_a"}}))
	fix := &geo.Coordinate{Lat: 1, Lng: 1, Timestamp: 1}

	_, err := svc.RefreshLocation(ctx, "T_a", "t1", *fix)
	assert.ErrorIs(t, err, apperr.ErrBeaconInactive)

	_, err = svc.ToggleTracking(ctx, "T_b", "t1", fix)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = svc.ToggleTracking(ctx, "T_a", "t1", nil)
	assert.ErrorIs(t, err, apperr.ErrLocationUnavailable)

	on, err := svc.ToggleTracking(ctx, "T_a", "t1", fix)
	require.NoError(t, err)
	assert.True(t, on.IsActive)
	require.NotNil(t, on.CurrentLocation)

	moved, err := svc.RefreshLocation(ctx, "T_a", "t1", geo.Coordinate{Lat: 2, Lng: 2, Timestamp: 2})
	require.NoError(t, err)
	assert.Equal(t, 2.0, moved.CurrentLocation.Lat)

	off, err := svc.ToggleTracking(ctx, "T_a", "t1", nil)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
	assert.Nil(t, off.CurrentLocation)
}

func TestRosterAndReset(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t, nil, time.Now())
	require.NoError(t, mem.ReplaceClasses(ctx, []timetable.ClassSession{{ID: "c1", Students: []string{}}}))

	c, err := svc.AddStudent(ctx, "c1", " aiml001 ")
	require.NoError(t, err)
	assert.Equal(t, []string{"AIML001"}, c.Students)
	c, _ = svc.AddStudent(ctx, "c1", "AIML001")
	assert.Len(t, c.Students, 1)
	c, _ = svc.AddStudent(ctx, "c1", "aiml002")
	assert.Equal(t, []string{"AIML001", "AIML002"}, c.Students)

	_, err = svc.AddStudent(ctx, "c1", "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	c, err = svc.RemoveStudent(ctx, "c1", " aiml001")
	require.NoError(t, err)
	assert.Equal(t, []string{"AIML002"}, c.Students)

	require.NoError(t, svc.ResetSemester(ctx))
	all, _ := svc.Classes(ctx)
	assert.Empty(t, all)
}

func TestEnrollPicksSectionMentor(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t, nil, time.Now())
	require.NoError(t, mem.ReplaceClasses(ctx, []timetable.ClassSession{{ID: "c1", Section: "AIML-1A", MentorID: "M_faculty1"}}))

	e, err := svc.Enroll(ctx, "S_stu1", "stu1@mru.ac.in", "aiml2024001", "aiml-1a")
	require.NoError(t, err)
	assert.Equal(t, "M_faculty1", e.MentorID)
	assert.Equal(t, "AIML2024001", e.StudentRollNo)
	assert.Equal(t, "AIML-1A", e.Section)

	other, err := svc.Enroll(ctx, "S_stu2", "stu2@mru.ac.in", "CSE01", "CSE-2B")
	require.NoError(t, err)
	assert.Equal(t, timetable.DefaultMentorID, other.MentorID)

	_, err = svc.Enroll(ctx, "S_stu3", "stu3@mru.ac.in", "", "CSE-2B")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	mine, err := svc.MentorStudents(ctx, "M_faculty1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "S_stu1", mine[0].StudentID)

	got, ok, err := svc.Enrollment(ctx, "S_stu2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "CSE-2B", got.Section)

	classes, _ := svc.ClassesForSection(ctx, "aiml-1a")
	assert.Len(t, classes, 1)
}

func TestEnrollDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t, nil, time.Now())
	require.NoError(t, mem.ReplaceClasses(ctx, []timetable.ClassSession{{ID: "c1", Section: "AIML-1A", MentorID: "M_faculty1"}}))

	_, err := svc.Enroll(ctx, "S_stu1", "stu1@mru.ac.in", "AIML001", "AIML-1A")
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, "S_stu1", "stu1@mru.ac.in", "CSE999", "CSE-2B")
	assert.ErrorIs(t, err, apperr.ErrAlreadyEnrolled)

	got, ok, err := svc.Enrollment(ctx, "S_stu1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AIML001", got.StudentRollNo)
	assert.Equal(t, "AIML-1A", got.Section)
	assert.Equal(t, "M_faculty1", got.MentorID)
}

func TestAutoActivate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 9, 1, 9, 30, 0, 0, ist)
	svc, mem := newService(t, nil, now)
	teacherLoc := geo.Coordinate{Lat: 28.4, Lng: 77.3, Timestamp: now.UnixMilli()}

	require.NoError(t, mem.ReplaceClasses(ctx, []timetable.ClassSession{
		{ID: "match", Subject: "Machine Learning", TimeStart: "09:00", TimeEnd: "10:30", Room: "LH-204"},
		{ID: "later", Subject: "Data Structures", TimeStart: "11:00", TimeEnd: "12:30", Room: "LH-101"},
		{ID: "noteacher", Subject: "Compilers", TimeStart: "09:00", TimeEnd: "10:30", Room: "LH-305"},
		{ID: "wrongroom", Subject: "AI", TimeStart: "09:00", TimeEnd: "10:30", Room: "LH-100"},
	}))
	require.NoError(t, mem.AppendTeacherSessions(ctx, []timetable.TeacherSession{
		{ID: "t1", TeacherID: "T_a", Subject: "machine learning", TimeStart: "09:00", Room: "LH-204", IsActive: true, CurrentLocation: &teacherLoc},
		{ID: "t2", TeacherID: "T_b", Subject: "Data Structures", TimeStart: "11:00", Room: "LH-101", IsActive: true, CurrentLocation: &teacherLoc},
		{ID: "t3", TeacherID: "T_c", Subject: "Compilers", TimeStart: "09:00", Room: "LH-305", IsActive: false},
		{ID: "t4", TeacherID: "T_d", Subject: "AI", TimeStart: "09:00", Room: "LH-101", IsActive: true, CurrentLocation: &teacherLoc},
	}))

	activated, err := svc.AutoActivate(ctx)
	require.NoError(t, err)
	require.Len(t, activated, 1)
	assert.Equal(t, "match", activated[0].ID)

	c, _ := mem.Class(ctx, "match")
	assert.True(t, c.IsLive)
	assert.True(t, c.AutoActivated)
	assert.Equal(t, attendance.BeaconEntry, c.LiveType)
	assert.Equal(t, teacherLoc, *c.FacultyLocation)

	again, err := svc.AutoActivate(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestAutoActivateWindowIsInclusive(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		at   time.Time
		want int
	}{
		{time.Date(2025, 9, 1, 8, 59, 0, 0, ist), 0},
		{time.Date(2025, 9, 1, 9, 0, 0, 0, ist), 1},
		{time.Date(2025, 9, 1, 10, 30, 59, 0, ist), 1},
		{time.Date(2025, 9, 1, 10, 31, 0, 0, ist), 0},
		{time.Date(2025, 9, 1, 3, 30, 0, 0, time.UTC), 1},
	} {
		svc, mem := newService(t, nil, tc.at)
		loc := geo.Coordinate{Lat: 1, Lng: 1, Timestamp: 1}
		require.NoError(t, mem.ReplaceClasses(ctx, []timetable.ClassSession{{ID: "c", Subject: "ML", TimeStart: "09:00", TimeEnd: "10:30", Room: "R"}}))
		require.NoError(t, mem.AppendTeacherSessions(ctx, []timetable.TeacherSession{{ID: "t", Subject: "ML", TimeStart: "09:00", Room: "R", IsActive: true, CurrentLocation: &loc}}))

		activated, err := svc.AutoActivate(ctx)
		require.NoError(t, err)
		assert.Len(t, activated, tc.want, "at %s", tc.at)
	}
}
