package timetable

import (
	"beaconattend/internal/attendance"
	"beaconattend/internal/geo"
)

// ClassSession is a mentor-owned slot of a section's timetable. Its live flag,
// live type and faculty location form the class beacon.
type ClassSession struct {
	ID              string                `json:"id"`
	Subject         string                `json:"subject"`
	TimeStart       string                `json:"timeStart"`
	TimeEnd         string                `json:"timeEnd"`
	Room            string                `json:"room"`
	MentorID        string                `json:"mentorId"`
	Section         string                `json:"section"`
	Students        []string              `json:"students"`
	IsLive          bool                  `json:"isLive"`
	LiveType        attendance.BeaconType `json:"liveType,omitempty"`
	FacultyLocation *geo.Coordinate       `json:"facultyLocation,omitempty"`
	AutoActivated   bool                  `json:"autoActivated,omitempty"`
}

// Beacon projects the session's live state.
func (c ClassSession) Beacon() attendance.Beacon {
	return attendance.Beacon{Active: c.IsLive, Type: c.LiveType, Location: c.FacultyLocation}
}

// TeacherSession is a slot of a subject teacher's own timetable. While active,
// CurrentLocation is refreshed by the teacher's device.
type TeacherSession struct {
	ID              string          `json:"id"`
	TeacherID       string          `json:"teacherId"`
	TeacherEmail    string          `json:"teacherEmail"`
	Subject         string          `json:"subject"`
	TimeStart       string          `json:"timeStart"`
	TimeEnd         string          `json:"timeEnd"`
	Room            string          `json:"room"`
	IsActive        bool            `json:"isActive"`
	CurrentLocation *geo.Coordinate `json:"currentLocation,omitempty"`
}

// Enrollment binds a student to a section and its mentor.
type Enrollment struct {
	StudentID     string `json:"studentId"`
	StudentEmail  string `json:"studentEmail"`
	StudentRollNo string `json:"studentRollNo"`
	MentorID      string `json:"mentorId"`
	Section       string `json:"section"`
}

// matches reports whether a teacher slot and a class slot describe the same class.
func matches(t TeacherSession, c ClassSession) bool {
	return equalFold(t.Subject, c.Subject) && t.Room == c.Room && t.TimeStart == c.TimeStart
}
