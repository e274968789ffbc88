package timetable

import "context"

// Store is the application state the timetable service manipulates. Update
// callbacks run under the store's write lock.
type Store interface {
	Classes(ctx context.Context) ([]ClassSession, error)
	Class(ctx context.Context, id string) (ClassSession, error)
	ReplaceClasses(ctx context.Context, classes []ClassSession) error
	UpdateClass(ctx context.Context, id string, fn func(*ClassSession) error) (ClassSession, error)

	TeacherSessions(ctx context.Context) ([]TeacherSession, error)
	AppendTeacherSessions(ctx context.Context, sessions []TeacherSession) error
	UpdateTeacherSession(ctx context.Context, id string, fn func(*TeacherSession) error) (TeacherSession, error)

	Enrollment(ctx context.Context, studentID string) (Enrollment, bool, error)
	Enrollments(ctx context.Context) ([]Enrollment, error)
	SaveEnrollment(ctx context.Context, e Enrollment) error
}
