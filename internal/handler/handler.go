package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"beaconattend/internal/apperr"
	"beaconattend/internal/attendance"
	"beaconattend/internal/auth"
	"beaconattend/internal/config"
	"beaconattend/internal/queue"
	"beaconattend/internal/timetable"
)

// Records reads attendance records for listings.
type Records interface {
	StudentRecords(ctx context.Context, studentID string) (map[string]attendance.Record, error)
	ClassRecords(ctx context.Context, classID string) ([]attendance.Record, error)
}

// Options configures a Handler.
type Options struct {
	JWT               config.JWTConfig
	LocationFixMaxAge time.Duration
	Now               func() time.Time
}

// Handler serves the JSON API.
type Handler struct {
	directory  *auth.Directory
	timetables *timetable.Service
	attendance *attendance.Service
	records    Records
	events     *queue.Emitter
	logger     *zap.Logger

	jwt       config.JWTConfig
	fixMaxAge time.Duration
	now       func() time.Time
}

// New wires the API handlers. events may be nil.
func New(directory *auth.Directory, timetables *timetable.Service, att *attendance.Service, records Records,
	events *queue.Emitter, logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LocationFixMaxAge <= 0 {
		opts.LocationFixMaxAge = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		directory:  directory,
		timetables: timetables,
		attendance: att,
		records:    records,
		events:     events,
		logger:     logger,
		jwt:        opts.JWT,
		fixMaxAge:  opts.LocationFixMaxAge,
		now:        opts.Now,
	}
}

// Register mounts every API route on r. limit runs after authentication so
// signed-in callers are charged per user; it may be nil.
func (h *Handler) Register(r gin.IRouter, limit gin.HandlerFunc) {
	v1 := r.Group("/api/v1")
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}

	a := v1.Group("/auth", limit)
	a.POST("/login", h.Login)
	a.POST("/enroll", h.Enroll)

	authed := auth.Authenticate(h.jwt.SigningKey, h.jwt.Issuer, h.now)

	m := v1.Group("/mentor", authed, limit, auth.RequireRole(auth.RoleMentor))
	m.POST("/timetable", h.UploadClassTimetable)
	m.DELETE("/timetable", h.ResetSemester)
	m.GET("/classes", h.MentorClasses)
	m.POST("/classes/:id/beacon", h.ToggleBeacon)
	m.POST("/classes/:id/students", h.AddStudent)
	m.DELETE("/classes/:id/students/:roll", h.RemoveStudent)
	m.GET("/students", h.MentorStudents)

	t := v1.Group("/teacher", authed, limit, auth.RequireRole(auth.RoleTeacher))
	t.POST("/timetable", h.UploadTeacherTimetable)
	t.GET("/sessions", h.TeacherSessions)
	t.POST("/sessions/:id/tracking", h.ToggleTracking)
	t.PUT("/sessions/:id/location", h.RefreshLocation)

	s := v1.Group("/student", authed, limit, auth.RequireRole(auth.RoleStudent))
	s.GET("/classes", h.StudentClasses)
	s.POST("/classes/:id/precheck", h.Precheck)
	s.POST("/classes/:id/capture", h.Capture)
	s.GET("/attendance", h.StudentAttendance)
}

func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.Wrap(apperr.Clone(apperr.ErrValidation, "invalid request body"), err)
	}
	return nil
}

func claims(c *gin.Context) auth.Claims {
	cl, _ := auth.ClaimsFrom(c)
	return cl
}

func (h *Handler) emit(c *gin.Context, evt queue.Event, data any) {
	if evt.ActorID == "" {
		evt.ActorID = claims(c).UserID()
	}
	h.events.Emit(c.Request.Context(), evt, data)
}
