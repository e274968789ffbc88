package handler

import (
	"github.com/gin-gonic/gin"

	"beaconattend/internal/geo"
	"beaconattend/internal/queue"
	"beaconattend/internal/response"
)

type locationRequest struct {
	Location *geo.Coordinate `json:"location"`
}

// UploadTeacherTimetable appends the caller's sessions from a photographed
// schedule and reports how many match a class.
func (h *Handler) UploadTeacherTimetable(c *gin.Context) {
	var req uploadRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	cl := claims(c)
	sessions, matched, err := h.timetables.ImportTeacherTimetable(c.Request.Context(), cl.UserID(), cl.Email, req.Image)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.emit(c, queue.Event{Type: queue.EventTimetableImported}, map[string]any{"kind": "teacher", "count": len(sessions), "matched": matched})
	response.Created(c, sessions, map[string]any{"matched": matched})
}

// TeacherSessions lists the caller's sessions.
func (h *Handler) TeacherSessions(c *gin.Context) {
	sessions, err := h.timetables.TeacherSessions(c.Request.Context(), claims(c).UserID())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sessions)
}

// ToggleTracking turns location sharing for one session on or off.
func (h *Handler) ToggleTracking(c *gin.Context) {
	var req locationRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	fix, err := h.fix(req.Location)
	if err != nil {
		response.Error(c, err)
		return
	}
	ts, err := h.timetables.ToggleTracking(c.Request.Context(), claims(c).UserID(), c.Param("id"), fix)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ts)
}

// RefreshLocation records the latest fix of a tracking session.
func (h *Handler) RefreshLocation(c *gin.Context) {
	var req locationRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	fix, err := h.requireFix(req.Location)
	if err != nil {
		response.Error(c, err)
		return
	}
	ts, err := h.timetables.RefreshLocation(c.Request.Context(), claims(c).UserID(), c.Param("id"), fix)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ts)
}
