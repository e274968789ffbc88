package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"beaconattend/internal/apperr"
	"beaconattend/internal/attendance"
	"beaconattend/internal/geo"
	"beaconattend/internal/queue"
	"beaconattend/internal/response"
)

type captureRequest struct {
	Type     attendance.BeaconType `json:"type"`
	Photo    string                `json:"photo" binding:"required"`
	Location *geo.Coordinate       `json:"location"`
	Comment  string                `json:"comment"`
}

type studentClass struct {
	ID        string                `json:"id"`
	Subject   string                `json:"subject"`
	TimeStart string                `json:"timeStart"`
	TimeEnd   string                `json:"timeEnd"`
	Room      string                `json:"room"`
	IsLive    bool                  `json:"isLive"`
	LiveType  attendance.BeaconType `json:"liveType,omitempty"`
	Status    attendance.Status     `json:"status"`
	Record    *attendance.Record    `json:"record,omitempty"`
}

// StudentClasses lists the sessions of the caller's section with their
// attendance status.
func (h *Handler) StudentClasses(c *gin.Context) {
	ctx := c.Request.Context()
	cl := claims(c)
	classes, err := h.timetables.ClassesForSection(ctx, cl.Section)
	if err != nil {
		response.Error(c, err)
		return
	}
	recs, err := h.records.StudentRecords(ctx, cl.UserID())
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]studentClass, 0, len(classes))
	for _, cs := range classes {
		view := studentClass{
			ID: cs.ID, Subject: cs.Subject, TimeStart: cs.TimeStart, TimeEnd: cs.TimeEnd, Room: cs.Room,
			IsLive: cs.IsLive, LiveType: cs.LiveType, Status: attendance.StatusAbsent,
		}
		if rec, ok := recs[cs.ID]; ok {
			rec := rec
			view.Status = rec.Status
			view.Record = &rec
		}
		out = append(out, view)
	}
	response.OK(c, out)
}

// Precheck runs the proximity gate before the camera opens.
func (h *Handler) Precheck(c *gin.Context) {
	var req locationRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.ownClass(c, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	check, err := h.attendance.Precheck(c.Request.Context(), c.Param("id"), h.locator(req.Location))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, check)
}

// Capture submits a photo. Classroom captures re-run the proximity gate with
// the fix in this request.
func (h *Handler) Capture(c *gin.Context) {
	var req captureRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.ownClass(c, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	cl := claims(c)
	rec, err := h.attendance.Capture(c.Request.Context(), attendance.CaptureRequest{
		ClassID: c.Param("id"),
		Student: attendance.Student{ID: cl.UserID(), RollNo: cl.RollNo, Name: cl.Email},
		Type:    req.Type,
		Photo:   req.Photo,
		Comment: req.Comment,
		Locator: h.locator(req.Location),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.emit(c, queue.Event{
		Type:      queue.EventAttendanceRecorded,
		ClassID:   rec.ClassID,
		StudentID: rec.StudentID,
		Status:    string(rec.Status),
	}, map[string]any{"rollNo": rec.StudentRollNo, "updatedAt": rec.UpdatedAt})
	response.OK(c, rec)
}

// StudentAttendance returns the caller's records keyed by class id.
func (h *Handler) StudentAttendance(c *gin.Context) {
	recs, err := h.records.StudentRecords(c.Request.Context(), claims(c).UserID())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, recs)
}

// ownClass rejects classes outside the caller's section.
func (h *Handler) ownClass(c *gin.Context, classID string) error {
	cs, err := h.timetables.Class(c.Request.Context(), classID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(cs.Section, claims(c).Section) {
		return apperr.Clone(apperr.ErrForbidden, "class is not in your section")
	}
	return nil
}
