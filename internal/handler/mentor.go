package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"beaconattend/internal/attendance"
	"beaconattend/internal/geo"
	"beaconattend/internal/queue"
	"beaconattend/internal/response"
	"beaconattend/internal/timetable"
)

type uploadRequest struct {
	Image   string `json:"image" binding:"required"`
	Section string `json:"section"`
}

type beaconRequest struct {
	Type     attendance.BeaconType `json:"type" binding:"required"`
	Location *geo.Coordinate       `json:"location"`
}

type rosterRequest struct {
	RollNo string `json:"rollNo" binding:"required"`
}

type classView struct {
	timetable.ClassSession
	Attendance []attendance.Record `json:"attendance"`
}

// UploadClassTimetable replaces the timetable from a photographed schedule.
func (h *Handler) UploadClassTimetable(c *gin.Context) {
	var req uploadRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	classes, err := h.timetables.ImportClassTimetable(c.Request.Context(), claims(c).UserID(), req.Section, req.Image)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.emit(c, queue.Event{Type: queue.EventTimetableImported}, map[string]any{"kind": "class", "count": len(classes)})
	response.Created(c, classes)
}

// ResetSemester clears every class session.
func (h *Handler) ResetSemester(c *gin.Context) {
	if err := h.timetables.ResetSemester(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MentorClasses lists class sessions with their attendance.
func (h *Handler) MentorClasses(c *gin.Context) {
	ctx := c.Request.Context()
	classes, err := h.timetables.Classes(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]classView, 0, len(classes))
	for _, cs := range classes {
		recs, err := h.records.ClassRecords(ctx, cs.ID)
		if err != nil {
			response.Error(c, err)
			return
		}
		if recs == nil {
			recs = []attendance.Record{}
		}
		out = append(out, classView{ClassSession: cs, Attendance: recs})
	}
	response.OK(c, out)
}

// ToggleBeacon flips a class beacon at the mentor's position.
func (h *Handler) ToggleBeacon(c *gin.Context) {
	var req beaconRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	fix, err := h.fix(req.Location)
	if err != nil {
		response.Error(c, err)
		return
	}
	cs, err := h.timetables.ToggleBeacon(c.Request.Context(), c.Param("id"), req.Type, fix)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.emit(c, queue.Event{Type: queue.EventBeaconToggled, ClassID: cs.ID}, cs.Beacon())
	response.OK(c, cs)
}

// AddStudent adds a roll number to a class roster.
func (h *Handler) AddStudent(c *gin.Context) {
	var req rosterRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	cs, err := h.timetables.AddStudent(c.Request.Context(), c.Param("id"), req.RollNo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cs)
}

// RemoveStudent drops a roll number from a class roster.
func (h *Handler) RemoveStudent(c *gin.Context) {
	cs, err := h.timetables.RemoveStudent(c.Request.Context(), c.Param("id"), c.Param("roll"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cs)
}

// MentorStudents lists the students enrolled under the caller.
func (h *Handler) MentorStudents(c *gin.Context) {
	students, err := h.timetables.MentorStudents(c.Request.Context(), claims(c).UserID())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, students)
}
