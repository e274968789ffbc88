package handler

import (
	"github.com/gin-gonic/gin"

	"beaconattend/internal/apperr"
	"beaconattend/internal/auth"
	"beaconattend/internal/response"
)

type loginRequest struct {
	Role  auth.Role `json:"role" binding:"required"`
	Email string    `json:"email" binding:"required"`
}

type enrollRequest struct {
	Email   string `json:"email" binding:"required"`
	RollNo  string `json:"rollNo" binding:"required"`
	Section string `json:"section" binding:"required"`
}

type session struct {
	Token auth.Token    `json:"token"`
	User  auth.Identity `json:"user"`
}

// Login signs in a whitelisted staff member or an enrolled student.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	id, err := h.directory.Resolve(req.Role, req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	if id.Role == auth.RoleStudent {
		e, ok, err := h.timetables.Enrollment(c.Request.Context(), id.ID)
		if err != nil {
			response.Error(c, err)
			return
		}
		if !ok {
			response.Error(c, apperr.WithDetail(apperr.ErrEnrollmentRequired, "studentId", id.ID))
			return
		}
		id.RollNo, id.Section = e.StudentRollNo, e.Section
	}
	h.issue(c, id)
}

// Enroll registers a first-time student and signs them in.
func (h *Handler) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	id, err := h.directory.Resolve(auth.RoleStudent, req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	e, err := h.timetables.Enroll(c.Request.Context(), id.ID, id.Email, req.RollNo, req.Section)
	if err != nil {
		response.Error(c, err)
		return
	}
	id.RollNo, id.Section = e.StudentRollNo, e.Section
	h.issue(c, id)
}

func (h *Handler) issue(c *gin.Context, id auth.Identity) {
	tok, err := auth.Issue(id, h.jwt.Issuer, h.jwt.SigningKey, h.jwt.TTL, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Sugar().Infow("signed in", "user_id", id.ID, "role", id.Role)
	response.OK(c, session{Token: tok, User: id})
}
