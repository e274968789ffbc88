package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"beaconattend/internal/apperr"
)

// Envelope is the body of every API response.
type Envelope struct {
	Data  any            `json:"data,omitempty"`
	Error *apperr.Error  `json:"error,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// JSON sends a success response.
func JSON(c *gin.Context, status int, data any, meta ...map[string]any) {
	c.Header("Cache-Control", "no-store")
	env := Envelope{Data: data}
	if len(meta) > 0 && meta[0] != nil {
		env.Meta = meta[0]
	}
	c.JSON(status, env)
}

// OK responds with HTTP 200.
func OK(c *gin.Context, data any, meta ...map[string]any) {
	JSON(c, http.StatusOK, data, meta...)
}

// Created responds with HTTP 201.
func Created(c *gin.Context, data any, meta ...map[string]any) {
	JSON(c, http.StatusCreated, data, meta...)
}

// Error converts err to the common structure and aborts the chain.
func Error(c *gin.Context, err error) {
	appErr := apperr.FromError(err)
	if appErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(appErr.Status, Envelope{Error: appErr})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
