package http

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/sygfp/internal/domain/workflow"
	"github.com/garyjia/sygfp/internal/infrastructure/storage"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

var errorStatus = []struct {
	err    error
	status int
}{
	{workflow.ErrNotAuthenticated, http.StatusUnauthorized},
	{workflow.ErrNotAuthorized, http.StatusForbidden},
	{workflow.ErrValidationFailed, http.StatusUnprocessableEntity},
	{workflow.ErrMotifRequired, http.StatusUnprocessableEntity},
	{workflow.ErrPrerequisiteNotMet, http.StatusUnprocessableEntity},
	{workflow.ErrInvalidTransition, http.StatusConflict},
	{workflow.ErrConcurrentModification, http.StatusConflict},
	{workflow.ErrGuardFailed, http.StatusConflict},
	{workflow.ErrReferenceAllocationFailed, http.StatusServiceUnavailable},
	{workflow.ErrNotFound, http.StatusNotFound},
	{storage.ErrInvalidSignature, http.StatusForbidden},
	{fs.ErrNotExist, http.StatusNotFound},
}

// statusFor maps an application error to an HTTP status
func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Error: msg})
}

// fail writes the error. Internal errors are logged and their detail hidden.
func (h *Handlers) fail(c *gin.Context, err error, op string, kv ...interface{}) {
	status := statusFor(err)
	resp := Response{Error: err.Error()}

	var perr *workflow.PrerequisiteError
	if errors.As(err, &perr) {
		resp.Code = perr.Code
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", append([]interface{}{"op", op, "error", err}, kv...)...)
		resp.Error = "internal error"
	}
	c.JSON(status, resp)
}
