package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/beesaferoot/leasekeeper/internal/lease"
)

type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func RespondError(c *gin.Context, status int, kind string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorBody{Error: msg, Kind: kind})
}

// RespondLeaseError maps an engine error kind onto an HTTP status.
func RespondLeaseError(c *gin.Context, err error) {
	status, kind := Classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	RespondError(c, status, kind, err)
}

func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, lease.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, lease.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, lease.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, lease.ErrTransientStorage):
		return http.StatusServiceUnavailable, "transient_storage_error"
	case errors.Is(err, lease.ErrAuditWrite):
		return http.StatusInternalServerError, "audit_write_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
