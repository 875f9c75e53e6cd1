package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"supply-daddy-api-server/internal/auth"
	"supply-daddy-api-server/internal/sentinel"
	"supply-daddy-api-server/internal/users"
)

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, sentinel.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, users.ErrBadCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, sentinel.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sentinel.ErrInvalidTransition),
		errors.Is(err, sentinel.ErrBusy),
		errors.Is(err, sentinel.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, sentinel.ErrLedgerWriteFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

var messages = map[int]string{
	http.StatusBadRequest:          "Invalid request",
	http.StatusUnauthorized:        "Authentication failed",
	http.StatusForbidden:           "You do not have permission to access this resource",
	http.StatusNotFound:            "Resource not found",
	http.StatusConflict:            "Request conflicts with the current state",
	http.StatusBadGateway:          "Ledger write failed",
	http.StatusInternalServerError: "Internal server error",
}

func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	if errors.Is(err, sentinel.ErrBusy) {
		c.JSON(status, gin.H{"error": "Another submission is in progress", "details": err.Error()})
		return
	}
	c.JSON(status, gin.H{"error": messages[status], "details": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": messages[http.StatusBadRequest], "details": err.Error()})
}

// callerOf returns the identity set by the auth middleware.
func callerOf(c *gin.Context) auth.Identity {
	id, _ := auth.IdentityFrom(c.Request.Context())
	return id
}
