package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/amos"
)

// SessionHandler exposes the cloud session refresh entry point
type SessionHandler struct {
	session *amos.Session
	logger  *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(session *amos.Session, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		session: session,
		logger:  logger,
	}
}

// RefreshSession forces a login + device-list refresh
// POST /v1/session/refresh
func (h *SessionHandler) RefreshSession(c *gin.Context) {
	creds, err := h.session.Refresh(c.Request.Context())
	if err != nil {
		h.logger.Error("Session refresh failed",
			"component", "api",
			"error", err)

		status := http.StatusBadGateway
		code := "SERVICE_UNAVAILABLE"
		switch {
		case errors.Is(err, amos.ErrMissingCredentials):
			status = http.StatusPreconditionFailed
			code = "MISSING_CREDENTIALS"
		case errors.Is(err, amos.ErrInvalidCredentials):
			status = http.StatusUnauthorized
			code = "INVALID_CREDENTIALS"
		}

		c.JSON(status, gin.H{
			"error":  "Session refresh failed",
			"code":   code,
			"detail": err.Error(),
		})
		return
	}

	// The token itself is never echoed back.
	c.JSON(http.StatusOK, gin.H{
		"refreshed": true,
		"uid":       creds.UID,
	})
}
