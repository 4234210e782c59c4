package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// CreateSession mints a new session id.
// POST /sessions
func (h *Handler) CreateSession(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"session_id": h.service.CreateSession(c.Request().Context()),
	})
}

// ListSessions lists every session with stored messages.
// GET /sessions
func (h *Handler) ListSessions(c echo.Context) error {
	ids, err := h.service.ListSessions(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": ids,
	})
}

// GetChatHistory returns the stored messages of a session.
// GET /chat/:session_id
func (h *Handler) GetChatHistory(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return writeError(c, http.StatusBadRequest, CodeInvalidRequest, "session_id is required")
	}

	history, err := h.service.GetHistory(c.Request().Context(), sessionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

// DeleteSessions removes every stored message.
// DELETE /sessions
func (h *Handler) DeleteSessions(c echo.Context) error {
	n, err := h.service.DeleteAll(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "All sessions deleted successfully",
		"deleted": n,
	})
}
