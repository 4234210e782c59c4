// Package v1 provides the session directory HTTP handlers.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatrelay/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the directory routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/sessions", h.CreateSession)
	e.GET("/sessions", h.ListSessions)
	e.DELETE("/sessions", h.DeleteSessions)
	e.GET("/chat/:session_id", h.GetChatHistory)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	status := h.service.Health(c.Request().Context())
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}
