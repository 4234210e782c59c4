// Package http assembles the HTTP server for the relay.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/gogo/chatrelay/internal/service"
	v1 "github.com/xiaot623/gogo/chatrelay/internal/transport/http/v1"
	"github.com/xiaot623/gogo/chatrelay/internal/transport/ws"
)

// NewServer creates the echo server carrying the session directory and the
// websocket endpoint.
func NewServer(svc *service.Service, wsServer *ws.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = v1.ErrorHandler

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	wsServer.RegisterRoutes(e)

	return e
}
