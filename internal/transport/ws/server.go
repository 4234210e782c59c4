// Package ws serves the relay over websocket connections.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatrelay/internal/config"
	"github.com/xiaot623/gogo/chatrelay/internal/domain"
	"github.com/xiaot623/gogo/chatrelay/internal/hub"
	"github.com/xiaot623/gogo/chatrelay/internal/relay"
)

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	relay    *relay.Relay
	upgrader websocket.Upgrader
	logger   *slog.Logger

	// Cancelled by Shutdown; every connection context derives from it.
	baseCtx  context.Context
	shutdown context.CancelFunc

	mu      sync.Mutex
	closing bool
	active  sync.WaitGroup
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, r *relay.Relay, logger *slog.Logger) *Server {
	baseCtx, shutdown := context.WithCancel(context.Background())
	return &Server{
		cfg:   cfg,
		hub:   h,
		relay: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// No origin policy; the relay has no authentication either
				return true
			},
		},
		logger:   logger,
		baseCtx:  baseCtx,
		shutdown: shutdown,
	}
}

// RegisterRoutes registers the websocket route.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/:session_id", s.HandleWebSocket)
}

// Shutdown closes every live connection with a going-away frame and refuses
// new ones. Use Wait to block until the handlers have returned.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.shutdown()
}

// Wait blocks until every websocket handler has returned or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track registers a running handler. It reports false once Shutdown was
// called.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.active.Add(1)
	return true
}

// HandleWebSocket loads the session history, upgrades the connection and
// runs the relay until the connection ends. History is read before the
// upgrade so that a storage failure is reported as a plain HTTP error.
func (s *Server) HandleWebSocket(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	if !s.track() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server shutting down")
	}
	defer s.active.Done()

	session, err := s.relay.Open(c.Request().Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to open session", "session_id", sessionID, "error", err)
		return err
	}

	wsConn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error response.
		s.logger.Warn("failed to upgrade websocket", "session_id", sessionID, "error", err)
		return nil
	}
	wsConn.SetReadLimit(s.cfg.MaxMessageSize)

	conn := s.hub.NewConnection(sessionID, c.RealIP())
	logger := s.logger.With("session_id", sessionID, "conn_id", conn.ID)
	if live := s.hub.Register(conn); live > 1 {
		logger.Warn("session has concurrent connections, turns may interleave", "connections", live)
	}
	defer s.hub.Unregister(conn)

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	p := newPeer(wsConn, s, logger)
	p.start(ctx, cancel)
	defer p.close(websocket.CloseNormalClosure, "")

	logger.Info("session connected", "remote_addr", conn.RemoteAddr)
	runErr := session.Run(ctx, p)

	code, reason := closeCode(runErr)
	if runErr == nil && s.baseCtx.Err() != nil {
		code, reason = websocket.CloseGoingAway, "server shutting down"
	}
	if runErr != nil {
		logger.Warn("session ended with error", "error", runErr)
	}
	p.close(code, reason)
	return nil
}

// closeCode maps the outcome of a relay session to a websocket close code.
func closeCode(err error) (int, string) {
	switch {
	case err == nil:
		return websocket.CloseNormalClosure, ""
	case domain.IsProviderError(err):
		return websocket.CloseNormalClosure, "completion failed"
	default:
		return websocket.CloseInternalServerErr, "storage failure"
	}
}
