package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/chatrelay/internal/domain"
	"github.com/xiaot623/gogo/chatrelay/internal/relay"
)

// peer adapts one websocket connection to relay.Peer. Text frames read by
// the read pump queue up in inbound until the relay asks for them.
type peer struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	readTimeout  time.Duration
	pingInterval time.Duration
	logger       *slog.Logger

	inbound chan string
	done    chan struct{}

	closeOnce sync.Once
}

var _ relay.Peer = (*peer)(nil)

func newPeer(conn *websocket.Conn, s *Server, logger *slog.Logger) *peer {
	return &peer{
		conn:         conn,
		writeTimeout: s.cfg.WriteTimeout,
		readTimeout:  s.cfg.ReadTimeout,
		pingInterval: s.cfg.PingInterval,
		logger:       logger,
		inbound:      make(chan string, 16),
		done:         make(chan struct{}),
	}
}

// start runs the read pump and the ping loop. cancel is called once the
// peer is gone so that in-flight work bound to ctx is aborted.
func (p *peer) start(ctx context.Context, cancel context.CancelFunc) {
	go p.readPump(ctx, cancel)
	go p.pingLoop(ctx)
}

func (p *peer) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		close(p.done)
		cancel()
	}()

	p.conn.SetReadDeadline(time.Now().Add(p.readTimeout))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(p.readTimeout))
		return nil
	})

	for {
		msgType, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				p.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			p.logger.Debug("ignoring non-text frame", "type", msgType)
			continue
		}

		select {
		case p.inbound <- string(message):
		case <-ctx.Done():
			return
		}
	}
}

func (p *peer) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(p.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(p.writeTimeout)
			if err := p.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				p.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// Receive returns the next queued text frame.
func (p *peer) Receive(ctx context.Context) (string, error) {
	select {
	case text := <-p.inbound:
		return text, nil
	default:
	}

	select {
	case text := <-p.inbound:
		return text, nil
	case <-p.done:
		return "", relay.ErrPeerClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// SendRecord writes entry as a JSON text frame.
func (p *peer) SendRecord(_ context.Context, entry domain.HistoryEntry) error {
	p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	return p.conn.WriteJSON(entry)
}

// SendText writes text as a raw text frame.
func (p *peer) SendText(_ context.Context, text string) error {
	p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	return p.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// close sends a close frame with code and tears the connection down. It is
// safe to call more than once.
func (p *peer) close(code int, reason string) {
	p.closeOnce.Do(func() {
		deadline := time.Now().Add(p.writeTimeout)
		msg := websocket.FormatCloseMessage(code, reason)
		if err := p.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			p.logger.Debug("close frame not delivered", "error", err)
		}
		p.conn.Close()
	})
}
