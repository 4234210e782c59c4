// Package relay implements the session-scoped streaming relay: history
// replay, user-turn persistence, fragment relaying and reply persistence for
// one live connection.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xiaot623/gogo/chatrelay/internal/domain"
)

// ErrPeerClosed is returned by Peer.Receive once the peer has gone away.
var ErrPeerClosed = errors.New("peer closed the connection")

// ErrSessionRequired is returned by Open for an empty session id.
var ErrSessionRequired = errors.New("session id is required")

// ErrorPrefix starts the single text unit sent after a provider failure.
const ErrorPrefix = "Error: "

// Peer is the client end of one live connection.
type Peer interface {
	// Receive blocks until the next inbound text unit. It returns
	// ErrPeerClosed after a disconnect.
	Receive(ctx context.Context) (string, error)

	// SendRecord sends one structured history record.
	SendRecord(ctx context.Context, entry domain.HistoryEntry) error

	// SendText sends one raw text unit.
	SendText(ctx context.Context, text string) error
}

// Store is the part of the message log the relay writes and replays from.
type Store interface {
	Append(ctx context.Context, sessionID string, role domain.Role, content string) (domain.MessageID, error)
	ListBySession(ctx context.Context, sessionID string) ([]domain.HistoryEntry, error)
}

// Completer streams a reply for a conversation context.
type Completer interface {
	Complete(ctx context.Context, turns []domain.HistoryEntry, onFragment func(fragment string) error) error
}

// Options tunes relay behaviour.
type Options struct {
	// FragmentDelay is slept after each relayed fragment. Zero disables it.
	FragmentDelay time.Duration

	// ForwardHistory sends the whole stored session as provider context
	// instead of only the latest user turn.
	ForwardHistory bool

	// onTransition, when set, observes every state change.
	onTransition func(sessionID string, from, to State)
}

// Relay creates per-connection sessions sharing one store and completer.
type Relay struct {
	store     Store
	completer Completer
	opts      Options
	logger    *slog.Logger
}

// New creates a Relay.
func New(store Store, completer Completer, opts Options, logger *slog.Logger) *Relay {
	return &Relay{
		store:     store,
		completer: completer,
		opts:      opts,
		logger:    logger,
	}
}

// Session is the state machine of one live connection.
type Session struct {
	relay   *Relay
	id      string
	history []domain.HistoryEntry
	state   atomic.Int32
	logger  *slog.Logger
}

// Open loads the session history so a read failure can reject the
// connection before it is accepted. The returned Session is in
// StateConnecting and must be driven by Run exactly once.
func (r *Relay) Open(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	history, err := r.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history for session %s: %w", sessionID, err)
	}

	return &Session{
		relay:   r,
		id:      sessionID,
		history: history,
		logger:  r.logger.With("session_id", sessionID),
	}, nil
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run replays the history to peer and then serves user turns until the
// peer disconnects or a turn fails. It returns nil when the peer went away,
// a *domain.ProviderError after the error unit was sent, or an error
// carrying *domain.StorageError when a write failed.
func (s *Session) Run(ctx context.Context, peer Peer) error {
	defer s.transition(StateClosed)

	s.transition(StateReplaying)
	for _, entry := range s.history {
		if err := peer.SendRecord(ctx, entry); err != nil {
			return s.peerGone(ctx, err)
		}
	}
	s.logger.Debug("history replayed", "messages", len(s.history))
	s.history = nil

	for {
		s.transition(StateListening)
		text, err := peer.Receive(ctx)
		if err != nil {
			return s.peerGone(ctx, err)
		}
		if text == "" {
			s.logger.Debug("ignoring empty user turn")
			continue
		}

		if err := s.serveTurn(ctx, peer, text); err != nil {
			if errors.Is(err, errPeerGone) {
				return nil
			}
			return err
		}
	}
}

// errPeerGone marks a turn abandoned because the peer disconnected.
var errPeerGone = errors.New("peer gone")

// sendError marks a failed send while relaying fragments.
type sendError struct {
	err error
}

func (e *sendError) Error() string {
	return "send fragment: " + e.err.Error()
}

func (e *sendError) Unwrap() error {
	return e.err
}

func (s *Session) serveTurn(ctx context.Context, peer Peer, text string) error {
	s.transition(StatePersistingUserTurn)
	if _, err := s.relay.store.Append(ctx, s.id, domain.RoleUser, text); err != nil {
		if ctx.Err() != nil {
			s.peerGone(ctx, err)
			return errPeerGone
		}
		s.logger.Error("failed to persist user turn", "error", err)
		return fmt.Errorf("persist user turn: %w", err)
	}

	turns, err := s.completionContext(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			s.peerGone(ctx, err)
			return errPeerGone
		}
		s.logger.Error("failed to load completion context", "error", err)
		return fmt.Errorf("load completion context: %w", err)
	}

	s.transition(StateStreamingReply)
	var reply strings.Builder
	fragments := 0
	err = s.relay.completer.Complete(ctx, turns, func(fragment string) error {
		if fragment == "" {
			return nil
		}
		if err := peer.SendText(ctx, fragment); err != nil {
			return &sendError{err: err}
		}
		reply.WriteString(fragment)
		fragments++
		return s.pace(ctx)
	})
	if err != nil {
		var se *sendError
		if errors.As(err, &se) || ctx.Err() != nil {
			s.logger.Info("reply abandoned", "fragments_sent", fragments)
			s.peerGone(ctx, err)
			return errPeerGone
		}

		s.logger.Warn("completion failed, discarding partial reply", "error", err, "fragments_sent", fragments)
		var pe *domain.ProviderError
		if !errors.As(err, &pe) {
			pe = &domain.ProviderError{Err: err}
		}
		if sendErr := peer.SendText(ctx, ErrorPrefix+pe.Error()); sendErr != nil {
			s.peerGone(ctx, sendErr)
		}
		return pe
	}

	if reply.Len() == 0 {
		s.logger.Warn("completion produced no content, nothing persisted")
		return nil
	}

	s.transition(StatePersistingReply)
	if _, err := s.relay.store.Append(ctx, s.id, domain.RoleAssistant, reply.String()); err != nil {
		if ctx.Err() != nil {
			s.peerGone(ctx, err)
			return errPeerGone
		}
		s.logger.Error("failed to persist reply", "error", err)
		return fmt.Errorf("persist reply: %w", err)
	}
	s.logger.Debug("turn completed", "fragments", fragments, "reply_len", reply.Len())
	return nil
}

// completionContext builds the provider context for the user turn text,
// which has already been persisted.
func (s *Session) completionContext(ctx context.Context, text string) ([]domain.HistoryEntry, error) {
	if !s.relay.opts.ForwardHistory {
		return []domain.HistoryEntry{{Role: domain.RoleUser, Content: text}}, nil
	}
	return s.relay.store.ListBySession(ctx, s.id)
}

func (s *Session) pace(ctx context.Context) error {
	delay := s.relay.opts.FragmentDelay
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// peerGone logs a disconnect and reports it as a clean close.
func (s *Session) peerGone(ctx context.Context, err error) error {
	if errors.Is(err, ErrPeerClosed) || ctx.Err() != nil {
		s.logger.Info("session disconnected", "state", s.State().String())
	} else {
		s.logger.Warn("peer connection failed", "state", s.State().String(), "error", err)
	}
	return nil
}

func (s *Session) transition(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.logger.Debug("state transition", "from", from.String(), "to", to.String())
	if hook := s.relay.opts.onTransition; hook != nil {
		hook(s.id, from, to)
	}
}
