package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/chatrelay/internal/domain"
)

// CreateSession mints a fresh session id. Nothing is stored until the first
// message of the session is appended.
func (s *Service) CreateSession(_ context.Context) string {
	return uuid.New().String()
}

// ListSessions returns the ids of every session with stored messages.
func (s *Service) ListSessions(ctx context.Context) ([]string, error) {
	ids, err := s.store.ListSessionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}

// GetHistory returns the messages of sessionID, or domain.ErrNotFound when
// the session has none.
func (s *Service) GetHistory(ctx context.Context, sessionID string) ([]domain.HistoryEntry, error) {
	history, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	if len(history) == 0 {
		return nil, domain.ErrNotFound
	}
	return history, nil
}

// DeleteAll clears every session and returns the number of messages removed.
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	if live := s.hub.GetConnectionCount(); live > 0 {
		s.logger.Warn("deleted all sessions while connections are live", "connections", live)
	}
	s.logger.Info("deleted all sessions", "messages", n)
	return n, nil
}

// HealthStatus reports store reachability and live connection counts.
type HealthStatus struct {
	Status      string `json:"status"`
	Store       string `json:"store"`
	Connections int    `json:"connections"`
	Sessions    int    `json:"sessions"`
}

// Healthy reports whether the store answered.
func (h HealthStatus) Healthy() bool {
	return h.Store == "ok"
}

// Health pings the store and snapshots the connection hub.
func (s *Service) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:      "healthy",
		Store:       "ok",
		Connections: s.hub.GetConnectionCount(),
		Sessions:    s.hub.GetSessionCount(),
	}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("store ping failed", "error", err)
		status.Status = "degraded"
		status.Store = "unreachable"
	}
	return status
}

// NormalizeContent unwraps JSON-wrapped message content.
func (s *Service) NormalizeContent(ctx context.Context, dryRun bool) (int64, error) {
	n, err := s.store.NormalizeContent(ctx, dryRun)
	if err != nil {
		return 0, fmt.Errorf("failed to normalize content: %w", err)
	}
	s.logger.Info("normalized message content", "rows", n, "dry_run", dryRun)
	return n, nil
}
