// Package repository defines the message log interface and its SQLite
// implementation.
package repository

import (
	"context"

	"github.com/xiaot623/gogo/chatrelay/internal/domain"
)

// Store is the durable, append-only message log.
type Store interface {
	// Append persists one message and returns its id once committed.
	Append(ctx context.Context, sessionID string, role domain.Role, content string) (domain.MessageID, error)

	// ListBySession returns a session's messages in creation order. An
	// unknown session yields an empty slice.
	ListBySession(ctx context.Context, sessionID string) ([]domain.HistoryEntry, error)

	// ListSessionIDs returns every distinct session id with at least one message.
	ListSessionIDs(ctx context.Context) ([]string, error)

	// DeleteAll removes every message of every session.
	DeleteAll(ctx context.Context) (int64, error)

	// NormalizeContent unwraps content stored as a {"content": "..."} JSON
	// object. With dryRun set it only counts the candidates.
	NormalizeContent(ctx context.Context, dryRun bool) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
