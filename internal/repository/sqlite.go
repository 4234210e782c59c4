package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/xiaot623/gogo/chatrelay/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// fileDSNParams runs file databases in WAL mode so readers never block the
// writer, waits out a busy writer instead of failing, and takes the write
// lock at BEGIN. Shared-cache mode is avoided: with a pooled *sql.DB it turns
// concurrent writes into SQLITE_LOCKED errors that busy_timeout cannot absorb.
const fileDSNParams = "mode=rwc&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"

// FileDSN returns the DSN for a database file at path.
func FileDSN(path string) string {
	return "file:" + path + "?" + fileDSNParams
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dsn and applies pending migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Append persists one message. The insert runs in autocommit mode, so the
// row is durable when Append returns.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, role domain.Role, content string) (domain.MessageID, error) {
	if sessionID == "" {
		return 0, domain.NewStorageError("append", errors.New("session id is required"))
	}
	if !role.Valid() {
		return 0, domain.NewStorageError("append", fmt.Errorf("unsupported role %q", role))
	}
	if content == "" {
		return 0, domain.NewStorageError("append", errors.New("content is required"))
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(role), content, time.Now().UTC(),
	)
	if err != nil {
		return 0, domain.NewStorageError("append", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, domain.NewStorageError("append", err)
	}
	return domain.MessageID(id), nil
}

// ListBySession returns the session's messages ordered by id.
func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID string) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, domain.NewStorageError("list messages", err)
	}
	defer rows.Close()

	history := []domain.HistoryEntry{}
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, domain.NewStorageError("list messages", err)
		}
		history = append(history, domain.HistoryEntry{Role: domain.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list messages", err)
	}
	return history, nil
}

// ListSessionIDs returns distinct session ids ordered by first appearance.
func (s *SQLiteStore) ListSessionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM messages GROUP BY session_id ORDER BY MIN(id) ASC`,
	)
	if err != nil {
		return nil, domain.NewStorageError("list sessions", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.NewStorageError("list sessions", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list sessions", err)
	}
	return ids, nil
}

// DeleteAll clears the message log and returns the number of rows removed.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages`)
	if err != nil {
		return 0, domain.NewStorageError("delete all", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.NewStorageError("delete all", err)
	}
	return n, nil
}

// normalizeFilter matches rows whose whole content is a JSON object with a
// non-empty string "content" member. A second run only touches rows that are
// still wrapped.
const normalizeFilter = `content LIKE '{%}' AND CASE
	WHEN json_valid(content) THEN json_type(content, '$.content') = 'text' AND json_extract(content, '$.content') <> ''
	ELSE 0
END`

// NormalizeContent rewrites wrapped content in a single transaction.
func (s *SQLiteStore) NormalizeContent(ctx context.Context, dryRun bool) (int64, error) {
	if dryRun {
		var n int64
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE `+normalizeFilter).Scan(&n)
		if err != nil {
			return 0, domain.NewStorageError("normalize", err)
		}
		return n, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.NewStorageError("normalize", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE messages SET content = json_extract(content, '$.content') WHERE `+normalizeFilter,
	)
	if err != nil {
		tx.Rollback()
		return 0, domain.NewStorageError("normalize", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return 0, domain.NewStorageError("normalize", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, domain.NewStorageError("normalize", err)
	}
	return n, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return domain.NewStorageError("ping", s.db.PingContext(ctx))
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
