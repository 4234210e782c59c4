package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/chatrelay/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreAppendAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.Append(ctx, "s1", domain.RoleUser, "hi")
	require.NoError(t, err)
	second, err := store.Append(ctx, "s1", domain.RoleAssistant, "hello there")
	require.NoError(t, err)
	_, err = store.Append(ctx, "s2", domain.RoleUser, "other session")
	require.NoError(t, err)
	third, err := store.Append(ctx, "s1", domain.RoleUser, "how are you")
	require.NoError(t, err)

	assert.Less(t, first, second)
	assert.Less(t, second, third)

	history, err := store.ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []domain.HistoryEntry{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello there"},
		{Role: domain.RoleUser, Content: "how are you"},
	}, history)
}

func TestSQLiteStoreListUnknownSessionIsEmpty(t *testing.T) {
	store := newTestStore(t)

	history, err := store.ListBySession(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestSQLiteStoreAppendValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	cases := []struct {
		name      string
		sessionID string
		role      domain.Role
		content   string
	}{
		{"empty session", "", domain.RoleUser, "hi"},
		{"unknown role", "s1", domain.Role("system"), "hi"},
		{"empty content", "s1", domain.RoleAssistant, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Append(ctx, tc.sessionID, tc.role, tc.content)
			require.Error(t, err)
			assert.True(t, domain.IsStorageError(err))
		})
	}

	history, err := store.ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSQLiteStoreSessionIDsAndDeleteAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ids, err := store.ListSessionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, sid := range []string{"b", "a", "b", "c"} {
		_, err := store.Append(ctx, sid, domain.RoleUser, "msg")
		require.NoError(t, err)
	}

	ids, err = store.ListSessionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, ids)

	deleted, err := store.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	ids, err = store.ListSessionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSQLiteStoreNormalizeContent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inputs := []string{
		`{"role":"assistant","content":"wrapped reply"}`,
		`plain text`,
		`{not json}`,
		`{"content":42}`,
		`{"content":""}`,
		`{"text":"no content key"}`,
	}
	for _, content := range inputs {
		_, err := store.Append(ctx, "s1", domain.RoleAssistant, content)
		require.NoError(t, err)
	}

	candidates, err := store.NormalizeContent(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), candidates)

	history, err := store.ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, inputs[0], history[0].Content, "dry run must not rewrite")

	updated, err := store.NormalizeContent(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	again, err := store.NormalizeContent(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, again)

	history, err = store.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, len(inputs))
	assert.Equal(t, "wrapped reply", history[0].Content)
	for i := 1; i < len(inputs); i++ {
		assert.Equal(t, inputs[i], history[i].Content)
	}
}

func TestSQLiteStoreReopenKeepsMessages(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat.db")

	store, err := NewSQLiteStore(FileDSN(path))
	require.NoError(t, err)
	_, err = store.Append(ctx, "s1", domain.RoleUser, "persisted")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(FileDSN(path))
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.Ping(ctx))
	history, err := reopened.ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []domain.HistoryEntry{{Role: domain.RoleUser, Content: "persisted"}}, history)
}

func TestSQLiteStoreFileConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(FileDSN(filepath.Join(t.TempDir(), "chat.db")))
	require.NoError(t, err)
	defer store.Close()

	const sessions, turns = 8, 50

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []error
	)
	record := func(err error) {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	}

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(sessionID string) {
			defer wg.Done()
			for j := 0; j < turns; j++ {
				if _, err := store.Append(ctx, sessionID, domain.RoleUser, fmt.Sprintf("turn %d", j)); err != nil {
					record(err)
					continue
				}
				if _, err := store.ListBySession(ctx, sessionID); err != nil {
					record(err)
				}
			}
		}(fmt.Sprintf("s%d", i))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < turns; j++ {
			if _, err := store.ListSessionIDs(ctx); err != nil {
				record(err)
			}
		}
	}()
	wg.Wait()

	if len(failures) > 0 {
		t.Fatalf("%d storage errors, first: %v", len(failures), failures[0])
	}

	for i := 0; i < sessions; i++ {
		history, err := store.ListBySession(ctx, fmt.Sprintf("s%d", i))
		require.NoError(t, err)
		assert.Len(t, history, turns)
	}
}

func TestSQLiteStoreClosedReportsStorageError(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Append(context.Background(), "s1", domain.RoleUser, "hi")
	assert.True(t, domain.IsStorageError(err))

	_, err = store.ListBySession(context.Background(), "s1")
	assert.True(t, domain.IsStorageError(err))
}
