package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/chatrelay/internal/domain"
	"github.com/xiaot623/gogo/chatrelay/internal/repository"
)

func TestFormatFrame(t *testing.T) {
	record := []byte(`{"role":"assistant","content":"Hello"}`)
	assert.Equal(t, "[assistant] Hello\n", formatFrame(record, false))
	assert.Equal(t, string(record), formatFrame(record, true))

	assert.Equal(t, "Hel", formatFrame([]byte("Hel"), true))
	assert.Equal(t, "\nError: upstream reset\n", formatFrame([]byte("Error: upstream reset"), true))
	assert.Equal(t, "plain", formatFrame([]byte("plain"), false))
}

func TestWebsocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8000":      "ws://localhost:8000/ws/s1",
		"https://relay.example.com/": "wss://relay.example.com/ws/s1",
		"ws://localhost:8000":        "ws://localhost:8000/ws/s1",
	}
	for addr, want := range cases {
		got, err := websocketURL(addr, "s1")
		require.NoError(t, err)
		assert.Equal(t, want, got, addr)
	}

	_, err := websocketURL("ftp://localhost", "s1")
	assert.Error(t, err)
}

func TestCreateSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"session_id":"abc"}`))
	}))
	defer server.Close()

	id, err := createSession(server.URL)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestCreateSessionBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := createSession(server.URL)
	assert.Error(t, err)
}

func TestNormalizeCommand(t *testing.T) {
	dsn := repository.FileDSN(filepath.Join(t.TempDir(), "chat.db"))
	t.Setenv("DATABASE_URL", dsn)
	t.Setenv("LOG_LEVEL", "error")

	store, err := repository.NewSQLiteStore(dsn)
	require.NoError(t, err)
	_, err = store.Append(context.Background(), "s1", domain.RoleAssistant, `{"content":"inner"}`)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	run := func(args ...string) string {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(append([]string{"normalize"}, args...))
		require.NoError(t, cmd.ExecuteContext(context.Background()))
		return strings.TrimSpace(out.String())
	}

	assert.Equal(t, "1 message(s) would be normalized", run("--dry-run"))
	assert.Equal(t, "Normalized 1 message(s)", run())
	assert.Equal(t, "Normalized 0 message(s)", run())

	store, err = repository.NewSQLiteStore(dsn)
	require.NoError(t, err)
	defer store.Close()
	history, err := store.ListBySession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "inner", history[0].Content)
}
