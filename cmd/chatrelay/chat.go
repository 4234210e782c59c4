package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/chatrelay/internal/domain"
	"github.com/xiaot623/gogo/chatrelay/internal/relay"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive websocket client for a running relay",
		Long: `Connect to a relay, print the stored history of the session and then
send every line typed on stdin as a user turn. Without --session a new
session id is requested from the server first.`,
		RunE: runChat,
	}

	cmd.Flags().String("addr", "http://localhost:8000", "Relay server address")
	cmd.Flags().String("session", "", "Session id to join (default: create a new one)")

	return cmd
}

// Client is a websocket chat client bound to one session.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	out       io.Writer

	// Frames are history records until the first user turn is sent.
	sent atomic.Bool
}

// NewClient connects to the relay at addr for sessionID.
func NewClient(addr, sessionID string, out io.Writer) (*Client, error) {
	wsURL, err := websocketURL(addr, sessionID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	return &Client{
		conn:      conn,
		sessionID: sessionID,
		out:       out,
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// Send sends one user turn.
func (c *Client) Send(text string) error {
	c.sent.Store(true)
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// ReadMessages prints frames from the server until the connection ends.
func (c *Client) ReadMessages(done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				fmt.Fprintln(c.out, "\nConnection closed by server")
			case errors.As(err, &closeErr):
				fmt.Fprintf(c.out, "\nConnection closed: %d %s\n", closeErr.Code, closeErr.Text)
			default:
				fmt.Fprintf(c.out, "\nRead error: %v\n", err)
			}
			return
		}
		fmt.Fprint(c.out, formatFrame(data, c.sent.Load()))
	}
}

// formatFrame renders one server frame. Before the first user turn every
// frame is a history record; afterwards frames are reply fragments or a
// single error unit.
func formatFrame(data []byte, afterInput bool) string {
	text := string(data)
	if !afterInput {
		var entry domain.HistoryEntry
		if err := json.Unmarshal(data, &entry); err == nil && entry.Role.Valid() {
			return fmt.Sprintf("[%s] %s\n", entry.Role, entry.Content)
		}
	}
	if strings.HasPrefix(text, relay.ErrorPrefix) {
		return "\n" + text + "\n"
	}
	return text
}

// websocketURL turns an http(s) or ws(s) base address into the session's
// websocket endpoint.
func websocketURL(addr, sessionID string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse addr: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/" + url.PathEscape(sessionID)
	return u.String(), nil
}

// createSession asks the server at addr for a new session id.
func createSession(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse addr: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/sessions"

	resp, err := http.Post(u.String(), "application/json", nil)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create session: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	if body.SessionID == "" {
		return "", errors.New("create session: empty session_id")
	}
	return body.SessionID, nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return fmt.Errorf("getting addr flag: %w", err)
	}
	sessionID, err := cmd.Flags().GetString("session")
	if err != nil {
		return fmt.Errorf("getting session flag: %w", err)
	}

	out := cmd.OutOrStdout()
	if sessionID == "" {
		sessionID, err = createSession(addr)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Connecting to %s (session %s)...\n", addr, sessionID)

	client, err := NewClient(addr, sessionID, out)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Close()

	fmt.Fprintln(out, "Connected. Type a message and press Enter to send.")
	fmt.Fprintln(out, "Commands: /quit to exit")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	done := make(chan struct{})
	go client.ReadMessages(done)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nInterrupted")
			return nil
		case <-done:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input := strings.TrimSpace(line)
			if input == "" {
				continue
			}
			if input == "/quit" {
				fmt.Fprintln(out, "Bye!")
				return nil
			}
			if err := client.Send(input); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}
