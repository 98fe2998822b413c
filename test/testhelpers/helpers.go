// Package testhelpers provides common utilities for end-to-end tests of the
// chat server.
//
// StartChat assembles the same stack as cmd/server (file store, persistence
// writer, hub, gate and router) behind an httptest server, and the
// remaining helpers speak the JSON envelope protocol over a real WebSocket.
package testhelpers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/livechat/internal/auth"
	"github.com/Tyrowin/livechat/internal/chat"
	"github.com/Tyrowin/livechat/internal/server"
	"github.com/Tyrowin/livechat/internal/store"
)

// Chat is a running chat stack.
type Chat struct {
	Server *httptest.Server
	Config *server.Config
	Hub    *server.Hub
	Writer *store.Writer
	Store  *store.FileStore
	Gate   *auth.Gate

	stopWriter context.CancelFunc
	stopped    bool
}

// Option customizes the configuration before the stack starts.
type Option func(cfg *server.Config)

// Logger returns a logger that drops everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StartChat starts a chat stack persisting to a file under t.TempDir(),
// or under dir when it is not empty. The stack is stopped on cleanup.
func StartChat(t *testing.T, dir string, opts ...Option) *Chat {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"http://localhost:8080"}
	cfg.Store.ChatFile = filepath.Join(dir, "chats.json")
	for _, opt := range opts {
		opt(cfg)
	}

	log := Logger()
	fs := store.NewFileStore(cfg.Store.ChatFile)
	entries, err := fs.Load(context.Background())
	require.NoError(t, err)

	writer := store.NewWriter(fs, log, store.RetryPolicy{
		MaxAttempts: cfg.Store.MaxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
	})
	writerCtx, stopWriter := context.WithCancel(context.Background())
	go writer.Run(writerCtx)

	hub := server.NewHub(chat.NewMessageLog(entries), chat.NewRegistry(), writer, cfg.Chat, log)
	server.StartHub(hub)

	gate := auth.NewGate(cfg.JWTSecret, log)
	srv := server.NewServer(cfg, hub, gate, log)

	c := &Chat{
		Server:     httptest.NewServer(srv.Routes()),
		Config:     cfg,
		Hub:        hub,
		Writer:     writer,
		Store:      fs,
		Gate:       gate,
		stopWriter: stopWriter,
	}
	t.Cleanup(func() { c.Stop(t) })
	return c
}

// Stop shuts the stack down in the same order as cmd/server and waits for
// the writer to finish. Calling it twice is harmless.
func (c *Chat) Stop(t *testing.T) {
	t.Helper()
	if c.stopped {
		return
	}
	c.stopped = true

	c.Server.CloseClientConnections()
	c.Server.Close()
	require.NoError(t, c.Hub.Shutdown(5*time.Second))
	c.stopWriter()
	select {
	case <-c.Writer.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("persistence writer did not stop")
	}
}

// WebSocketURL returns the ws:// address of the chat endpoint.
func (c *Chat) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(c.Server.URL, "http") + "/ws"
}

// Dial opens a WebSocket to the chat with the allowed origin set.
func (c *Chat) Dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, resp, err := DialWithHeader(c.WebSocketURL(), OriginHeader("http://localhost:8080"))
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// OriginHeader returns a header carrying origin, or an empty header.
func OriginHeader(origin string) http.Header {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return header
}

// DialWithHeader dials url with a short handshake timeout. The response is
// returned so callers can inspect refused handshakes.
func DialWithHeader(url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	return dialer.Dial(url, header)
}

// Send writes one envelope.
func Send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame := map[string]any{"event": event}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(t, conn.WriteJSON(frame))
}

// Join sends a join event for username.
func Join(t *testing.T, conn *websocket.Conn, username string) {
	t.Helper()
	Send(t, conn, server.EventJoin, map[string]string{"username": username})
}

// SendChat sends a chat message.
func SendChat(t *testing.T, conn *websocket.Conn, message string) {
	t.Helper()
	Send(t, conn, server.EventMessage, map[string]string{"message": message})
}

// ReadEnvelope reads the next frame, which must hold exactly one envelope.
func ReadEnvelope(t *testing.T, conn *websocket.Conn) server.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var env server.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

// ExpectEvent reads the next envelope, checks its name and decodes its data
// into into when into is not nil.
func ExpectEvent(t *testing.T, conn *websocket.Conn, event string, into any) {
	t.Helper()
	env := ReadEnvelope(t, conn)
	require.Equal(t, event, env.Event, "data: %s", env.Data)
	if into != nil {
		require.NoError(t, json.Unmarshal(env.Data, into))
	}
}

// ExpectClosed waits until the server closes conn.
func ExpectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			require.False(t, isTimeout(err), "connection was not closed: %v", err)
			return
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CloseWebSocket sends a normal close frame and closes conn.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
