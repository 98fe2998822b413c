package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tyrowin/livechat/internal/auth"
	"github.com/Tyrowin/livechat/internal/chat"
	"github.com/Tyrowin/livechat/internal/server"
	"github.com/Tyrowin/livechat/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file loaded; using environment only", "error", err)
	}

	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("Starting Livechat server...", "store", cfg.Store.Backend)

	st, closeStore := openStore(cfg.Store, log)
	defer closeStore()

	entries, err := st.Load(ctx)
	if err != nil {
		log.Error("Could not load chat history; starting with an empty log", "error", err)
		entries = nil
	}
	log.Info("Chat history loaded", "entries", len(entries))

	writer := store.NewWriter(st, log.With("component", "writer"), store.RetryPolicy{
		MaxAttempts: cfg.Store.MaxAttempts,
		BaseDelay:   cfg.Store.RetryDelay,
		MaxDelay:    5 * time.Second,
	})
	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()
	go writer.Run(writerCtx)

	hub := server.NewHub(chat.NewMessageLog(entries), chat.NewRegistry(), writer, cfg.Chat, log.With("component", "hub"))
	server.StartHub(hub)

	gate := auth.NewGate(cfg.JWTSecret, log.With("component", "auth"))
	if !gate.Enabled() {
		log.Warn("JWT_SECRET is empty; WebSocket connections are not authenticated")
	}

	srv := server.NewServer(cfg, hub, gate, log)
	httpServer := server.CreateServer(cfg.Port, srv.Routes())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer, log)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			shutdownChat(hub, stopWriter, writer, cfg.ShutdownTimeout, log)
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log); err != nil {
		log.Error("HTTP server did not shut down cleanly", "error", err)
	}
	shutdownChat(hub, stopWriter, writer, cfg.ShutdownTimeout, log)
	log.Info("Server stopped")
	return nil
}

// shutdownChat stops the hub, then lets the writer persist the latest log.
func shutdownChat(hub *server.Hub, stopWriter context.CancelFunc, writer *store.Writer, timeout time.Duration, log *slog.Logger) {
	if err := hub.Shutdown(timeout); err != nil {
		log.Warn("Hub shutdown incomplete", "error", err)
	}

	stopWriter()
	select {
	case <-writer.Done():
		log.Info("Chat log persisted", "version", writer.Persisted())
	case <-time.After(timeout):
		log.Warn("Timed out waiting for the persistence writer")
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openStore opens the configured backend. A backend that cannot be opened
// is replaced by an UnavailableStore so the server still starts with an
// empty log.
func openStore(cfg server.StoreConfig, log *slog.Logger) (store.Store, func()) {
	switch cfg.Backend {
	case server.BackendBadger:
		bs, err := store.OpenBadgerStore(cfg.BadgerPath)
		if err != nil {
			log.Error("Could not open badger store; chat history will not be persisted", "path", cfg.BadgerPath, "error", err)
			return store.UnavailableStore{Err: err}, func() {}
		}
		return bs, func() {
			if err := bs.Close(); err != nil {
				log.Error("Failed to close badger store", "error", err)
			}
		}
	default:
		return store.NewFileStore(cfg.ChatFile), func() {}
	}
}
