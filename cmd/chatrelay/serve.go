package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/chatrelay/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatrelay/internal/config"
	"github.com/xiaot623/gogo/chatrelay/internal/hub"
	"github.com/xiaot623/gogo/chatrelay/internal/logging"
	"github.com/xiaot623/gogo/chatrelay/internal/relay"
	"github.com/xiaot623/gogo/chatrelay/internal/repository"
	"github.com/xiaot623/gogo/chatrelay/internal/service"
	internalhttp "github.com/xiaot623/gogo/chatrelay/internal/transport/http"
	"github.com/xiaot623/gogo/chatrelay/internal/transport/ws"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	logger.Info("Starting chat relay",
		"http_port", cfg.HTTPPort,
		"llm_base_url", cfg.LLMBaseURL,
		"llm_model", cfg.LLMModel,
		"mode", cfg.Mode,
		"forward_history", cfg.ForwardHistory,
	)

	// Initialize store
	store, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer store.Close()

	// Initialize hub
	connectionHub := hub.NewHub()

	// Initialize completion provider
	llmClient := llm.NewLLMClient(cfg, logger)
	completer := llm.NewCompleter(llmClient, cfg.LLMModel, logger)

	// Initialize relay and servers
	chatRelay := relay.New(store, completer, relay.Options{
		FragmentDelay:  cfg.FragmentDelay,
		ForwardHistory: cfg.ForwardHistory,
	}, logger)
	wsServer := ws.NewServer(cfg, connectionHub, chatRelay, logger)
	svc := service.New(store, connectionHub, logger)
	e := internalhttp.NewServer(svc, wsServer)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	e.Listener = ln

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("HTTP server listening", "addr", ln.Addr().String())

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Shutting down chat relay...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsServer.Shutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown HTTP server gracefully", "error", err)
	}
	// Hijacked websocket connections outlive e.Shutdown; the store must stay
	// open until their handlers have returned.
	if err := wsServer.Wait(shutdownCtx); err != nil {
		logger.Error("Websocket sessions did not finish before shutdown timeout", "error", err)
	}

	logger.Info("Chat relay stopped")
	return nil
}
