package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/relay-chat/backend/internal/config"
	"github.com/zhouzirui/relay-chat/backend/internal/handler"
	adminHandler "github.com/zhouzirui/relay-chat/backend/internal/handler/admin"
	"github.com/zhouzirui/relay-chat/backend/internal/handler/gateway"
	"github.com/zhouzirui/relay-chat/backend/internal/logging"
	"github.com/zhouzirui/relay-chat/backend/internal/middleware"
	"github.com/zhouzirui/relay-chat/backend/internal/service/admin"
	"github.com/zhouzirui/relay-chat/backend/internal/service/broadcast"
	"github.com/zhouzirui/relay-chat/backend/internal/service/session"
	"github.com/zhouzirui/relay-chat/backend/internal/store"
)

const tokenSweepInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	messages, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := messages.Close(); err != nil {
			logger.Warn("closing message store", zap.Error(err))
		}
	}()

	verifier, err := admin.NewPasswordVerifier(cfg.Admin.Password, cfg.Admin.PasswordHash)
	if err != nil {
		return fmt.Errorf("admin credential: %w", err)
	}

	registry := session.NewRegistry()
	router := broadcast.NewRouter(logger)
	gw := gateway.New(registry, router, messages, cfg.Gateway, middleware.OriginChecker(cfg.Server.Origins()), logger)

	adminSvc := admin.NewService(verifier, registry, messages, router, cfg.Admin.TokenTTL, logger)
	go adminSvc.Run(ctx, tokenSweepInterval)

	mux := handler.NewRouter(gw, adminHandler.New(adminSvc), cfg.Server.Origins(), cfg.Server.StaticDir, logger)

	return startServer(ctx, cfg.Server, mux, gw, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, gw *gateway.Gateway, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("chat server listening", zap.String("addr", serverCfg.Addr))
	if err := runServer(ctx, srv, gw); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("chat server stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server, gw *gateway.Gateway) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Hijacked WebSocket connections are not tracked by the http.Server.
		_ = gw.Shutdown(shutdownCtx)
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
