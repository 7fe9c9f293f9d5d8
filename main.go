package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photoshare/pkg/api"
	"photoshare/pkg/auth"
	"photoshare/pkg/config"
	"photoshare/pkg/handlers"
	"photoshare/pkg/logger"
	"photoshare/pkg/session"
	"photoshare/pkg/store"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

func main() {
	l := logger.New("main", log.InfoLevel)
	if err := run(l); err != nil {
		l.Error("run failed", "err", err)
		os.Exit(1)
	}
}

func run(l *log.Logger) error {
	// Load configuration
	path := "config.yaml"
	if p := os.Getenv("PHOTOSHARE_CONFIG"); p != "" {
		path = p
	}
	if created, err := config.EnsureFile(path); err != nil {
		l.Warn("could not write default config", "path", path, "err", err)
	} else if created {
		l.Info("wrote default config", "path", path)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := logger.ParseLevel(cfg.LogLevel)
	l.SetLevel(level)

	// Initialize token store
	tokens, err := store.New(cfg)
	if err != nil {
		return fmt.Errorf("open token store: %w", err)
	}
	defer tokens.Close()

	// Initialize sessions
	client := api.New(cfg.API.BaseURL, cfg.API.Timeout)
	claims := auth.NewReader(cfg.Auth.JWTSecret)
	manager := session.NewManager(client, tokens, claims, logger.New("session", level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go manager.RunSweeper(ctx, time.Hour, cfg.Session.IdleTimeout)

	// Setup Gin router
	if level <= log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if level <= log.DebugLevel {
		r.Use(gin.Logger())
	}

	h := handlers.New(manager, logger.New("handlers", level))
	h.Register(r, &cfg.Session)

	// Start server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}

	serverErrs := make(chan error, 1)
	go func() {
		l.Info("starting photo frontend", "addr", "http://"+srv.Addr, "api", client.BaseURL(), "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- err
		}
	}()

	select {
	case err := <-serverErrs:
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
		l.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
