// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/tlindqvist/syncbox/internal/api"
	"github.com/tlindqvist/syncbox/internal/auth"
	"github.com/tlindqvist/syncbox/internal/fileservice"
	"github.com/tlindqvist/syncbox/internal/metastore"
	"github.com/tlindqvist/syncbox/internal/noteservice"
	"github.com/tlindqvist/syncbox/internal/storage"
	"github.com/tlindqvist/syncbox/internal/syncservice"
)

// sweepInterval is how often expired challenges and tokens are purged.
const sweepInterval = 10 * time.Minute

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("files_root", cfg.Storage.FilesRoot),
		slog.String("notes_root", cfg.Storage.NotesRoot),
		slog.String("database", cfg.Storage.Database),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure content roots exist.
	for _, dir := range []string{cfg.Storage.FilesRoot, cfg.Storage.NotesRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create content root: %w", err)
		}
	}
	if dir := filepath.Dir(cfg.Storage.Database); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}

	// Initialize content stores.
	filesStore, err := storage.NewFS(cfg.Storage.FilesRoot)
	if err != nil {
		return fmt.Errorf("init files storage: %w", err)
	}
	notesStore, err := storage.NewFS(cfg.Storage.NotesRoot)
	if err != nil {
		return fmt.Errorf("init notes storage: %w", err)
	}

	// Initialize metadata store.
	meta, err := metastore.Open(cfg.Storage.Database)
	if err != nil {
		return fmt.Errorf("init metastore: %w", err)
	}
	defer meta.Close()

	// Build services.
	files := fileservice.NewService(filesStore, meta)
	notes := noteservice.NewService(notesStore, meta)
	syncSvc := syncservice.NewService(meta)
	mgr := auth.NewManager(meta, cfg.Auth.AuthorizedKeys, cfg.Auth.TokenExpiry(), cfg.Auth.ChallengeExpiry())

	if err := mgr.LoadAuthorizedKeys(); err != nil {
		if cfg.Auth.AuthEnabled() {
			return fmt.Errorf("load authorized keys: %w", err)
		}
		// Disabled mode works without a key file.
		logger.Warn("authorized keys not loaded", slog.String("error", err.Error()))
	}

	// Rebuild metadata from content on startup.
	if _, err := files.ScanAndIndex(ctx); err != nil {
		logger.Warn("file scan failed", slog.String("error", err.Error()))
	}
	if _, err := notes.ScanAndIndex(ctx); err != nil {
		logger.Warn("note scan failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(files, notes, syncSvc, mgr, cfg.Auth.AuthEnabled())

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if err := meta.Ping(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api/v1.
	r.Mount("/api/v1", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the notes root for out-of-band edits.
	g.Go(func() error {
		if err := notes.Watch(gCtx, cfg.Storage.NotesRoot); err != nil {
			logger.Warn("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Periodically sweep expired challenges and tokens.
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if err := mgr.CleanupExpired(); err != nil {
					logger.Warn("auth sweep failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
