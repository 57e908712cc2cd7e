// Package app provides the main application struct for centralized dependency
// management and lifecycle control of the files API simulator.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"gofile/config"
	"gofile/internal/filesim"
	"gofile/internal/filestore"
	"gofile/internal/storage"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config *config.Config
	files  *filestore.Result
	server *filesim.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	files, err := filestore.New(ctx, storeConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file store: %w", err)
	}

	srv := filesim.New(files.Store, &filesim.Config{
		MasterKey:       cfg.Sim.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   cfg.Sim.BodySizeBytes,
		ProcessingDelay: cfg.Sim.ProcessingDelayDuration(),
		ValidateJSONL:   cfg.Sim.ValidateJSONL,
	})

	app := &App{
		config: cfg,
		files:  files,
		server: srv,
	}
	app.logStartupInfo()
	return app, nil
}

// Server returns the HTTP server, mainly for tests that drive it directly.
func (a *App) Server() *filesim.Server {
	return a.server
}

// Store returns the file store backing the server.
func (a *App) Store() filestore.Store {
	if a.files == nil {
		return nil
	}
	return a.files.Store
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order.
// Order:
// 1. HTTP server shutdown via server.Shutdown(ctx), honoring the passed context timeout/cancellation.
// 2. File store close (releases database or cache connections).
//
// Shutdown is idempotent and safe for repeated calls; after the first call, subsequent calls are no-ops.
// It attempts every close step, aggregates failures, and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	// 1. Shutdown HTTP server first (stop accepting new requests)
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	// 2. Close the file store (releases connections)
	if a.files != nil {
		if err := a.files.Close(); err != nil {
			slog.Error("file store close error", "error", err)
			errs = append(errs, fmt.Errorf("file store close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	// Security warnings
	if cfg.Sim.MasterKey == "" {
		slog.Warn("SECURITY WARNING: FILESIM_MASTER_KEY not set - server running in UNSAFE MODE",
			"security_risk", "unauthenticated access allowed",
			"recommendation", "set FILESIM_MASTER_KEY environment variable to secure this server")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	// Metrics configuration
	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	// File store configuration
	storeType := cfg.Sim.Store.Type
	if storeType == "" {
		storeType = filestore.TypeMemory
	}
	slog.Info("file store configured", "type", storeType)

	// Upload handling configuration
	slog.Info("upload handling configured",
		"body_size_limit", cfg.Sim.BodySizeLimit,
		"processing_delay", cfg.Sim.ProcessingDelayDuration(),
		"validate_jsonl", cfg.Sim.ValidateJSONL,
	)
}

// storeConfig maps the loaded configuration onto the file store factory config.
func storeConfig(cfg *config.Config) filestore.Config {
	store := cfg.Sim.Store
	return filestore.Config{
		Type: store.Type,
		SQLite: storage.SQLiteConfig{
			Path: store.SQLite.Path,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      store.PostgreSQL.URL,
			MaxConns: store.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      store.MongoDB.URI,
			Database: store.MongoDB.Database,
		},
		Redis: filestore.RedisConfig{
			URL:    store.Redis.URL,
			Prefix: store.Redis.Prefix,
		},
		S3: filestore.S3Config{
			Bucket:          store.S3.Bucket,
			Region:          store.S3.Region,
			Endpoint:        store.S3.Endpoint,
			AccessKeyID:     store.S3.AccessKeyID,
			SecretAccessKey: store.S3.SecretAccessKey,
			Prefix:          store.S3.Prefix,
			UsePathStyle:    store.S3.UsePathStyle,
		},
	}
}
