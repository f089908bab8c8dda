package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dishly/dishly/internal/backend"
	"github.com/dishly/dishly/internal/config"
	"github.com/dishly/dishly/internal/live"
	"github.com/dishly/dishly/internal/ratelimit"
	"github.com/dishly/dishly/internal/server"
	"github.com/dishly/dishly/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	platform := backend.New(backend.Config{
		BaseURL:        cfg.Backend.URL,
		Timeout:        cfg.Backend.Timeout,
		BreakerTimeout: cfg.Backend.BreakerTimeout,
	})
	if err := platform.Ping(ctx); err != nil {
		// The breaker and health endpoint cover a backend that comes up later.
		slog.Warn("platform backend not reachable at startup", "url", cfg.Backend.URL, "error", err)
	}

	var store storage.ObjectStore
	if cfg.StorageEnabled() {
		s3Store, err := storage.New(ctx, storage.Config{
			Endpoint:       cfg.Storage.Endpoint,
			PublicEndpoint: cfg.Storage.PublicEndpoint,
			Bucket:         cfg.Storage.Bucket,
			AccessKey:      cfg.Storage.AccessKey,
			SecretKey:      cfg.Storage.SecretKey,
			Region:         cfg.Storage.Region,
			MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		})
		if err != nil {
			slog.Error("storage initialization failed", "error", err)
			os.Exit(1)
		}
		if err := s3Store.EnsureBucket(ctx); err != nil {
			slog.Error("storage bucket check failed", "error", err)
			os.Exit(1)
		}
		origins := append([]string{cfg.Server.BaseURL}, cfg.Server.CORSOrigins...)
		if err := s3Store.SetCORS(ctx, origins); err != nil {
			slog.Warn("storage CORS update failed, direct uploads may be blocked", "error", err)
		}
		store = s3Store
		slog.Info("storage bucket ready", "bucket", cfg.Storage.Bucket)
	} else {
		slog.Info("no storage endpoint configured, media uploads disabled")
	}

	trustedProxies, err := ratelimit.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		slog.Error("invalid trusted proxies", "error", err)
		os.Exit(1)
	}

	webFS := staticFS(cfg.Server.StaticDir)
	if webFS == nil {
		slog.Info("no frontend build found, SPA serving disabled", "dir", cfg.Server.StaticDir)
	}

	srv := server.New(server.Config{
		Backend:         platform,
		Storage:         store,
		WebFS:           webFS,
		BaseURL:         cfg.Server.BaseURL,
		CORSOrigins:     cfg.Server.CORSOrigins,
		SecureCookies:   cfg.SecureCookies(),
		MaxUploadBytes:  cfg.Storage.MaxUploadBytes,
		StorageEndpoint: publicStorageEndpoint(cfg),
		TrustedProxies:  trustedProxies,
		AuthRate:        cfg.RateLimit.AuthRate,
		AuthBurst:       cfg.RateLimit.AuthBurst,
		APIRequests:     cfg.RateLimit.APIRequests,
		APIWindow:       cfg.RateLimit.APIWindow,
		APIRateLimited:  !cfg.RateLimit.APIDisabled,
		Live: live.Config{
			SettleDelay:          cfg.Live.SettleDelay,
			InitialCheckDelay:    cfg.Live.InitialCheckDelay,
			SessionCheckInterval: cfg.Live.SessionCheckInterval,
			OutboundQueue:        cfg.Live.OutboundQueue,
		},
		DraftTTL:  cfg.Registration.DraftTTL,
		MaxDrafts: cfg.Registration.MaxDrafts,
	})
	defer srv.Close()

	// WriteTimeout stays zero: live sessions hold their connection open and
	// set their own write deadlines.
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// Shutdown leaves hijacked connections alone; live sessions are closed
	// here so clients get a close frame.
	httpServer.RegisterOnShutdown(srv.CloseSessions)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("dishly listening", "port", cfg.Server.Port, "base_url", cfg.Server.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCh
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
	srv.CloseSessions()
	if err := srv.WaitSessions(shutdownCtx); err != nil {
		slog.Warn("live sessions did not close in time", "error", err)
	}
	slog.Info("shutdown complete")
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// staticFS returns the built frontend, or nil when dir has no index.html.
func staticFS(dir string) fs.FS {
	if dir == "" {
		return nil
	}
	fsys := os.DirFS(dir)
	if _, err := fs.Stat(fsys, "index.html"); err != nil {
		return nil
	}
	return fsys
}

func publicStorageEndpoint(cfg *config.Config) string {
	if !cfg.StorageEnabled() {
		return ""
	}
	if cfg.Storage.PublicEndpoint != "" {
		return cfg.Storage.PublicEndpoint
	}
	return cfg.Storage.Endpoint
}
