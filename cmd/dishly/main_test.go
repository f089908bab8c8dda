package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dishly/dishly/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for input, want := range tests {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	logger := newLogger(os.Stderr, "warn", "text")

	if logger.Enabled(t.Context(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(t.Context(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestStaticFS(t *testing.T) {
	empty := t.TempDir()
	if staticFS(empty) != nil {
		t.Error("expected nil for a directory without index.html")
	}
	if staticFS("") != nil {
		t.Error("expected nil for an empty path")
	}

	built := t.TempDir()
	if err := os.WriteFile(filepath.Join(built, "index.html"), []byte("<html></html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	if staticFS(built) == nil {
		t.Error("expected a file system for a built frontend")
	}
}

func TestPublicStorageEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		storage config.StorageConfig
		want    string
	}{
		{"disabled", config.StorageConfig{}, ""},
		{"internal only", config.StorageConfig{Endpoint: "http://minio:9000"}, "http://minio:9000"},
		{"public override", config.StorageConfig{Endpoint: "http://minio:9000", PublicEndpoint: "https://media.dishly.example"}, "https://media.dishly.example"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{Storage: tc.storage}
			if got := publicStorageEndpoint(cfg); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
