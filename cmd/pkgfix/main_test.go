package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkgfix/pkgfix/internal/config"
)

func TestSetupLogger(t *testing.T) {
	// Save original globals.
	origLevel := logLevel
	origFormat := logFormat
	t.Cleanup(func() {
		logLevel = origLevel
		logFormat = origFormat
	})

	for _, tc := range []struct {
		name      string
		logLevel  string
		logFormat string
	}{
		{name: "debug/text", logLevel: "debug", logFormat: "text"},
		{name: "info/json", logLevel: "info", logFormat: "json"},
		{name: "warn/text", logLevel: "warn", logFormat: "text"},
		{name: "error/text", logLevel: "error", logFormat: "text"},
		{name: "unknown/text", logLevel: "unknown", logFormat: "text"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logLevel = tc.logLevel
			logFormat = tc.logFormat

			logger := setupLogger()
			if logger == nil {
				t.Fatal("setupLogger returned nil")
			}
		})
	}
}

func TestLoadConfig_WithExplicitPath(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	tmpDir := t.TempDir()
	configContent := []byte(`seed: 2
repository:
  name: "fixture"
  kind: "local"
paths:
  repo_dir: "` + filepath.Join(tmpDir, "repo") + `"
  contents_dir: "` + filepath.Join(tmpDir, "contents") + `"
  manager_root: "` + filepath.Join(tmpDir, "root") + `"
packages:
  - "foo.1"
  - "bar.2"
`)
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, configContent, 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfgFile = cfgPath
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg, err := loadConfig(logger)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg == nil {
		t.Fatal("loadConfig returned nil config")
	}
	if cfg.Seed != 2 {
		t.Errorf("seed = %d, want 2", cfg.Seed)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgFile = filepath.Join(t.TempDir(), "nonexistent.yaml")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	_, err := loadConfig(logger)
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestResolveSeed(t *testing.T) {
	origSeed := seedFlag
	t.Cleanup(func() { seedFlag = origSeed })

	cfg := &config.Config{Seed: 3}

	seedFlag = -1
	if got := resolveSeed(cfg, 0); got != 3 {
		t.Errorf("resolveSeed(cfg, 0) = %d, want 3", got)
	}
	if got := resolveSeed(cfg, 1); got != 4 {
		t.Errorf("resolveSeed(cfg, 1) = %d, want 4", got)
	}

	seedFlag = 7
	if got := resolveSeed(cfg, 1); got != 7 {
		t.Errorf("resolveSeed with flag = %d, want 7", got)
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := setupSignalHandler()
	if ctx == nil {
		t.Fatal("setupSignalHandler returned nil context")
	}

	cancel()

	<-ctx.Done()
	if err := ctx.Err(); err == nil {
		t.Fatal("expected context error after cancel, got nil")
	}
}

func TestVersionCmd(t *testing.T) {
	t.Helper()
	// versionCmd.Run simply prints version info; should not panic.
	versionCmd.Run(versionCmd, []string{})
}
