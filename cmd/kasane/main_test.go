package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kasane/internal/photoid"
)

func TestLoadConfig_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("debug: true\nserver:\n  port: 9999\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("resolved path = %q, want %q", resolved, path)
	}
	if !cfg.Debug {
		t.Error("debug not loaded")
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
}

func TestLoadConfig_CwdFallback(t *testing.T) {
	dir := t.TempDir()
	content := []byte("server:\n  port: 7777\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0644); err != nil {
		t.Fatal(err)
	}
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWd) })

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(resolved) != dir && resolved != filepath.Join(dir, "config.yaml") {
		t.Errorf("expected cwd fallback, resolved %q", resolved)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want 7777", cfg.Server.Port)
	}
}

func TestResolvePhotoArg(t *testing.T) {
	// A non-path argument passes through untouched.
	if got := resolvePhotoArg("photo:abc123"); got != "photo:abc123" {
		t.Errorf("id argument changed: %q", got)
	}

	// A real file resolves to its derived photo id.
	dir := t.TempDir()
	path := filepath.Join(dir, "shot.jpg")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := resolvePhotoArg(path), photoid.FromPath(abs); got != want {
		t.Errorf("path argument resolved to %q, want %q", got, want)
	}
}
