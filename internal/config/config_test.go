package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PopupStyle != defaultPopupStyle || cfg.DictLang != defaultDictLang {
		t.Fatalf("PopupStyle/DictLang = %q/%q, want defaults", cfg.PopupStyle, cfg.DictLang)
	}
	if cfg.UpdateThreshold != 12*time.Hour {
		t.Fatalf("UpdateThreshold = %v, want 12h", cfg.UpdateThreshold)
	}
	if cfg.RetryInitialInterval != 3*time.Second {
		t.Fatalf("RetryInitialInterval = %v, want 3s", cfg.RetryInitialInterval)
	}

	wantDataDir, err := expandPath(defaultDataDir)
	if err != nil {
		t.Fatalf("expandPath(defaultDataDir) returned error: %v", err)
	}
	if cfg.DataDir != wantDataDir {
		t.Fatalf("DataDir = %q, want %q", cfg.DataDir, wantDataDir)
	}
	if cfg.SocketPath != filepath.Join(wantDataDir, socketName) {
		t.Fatalf("SocketPath = %q, want %q", cfg.SocketPath, filepath.Join(wantDataDir, socketName))
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
popup_style = "  lightblue  "
dict_lang = "fr"
show_romaji = true
data_dir = "  ~/.jpdict  "
update_threshold = "6h"
log_level = "DEBUG"
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PopupStyle != "lightblue" {
		t.Fatalf("PopupStyle = %q, want %q", cfg.PopupStyle, "lightblue")
	}
	if cfg.DictLang != "fr" || !cfg.ShowRomaji {
		t.Fatalf("DictLang/ShowRomaji = %q/%v, want fr/true", cfg.DictLang, cfg.ShowRomaji)
	}
	if cfg.UpdateThreshold != 6*time.Hour {
		t.Fatalf("UpdateThreshold = %v, want 6h", cfg.UpdateThreshold)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if !strings.HasPrefix(cfg.DataDir, home) {
		t.Fatalf("DataDir = %q, want it under HOME %q", cfg.DataDir, home)
	}
	if cfg.DatabasePath() != filepath.Join(cfg.DataDir, "kanji.db") {
		t.Fatalf("DatabasePath = %q, want kanji.db under data dir", cfg.DatabasePath())
	}
	if cfg.SocketPath != filepath.Join(cfg.DataDir, socketName) {
		t.Fatalf("SocketPath = %q, want %q", cfg.SocketPath, filepath.Join(cfg.DataDir, socketName))
	}
}

func TestLoad_EmptyValuesUseDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
popup_style = "   "
data_url = ""
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PopupStyle != defaultPopupStyle {
		t.Fatalf("PopupStyle = %q, want %q", cfg.PopupStyle, defaultPopupStyle)
	}
	if cfg.DataURL != defaultDataURL {
		t.Fatalf("DataURL = %q, want %q", cfg.DataURL, defaultDataURL)
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`popup_style = [`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatalf("Load returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %q, want it to mention parse config", err.Error())
	}
}

func TestParse_RejectsBadDurations(t *testing.T) {
	tests := []string{
		`update_threshold = "soon"`,
		`retry_initial_interval = "-3s"`,
	}
	for _, input := range tests {
		if _, err := Parse([]byte(input)); err == nil {
			t.Fatalf("Parse(%q) returned nil error, want error", input)
		}
	}
}

func TestDiff_ReportsChangedKeys(t *testing.T) {
	a := Default()
	b := a
	if got := Diff(a, b); len(got) != 0 {
		t.Fatalf("Diff(identical) = %v, want none", got)
	}

	b.PopupStyle = "black"
	b.DictLang = "de"
	got := Diff(a, b)
	want := []string{"popup_style", "dict_lang"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff = %v, want %v", got, want)
	}
}

func TestWatch_ReportsChangesAfterWrite(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("popup_style = \"blue\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	current, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []string, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, path, current, nil, func(cfg Config, changed []string) {
			got <- changed
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("popup_style = \"yellow\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case changed := <-got:
		if !reflect.DeepEqual(changed, []string{"popup_style"}) {
			t.Fatalf("changed = %v, want [popup_style]", changed)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Watch did not report the change")
	}

	cancel()
	<-done
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}
