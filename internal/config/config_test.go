package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Sync.Interval != "5m" {
		t.Errorf("default interval = %q, want %q", cfg.Sync.Interval, "5m")
	}
	if cfg.Sync.InitialSyncDays != 30 {
		t.Errorf("default initial_sync_days = %d, want 30", cfg.Sync.InitialSyncDays)
	}
	if cfg.Sync.FetchChunkSize != 50 {
		t.Errorf("default fetch_chunk_size = %d, want 50", cfg.Sync.FetchChunkSize)
	}
	if cfg.Render.AllowRemoteImages {
		t.Error("remote images allowed by default")
	}
	if cfg.Render.TextWidth != 80 {
		t.Errorf("default text_width = %d, want 80", cfg.Render.TextWidth)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	content := `
default_account = "work"

[sync]
interval = "10m"
fetch_chunk_size = 25

[render]
theme = "light"
allow_remote_images = true

[[accounts]]
name = "work"
address = "me@work.example.com"

  [accounts.imap]
  host = "imap.work.example.com"
  username = "me@work.example.com"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Sync.Interval != "10m" {
		t.Errorf("interval = %q, want %q", cfg.Sync.Interval, "10m")
	}
	if cfg.Sync.FetchChunkSize != 25 {
		t.Errorf("fetch_chunk_size = %d, want 25", cfg.Sync.FetchChunkSize)
	}
	if cfg.Render.Theme != "light" || !cfg.Render.AllowRemoteImages {
		t.Errorf("render config not applied: %+v", cfg.Render)
	}

	acct, err := cfg.Account("")
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if acct.Name != "work" || acct.IMAP.Host != "imap.work.example.com" {
		t.Errorf("account: %+v", acct)
	}
	if acct.IMAP.Addr() != "imap.work.example.com:993" {
		t.Errorf("addr = %q, want default imaps port", acct.IMAP.Addr())
	}
}

func TestAccount_UnknownName(t *testing.T) {
	cfg := defaults()
	if _, err := cfg.Account("missing"); err == nil {
		t.Error("expected error for unknown account")
	}
}
