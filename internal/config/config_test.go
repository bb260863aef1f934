package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
api:
  baseURL: https://api.example.com
session:
  userID: user-1
server:
  postgresDsn: host=localhost
  redisAddr: localhost:6379
`)

	conf, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if conf.API.BaseURL != "https://api.example.com" {
		t.Fatalf("unexpected base url: %q", conf.API.BaseURL)
	}
	if conf.API.RealtimeURL != conf.API.BaseURL {
		t.Fatalf("expected realtime url to default to base url, got %q", conf.API.RealtimeURL)
	}
	if conf.Server.Listen != ":8000" {
		t.Fatalf("expected default listen address, got %q", conf.Server.Listen)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
api:
  baseURL: https://api.example.com
session:
  token: from-file
`)

	t.Setenv("OUTFEED_TOKEN", "from-env")
	t.Setenv("OUTFEED_USER_ID", "user-9")

	conf, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if conf.Session.Token != "from-env" {
		t.Fatalf("expected env to win, got %q", conf.Session.Token)
	}
	if conf.Session.UserID != "user-9" {
		t.Fatalf("expected user id from env, got %q", conf.Session.UserID)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}
