package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Store.UsersTable != "Users" {
		t.Errorf("expected users table 'Users', got %q", cfg.Store.UsersTable)
	}
	if cfg.Digest.MaxArticles != 10 {
		t.Errorf("expected max_articles 10, got %d", cfg.Digest.MaxArticles)
	}
	if cfg.Mail.Host != "smtp.gmail.com" || cfg.Mail.Port != 587 {
		t.Errorf("expected gmail:587 mail defaults, got %s:%d", cfg.Mail.Host, cfg.Mail.Port)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
store:
  spreadsheet_id: "abc123"
summarization:
  provider: openai
  openai_model: gpt-4o
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Store.SpreadsheetID != "abc123" {
		t.Errorf("expected spreadsheet id 'abc123', got %q", cfg.Store.SpreadsheetID)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Store.SettingsTable != "Settings" {
		t.Errorf("expected default settings table, got %q", cfg.Store.SettingsTable)
	}
	if cfg.Summarization.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("expected default api_key_env, got %q", cfg.Summarization.APIKeyEnv)
	}
	if cfg.Digest.MaxArticles != 10 {
		t.Errorf("expected default max_articles, got %d", cfg.Digest.MaxArticles)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Mail.AddressEnv != "MAIL_ADDRESS" {
		t.Errorf("expected MAIL_ADDRESS env key, got %q", cfg.Mail.AddressEnv)
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	_, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	if cfg.GetDataDir() == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/tmp/pressbrief-test"
	if cfg.GetDataDir() != "/tmp/pressbrief-test" {
		t.Errorf("expected configured data dir, got %q", cfg.GetDataDir())
	}
}
