package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 5000 {
		t.Fatalf("expected default port 5000, got %d", c.Server.Port)
	}
	if c.ElevenLabs.PageSize != 100 || c.ElevenLabs.MaxRetries != 3 {
		t.Fatalf("unexpected retrieval defaults: %+v", c.ElevenLabs)
	}
	if c.Store.PauseEvery != 10 || c.Store.Pause != 2*time.Second || c.Store.MaxText != 1000 {
		t.Fatalf("unexpected store defaults: %+v", c.Store)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	body := `
server:
  port: 9090
elevenlabs:
  api_key: el-key
  page_size: 25
store:
  backend: postgres
  sheet_name: Journal
  postgres:
    dsn: postgres://localhost/journal
summarizer:
  provider: perplexity
  perplexity_api_key: pp-key
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 9090 || c.ElevenLabs.PageSize != 25 {
		t.Fatalf("yaml values not applied: %+v", c)
	}
	if c.Store.Backend != "postgres" || c.Store.SheetName != "Journal" {
		t.Fatalf("unexpected store: %+v", c.Store)
	}
	if c.SummarizerKey() != "pp-key" {
		t.Fatalf("expected perplexity key, got %q", c.SummarizerKey())
	}
	if err := c.RequireElevenLabs(); err != nil {
		t.Fatalf("expected elevenlabs key to satisfy requirement: %v", err)
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"ELEVEN_API_KEY": `"quoted-key"`,
		"OPENAI_API_KEY": "oa-key",
		"SHEET_NAME":     "Env Sheet",
		"DEBUG":          "TRUE",
	}
	c := &Config{}
	c.applyEnv(func(k string) string { return env[k] })
	c.applyDefaults()

	if c.ElevenLabs.APIKey != "quoted-key" {
		t.Fatalf("expected unquoted fallback key, got %q", c.ElevenLabs.APIKey)
	}
	if c.Store.SheetName != "Env Sheet" {
		t.Fatalf("expected sheet from env, got %q", c.Store.SheetName)
	}
	if c.Summarizer.Provider != "openai" || c.SummarizerKey() != "oa-key" {
		t.Fatalf("unexpected summarizer: %+v", c.Summarizer)
	}
	if c.Level() != slog.LevelDebug {
		t.Fatalf("DEBUG=true should force debug level")
	}
}

func TestRequireElevenLabsMissing(t *testing.T) {
	c := &Config{}
	c.applyDefaults()
	if err := c.RequireElevenLabs(); err == nil {
		t.Fatalf("expected missing key error")
	}
	if c.SummarizerKey() != "" {
		t.Fatalf("expected no summarizer key")
	}
}
