package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  poll_timeout: "10s"
logging:
  level: debug
  console: true
storage:
  path: ./data/schedbot.db
engine:
  lease_window: "120s"
  prompt_cap: 10
  payment_cap: 50
ai:
  model: gemini-2.0-flash
payments:
  base_url: https://pay.example.com
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Engine.PromptCap != 10 || cfg.Engine.PaymentCap != 50 {
		t.Fatalf("caps = %d/%d", cfg.Engine.PromptCap, cfg.Engine.PaymentCap)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return committed config")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
telegram:
  token: "t"
  pol_timeout: "10s"
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"telegram":{"token":"t"},"logging":{"console":true},"storage":{"path":"x.db"},"engine":{},"ai":{},"payments":{"base_url":"http://x"}}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "x.db" {
		t.Fatalf("storage path = %q", cfg.Storage.Path)
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	d, err := ParseDuration("engine.lease_window", "", 120*time.Second)
	if err != nil || d != 120*time.Second {
		t.Fatalf("default: %v %v", d, err)
	}
	d, err = ParseDuration("engine.lease_window", "90s", 0)
	if err != nil || d != 90*time.Second {
		t.Fatalf("parse: %v %v", d, err)
	}
	if _, err := ParseDuration("x", "nope", 0); err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if _, err := ParseDuration("x", "-5s", 0); err == nil {
		t.Fatal("expected error for negative duration")
	}
}
