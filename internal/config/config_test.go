package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Addr == "" || cfg.Server.BasePath != "/v1" {
		t.Fatalf("unexpected defaults: %+v", cfg.Server)
	}
	if !cfg.Auth.AllowLegacyHeader {
		t.Fatal("legacy header should default on for local tooling")
	}
}

func TestFromYAMLRejectsBadWebhook(t *testing.T) {
	_, err := FromYAML([]byte(`
server:
  addr: 127.0.0.1:8944
  base_path: /v1
webhooks:
  - name: crm
    url: "not a url"
`))
	if err == nil {
		t.Fatal("expected validation error for invalid webhook url")
	}
}

func TestFromYAMLRejectsDuplicateWebhookNames(t *testing.T) {
	_, err := FromYAML([]byte(`
server:
  addr: 127.0.0.1:8944
  base_path: /v1
webhooks:
  - name: crm
    url: "https://crm.example.com/hook"
  - name: crm
    url: "https://other.example.com/hook"
`))
	if err == nil {
		t.Fatal("expected validation error for duplicate names")
	}
}

func TestWebhookTimeoutDefaults(t *testing.T) {
	if (Webhook{}).TimeoutDuration() != 10*time.Second {
		t.Fatal("empty timeout should default to 10s")
	}
	if (Webhook{Timeout: "2s"}).TimeoutDuration() != 2*time.Second {
		t.Fatal("explicit timeout not honored")
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg == nil || cfg.Server.Addr == "" {
		t.Fatal("expected default config when file missing")
	}

	if err := os.WriteFile(filepath.Join(dir, "caseline.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("generated default invalid: %v", err)
	}
}
