package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streamhubd.yaml")
	contents := `
listen_addr: ":1936"
metrics_addr: ":9090"
log_level: debug
relay_destinations:
  - rtmp://edge1.example.com/live
hooks:
  scripts:
    - "publish_start=/usr/local/bin/on-publish.sh"
  stdio_format: json
  timeout: 10s
  concurrency: 4
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.ListenAddr != ":1936" {
		t.Errorf("ListenAddr = %q, want :1936", f.ListenAddr)
	}
	if f.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", f.LogLevel)
	}
	if len(f.RelayDestinations) != 1 || f.RelayDestinations[0] != "rtmp://edge1.example.com/live" {
		t.Errorf("RelayDestinations = %v", f.RelayDestinations)
	}
	if f.Hooks.StdioFormat != "json" || f.Hooks.Concurrency != 4 {
		t.Errorf("Hooks = %+v", f.Hooks)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/streamhubd.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
