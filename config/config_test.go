package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such-file.yaml"))
	if err != nil {
		t.Fatalf("Load returned error for missing file: %v", err)
	}
	if cfg.ListenAddr != ":8334" {
		t.Errorf("unexpected default listen addr: %q", cfg.ListenAddr)
	}
	if cfg.Redis.Binary != "redis-server" || cfg.Redis.Port != 6379 {
		t.Errorf("unexpected redis defaults: %+v", cfg.Redis)
	}
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "botloft.yaml")
	content := `
listen_addr: "127.0.0.1:9000"
tool_dirs:
  - /opt/botloft/node/bin
redis:
  port: 6380
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("listen addr not overridden: %q", cfg.ListenAddr)
	}
	if len(cfg.ToolDirs) != 1 || cfg.ToolDirs[0] != "/opt/botloft/node/bin" {
		t.Errorf("tool dirs not parsed: %+v", cfg.ToolDirs)
	}
	if cfg.Redis.Port != 6380 {
		t.Errorf("redis port not overridden: %d", cfg.Redis.Port)
	}
	if cfg.Redis.Binary != "redis-server" {
		t.Errorf("omitted redis binary should default: %q", cfg.Redis.Binary)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("omitted data dir should default: %q", cfg.DataDir)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error for malformed yaml")
	}
}
