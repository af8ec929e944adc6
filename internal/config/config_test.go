package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("unexpected listen addr %s", cfg.ListenAddr)
	}
	if cfg.RootDir != "." {
		t.Fatalf("unexpected root dir %s", cfg.RootDir)
	}
	if cfg.WatchDebounce != DefaultWatchDebounce {
		t.Fatalf("unexpected debounce %v", cfg.WatchDebounce)
	}
	if cfg.IdentityDBPath != filepath.Join(".", ".cellrun", "fileid.db") {
		t.Fatalf("unexpected identity db path %s", cfg.IdentityDBPath)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cellrun.toml")
	payload := `
listen-addr = "127.0.0.1:9000"
root-dir = "/notebooks"
auth-token = "secret"
allowed-origins = ["http://localhost:3000"]
log-level = "debug"
watch-debounce-ms = 250
`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("listen addr not applied: %s", cfg.ListenAddr)
	}
	if cfg.AuthToken != "secret" {
		t.Fatalf("auth token not applied: %s", cfg.AuthToken)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("origins not applied: %v", cfg.AllowedOrigins)
	}
	if cfg.WatchDebounce != 250*time.Millisecond {
		t.Fatalf("debounce not applied: %v", cfg.WatchDebounce)
	}
	if cfg.IdentityDBPath != filepath.Join("/notebooks", ".cellrun", "fileid.db") {
		t.Fatalf("identity db not derived from root: %s", cfg.IdentityDBPath)
	}
}

func TestLoadMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cellrun.toml")
	if err := os.WriteFile(path, []byte("listen-addr = ["), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cellrun.toml")
	if err := os.WriteFile(path, []byte(`listen-addr = ":7000"`+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CELLRUN_LISTEN_ADDR", "127.0.0.1:7100")
	t.Setenv("CELLRUN_TOKEN", "env-token")
	t.Setenv("CELLRUN_ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("CELLRUN_WATCH_DEBOUNCE_MS", "50")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7100" {
		t.Fatalf("env did not override file: %s", cfg.ListenAddr)
	}
	if cfg.AuthToken != "env-token" {
		t.Fatalf("token override missing: %s", cfg.AuthToken)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Fatalf("origin list not split: %v", cfg.AllowedOrigins)
	}
	if cfg.WatchDebounce != 50*time.Millisecond {
		t.Fatalf("debounce override missing: %v", cfg.WatchDebounce)
	}
}
