package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverFrom(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()

	if _, found, err := DiscoverFrom("", cwd, home); err != nil || found {
		t.Fatalf("empty dirs: found=%v err=%v", found, err)
	}

	homeCfg := filepath.Join(home, ".behaveflow", "config.yaml")
	writeFile(t, homeCfg, "log: {level: debug}\n")
	path, found, err := DiscoverFrom("", cwd, home)
	if err != nil || !found || path != homeCfg {
		t.Fatalf("home config: %q %v %v", path, found, err)
	}

	projectCfg := filepath.Join(cwd, "behaveflow.yaml")
	writeFile(t, projectCfg, "log: {level: warn}\n")
	if path, _, _ := DiscoverFrom("", cwd, home); path != projectCfg {
		t.Errorf("project config should win, got %q", path)
	}

	if _, _, err := DiscoverFrom(filepath.Join(cwd, "missing.yaml"), cwd, home); err == nil {
		t.Error("expected error for missing explicit path")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "behaveflow.yaml")
	writeFile(t, path, `
log:
  level: debug
engine:
  passes: 3
  cron: "@every 100ms"
  duration: 2s
state:
  backend: redis
  key: tick-counter
  redis:
    addr: localhost:6379
    ttl: 1h
events:
  db: events.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Passes != 3 || cfg.Engine.Duration != 2*time.Second {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.State.Redis.TTL != time.Hour || cfg.State.Key != "tick-counter" {
		t.Errorf("state = %+v", cfg.State)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("default log format lost: %q", cfg.Log.Format)
	}
	if cfg.Engine.Iterations != 5 {
		t.Errorf("default iterations lost: %d", cfg.Engine.Iterations)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg := Default()
	cfg.Engine.Passes = 0
	cfg.Engine.Cron = "@every 1s"
	cfg.State.Backend = BackendSQLite
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"engine.passes", "engine.duration", "state.sqlite.dsn", "state.key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}

	cfg = Default()
	cfg.State.Backend = "etcd"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "etcd") {
		t.Errorf("unknown backend error = %v", err)
	}
}
