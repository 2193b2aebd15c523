package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questor.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSubstitutesEnv(t *testing.T) {
	t.Setenv("QUESTOR_TEST_KEY", "sk-test")

	path := writeConfig(t, `{
		"server": {"port": 4000},
		"providers": [{"id": "main", "type": "openai", "api_key": "${QUESTOR_TEST_KEY}"}]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("port = %d, want 4000", cfg.Server.Port)
	}
	if got := cfg.Providers[0].APIKey; got != "sk-test" {
		t.Errorf("api_key = %q, want %q", got, "sk-test")
	}
}

func TestLoadEnvDefault(t *testing.T) {
	path := writeConfig(t, `{"database": {"redis": {"url": "${QUESTOR_UNSET_VAR:redis://localhost:6379/0}"}}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Database.Redis.URL; got != "redis://localhost:6379/0" {
		t.Errorf("redis url = %q", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Agent.MaxSteps != 5 {
		t.Errorf("max_steps = %d, want 5", cfg.Agent.MaxSteps)
	}
	if cfg.Agent.MinInterval().Milliseconds() != 1000 {
		t.Errorf("min_interval = %v, want 1s", cfg.Agent.MinInterval())
	}
	if cfg.Agent.MemoryFanout != 5 {
		t.Errorf("memory_fanout = %d, want 5", cfg.Agent.MemoryFanout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
