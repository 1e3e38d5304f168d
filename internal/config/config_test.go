package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sift.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabasePath != "sift.db" {
		t.Errorf("database path = %q, want sift.db", cfg.DatabasePath)
	}
	if cfg.LLM.Model != "llama3.1" {
		t.Errorf("llm model = %q, want llama3.1", cfg.LLM.Model)
	}
	if cfg.MaxResults != 50 {
		t.Errorf("max results = %d, want 50", cfg.MaxResults)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "database_path: /tmp/custom.db\nllm:\n  model: mistral\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabasePath != "/tmp/custom.db" {
		t.Errorf("database path = %q", cfg.DatabasePath)
	}
	if cfg.LLM.Model != "mistral" {
		t.Errorf("llm model = %q, want mistral", cfg.LLM.Model)
	}
	// Untouched fields keep their defaults.
	if cfg.InboxPath != "inbox.jsonl" {
		t.Errorf("inbox path = %q, want default", cfg.InboxPath)
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "database_path: /tmp/from-yaml.db\n")
	t.Setenv("SIFT_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("SIFT_LLM_RATE_LIMIT", "5.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabasePath != "/tmp/from-env.db" {
		t.Errorf("database path = %q, want env value", cfg.DatabasePath)
	}
	if cfg.LLM.RateLimit != 5.5 {
		t.Errorf("rate limit = %v, want 5.5", cfg.LLM.RateLimit)
	}
}

func TestLoadMissingNamedFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing named config file")
	}
}
