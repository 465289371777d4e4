package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironcurtain/ironcurtain/pkg/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	if cfg.Models.Compiler == "" || cfg.Models.AutoApprove == "" {
		t.Fatalf("default models should be populated: %+v", cfg.Models)
	}
	if cfg.Sandbox.Mode != "enforce" {
		t.Fatalf("expected default sandbox mode enforce, got %s", cfg.Sandbox.Mode)
	}
	if cfg.Escalation.Timeout.Minutes() != 5 {
		t.Fatalf("expected default escalation timeout of 5m, got %v", cfg.Escalation.Timeout)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error for missing file: %v", err)
	}

	defaults := config.DefaultConfig()
	if cfg.Models.Compiler != defaults.Models.Compiler {
		t.Fatalf("expected defaults when config.json is absent, got %+v", cfg.Models)
	}
}

func TestLoadOverridesLayerOnDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	overrides := map[string]any{
		"models": map[string]any{
			"compiler": "anthropic/claude-opus-4.5",
		},
		"sandbox": map[string]any{
			"mode": "warn",
		},
	}
	data, err := json.Marshal(overrides)
	if err != nil {
		t.Fatalf("marshal overrides: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Models.Compiler != "anthropic/claude-opus-4.5" {
		t.Fatalf("expected compiler model override, got %s", cfg.Models.Compiler)
	}
	if cfg.Models.Annotator == "" {
		t.Fatalf("expected annotator default to survive a partial override")
	}
	if cfg.Sandbox.Mode != "warn" {
		t.Fatalf("expected sandbox mode override, got %s", cfg.Sandbox.Mode)
	}
}

func TestLoadInvalidJSONFailsFast(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := config.Load(path); err == nil {
		t.Fatalf("expected Load to fail on invalid JSON")
	}
}

func TestSaveRoundTripsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	initial := map[string]any{
		"models": map[string]any{
			"compiler": "anthropic/claude-opus-4.5",
		},
		"future_field": map[string]any{
			"some_setting": true,
		},
	}
	data, err := json.Marshal(initial)
	if err != nil {
		t.Fatalf("marshal initial: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	saved, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	var roundTripped map[string]any
	if err := json.Unmarshal(saved, &roundTripped); err != nil {
		t.Fatalf("unmarshal saved config: %v", err)
	}
	if _, ok := roundTripped["future_field"]; !ok {
		t.Fatalf("expected unknown field to survive round trip, got %v", roundTripped)
	}
}

func TestSaveEnforcesFilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := config.DefaultConfig()
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat saved config: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected 0600 permissions, got %o", info.Mode().Perm())
	}
}

func TestEnvOverridesApplyCredentialsAndBudget(t *testing.T) {
	t.Setenv("IRONCURTAIN_ANTHROPIC_API_KEY", "anthropic-key")
	t.Setenv("IRONCURTAIN_SESSION_BUDGET", "5.5")

	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Providers.Anthropic.APIKey != "anthropic-key" {
		t.Fatalf("expected env override for anthropic key, got %q", cfg.Providers.Anthropic.APIKey)
	}
	if cfg.Budget.SessionBudget != 5.5 {
		t.Fatalf("expected env override for session budget, got %f", cfg.Budget.SessionBudget)
	}
}

func TestResolveProjectRootPrefersSandboxDir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sandbox.Dir = "/tmp/ironcurtain-sandbox"

	if got := config.ResolveProjectRoot(cfg); got != "/tmp/ironcurtain-sandbox" {
		t.Fatalf("expected sandbox dir, got %s", got)
	}
}
