package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetops.yaml")
	data := []byte(`
http_addr: ":9090"
agent:
  cycle_interval: 10s
  assignment_strategy: greedy
  confidence_threshold: 0.8
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FLEETOPS_STRATEGY", "priority_first")
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("file value lost: %s", cfg.HTTPAddr)
	}
	if cfg.Agent.CycleInterval != 10*time.Second {
		t.Fatalf("cycle interval = %v", cfg.Agent.CycleInterval)
	}
	if cfg.Agent.AssignmentStrategy != "priority_first" {
		t.Fatalf("env should override file, got %s", cfg.Agent.AssignmentStrategy)
	}
	if cfg.Agent.ConfidenceThreshold != 0.8 {
		t.Fatalf("threshold = %v", cfg.Agent.ConfidenceThreshold)
	}
	// untouched sections keep defaults
	if cfg.Agent.MaxScenarios != 5 {
		t.Fatalf("max scenarios = %d", cfg.Agent.MaxScenarios)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad strategy", func(c *Config) { c.Agent.AssignmentStrategy = "simulated_annealing" }},
		{"bad analyzer", func(c *Config) { c.Agent.Analyzer = "oracle" }},
		{"llm without key", func(c *Config) { c.Agent.Analyzer = AnalyzerLLM; c.LLM.APIKey = "" }},
		{"threshold out of range", func(c *Config) { c.Agent.ConfidenceThreshold = 1.5 }},
		{"zero scenarios", func(c *Config) { c.Agent.MaxScenarios = 0 }},
		{"weights not normalized", func(c *Config) { c.Agent.DecisionWeights.Cost = 0.9 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/fleetops.yaml"); err == nil {
		t.Fatal("explicit missing file should error")
	}
}
