package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"fleetops/internal/decide"
	"fleetops/internal/opt"
)

// Analyzer selection for the reasoning phase.
const (
	AnalyzerRules = "rules"
	AnalyzerLLM   = "llm"
)

// Config holds the full application configuration. Values come from an
// optional YAML file with environment variables taking precedence.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	Agent    AgentConfig   `yaml:"agent"`
	LLM      LLMConfig     `yaml:"llm"`
	Webhooks WebhookConfig `yaml:"webhooks"`
	Sim      SimConfig     `yaml:"sim"`
}

// AgentConfig tunes the control loop.
type AgentConfig struct {
	CycleInterval       time.Duration  `yaml:"cycle_interval"`
	MaxScenarios        int            `yaml:"max_scenarios"`
	ConfidenceThreshold float64        `yaml:"confidence_threshold"`
	AssignmentStrategy  string         `yaml:"assignment_strategy"`
	Analyzer            string         `yaml:"analyzer"`
	DecisionWeights     decide.Weights `yaml:"decision_weights"`
}

// LLMConfig configures the optional LLM analyzer.
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	Timeout        time.Duration `yaml:"timeout"`
	CallsPerMinute int           `yaml:"calls_per_minute"`
}

// WebhookConfig configures outbound notification delivery.
type WebhookConfig struct {
	Endpoint string `yaml:"endpoint"`
	Secret   string `yaml:"secret"`
}

// SimConfig controls the built-in fleet simulator.
type SimConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Trucks       int           `yaml:"trucks"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		HTTPAddr: ":8080",
		Agent: AgentConfig{
			CycleInterval:       30 * time.Second,
			MaxScenarios:        5,
			ConfidenceThreshold: 0.7,
			AssignmentStrategy:  string(opt.StrategyGreedyHeap),
			Analyzer:            AnalyzerRules,
			DecisionWeights:     decide.DefaultWeights(),
		},
		LLM: LLMConfig{
			Model:          "grok-3-mini",
			Timeout:        20 * time.Second,
			CallsPerMinute: 10,
		},
		Sim: SimConfig{
			Trucks:       5,
			TickInterval: 5 * time.Second,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is empty, FLEETOPS_CONFIG or ./fleetops.yaml when present), then
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("FLEETOPS_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("fleetops.yaml"); err == nil {
			path = "fleetops.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.HTTPAddr = ":" + v
	}
	if v := os.Getenv("FLEETOPS_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("FLEETOPS_ANALYZER"); v != "" {
		cfg.Agent.Analyzer = v
	}
	if v := os.Getenv("FLEETOPS_STRATEGY"); v != "" {
		cfg.Agent.AssignmentStrategy = v
	}
	if v := os.Getenv("FLEETOPS_CYCLE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Agent.CycleInterval = d
		}
	}
	if v := os.Getenv("FLEETOPS_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Agent.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("WEBHOOK_ENDPOINT"); v != "" {
		cfg.Webhooks.Endpoint = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Webhooks.Secret = v
	}
	if v := os.Getenv("FLEETOPS_SIM"); v != "" {
		cfg.Sim.Enabled = v == "1" || v == "true"
	}
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	switch opt.Strategy(c.Agent.AssignmentStrategy) {
	case opt.StrategyGreedyHeap, opt.StrategyGreedy, opt.StrategyPriorityFirst:
	default:
		return fmt.Errorf("unknown assignment strategy %q", c.Agent.AssignmentStrategy)
	}
	switch c.Agent.Analyzer {
	case AnalyzerRules, AnalyzerLLM:
	default:
		return fmt.Errorf("unknown analyzer %q", c.Agent.Analyzer)
	}
	if c.Agent.Analyzer == AnalyzerLLM && c.LLM.APIKey == "" {
		return fmt.Errorf("llm analyzer selected but no API key configured")
	}
	if c.Agent.ConfidenceThreshold < 0 || c.Agent.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %v outside [0,1]", c.Agent.ConfidenceThreshold)
	}
	if c.Agent.MaxScenarios <= 0 {
		return fmt.Errorf("max_scenarios must be positive")
	}
	if c.Agent.CycleInterval <= 0 {
		return fmt.Errorf("cycle_interval must be positive")
	}
	if _, err := decide.NewEvaluator(c.Agent.DecisionWeights, c.Agent.ConfidenceThreshold); err != nil {
		return fmt.Errorf("decision_weights: %w", err)
	}
	return nil
}
