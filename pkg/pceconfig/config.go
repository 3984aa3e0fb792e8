// Package pceconfig resolves server configuration with precedence
// environment variable > YAML config file > built-in default, generalizing
// the teacher's env-only pkg/config.Load() and its YAML profile loader
// (pkg/config/profile_loader.go) into one resolution chain.
package pceconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// OpenRouter holds the LLM side-channel settings.
type OpenRouter struct {
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	TimeoutS    int    `yaml:"timeout_s"`
	HTTPReferer string `yaml:"http_referer"`
	XTitle      string `yaml:"x_title"`
}

// CCI holds the coherence engine's settings. Weights are applied at boot;
// Window is loaded but not applied, since the engine always uses cci.Window.
type CCI struct {
	Window  int                `yaml:"window"`
	Weights map[string]float64 `yaml:"weights"`
}

// Approvals holds the approval gate's TTL and sweep cadence.
type Approvals struct {
	TTLSeconds     int `yaml:"ttl_seconds"`
	SweepIntervalS int `yaml:"sweep_interval_s"`
}

// Assistant holds the assistant domain plugin's bandit and override
// parameters.
type Assistant struct {
	ValueFloor   float64 `yaml:"value_floor"`
	CCIFloor     float64 `yaml:"cci_floor"`
	EpsilonStart float64 `yaml:"epsilon_start"`
	EpsilonMin   float64 `yaml:"epsilon_min"`
	EpsilonDecay float64 `yaml:"epsilon_decay"`
}

// Config is the fully resolved server configuration.
type Config struct {
	APIPort     int        `yaml:"api_port"`
	StateDBPath string     `yaml:"state_db_path"`
	OpenRouter  OpenRouter `yaml:"openrouter"`
	CCI         CCI        `yaml:"cci"`
	Approvals   Approvals  `yaml:"approvals"`
	Assistant   Assistant  `yaml:"assistant"`
}

// Default returns the built-in defaults, the bottom of the resolution
// chain.
func Default() Config {
	return Config{
		APIPort:     8080,
		StateDBPath: "data/pce.db",
		OpenRouter: OpenRouter{
			Model:    "anthropic/claude-3.5-sonnet",
			BaseURL:  "https://openrouter.ai/api/v1",
			TimeoutS: 8,
		},
		CCI: CCI{
			Window: 50,
			Weights: map[string]float64{
				"consistency":         0.35,
				"stability":           0.25,
				"contradiction_rate":  0.25,
				"predictive_accuracy": 0.15,
			},
		},
		Approvals: Approvals{TTLSeconds: 24 * 3600, SweepIntervalS: 60},
		Assistant: Assistant{
			ValueFloor:   0.3,
			CCIFloor:     0.4,
			EpsilonStart: 0.6,
			EpsilonMin:   0.05,
			EpsilonDecay: 0.92,
		},
	}
}

// Load resolves configuration: built-in default, overridden by configPath
// (if non-empty and present), overridden by environment variables.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("pceconfig: read %s: %w", configPath, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("pceconfig: parse %s: %w", configPath, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := envInt("PCE_API_PORT"); ok {
		cfg.APIPort = v
	}
	if v, ok := os.LookupEnv("PCE_STATE_DB_PATH"); ok {
		cfg.StateDBPath = v
	}

	if v, ok := os.LookupEnv("PCE_OPENROUTER_API_KEY"); ok {
		cfg.OpenRouter.APIKey = v
	}
	if v, ok := os.LookupEnv("PCE_OPENROUTER_MODEL"); ok {
		cfg.OpenRouter.Model = v
	}
	if v, ok := os.LookupEnv("PCE_OPENROUTER_BASE_URL"); ok {
		cfg.OpenRouter.BaseURL = v
	}
	if v, ok := envInt("PCE_OPENROUTER_TIMEOUT_S"); ok {
		cfg.OpenRouter.TimeoutS = v
	}
	if v, ok := os.LookupEnv("PCE_OPENROUTER_HTTP_REFERER"); ok {
		cfg.OpenRouter.HTTPReferer = v
	}
	if v, ok := os.LookupEnv("PCE_OPENROUTER_X_TITLE"); ok {
		cfg.OpenRouter.XTitle = v
	}

	if v, ok := envInt("PCE_CCI_WINDOW"); ok {
		cfg.CCI.Window = v
	}

	if v, ok := envInt("PCE_APPROVALS_TTL_SECONDS"); ok {
		cfg.Approvals.TTLSeconds = v
	}
	if v, ok := envInt("PCE_APPROVALS_SWEEP_INTERVAL_S"); ok {
		cfg.Approvals.SweepIntervalS = v
	}

	if v, ok := envFloat("PCE_ASSISTANT_VALUE_FLOOR"); ok {
		cfg.Assistant.ValueFloor = v
	}
	if v, ok := envFloat("PCE_ASSISTANT_CCI_FLOOR"); ok {
		cfg.Assistant.CCIFloor = v
	}
	if v, ok := envFloat("PCE_ASSISTANT_EPSILON_START"); ok {
		cfg.Assistant.EpsilonStart = v
	}
	if v, ok := envFloat("PCE_ASSISTANT_EPSILON_MIN"); ok {
		cfg.Assistant.EpsilonMin = v
	}
	if v, ok := envFloat("PCE_ASSISTANT_EPSILON_DECAY"); ok {
		cfg.Assistant.EpsilonDecay = v
	}
}

func envInt(key string) (int, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(key string) (float64, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ApprovalTTL returns Approvals.TTLSeconds as a time.Duration.
func (c Config) ApprovalTTL() time.Duration {
	return time.Duration(c.Approvals.TTLSeconds) * time.Second
}

// ApprovalSweepInterval returns Approvals.SweepIntervalS as a
// time.Duration.
func (c Config) ApprovalSweepInterval() time.Duration {
	return time.Duration(c.Approvals.SweepIntervalS) * time.Second
}

// OpenRouterTimeout returns OpenRouter.TimeoutS as a time.Duration.
func (c Config) OpenRouterTimeout() time.Duration {
	return time.Duration(c.OpenRouter.TimeoutS) * time.Second
}
