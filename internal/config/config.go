// Package config holds all finsight configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	LLM       LLMConfig       `yaml:"llm"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Rules     RulesConfig     `yaml:"rules"`
	Referral  ReferralConfig  `yaml:"referral"`
	Intercept InterceptConfig `yaml:"intercept"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP/SSE surface.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	FrontendOrigin string `yaml:"frontend_origin"`
}

// StoreConfig configures the sqlite store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	SeedDemoUser bool   `yaml:"seed_demo_user"`
}

// RulesConfig locates the tax ruleset document.
type RulesConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// ReferralConfig bounds cross-referral expansion.
type ReferralConfig struct {
	// Budget is the maximum number of accepted referrals per turn.
	Budget int `yaml:"budget"`
}

// InterceptConfig bounds the trade pre-check.
type InterceptConfig struct {
	Deadline          time.Duration `yaml:"deadline"`
	MaterialThreshold float64       `yaml:"material_threshold"`
}

// MonitorConfig configures the background portfolio monitor.
type MonitorConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	StartupDelay time.Duration `yaml:"startup_delay"`
}

// LoggingConfig configures log verbosity.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Name:    "finsight",
		Version: "1.0.0",
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "",
			Timeout:  "90s",
		},
		Server: ServerConfig{
			Addr:           ":8000",
			FrontendOrigin: "http://localhost:3000",
		},
		Store: StoreConfig{
			DatabasePath: "finsight.db",
			SeedDemoUser: true,
		},
		Rules: RulesConfig{
			Path:  "data/tax_rules.json",
			Watch: true,
		},
		Referral: ReferralConfig{
			Budget: 1,
		},
		Intercept: InterceptConfig{
			Deadline:          8 * time.Second,
			MaterialThreshold: 50,
		},
		Monitor: MonitorConfig{
			Enabled:      true,
			Interval:     5 * time.Minute,
			StartupDelay: 30 * time.Second,
		},
	}
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// defaults
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FINSIGHT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("FINSIGHT_DB"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("FINSIGHT_RULES"); v != "" {
		c.Rules.Path = v
	}
	c.LLM.applyEnvOverrides()
}

func (c *Config) validate() error {
	if c.Referral.Budget < 0 {
		return fmt.Errorf("referral budget must be >= 0, got %d", c.Referral.Budget)
	}
	if c.Intercept.Deadline <= 0 {
		return fmt.Errorf("intercept deadline must be positive")
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}
	return nil
}
