package config

import (
	"os"
	"time"
)

// LLMConfig configures the LLM provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

func (c *LLMConfig) applyEnvOverrides() {
	if v := os.Getenv("FINSIGHT_LLM_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("FINSIGHT_LLM_MODEL"); v != "" {
		c.Model = v
	}
	if c.APIKey == "" {
		switch c.Provider {
		case "gemini":
			c.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}

// TimeoutDuration parses the configured timeout, defaulting to 90s.
func (c *LLMConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 90 * time.Second
	}
	return d
}
