// Package config loads service configuration from a YAML file with
// environment variable fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultBindAddress    = ":8080"
	DefaultExtractTimeout = 8 * time.Second
	DefaultSessionTTL     = 24 * time.Hour
)

// RedisConfig configures the session store and distributed locker.
// Leave Address empty to run with the in-memory store.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// OpenAIConfig configures the extraction adapter. APIKey falls back to
// OPENAI_API_KEY; leave both empty to run the offline keyword extractor.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// FlowConfig tunes the conversation flow controller.
type FlowConfig struct {
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	MaxRepeats          int      `yaml:"max_repeats"`
	EmergencyKeywords   []string `yaml:"emergency_keywords"`
}

// AlertConfig configures the staff alert webhook.
type AlertConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Config is the top-level service configuration.
type Config struct {
	BindAddress string `yaml:"bind_address"`

	// ScriptPath points to the interview script. Empty means the embedded
	// default script.
	ScriptPath string `yaml:"script_path"`

	ExtractTimeout time.Duration `yaml:"extract_timeout"`
	SessionTTL     time.Duration `yaml:"session_ttl"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	Flow   FlowConfig  `yaml:"flow"`
	Redis  RedisConfig `yaml:"redis"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Alert  AlertConfig `yaml:"alert"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		BindAddress:    DefaultBindAddress,
		ExtractTimeout: DefaultExtractTimeout,
		SessionTTL:     DefaultSessionTTL,
		LogLevel:       "info",
	}
}

// Parse decodes a YAML document over the defaults and applies environment
// fallbacks.
func Parse(data []byte) (*Config, error) {
	conf := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, conf); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	conf.applyEnv()
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Load reads a YAML config file. An empty path yields the defaults (with
// environment fallbacks applied).
func Load(path string) (*Config, error) {
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	conf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return conf, nil
}

func (c *Config) applyEnv() {
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Redis.Address == "" {
		c.Redis.Address = os.Getenv("REDIS_ADDRESS")
	}
	if c.Redis.Password == "" {
		c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
	if c.Alert.WebhookURL == "" {
		c.Alert.WebhookURL = os.Getenv("INTAKE_ALERT_WEBHOOK")
	}
}

func (c *Config) validate() error {
	if c.ExtractTimeout <= 0 {
		return fmt.Errorf("extract_timeout must be positive, got %s", c.ExtractTimeout)
	}
	if c.Flow.ConfidenceThreshold < 0 || c.Flow.ConfidenceThreshold > 1 {
		return fmt.Errorf("flow.confidence_threshold must be in [0,1], got %v", c.Flow.ConfidenceThreshold)
	}
	if c.Flow.MaxRepeats < 0 {
		return fmt.Errorf("flow.max_repeats must not be negative, got %d", c.Flow.MaxRepeats)
	}
	return nil
}
