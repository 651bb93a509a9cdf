// Package config loads the engine configuration from YAML. Every
// component receives its settings at construction; there is no
// ambient global configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Campaign  CampaignConfig  `yaml:"campaign"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	LLM       LLMConfig       `yaml:"llm"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig contains lead store settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// CampaignConfig contains generation and scheduling policy
type CampaignConfig struct {
	// BatchSize bounds how many leads one sweep hands to the
	// generation service; pick one that stays under its rate limits
	BatchSize int `yaml:"batch_size"`

	// Offsets are the follow-up delays from generation time
	Offsets []time.Duration `yaml:"offsets"`

	// SubjectMarker/BodyMarker are the literal labels the generation
	// service is prompted to emit and the parser looks for
	SubjectMarker string `yaml:"subject_marker"`
	BodyMarker    string `yaml:"body_marker"`

	// ClaimTTL bounds how long a crashed invocation may hold a slot
	// claim before another invocation takes over
	ClaimTTL time.Duration `yaml:"claim_ttl"`
}

// SchedulerConfig contains trigger cadences
type SchedulerConfig struct {
	// MinInterval is the platform's minimum recurring cadence
	MinInterval time.Duration `yaml:"min_interval"`

	SweepInterval   time.Duration `yaml:"sweep_interval"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// SignalsInterval is the bounce/reply poll cadence; zero disables
	// polling
	SignalsInterval time.Duration `yaml:"signals_interval"`
}

// LLMConfig contains generation service settings
type LLMConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// GatewayConfig contains outbound gateway settings
type GatewayConfig struct {
	// Transport selects the gateway client: "api" or "smtp"
	Transport string        `yaml:"transport"`
	From      string        `yaml:"from"`
	Timeout   time.Duration `yaml:"timeout"`

	// API transport
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	// SMTP transport
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	APIKey       string        `yaml:"api_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/frankie/leads.db"
	}

	if c.Campaign.BatchSize == 0 {
		c.Campaign.BatchSize = 10
	}
	if len(c.Campaign.Offsets) == 0 {
		c.Campaign.Offsets = []time.Duration{0, 60 * time.Minute, 120 * time.Minute}
	}
	if c.Campaign.SubjectMarker == "" {
		c.Campaign.SubjectMarker = "主旨"
	}
	if c.Campaign.BodyMarker == "" {
		c.Campaign.BodyMarker = "內容"
	}
	if c.Campaign.ClaimTTL == 0 {
		c.Campaign.ClaimTTL = 10 * time.Minute
	}

	if c.Scheduler.MinInterval == 0 {
		c.Scheduler.MinInterval = time.Hour
	}
	if c.Scheduler.SweepInterval == 0 {
		c.Scheduler.SweepInterval = time.Hour
	}
	if c.Scheduler.CleanupInterval == 0 {
		c.Scheduler.CleanupInterval = time.Hour
	}

	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("FRANKIE_LLM_API_KEY")
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}

	if c.Gateway.Transport == "" {
		c.Gateway.Transport = "api"
	}
	if c.Gateway.APIKey == "" {
		c.Gateway.APIKey = os.Getenv("FRANKIE_GATEWAY_API_KEY")
	}
	if c.Gateway.Password == "" {
		c.Gateway.Password = os.Getenv("FRANKIE_GATEWAY_PASSWORD")
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 30 * time.Second
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if len(c.Campaign.Offsets) != 3 {
		return fmt.Errorf("campaign.offsets must list exactly 3 delays, got %d", len(c.Campaign.Offsets))
	}
	for i := 1; i < len(c.Campaign.Offsets); i++ {
		if c.Campaign.Offsets[i] < c.Campaign.Offsets[i-1] {
			return fmt.Errorf("campaign.offsets must be non-decreasing")
		}
	}
	if c.Campaign.BatchSize < 1 {
		return fmt.Errorf("campaign.batch_size must be positive")
	}

	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}

	if c.Gateway.From == "" {
		return fmt.Errorf("gateway.from is required")
	}
	switch c.Gateway.Transport {
	case "api":
		if c.Gateway.BaseURL == "" {
			return fmt.Errorf("gateway.base_url is required for the api transport")
		}
	case "smtp":
		if c.Gateway.Addr == "" {
			return fmt.Errorf("gateway.addr is required for the smtp transport")
		}
	default:
		return fmt.Errorf("gateway.transport must be \"api\" or \"smtp\", got %q", c.Gateway.Transport)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}

	return nil
}
