// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Bluesky    BlueskyConfig    `mapstructure:"bluesky"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Pacing     PacingConfig     `mapstructure:"pacing"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BlueskyConfig holds the AT Protocol endpoint and credentials. Identifier
// and AppPassword may be empty for read-only public endpoints.
type BlueskyConfig struct {
	Host           string `mapstructure:"host"`
	Identifier     string `mapstructure:"identifier"`
	AppPassword    string `mapstructure:"app_password"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ClassifierConfig points at the language detection endpoint.
type ClassifierConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StorageConfig selects and configures the profile cache backend.
type StorageConfig struct {
	// Provider is one of "local", "gcs", or "memory".
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	BlobKey   string `mapstructure:"blob_key"`
}

// PubSubConfig holds metadata for discovery-event notifications. An empty
// project ID disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DiscoveryConfig tunes the discovery orchestrator defaults.
type DiscoveryConfig struct {
	ExplorationRate float64  `mapstructure:"exploration_rate"`
	SeedHandles     []string `mapstructure:"seed_handles"`
}

// PacingConfig sets per-class minimum intervals between upstream calls.
type PacingConfig struct {
	ProbeMs  int `mapstructure:"probe_ms"`
	SearchMs int `mapstructure:"search_ms"`
	CrawlMs  int `mapstructure:"crawl_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TAFUTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("bluesky.host", "https://bsky.social")
	v.SetDefault("bluesky.timeout_seconds", 15)
	v.SetDefault("classifier.url", "http://localhost:5000/detect")
	v.SetDefault("classifier.timeout_seconds", 5)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_dir", "data")
	v.SetDefault("storage.prefix", "tafuta")
	v.SetDefault("discovery.exploration_rate", 0.4)
	v.SetDefault("pacing.probe_ms", 80)
	v.SetDefault("pacing.search_ms", 200)
	v.SetDefault("pacing.crawl_ms", 300)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Bluesky.Host == "" {
		return fmt.Errorf("bluesky.host must be set")
	}
	if c.Classifier.URL == "" {
		return fmt.Errorf("classifier.url must be set")
	}
	switch c.Storage.Provider {
	case "local", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when provider is gcs")
		}
	default:
		return fmt.Errorf("storage.provider must be local, gcs, or memory")
	}
	if c.Discovery.ExplorationRate < 0 || c.Discovery.ExplorationRate > 1 {
		return fmt.Errorf("discovery.exploration_rate must be within [0, 1]")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// ServerTimeout converts the request timeout config into a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// BlueskyTimeout converts the upstream client timeout into a duration.
func (c Config) BlueskyTimeout() time.Duration {
	return time.Duration(c.Bluesky.TimeoutSeconds) * time.Second
}

// ClassifierTimeout converts the classifier timeout into a duration.
func (c Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.Classifier.TimeoutSeconds) * time.Second
}
