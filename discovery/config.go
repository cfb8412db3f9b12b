package discovery

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configures the discovery service.
type Config struct {
	// TrackableThreshold is the relevance score at or above which a
	// community is flagged trackable during scoring.
	TrackableThreshold float64 `yaml:"trackable_threshold"`

	// DefaultFrequencyHours is the scrape cadence applied when promotion
	// does not specify one.
	DefaultFrequencyHours int `yaml:"default_frequency_hours"`

	// SchedulerInterval is how often the scheduler checks for due items.
	SchedulerInterval time.Duration `yaml:"scheduler_interval"`

	// SnapshotTimeout force-fails snapshots stuck in flight longer than this.
	SnapshotTimeout time.Duration `yaml:"snapshot_timeout"`

	// WebhookURL receives a JSON notification when a snapshot reaches a
	// terminal state. Empty disables delivery.
	WebhookURL string `yaml:"webhook_url"`

	// MaxQueryLength bounds the free-text search string.
	MaxQueryLength int `yaml:"max_query_length"`
}

func (c *Config) defaults() {
	if c.TrackableThreshold <= 0 {
		c.TrackableThreshold = 0.7
	}
	if c.DefaultFrequencyHours <= 0 {
		c.DefaultFrequencyHours = 24
	}
	if c.SchedulerInterval <= 0 {
		c.SchedulerInterval = time.Minute
	}
	if c.SnapshotTimeout <= 0 {
		c.SnapshotTimeout = 30 * time.Minute
	}
	if c.MaxQueryLength <= 0 {
		c.MaxQueryLength = 500
	}
}

func defaultConfig() *Config {
	c := &Config{}
	c.defaults()
	return c
}

// LoadConfig reads a YAML config file and applies defaults for unset fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.defaults()
	return &c, nil
}
