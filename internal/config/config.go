// Package config provides YAML-based configuration loading for Z-Interact.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Z-Interact configuration, loaded from config.yaml.
type Config struct {
	Event   EventConfig   `yaml:"event"`
	Server  ServerConfig  `yaml:"server"`
	DB      DBConfig      `yaml:"db"`
	Feed    FeedConfig    `yaml:"feed"`
	Storage StorageConfig `yaml:"storage"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Slack   SlackConfig   `yaml:"slack"`
}

// EventConfig describes the live event: its name and the physical tables
// participants sit at. The table list is the source of truth for how many
// scopes must lock before the gallery counts as complete.
type EventConfig struct {
	Name   string        `yaml:"name"`
	Tables []TableConfig `yaml:"tables"`
}

// TableConfig is one physical table/workspace and its assigned persona.
type TableConfig struct {
	ID      string `yaml:"id"`
	Persona string `yaml:"persona"`
	Title   string `yaml:"title"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DBConfig selects and configures the database backend.
type DBConfig struct {
	Driver   string `yaml:"driver"` // sqlite or mysql
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// FeedConfig tunes the change-feed subscription sessions.
type FeedConfig struct {
	PollIntervalMS   int `yaml:"poll_interval_ms"`
	SessionLifetimeS int `yaml:"session_lifetime_s"`
	RetryBudget      int `yaml:"retry_budget"`
	BatchLimit       int `yaml:"batch_limit"`
}

// PollInterval returns the poll cadence as a duration.
func (f FeedConfig) PollInterval() time.Duration {
	return time.Duration(f.PollIntervalMS) * time.Millisecond
}

// SessionLifetime returns the hard cap on a single session's length.
func (f FeedConfig) SessionLifetime() time.Duration {
	return time.Duration(f.SessionLifetimeS) * time.Second
}

// StorageConfig holds settings for the durable artifact store.
type StorageConfig struct {
	Dir     string `yaml:"dir"`      // local directory promoted images are written to
	BaseURL string `yaml:"base_url"` // URL prefix the directory is served under
}

// SweepConfig controls the background job that fails wedged generations.
type SweepConfig struct {
	Schedule    string `yaml:"schedule"`      // 5-field cron expression
	StaleAfterS int    `yaml:"stale_after_s"` // age before a generating row is failed
}

// StaleAfter returns the stale cutoff as a duration.
func (s SweepConfig) StaleAfter() time.Duration {
	return time.Duration(s.StaleAfterS) * time.Second
}

// SlackConfig enables the optional completion notification. An empty token
// disables it.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TableIDs returns the configured scope keys in declaration order.
func (c *Config) TableIDs() []string {
	ids := make([]string, len(c.Event.Tables))
	for i, t := range c.Event.Tables {
		ids[i] = t.ID
	}
	return ids
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Event.Name == "" {
		c.Event.Name = "z-interact"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Path == "" {
		c.DB.Path = "z-interact.db"
	}
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.User == "" {
		c.DB.User = "root"
	}
	if c.Feed.PollIntervalMS == 0 {
		c.Feed.PollIntervalMS = 1000
	}
	if c.Feed.SessionLifetimeS == 0 {
		c.Feed.SessionLifetimeS = 300
	}
	if c.Feed.RetryBudget == 0 {
		c.Feed.RetryBudget = 3
	}
	if c.Feed.BatchLimit == 0 {
		c.Feed.BatchLimit = 100
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "artifacts"
	}
	if c.Storage.BaseURL == "" {
		c.Storage.BaseURL = "/artifacts"
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "* * * * *"
	}
	if c.Sweep.StaleAfterS == 0 {
		c.Sweep.StaleAfterS = 120
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if len(c.Event.Tables) == 0 {
		errs = append(errs, "at least one table is required")
	}
	seen := make(map[string]bool)
	for i, t := range c.Event.Tables {
		if t.ID == "" {
			errs = append(errs, fmt.Sprintf("tables[%d].id is required", i))
			continue
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Sprintf("tables[%d].id %q is duplicated", i, t.ID))
		}
		seen[t.ID] = true
	}
	switch c.DB.Driver {
	case "sqlite":
	case "mysql":
		if c.DB.Database == "" {
			errs = append(errs, "db.database is required for the mysql driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("db.driver %q is not supported (sqlite, mysql)", c.DB.Driver))
	}
	if c.Slack.BotToken != "" && c.Slack.ChannelID == "" {
		errs = append(errs, "slack.channel_id is required when slack.bot_token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
