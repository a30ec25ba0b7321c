// Package config loads the mirror engine's configuration, following the
// teacher's discipline of a JSON file for non-secret shape plus environment
// variables for anything that must never be persisted to disk.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ServerPair identifies one replication domain: a source server the engine
// only has a regular user session against, paired with a mirror server the
// operator fully controls (spec §3 "Server pair").
type ServerPair struct {
	SourceServerID string `json:"sourceServerId"`
	MirrorServerID string `json:"mirrorServerId"`
}

// Config is the root configuration for the replication engine.
type Config struct {
	Pairs      []ServerPair     `json:"pairs"`
	Database   DatabaseConfig   `json:"database,omitempty"`
	Discord    DiscordConfig    `json:"discord,omitempty"`
	Thresholds ThresholdsConfig `json:"thresholds,omitempty"`
	HTTP       HTTPConfig       `json:"http,omitempty"`
}

// DatabaseConfig configures the Mongo store. URI is never read from the
// config file — only from MONGODB_URI — matching the teacher's
// DatabaseConfig.PostgresDSN "from env only" discipline.
type DatabaseConfig struct {
	URI  string `json:"-"`
	Name string `json:"name,omitempty"`
}

// DiscordConfig holds non-secret Discord-related settings. Bot/user tokens
// are read only from DISCORD_BOT_TOKEN / DISCORD_USER_TOKEN.
type DiscordConfig struct {
	BotToken         string   `json:"-"`
	UserToken        string   `json:"-"`
	AllowBotMentions bool     `json:"-"`
	IgnoredChannels  []string `json:"ignoredChannels,omitempty"`
	// NoiseFilterAuthorIDs lists known spammy automata whose messages the
	// pipeline drops at the filter step (spec §4.2 step 1).
	NoiseFilterAuthorIDs []string `json:"noiseFilterAuthorIds,omitempty"`
}

// ThresholdsConfig holds the time-based triggers from spec §6.
type ThresholdsConfig struct {
	InactiveThresholdDays int           `json:"inactiveThresholdDays,omitempty"`
	DefaultScrapeDelay    time.Duration `json:"defaultScrapeDelay,omitempty"`
}

// HTTPConfig configures the status/health endpoint.
type HTTPConfig struct {
	Addr string `json:"addr,omitempty"`
}

// Load reads the JSON config file at path, then overlays environment
// variables for every secret/operational field per spec §6 "Environment".
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.Database.URI = v
	}
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		cfg.Discord.BotToken = v
	}
	if v := os.Getenv("DISCORD_USER_TOKEN"); v != "" {
		cfg.Discord.UserToken = v
	}
	if v := os.Getenv("ALLOW_BOT_MENTIONS"); v == "true" || v == "1" {
		cfg.Discord.AllowBotMentions = true
	}
	if v := os.Getenv("INACTIVE_THRESHOLD_DAYS"); v != "" {
		var days int
		if _, err := fmt.Sscanf(v, "%d", &days); err == nil {
			cfg.Thresholds.InactiveThresholdDays = days
		}
	}
	if v := os.Getenv("DEFAULT_SCRAPE_DELAY"); v != "" {
		var ms int
		if _, err := fmt.Sscanf(v, "%d", &ms); err == nil {
			cfg.Thresholds.DefaultScrapeDelay = time.Duration(ms) * time.Millisecond
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Name == "" {
		cfg.Database.Name = "goclaw_mirror"
	}
	if cfg.Thresholds.InactiveThresholdDays == 0 {
		cfg.Thresholds.InactiveThresholdDays = 30
	}
	if cfg.Thresholds.DefaultScrapeDelay == 0 {
		cfg.Thresholds.DefaultScrapeDelay = 500 * time.Millisecond
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8089"
	}
}

// Validate checks the fatal invariants spec §7 calls out: missing config
// fields the engine cannot start without.
func (c *Config) Validate() error {
	if c.Database.URI == "" {
		return fmt.Errorf("config: MONGODB_URI is required")
	}
	if c.Discord.BotToken == "" {
		return fmt.Errorf("config: DISCORD_BOT_TOKEN is required")
	}
	if c.Discord.UserToken == "" {
		return fmt.Errorf("config: DISCORD_USER_TOKEN is required")
	}
	if len(c.Pairs) == 0 {
		return fmt.Errorf("config: at least one server pair is required")
	}
	for _, p := range c.Pairs {
		if p.SourceServerID == "" || p.MirrorServerID == "" {
			return fmt.Errorf("config: server pair missing sourceServerId or mirrorServerId")
		}
	}
	return nil
}
