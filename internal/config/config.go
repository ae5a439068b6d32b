package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

type Config struct {
	Env                       string
	ConfigURL                 string
	TranscriptBaseURL         string
	DatabaseURL               string
	RefreshInterval           time.Duration
	HTTPTimeout               time.Duration
	TranscriptIndexingEnabled bool
	TranscriptIgnoreYears     []int
	TranscriptReloadYears     []int
	IndexerConcurrency        int
	LiveTolerance             time.Duration
	DiscordToken              string
	DiscordChannelID          string
	SyncWebhookURL            string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredURLChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
		if !isAbsoluteURL(req.value) {
			return fmt.Errorf("%s must be an absolute URL, got %q", req.name, req.value)
		}
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive, got %s", c.RefreshInterval)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.IndexerConcurrency <= 0 {
		return fmt.Errorf("INDEXER_CONCURRENCY must be positive, got %d", c.IndexerConcurrency)
	}
	if c.LiveTolerance < 0 {
		return fmt.Errorf("LIVE_TOLERANCE must not be negative, got %s", c.LiveTolerance)
	}
	if (c.DiscordToken == "") != (c.DiscordChannelID == "") {
		return fmt.Errorf("DISCORD_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	if c.SyncWebhookURL != "" && !isAbsoluteURL(c.SyncWebhookURL) {
		return fmt.Errorf("SYNC_WEBHOOK_URL must be an absolute URL, got %q", c.SyncWebhookURL)
	}
	return nil
}

type requiredURLField struct {
	name  string
	value string
}

func (c *Config) requiredURLChecks() []requiredURLField {
	return []requiredURLField{
		{name: "CONFIG_URL", value: c.ConfigURL},
		{name: "TRANSCRIPT_BASE_URL", value: c.TranscriptBaseURL},
	}
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// UsesPostgres reports whether DATABASE_URL points at PostgreSQL rather than a SQLite file.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func (c *Config) IgnoresTranscriptYear(year int) bool {
	return slices.Contains(c.TranscriptIgnoreYears, year)
}

func (c *Config) DiscordEnabled() bool {
	return c.DiscordToken != "" && c.DiscordChannelID != ""
}
