package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/wwdcsync/internal/config"
)

type envConfig struct {
	Env                       string        `env:"ENV" envDefault:"production"`
	ConfigURL                 string        `env:"CONFIG_URL,required"`
	TranscriptBaseURL         string        `env:"TRANSCRIPT_BASE_URL" envDefault:"https://asciiwwdc.com"`
	DatabaseURL               string        `env:"DATABASE_URL" envDefault:"wwdc.sqlite"`
	RefreshInterval           time.Duration `env:"REFRESH_INTERVAL" envDefault:"1h"`
	HTTPTimeout               time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	TranscriptIndexingEnabled bool          `env:"TRANSCRIPT_INDEXING_ENABLED" envDefault:"true"`
	TranscriptIgnoreYears     []int         `env:"TRANSCRIPT_IGNORE_YEARS" envSeparator:","`
	TranscriptReloadYears     []int         `env:"TRANSCRIPT_RELOAD_YEARS" envSeparator:","`
	IndexerConcurrency        int           `env:"INDEXER_CONCURRENCY" envDefault:"4"`
	LiveTolerance             time.Duration `env:"LIVE_TOLERANCE" envDefault:"0s"`
	DiscordToken              string        `env:"DISCORD_TOKEN"`
	DiscordChannelID          string        `env:"DISCORD_CHANNEL_ID"`
	SyncWebhookURL            string        `env:"SYNC_WEBHOOK_URL"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                       raw.Env,
		ConfigURL:                 raw.ConfigURL,
		TranscriptBaseURL:         raw.TranscriptBaseURL,
		DatabaseURL:               raw.DatabaseURL,
		RefreshInterval:           raw.RefreshInterval,
		HTTPTimeout:               raw.HTTPTimeout,
		TranscriptIndexingEnabled: raw.TranscriptIndexingEnabled,
		TranscriptIgnoreYears:     raw.TranscriptIgnoreYears,
		TranscriptReloadYears:     raw.TranscriptReloadYears,
		IndexerConcurrency:        raw.IndexerConcurrency,
		LiveTolerance:             raw.LiveTolerance,
		DiscordToken:              raw.DiscordToken,
		DiscordChannelID:          raw.DiscordChannelID,
		SyncWebhookURL:            raw.SyncWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
