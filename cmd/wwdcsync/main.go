package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/foxseedlab/wwdcsync/external/config"
	"github.com/foxseedlab/wwdcsync/external/discord"
	remoteimpl "github.com/foxseedlab/wwdcsync/external/remote"
	repositoryimpl "github.com/foxseedlab/wwdcsync/external/repository"
	webhookimpl "github.com/foxseedlab/wwdcsync/external/webhook"
	"github.com/foxseedlab/wwdcsync/internal/announcer"
	"github.com/foxseedlab/wwdcsync/internal/config"
	discordpkg "github.com/foxseedlab/wwdcsync/internal/discord"
	"github.com/foxseedlab/wwdcsync/internal/events"
	"github.com/foxseedlab/wwdcsync/internal/indexer"
	"github.com/foxseedlab/wwdcsync/internal/library"
	"github.com/foxseedlab/wwdcsync/internal/repository"
	"github.com/foxseedlab/wwdcsync/internal/syncer"
	"github.com/samber/do/v2"
)

const discordConnectTimeout = 20 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "postgres", cfg.UsesPostgres())

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching sync loop", "refresh_interval", cfg.RefreshInterval)
	run(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	remoteimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	events.RegisterDI(injector)
	indexer.RegisterDI(injector)
	syncer.RegisterDI(injector)
	library.RegisterDI(injector)
	announcer.RegisterDI(injector)

	return injector
}

func run(cfg *config.Config, injector do.Injector) {
	repo, err := do.Invoke[repository.Repository](injector)
	if err != nil {
		slog.Error("failed to open repository", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			slog.Error("repository close failed", "error", err)
		}
	}()

	orchestrator, err := do.Invoke[*syncer.Orchestrator](injector)
	if err != nil {
		slog.Error("failed to resolve sync orchestrator", "error", err)
		os.Exit(1)
	}
	ix, err := do.Invoke[*indexer.Indexer](injector)
	if err != nil {
		slog.Error("failed to resolve transcript indexer", "error", err)
		os.Exit(1)
	}
	ann, err := do.Invoke[*announcer.Announcer](injector)
	if err != nil {
		slog.Error("failed to resolve announcer", "error", err)
		os.Exit(1)
	}
	lib, err := do.Invoke[*library.Library](injector)
	if err != nil {
		slog.Error("failed to resolve library", "error", err)
		os.Exit(1)
	}

	if cfg.DiscordEnabled() {
		dc := do.MustInvoke[discordpkg.Client](injector)
		ctx, cancel := context.WithTimeout(context.Background(), discordConnectTimeout)
		slog.Info("startup: connecting to discord gateway")
		err := dc.Connect(ctx)
		cancel()
		if err != nil {
			slog.Error("discord connect failed", "error", err)
			os.Exit(1)
		}
		slog.Info("startup: discord connected", "channel_id", cfg.DiscordChannelID)
		defer func() {
			if err := dc.Close(); err != nil {
				slog.Error("discord close failed", "error", err)
			}
		}()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go ann.Run(ctx)

	logLibrarySummary(ctx, lib)
	orchestrator.Refresh()

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-ticker.C:
			orchestrator.Refresh()
		case <-sigCh:
			slog.Info("shutting down")
			orchestrator.Wait()
			ix.Stop()
			return
		}
	}
}

func logLibrarySummary(ctx context.Context, lib *library.Library) {
	sessions, err := lib.Sessions(ctx)
	if err != nil {
		slog.Error("failed to read stored sessions", "error", err)
		return
	}
	cfg, err := lib.Config(ctx)
	if err != nil {
		slog.Error("failed to read stored config", "error", err)
		return
	}
	slog.Info("startup: library loaded", "sessions", len(sessions), "has_config", cfg != nil)
}
