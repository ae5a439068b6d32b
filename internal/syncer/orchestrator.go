package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foxseedlab/wwdcsync/internal/adapter"
	"github.com/foxseedlab/wwdcsync/internal/config"
	"github.com/foxseedlab/wwdcsync/internal/events"
	"github.com/foxseedlab/wwdcsync/internal/remote"
	"github.com/foxseedlab/wwdcsync/internal/repository"
	"github.com/google/uuid"
)

const legacyYearCutoff = 2015

// TranscriptIndexer starts a background transcript pass. It reports false when
// the request is dropped.
type TranscriptIndexer interface {
	Start(ctx context.Context, keys []string) bool
}

// Result summarizes one sync cycle.
type Result struct {
	CycleID         string
	ConfigChanged   bool
	ChangedKeys     []string
	IndexingStarted bool
	ReloadStarted   bool
}

type Orchestrator struct {
	cfg     *config.Config
	repo    repository.Repository
	client  remote.Client
	indexer TranscriptIndexer
	bus     events.Publisher

	cycleMu sync.Mutex
	wg      sync.WaitGroup
	baseCtx context.Context
}

func NewOrchestrator(cfg *config.Config, repo repository.Repository, client remote.Client, indexer TranscriptIndexer, bus events.Publisher) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		repo:    repo,
		client:  client,
		indexer: indexer,
		bus:     bus,
		baseCtx: context.Background(),
	}
}

// Refresh runs a sync cycle in the background. It is dropped when a cycle is
// already running.
func (o *Orchestrator) Refresh() {
	if !o.cycleMu.TryLock() {
		slog.Info("sync cycle already running, dropping refresh")
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.cycleMu.Unlock()
		o.runCycle(o.baseCtx)
	}()
}

// Wait blocks until background cycles started by Refresh have returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Sync runs one cycle in the caller's goroutine, waiting for any running cycle first.
func (o *Orchestrator) Sync(ctx context.Context) Result {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()
	return o.runCycle(ctx)
}

// LiveSessions fetches the live stream listing. It returns nil when no live URL is configured.
func (o *Orchestrator) LiveSessions(ctx context.Context) ([]repository.LiveSession, error) {
	cfg, err := o.repo.AppConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load app config: %w", err)
	}
	if cfg == nil || cfg.LiveURL == "" {
		return nil, nil
	}
	body, err := o.client.Fetch(ctx, cfg.LiveURL)
	if err != nil {
		return nil, fmt.Errorf("fetch live sessions: %w", err)
	}
	return adapter.DecodeLiveSessions(body)
}

func (o *Orchestrator) runCycle(ctx context.Context) Result {
	res := Result{CycleID: uuid.NewString()}
	log := slog.With("cycle_id", res.CycleID)
	log.Info("sync cycle started")

	defer func() {
		log.Info("sync cycle finished", "config_changed", res.ConfigChanged, "changed_sessions", len(res.ChangedKeys), "indexing_started", res.IndexingStarted)
	}()

	// Indexing passes outlive the cycle, so they must not inherit its cancellation.
	indexCtx := context.WithoutCancel(ctx)

	current, err := o.adoptConfig(ctx, log, &res)
	if err != nil {
		log.Error("failed to adopt remote config", "error", err)
	}
	if current != nil {
		state, err := o.repo.SyncState(ctx)
		if err != nil {
			log.Error("failed to load sync state", "error", err)
		} else if state.CatalogPending || state.SchedulePending {
			keys := []string{}
			if state.CatalogPending {
				keys = o.syncCatalog(ctx, log, *current, state.CatalogStamp)
			}
			if state.SchedulePending {
				o.syncSchedule(ctx, log, *current)
			}
			res.ChangedKeys = keys

			if o.cfg.TranscriptIndexingEnabled {
				res.IndexingStarted = o.indexer.Start(indexCtx, o.indexableKeys(keys))
			}
			o.bus.Publish(events.Event{Kind: events.SessionsChanged, Keys: keys})
		}
	}

	res.ReloadStarted = o.reloadTranscripts(ctx, indexCtx, log)
	return res
}

// adoptConfig fetches the remote config and stores it when it differs from the
// stored one. Adopting a config marks the catalog and schedule as pending. The
// returned config is the one the rest of the cycle uses.
func (o *Orchestrator) adoptConfig(ctx context.Context, log *slog.Logger, res *Result) (*repository.AppConfig, error) {
	stored, err := o.repo.AppConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored config: %w", err)
	}
	body, err := o.client.FetchAppConfig(ctx)
	if err != nil {
		return stored, fmt.Errorf("fetch config: %w", err)
	}
	fetched, err := adapter.DecodeAppConfig(body)
	if err != nil {
		return stored, fmt.Errorf("decode config: %w", err)
	}
	if fetched.Equal(stored) {
		log.Debug("remote config unchanged")
		return stored, nil
	}

	var removed int64
	if err := o.repo.WithTx(ctx, func(tx repository.Tx) error {
		removed = 0
		state, err := tx.SyncState(ctx)
		if err != nil {
			return err
		}
		if err := tx.ReplaceAppConfig(ctx, fetched); err != nil {
			return err
		}
		if !state.LegacyCleanedUp {
			if removed, err = tx.DeleteSessionsAboveID(ctx, repository.LegacyIDThreshold); err != nil {
				return err
			}
			state.LegacyCleanedUp = true
		}
		state.CatalogPending = true
		state.SchedulePending = fetched.ScheduleEnabled
		return tx.ReplaceSyncState(ctx, state)
	}); err != nil {
		return stored, fmt.Errorf("store config: %w", err)
	}
	res.ConfigChanged = true
	log.Info("remote config adopted", "schedule_enabled", fetched.ScheduleEnabled, "is_wwdc_week", fetched.IsWWDCWeek, "legacy_sessions_removed", removed)

	if stored == nil || stored.IsWWDCWeek != fetched.IsWWDCWeek {
		kind := events.WWDCWeekEnded
		if fetched.IsWWDCWeek {
			kind = events.WWDCWeekStarted
		}
		o.bus.Publish(events.Event{Kind: kind})
	}
	return &fetched, nil
}

// markSynced applies update to the stored sync state inside tx.
func markSynced(ctx context.Context, tx repository.Tx, update func(*repository.SyncState)) error {
	state, err := tx.SyncState(ctx)
	if err != nil {
		return err
	}
	update(&state)
	return tx.ReplaceSyncState(ctx, state)
}

// syncCatalog merges the remote catalog and returns the keys of created or
// changed sessions. The catalog stays pending until a merge commits.
func (o *Orchestrator) syncCatalog(ctx context.Context, log *slog.Logger, cfg repository.AppConfig, lastStamp string) []string {
	keys := []string{}
	body, err := o.client.Fetch(ctx, cfg.VideosURL)
	if err != nil {
		log.Error("failed to fetch catalog", "error", err)
		return keys
	}
	catalog, err := adapter.DecodeCatalog(body)
	if err != nil {
		log.Error("failed to decode catalog", "error", err)
		return keys
	}
	if lastStamp != "" && catalog.Updated == lastStamp && !cfg.IgnoreCache {
		log.Info("catalog unchanged since last sync", "updated", catalog.Updated)
		if err := o.repo.WithTx(ctx, func(tx repository.Tx) error {
			return markSynced(ctx, tx, func(st *repository.SyncState) { st.CatalogPending = false })
		}); err != nil {
			log.Error("failed to store sync state", "error", err)
		}
		return keys
	}

	var changed []string
	skipped := 0
	err = o.repo.WithTx(ctx, func(tx repository.Tx) error {
		changed = changed[:0]
		skipped = 0
		seen := make(map[string]struct{}, len(catalog.Records))
		for _, rec := range catalog.Records {
			if isRetiredLegacyRecord(rec) {
				skipped++
				continue
			}
			s := rec.Session
			existing, err := tx.Session(ctx, s.Key)
			if err != nil {
				return fmt.Errorf("load session %s: %w", s.Key, err)
			}
			if existing != nil {
				s.UserState = existing.UserState
				if existing.SemanticallyEqual(s) {
					continue
				}
			}
			if err := tx.UpsertSession(ctx, s); err != nil {
				return fmt.Errorf("upsert session %s: %w", s.Key, err)
			}
			if _, dup := seen[s.Key]; !dup {
				seen[s.Key] = struct{}{}
				changed = append(changed, s.Key)
			}
		}
		return markSynced(ctx, tx, func(st *repository.SyncState) {
			st.CatalogStamp = catalog.Updated
			st.CatalogPending = false
		})
	})
	if err != nil {
		log.Error("failed to store catalog", "error", err)
		return keys
	}
	log.Info("catalog merged", "records", len(catalog.Records), "changed", len(changed), "skipped_legacy", skipped, "updated", catalog.Updated)
	return append(keys, changed...)
}

// isRetiredLegacyRecord matches legacy category entries without a recording.
func isRetiredLegacyRecord(rec adapter.CatalogRecord) bool {
	return rec.Session.ID > repository.LegacyIDThreshold && rec.Duration == 0 && rec.Session.Year > legacyYearCutoff
}

// syncSchedule merges tracks and scheduled sessions. The schedule stays pending
// until both steps commit.
func (o *Orchestrator) syncSchedule(ctx context.Context, log *slog.Logger, cfg repository.AppConfig) {
	body, err := o.client.Fetch(ctx, cfg.SessionsURL)
	if err != nil {
		log.Error("failed to fetch schedule", "error", err)
		return
	}
	schedule, decodeErr := adapter.DecodeSchedule(body)
	if (decodeErr != nil && !errors.Is(decodeErr, adapter.ErrShapeMismatch)) || schedule.Tracks == nil {
		log.Error("failed to decode schedule", "error", decodeErr)
		return
	}

	if err := o.repo.WithTx(ctx, func(tx repository.Tx) error {
		for _, t := range schedule.Tracks {
			if err := tx.UpsertTrack(ctx, t); err != nil {
				return fmt.Errorf("upsert track %q: %w", t.Name, err)
			}
		}
		return nil
	}); err != nil {
		log.Error("failed to store tracks", "error", err)
		return
	}
	if decodeErr != nil {
		log.Error("schedule has no sessions", "error", decodeErr, "tracks", len(schedule.Tracks))
		return
	}

	updated := 0
	if err := o.repo.WithTx(ctx, func(tx repository.Tx) error {
		updated = 0
		for _, s := range schedule.Sessions {
			if s.TrackName != "" {
				track, err := tx.Track(ctx, s.TrackName)
				if err != nil {
					return fmt.Errorf("resolve track %q: %w", s.TrackName, err)
				}
				if track == nil {
					log.Warn("scheduled session references unknown track", "session_key", s.Key, "track", s.TrackName)
					s.TrackName = ""
				}
			}
			existing, err := tx.ScheduledSession(ctx, s.Key)
			if err != nil {
				return fmt.Errorf("load scheduled session %s: %w", s.Key, err)
			}
			if existing != nil && existing.SemanticallyEqual(s) {
				continue
			}
			if err := tx.UpsertScheduledSession(ctx, s); err != nil {
				return fmt.Errorf("upsert scheduled session %s: %w", s.Key, err)
			}
			updated++
		}
		return markSynced(ctx, tx, func(st *repository.SyncState) { st.SchedulePending = false })
	}); err != nil {
		log.Error("failed to store scheduled sessions", "error", err)
		return
	}
	log.Info("schedule merged", "tracks", len(schedule.Tracks), "sessions", len(schedule.Sessions), "updated", updated)
}

func (o *Orchestrator) indexableKeys(keys []string) []string {
	if len(o.cfg.TranscriptIgnoreYears) == 0 {
		return keys
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if year, _, ok := repository.ParseSessionKey(key); ok && o.cfg.IgnoresTranscriptYear(year) {
			continue
		}
		out = append(out, key)
	}
	return out
}

// reloadTranscripts queues sessions from the reload years that still lack a transcript.
func (o *Orchestrator) reloadTranscripts(ctx, indexCtx context.Context, log *slog.Logger) bool {
	if !o.cfg.TranscriptIndexingEnabled || len(o.cfg.TranscriptReloadYears) == 0 {
		return false
	}
	missing, err := o.repo.Sessions(ctx, repository.SessionFilter{
		Years:             o.cfg.TranscriptReloadYears,
		MissingTranscript: true,
	})
	if err != nil {
		log.Error("failed to list sessions for transcript reload", "error", err)
		return false
	}
	keys := make([]string, 0, len(missing))
	for _, s := range missing {
		keys = append(keys, s.Key)
	}
	if len(keys) == 0 {
		return false
	}
	started := o.indexer.Start(indexCtx, keys)
	log.Info("transcript reload requested", "sessions", len(keys), "started", started)
	return started
}
