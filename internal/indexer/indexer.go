package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foxseedlab/wwdcsync/internal/adapter"
	"github.com/foxseedlab/wwdcsync/internal/events"
	"github.com/foxseedlab/wwdcsync/internal/remote"
	"github.com/foxseedlab/wwdcsync/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Indexer downloads and stores transcripts for sessions that lack one. At most
// one pass runs at a time.
type Indexer struct {
	repo        repository.Repository
	client      remote.Client
	bus         events.Publisher
	concurrency int

	mu       sync.Mutex
	running  bool
	progress events.Progress
	done     chan struct{}
	cancel   context.CancelFunc
}

func NewIndexer(repo repository.Repository, client remote.Client, bus events.Publisher, concurrency int) *Indexer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Indexer{
		repo:        repo,
		client:      client,
		bus:         bus,
		concurrency: concurrency,
	}
}

// Start begins a pass over keys in the background. It reports false without
// doing anything when keys is empty or a pass is already running.
func (ix *Indexer) Start(ctx context.Context, keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	ix.mu.Lock()
	if ix.running {
		ix.mu.Unlock()
		slog.Info("indexing already running, ignoring start", "requested", len(keys))
		return false
	}
	ix.running = true
	ix.progress = events.Progress{Total: len(keys)}
	ix.done = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	ix.cancel = cancel
	started := ix.progress
	done := ix.done
	ix.mu.Unlock()

	slog.Info("indexing started", "total", started.Total)
	ix.bus.Publish(events.Event{Kind: events.IndexingStarted, Progress: started})
	go ix.run(runCtx, keys, done)
	return true
}

// Progress returns the running pass's progress. ok is false when idle.
func (ix *Indexer) Progress() (progress events.Progress, ok bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.progress, ix.running
}

// Wait blocks until the current pass, if any, has stopped.
func (ix *Indexer) Wait() {
	ix.mu.Lock()
	done := ix.done
	ix.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Stop cancels the current pass, if any, and waits for it to stop. Sessions
// not yet indexed stay missing and are picked up by a later pass.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	cancel := ix.cancel
	ix.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	ix.Wait()
}

func (ix *Indexer) run(ctx context.Context, keys []string, done chan struct{}) {
	g := new(errgroup.Group)
	g.SetLimit(ix.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			if err := ix.index(ctx, key); err != nil {
				slog.Error("failed to index transcript", "error", err, "session_key", key)
			}
			ix.complete()
			return nil
		})
	}
	_ = g.Wait()

	ix.mu.Lock()
	final := ix.progress
	ix.running = false
	ix.progress = events.Progress{}
	cancel := ix.cancel
	ix.cancel = nil
	ix.mu.Unlock()
	cancel()

	slog.Info("indexing stopped", "total", final.Total, "completed", final.Completed)
	ix.bus.Publish(events.Event{Kind: events.IndexingStopped, Progress: final})
	close(done)
}

func (ix *Indexer) complete() {
	ix.mu.Lock()
	ix.progress.Completed++
	snapshot := ix.progress
	ix.mu.Unlock()
	ix.bus.Publish(events.Event{Kind: events.IndexingProgress, Progress: snapshot})
}

func (ix *Indexer) index(ctx context.Context, key string) error {
	s, err := ix.repo.Session(ctx, key)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		slog.Debug("skipping transcript for unknown session", "session_key", key)
		return nil
	}
	if s.HasTranscript {
		slog.Debug("session already has a transcript", "session_key", key)
		return nil
	}

	body, err := ix.client.FetchTranscript(ctx, s.Year, s.ID)
	if err != nil {
		return fmt.Errorf("fetch transcript: %w", err)
	}
	transcript, err := adapter.DecodeTranscript(body)
	if err != nil {
		return fmt.Errorf("decode transcript: %w", err)
	}
	transcript.Attach(uuid.NewString(), key)

	if err := ix.repo.WithTx(ctx, func(tx repository.Tx) error {
		return tx.AddTranscript(ctx, transcript)
	}); err != nil {
		return fmt.Errorf("store transcript: %w", err)
	}
	slog.Debug("transcript stored", "session_key", key, "lines", len(transcript.Lines))
	return nil
}
