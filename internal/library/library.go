package library

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/wwdcsync/internal/repository"
)

// Library is the query and user-state surface offered to embedding applications.
type Library struct {
	repo          repository.Repository
	liveTolerance time.Duration
}

func NewLibrary(repo repository.Repository, liveTolerance time.Duration) *Library {
	return &Library{repo: repo, liveTolerance: liveTolerance}
}

// Sessions returns every stored session, newest year first.
func (l *Library) Sessions(ctx context.Context) ([]repository.Session, error) {
	return l.repo.Sessions(ctx, repository.SessionFilter{})
}

func (l *Library) Session(ctx context.Context, key string) (*repository.Session, error) {
	return l.repo.Session(ctx, key)
}

// SessionByLink resolves the year and id carried by a share URL.
func (l *Library) SessionByLink(ctx context.Context, year, id int) (*repository.Session, error) {
	return l.repo.Session(ctx, repository.SessionKey(year, id))
}

func (l *Library) Config(ctx context.Context) (*repository.AppConfig, error) {
	return l.repo.AppConfig(ctx)
}

func (l *Library) Track(ctx context.Context, name string) (*repository.Track, error) {
	return l.repo.Track(ctx, name)
}

func (l *Library) ScheduledSession(ctx context.Context, key string) (*repository.ScheduledSession, error) {
	return l.repo.ScheduledSession(ctx, key)
}

func (l *Library) Transcript(ctx context.Context, key string) (*repository.Transcript, error) {
	return l.repo.Transcript(ctx, key)
}

// IsScheduled reports whether the session has a slot that is live or has not
// yet ended, allowing for the configured tolerance.
func (l *Library) IsScheduled(ctx context.Context, key string, now time.Time) (bool, error) {
	slot, err := l.repo.ScheduledSession(ctx, key)
	if err != nil {
		return false, err
	}
	if slot == nil {
		return false, nil
	}
	if slot.IsLive(now) {
		return true, nil
	}
	return !slot.EndsAt.Before(now.Add(l.liveTolerance)), nil
}

func (l *Library) SetFavorite(ctx context.Context, key string, favorite bool) error {
	return l.updateUserState(ctx, key, func(state *repository.UserState) {
		state.Favorite = favorite
	})
}

// SetPlayback records watch progress. Progress is clamped to [0, 1] and the
// position to non-negative seconds.
func (l *Library) SetPlayback(ctx context.Context, key string, progress, position float64) error {
	progress = min(max(progress, 0), 1)
	position = max(position, 0)
	return l.updateUserState(ctx, key, func(state *repository.UserState) {
		state.Progress = progress
		state.CurrentPosition = position
	})
}

// SetDownloadedByURL flags the sessions whose HD video URL equals url.
func (l *Library) SetDownloadedByURL(ctx context.Context, url string, downloaded bool) (int, error) {
	return l.setDownloaded(ctx, repository.SessionFilter{HDVideoURL: url}, downloaded)
}

// SetDownloadedByLocalFileName flags the sessions whose HD video URL names filename.
func (l *Library) SetDownloadedByLocalFileName(ctx context.Context, filename string, downloaded bool) (int, error) {
	if filename == "" {
		return 0, nil
	}
	return l.setDownloaded(ctx, repository.SessionFilter{HDVideoURLContains: filename}, downloaded)
}

func (l *Library) setDownloaded(ctx context.Context, filter repository.SessionFilter, downloaded bool) (int, error) {
	matches, err := l.repo.Sessions(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("find sessions: %w", err)
	}
	for _, s := range matches {
		if err := l.updateUserState(ctx, s.Key, func(state *repository.UserState) {
			state.Downloaded = downloaded
		}); err != nil {
			return 0, err
		}
	}
	slog.Debug("download flag updated", "sessions", len(matches), "downloaded", downloaded)
	return len(matches), nil
}

func (l *Library) updateUserState(ctx context.Context, key string, mutate func(*repository.UserState)) error {
	err := l.repo.WithTx(ctx, func(tx repository.Tx) error {
		s, err := tx.Session(ctx, key)
		if err != nil {
			return err
		}
		if s == nil {
			return repository.ErrNotFound
		}
		state := s.UserState
		mutate(&state)
		return tx.UpdateUserState(ctx, key, state)
	})
	if err != nil {
		return fmt.Errorf("update user state for %s: %w", key, err)
	}
	return nil
}
