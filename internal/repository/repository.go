package repository

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// ErrCommitFailed wraps errors returned by the backend when a transaction cannot be committed.
var ErrCommitFailed = errors.New("transaction commit failed")

// PreconditionViolation is the panic value raised when a Tx is used after its
// WithTx callback returned. It signals a programming defect.
type PreconditionViolation struct {
	Op string
}

func (p PreconditionViolation) Error() string {
	return fmt.Sprintf("precondition violation: %s called outside of an open transaction", p.Op)
}

type SessionFilter struct {
	Years              []int
	MissingTranscript  bool
	HDVideoURL         string
	HDVideoURLContains string
}

// Reader is the read side of the store. Lookups return nil, nil when the key is absent.
type Reader interface {
	AppConfig(ctx context.Context) (*AppConfig, error)
	// SyncState returns the zero value when nothing was stored yet.
	SyncState(ctx context.Context) (SyncState, error)
	Session(ctx context.Context, key string) (*Session, error)
	// Sessions returns sessions ordered by year descending, then id ascending.
	Sessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	Track(ctx context.Context, name string) (*Track, error)
	ScheduledSession(ctx context.Context, key string) (*ScheduledSession, error)
	Transcript(ctx context.Context, sessionKey string) (*Transcript, error)
}

// Tx is a transactional handle. It is only valid inside the WithTx callback that produced it.
type Tx interface {
	Reader
	ReplaceAppConfig(ctx context.Context, cfg AppConfig) error
	ReplaceSyncState(ctx context.Context, state SyncState) error
	UpsertSession(ctx context.Context, s Session) error
	UpdateUserState(ctx context.Context, key string, state UserState) error
	DeleteSessionsAboveID(ctx context.Context, id int) (int64, error)
	UpsertTrack(ctx context.Context, t Track) error
	UpsertScheduledSession(ctx context.Context, s ScheduledSession) error
	AddTranscript(ctx context.Context, t Transcript) error
}

type Repository interface {
	Reader
	// WithTx runs fn inside a new transaction. fn returning an error rolls back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
