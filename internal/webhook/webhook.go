package webhook

import (
	"context"
	"time"
)

type SyncEventPayload struct {
	Event     string    `json:"event"`
	Total     int       `json:"total,omitempty"`
	Completed int       `json:"completed,omitempty"`
	Keys      []string  `json:"keys,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

type Sender interface {
	SendSyncEvent(ctx context.Context, payload SyncEventPayload) error
}
