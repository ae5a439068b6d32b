package announcer

import (
	"context"
	"log/slog"
	"time"

	"github.com/foxseedlab/wwdcsync/internal/discord"
	"github.com/foxseedlab/wwdcsync/internal/events"
	"github.com/foxseedlab/wwdcsync/internal/webhook"
)

const subscriberBuffer = 256

type Subscriber interface {
	Subscribe(buffer int) (<-chan events.Event, func())
}

// Announcer forwards bus events to a Discord channel and the sync webhook.
type Announcer struct {
	bus       Subscriber
	discord   discord.Client
	channelID string
	webhook   webhook.Sender
	now       func() time.Time
}

// NewAnnouncer builds an announcer. A nil Discord client or empty channel
// disables Discord posts.
func NewAnnouncer(bus Subscriber, dc discord.Client, channelID string, wh webhook.Sender) *Announcer {
	return &Announcer{
		bus:       bus,
		discord:   dc,
		channelID: channelID,
		webhook:   wh,
		now:       time.Now,
	}
}

// Run forwards events until ctx is done.
func (a *Announcer) Run(ctx context.Context) {
	ch, unsubscribe := a.bus.Subscribe(subscriberBuffer)
	defer unsubscribe()
	a.forward(ctx, ch)
}

func (a *Announcer) forward(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			a.announce(ctx, e)
		}
	}
}

func (a *Announcer) announce(ctx context.Context, e events.Event) {
	if a.discord != nil && a.channelID != "" {
		if content, ok := discordMessage(e); ok {
			if err := a.discord.SendChannelMessage(a.channelID, content); err != nil {
				slog.Error("failed to post event to discord", "error", err, "kind", e.Kind, "channel_id", a.channelID)
			}
		}
	}
	if a.webhook != nil {
		payload := webhook.SyncEventPayload{
			Event:     string(e.Kind),
			Total:     e.Progress.Total,
			Completed: e.Progress.Completed,
			Keys:      e.Keys,
			SentAt:    a.now().UTC(),
		}
		if err := a.webhook.SendSyncEvent(ctx, payload); err != nil {
			slog.Error("failed to send sync webhook", "error", err, "kind", e.Kind)
		}
	}
}
