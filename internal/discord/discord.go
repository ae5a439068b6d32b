package discord

import (
	"context"
	"errors"
)

// ErrUnknownChannel is returned when Discord does not know the target channel.
var ErrUnknownChannel = errors.New("unknown discord channel")

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	SendChannelMessage(channelID, content string) error
}
