package remote

import (
	"context"
	"errors"
)

var (
	// ErrEmptyResponse is returned when a request succeeds but carries no payload.
	ErrEmptyResponse = errors.New("empty response")
	// ErrUnexpectedStatus is returned for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// Client performs the GET requests the sync engine depends on.
type Client interface {
	FetchAppConfig(ctx context.Context) ([]byte, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
	FetchTranscript(ctx context.Context, year, id int) ([]byte, error)
}
