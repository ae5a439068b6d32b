package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/foxseedlab/wwdcsync/internal/webhook"
)

// EventHeader carries the event kind so receivers can route without decoding the body.
const EventHeader = "X-WWDCSync-Event"

const maxErrorBodyBytes = 512

var errMissingEvent = errors.New("sync event payload has no event kind")

type HTTPSender struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

func NewHTTPSender(webhookURL string, timeout time.Duration) webhook.Sender {
	return &HTTPSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// SendSyncEvent posts one sync event as JSON. A zero SentAt is stamped with
// the send time. It is a no-op when no webhook URL is configured.
func (s *HTTPSender) SendSyncEvent(ctx context.Context, payload webhook.SyncEventPayload) error {
	if s.webhookURL == "" {
		return nil
	}
	if payload.Event == "" {
		return errMissingEvent
	}
	if payload.SentAt.IsZero() {
		payload.SentAt = s.now().UTC()
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", payload.Event, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, payload.Event)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s event: %w", payload.Event, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("webhook returned status %d for %s event: %s", resp.StatusCode, payload.Event, strings.TrimSpace(string(body)))
	}
	return nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
