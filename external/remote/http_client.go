package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/foxseedlab/wwdcsync/internal/remote"
)

type HTTPClient struct {
	configURL         string
	transcriptBaseURL string
	client            *http.Client
}

func NewHTTPClient(configURL, transcriptBaseURL string, timeout time.Duration) remote.Client {
	return &HTTPClient{
		configURL:         configURL,
		transcriptBaseURL: strings.TrimRight(transcriptBaseURL, "/"),
		client:            &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) FetchAppConfig(ctx context.Context) ([]byte, error) {
	return c.get(ctx, c.configURL, "")
}

func (c *HTTPClient) Fetch(ctx context.Context, url string) ([]byte, error) {
	return c.get(ctx, url, "")
}

func (c *HTTPClient) FetchTranscript(ctx context.Context, year, id int) ([]byte, error) {
	url := fmt.Sprintf("%s/%d/sessions/%d", c.transcriptBaseURL, year, id)
	return c.get(ctx, url, "application/json")
}

func (c *HTTPClient) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	slog.Debug("remote request", "url", url)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return nil, fmt.Errorf("%w: %d from %s", remote.ErrUnexpectedStatus, resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s", remote.ErrEmptyResponse, url)
	}
	return body, nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
