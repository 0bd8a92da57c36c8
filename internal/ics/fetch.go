package ics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultFetchTimeout = 15 * time.Second

	// maxFeedBytes bounds how much of a feed we are willing to read.
	// Calendar documents are small; anything past this is hostile.
	maxFeedBytes = 10 << 20
)

// Fetcher performs the single outbound network call of the engine. It is
// stateless between calls; retry policy, if any, belongs to the caller.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with the default timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: defaultFetchTimeout,
		},
	}
}

// NewFetcherWithClient creates a Fetcher using the given HTTP client.
// Used by tests and callers that need custom transport settings.
func NewFetcherWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch downloads the calendar document at fetchURL, which must already
// have passed ResolveFeedURL. A caller may abandon the call through ctx.
func (f *Fetcher) Fetch(ctx context.Context, fetchURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, NewFeedError(CategoryFetch, "can't build feed request", err)
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")

	slog.Debug("feed fetch start", "url", RedactURL(fetchURL))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, NewFeedError(CategoryFetch, "feed request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewFeedError(CategoryFetch,
			fmt.Sprintf("feed returned status %s", resp.Status), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, NewFeedError(CategoryFetch, "can't read feed body", err)
	}

	slog.Debug("feed fetch done", "url", RedactURL(fetchURL), "bytes", len(body))
	return body, nil
}
