package ics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dashcal/internal/metric"
	"dashcal/internal/model"
)

// Engine is the full ingestion pipeline: resolve the feed reference,
// fetch the document, parse it, normalize every event and expand
// recurrences into the window. It holds no state between calls; every
// invocation is an independent unit of work.
type Engine struct {
	fetcher  *Fetcher
	expander Expander
}

// NewEngine creates an Engine with default fetch and expansion settings.
func NewEngine() *Engine {
	return &Engine{fetcher: NewFetcher()}
}

// NewEngineWithFetcher creates an Engine around a custom Fetcher.
func NewEngineWithFetcher(f *Fetcher) *Engine {
	return &Engine{fetcher: f}
}

// SetMaxOccurrencesPerEvent overrides the expander's per-event cap. Zero
// or negative keeps the default.
func (e *Engine) SetMaxOccurrencesPerEvent(n int) {
	e.expander.MaxOccurrencesPerEvent = n
}

// LoadFeed runs one fetch/normalize/expand cycle for the given feed
// reference. Any panic below this point is converted into an internal
// FeedError; no fault escapes the engine's public entry point.
func (e *Engine) LoadFeed(ctx context.Context, feedRef string, win Window) (result ExpandResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewFeedError(CategoryInternal,
				fmt.Sprintf("unexpected engine failure: %v", r), nil)
			slog.Error("engine panic recovered", "err", err)
		}
	}()

	started := time.Now()

	fetchURL, err := ResolveFeedURL(feedRef)
	if err != nil {
		return ExpandResult{}, err
	}

	body, err := e.fetcher.Fetch(ctx, fetchURL)
	if err != nil {
		metric.ObserveFetch(string(CategoryFetch))
		return ExpandResult{}, err
	}
	metric.ObserveFetch("ok")

	raw, err := Parse(body)
	if err != nil {
		metric.ObserveParseFailure()
		return ExpandResult{}, err
	}

	normalized := make([]model.CalendarEvent, 0, len(raw))
	for _, r := range raw {
		normalized = append(normalized, NormalizeRaw(r))
	}

	result, err = e.expander.Expand(normalized, win)
	if err != nil {
		return ExpandResult{}, NewFeedError(CategoryInternal, "recurrence expansion failed", err)
	}
	metric.ObserveSkippedRules(result.SkippedRules)
	metric.ObserveCycle(time.Since(started), len(result.Events))

	slog.Info("feed cycle completed",
		"url", RedactURL(fetchURL),
		"raw_events", len(raw),
		"expanded_events", len(result.Events),
		"skipped_rules", result.SkippedRules,
		"truncated", len(result.TruncatedUIDs),
		"elapsed", time.Since(started),
	)
	return result, nil
}
