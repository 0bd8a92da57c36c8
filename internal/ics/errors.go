package ics

import (
	"errors"
	"fmt"
)

// Category classifies engine failures so callers can report them
// differently without string matching.
type Category string

const (
	// CategoryInvalidFeedURL marks a malformed or missing feed reference.
	// The network is never touched for these.
	CategoryInvalidFeedURL Category = "invalid_feed_url"
	// CategoryFetch marks a network, transport or HTTP-status failure.
	CategoryFetch Category = "feed_fetch_error"
	// CategoryParse marks a fetched document that is not valid iCalendar.
	CategoryParse Category = "feed_parse_error"
	// CategoryRecurrenceRule marks an individual RRULE that failed to
	// parse. It is diagnostic only and never aborts a request.
	CategoryRecurrenceRule Category = "recurrence_rule_error"
	// CategoryInternal marks anything unexpected caught at the request
	// boundary.
	CategoryInternal Category = "internal_error"
)

// FeedError is the single error type surfaced by the engine. It carries a
// machine-checkable category and a human-readable message, wrapping the
// underlying cause when there is one.
type FeedError struct {
	Category Category
	Message  string
	Cause    error
}

func (e *FeedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *FeedError) Unwrap() error {
	return e.Cause
}

// NewFeedError builds a FeedError with an optional cause.
func NewFeedError(cat Category, msg string, cause error) *FeedError {
	return &FeedError{Category: cat, Message: msg, Cause: cause}
}

// CategoryOf extracts the category from err, or CategoryInternal when err
// is not a FeedError.
func CategoryOf(err error) Category {
	var fe *FeedError
	if errors.As(err, &fe) {
		return fe.Category
	}
	return CategoryInternal
}
