package ics

import (
	"net/url"
	"strings"
)

// ResolveFeedURL normalizes a user-supplied calendar reference into a URL
// the fetcher can use. The webcal:// scheme alias is rewritten to https://
// (case-insensitive) before strict parsing. It performs no network access.
func ResolveFeedURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", NewFeedError(CategoryInvalidFeedURL, "feed URL is empty", nil)
	}

	if len(trimmed) >= len("webcal://") && strings.EqualFold(trimmed[:len("webcal://")], "webcal://") {
		trimmed = "https://" + trimmed[len("webcal://"):]
	}

	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil {
		return "", NewFeedError(CategoryInvalidFeedURL, "feed URL is not a valid URL", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", NewFeedError(CategoryInvalidFeedURL, "feed URL scheme must be http, https or webcal", nil)
	}
	if parsed.Host == "" {
		return "", NewFeedError(CategoryInvalidFeedURL, "feed URL has no host", nil)
	}

	return parsed.String(), nil
}

// RedactURL hides everything past the host of a feed URL so credentials
// and private tokens never reach the logs.
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "feed://...(redacted)"
	}

	j := i + 3
	for j < len(u) && u[j] != '/' && u[j] != '?' {
		j++
	}
	return u[:j] + redactedSuffix
}
