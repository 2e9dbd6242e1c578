// Package source fetches candidate stories from external feeds. Sources are
// best-effort: a failing source yields an empty slice and a warning, never a
// fatal error, so one upstream outage cannot sink a cycle on its own.
package source

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Kind distinguishes where a story came from.
type Kind string

const (
	// KindAggregator stories carry a popularity score and are subject to
	// the pool's minimum-score filter.
	KindAggregator Kind = "aggregator"

	// KindFeed stories come from syndicated feeds and carry no score.
	KindFeed Kind = "feed"
)

// Story is one candidate item for a cycle.
type Story struct {
	// ID is stable across fetches of the same item and is the dedup key.
	ID        string
	Title     string
	URL       string
	Kind      Kind
	Score     int
	Summary   string
	FetchedAt time.Time
}

// Source produces candidate stories. Implementations return what they could
// get; partial results are fine.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Story, error)
}

// NormalizeID lowercases and trims an external identifier so equal stories
// from different fetches compare equal.
func NormalizeID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

var httpClient = &http.Client{Timeout: 15 * time.Second}
