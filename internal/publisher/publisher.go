// Package publisher posts finished content to external platforms. Each
// publisher returns the platform post ID on confirmed success; anything less
// than confirmation is an error, because the durable published record is only
// written after a publisher returns.
package publisher

import (
	"context"
	"fmt"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/gateway"
)

// Artifact carries the non-text pieces of a publication.
type Artifact struct {
	ChartPath  string
	StoryURL   string
	StoryTitle string
}

// Publisher posts to one platform.
type Publisher interface {
	Name() string

	// Configured reports whether creds carry what this platform needs.
	Configured(creds gateway.Credentials) bool

	// Publish posts text (and the chart, when the platform supports media)
	// and returns the platform's post ID.
	Publish(ctx context.Context, creds gateway.Credentials, text string, art Artifact) (string, error)
}

// ForTarget maps a stored target name to its publisher.
func ForTarget(target string, reg map[string]Publisher) (Publisher, error) {
	p, ok := reg[target]
	if !ok {
		return nil, fmt.Errorf("unknown publish target %q", target)
	}
	return p, nil
}
