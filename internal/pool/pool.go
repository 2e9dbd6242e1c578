// Package pool turns raw fetched stories into the candidate set one cycle
// selects from: score filtering, duplicate collapse, and a published-history
// window that keeps a user from covering the same story twice.
package pool

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/source"
	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

// Options bound the candidate pool.
type Options struct {
	// MinScore applies to aggregator stories only; feed stories carry no
	// score and pass through.
	MinScore int

	// MaxCandidates caps the pool after sorting; 0 means unlimited.
	MaxCandidates int
}

// Fetch runs every source concurrently and merges what they return. A failing
// source contributes nothing and a warning; Fetch itself only fails when ctx
// is done.
func Fetch(ctx context.Context, sources []source.Source, log logx.Logger) ([]source.Story, error) {
	var (
		mu  sync.Mutex
		all []source.Story
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			stories, err := src.Fetch(gctx)
			if err != nil {
				log.Warn("source fetch failed", logx.String("source", src.Name()), logx.Err(err))
				return nil
			}
			mu.Lock()
			all = append(all, stories...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return all, nil
}

// Collect builds the candidate pool: filter by score, collapse duplicate IDs
// (the higher-scored copy wins), and drop stories in the published set. An
// empty result is a valid outcome, not an error.
func Collect(stories []source.Story, published map[string]struct{}, opts Options) []source.Story {
	byID := make(map[string]source.Story, len(stories))
	for _, s := range stories {
		if s.Kind == source.KindAggregator && s.Score < opts.MinScore {
			continue
		}
		id := source.NormalizeID(s.ID)
		if id == "" {
			continue
		}
		if _, ok := published[id]; ok {
			continue
		}
		if prev, ok := byID[id]; !ok || s.Score > prev.Score {
			byID[id] = s
		}
	}

	out := make([]source.Story, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	// Score-descending, title as the stable tie-break.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Title < out[j].Title
	})

	if opts.MaxCandidates > 0 && len(out) > opts.MaxCandidates {
		out = out[:opts.MaxCandidates]
	}
	return out
}
