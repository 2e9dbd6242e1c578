package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

const (
	hnTopStoriesURL = "https://hacker-news.firebaseio.com/v0/topstories.json"
	hnItemURL       = "https://hacker-news.firebaseio.com/v0/item/%d.json"

	hnItemConcurrency = 10
)

// HackerNews fetches top stories from the Firebase API: one list call, then
// a bounded fan-out over item details.
type HackerNews struct {
	maxStories int
	minScore   int
	log        logx.Logger
}

func NewHackerNews(maxStories, minScore int, log logx.Logger) *HackerNews {
	if maxStories <= 0 {
		maxStories = 30
	}
	if minScore <= 0 {
		minScore = 50
	}
	return &HackerNews{maxStories: maxStories, minScore: minScore, log: log}
}

func (h *HackerNews) Name() string { return "hackernews" }

func (h *HackerNews) Fetch(ctx context.Context) ([]Story, error) {
	ids, err := h.topIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > h.maxStories {
		ids = ids[:h.maxStories]
	}

	var (
		mu      sync.Mutex
		stories []Story
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hnItemConcurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			s, err := h.item(gctx, id)
			if err != nil {
				// A single dead item is not worth failing the batch.
				h.log.Debug("hn item fetch failed", logx.Int64("id", id), logx.Err(err))
				return nil
			}
			if s == nil || s.Score < h.minScore {
				return nil
			}
			mu.Lock()
			stories = append(stories, *s)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(stories, func(i, j int) bool { return stories[i].Score > stories[j].Score })
	return stories, nil
}

func (h *HackerNews) topIDs(ctx context.Context) ([]int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hnTopStoriesURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hn topstories: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hn topstories: status %d", resp.StatusCode)
	}

	var ids []int64
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("hn topstories decode: %w", err)
	}
	return ids, nil
}

type hnItem struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Score int    `json:"score"`
	Dead  bool   `json:"dead"`
}

func (h *HackerNews) item(ctx context.Context, id int64) (*Story, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(hnItemURL, id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var it hnItem
	if err := json.NewDecoder(resp.Body).Decode(&it); err != nil {
		return nil, err
	}
	if it.Type != "story" || it.Dead || it.Title == "" {
		return nil, nil
	}

	url := it.URL
	if url == "" {
		url = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", it.ID)
	}
	return &Story{
		ID:        NormalizeID(fmt.Sprintf("hn-%d", it.ID)),
		Title:     it.Title,
		URL:       url,
		Kind:      KindAggregator,
		Score:     it.Score,
		FetchedAt: time.Now(),
	}, nil
}
