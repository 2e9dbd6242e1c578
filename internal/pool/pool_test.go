package pool

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/source"
	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

func story(id string, kind source.Kind, score int) source.Story {
	return source.Story{ID: id, Title: "title " + id, Kind: kind, Score: score}
}

func TestCollectFiltersAndDedupes(t *testing.T) {
	t.Parallel()

	var stories []source.Story
	for i := 0; i < 25; i++ {
		stories = append(stories, story(fmt.Sprintf("hn-%d", i), source.KindAggregator, 50+i))
	}
	// Duplicate of hn-3 with a higher score; the copy must win, not add.
	stories = append(stories, story("HN-3", source.KindAggregator, 200))

	published := map[string]struct{}{"hn-7": {}}

	got := Collect(stories, published, Options{MinScore: 50})
	if len(got) != 24 {
		t.Fatalf("got %d candidates, want 24", len(got))
	}
	if got[0].ID != "hn-3" || got[0].Score != 200 {
		t.Fatalf("dedup kept wrong copy: %+v", got[0])
	}
	for _, s := range got {
		if source.NormalizeID(s.ID) == "hn-7" {
			t.Fatal("published story survived the window filter")
		}
	}
}

func TestCollectMinScoreOnlyAppliesToAggregator(t *testing.T) {
	t.Parallel()

	stories := []source.Story{
		story("hn-1", source.KindAggregator, 10),
		story("feed-1", source.KindFeed, 0),
	}
	got := Collect(stories, nil, Options{MinScore: 50})
	if len(got) != 1 || got[0].ID != "feed-1" {
		t.Fatalf("got %+v, want only the feed story", got)
	}
}

func TestCollectEmptyPoolIsValid(t *testing.T) {
	t.Parallel()

	got := Collect(nil, nil, Options{MinScore: 50})
	if len(got) != 0 {
		t.Fatalf("got %d candidates from nothing", len(got))
	}
}

func TestCollectTieBreakIsStable(t *testing.T) {
	t.Parallel()

	stories := []source.Story{
		{ID: "b", Title: "bbb", Kind: source.KindFeed},
		{ID: "a", Title: "aaa", Kind: source.KindFeed},
	}
	got := Collect(stories, nil, Options{})
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected order: %v, %v", got[0].ID, got[1].ID)
	}
}

func TestCollectMaxCandidates(t *testing.T) {
	t.Parallel()

	var stories []source.Story
	for i := 0; i < 40; i++ {
		stories = append(stories, story(fmt.Sprintf("hn-%d", i), source.KindAggregator, 100+i))
	}
	got := Collect(stories, nil, Options{MinScore: 50, MaxCandidates: 30})
	if len(got) != 30 {
		t.Fatalf("got %d candidates, want 30", len(got))
	}
	if got[0].Score != 139 {
		t.Fatalf("cap dropped the wrong end: top score %d", got[0].Score)
	}
}

type fakeSource struct {
	name    string
	stories []source.Story
	err     error
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) Fetch(context.Context) ([]source.Story, error) {
	return f.stories, f.err
}

func TestFetchToleratesFailingSource(t *testing.T) {
	t.Parallel()

	srcs := []source.Source{
		&fakeSource{name: "ok", stories: []source.Story{story("a", source.KindFeed, 0)}},
		&fakeSource{name: "down", err: errors.New("timeout")},
	}
	got, err := Fetch(context.Background(), srcs, logx.Nop())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("got %+v, want the one healthy story", got)
	}
}
