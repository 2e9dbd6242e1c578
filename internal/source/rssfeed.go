package source

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

const (
	feedMaxItems   = 20
	summaryMaxRune = 300
)

// Feed fetches a syndicated RSS or Atom feed. Feed stories carry no score.
type Feed struct {
	name string
	url  string
	log  logx.Logger
}

func NewFeed(name, url string, log logx.Logger) *Feed {
	return &Feed{name: name, url: url, log: log}
}

func (f *Feed) Name() string { return "feed:" + f.name }

type rssDoc struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	// Atom feeds put entries at the top level.
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	ID      string `xml:"id"`
	Summary string `xml:"summary"`
	Content string `xml:"content"`
	Links   []struct {
		Rel  string `xml:"rel,attr"`
		Href string `xml:"href,attr"`
	} `xml:"link"`
}

func (f *Feed) Fetch(ctx context.Context) ([]Story, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "agentd/1.0 (+feed-reader)")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", f.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s: status %d", f.name, resp.StatusCode)
	}

	var doc rssDoc
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("feed %s: decode: %w", f.name, err)
	}

	now := time.Now()
	var stories []Story
	for _, it := range doc.Channel.Items {
		if len(stories) >= feedMaxItems {
			break
		}
		if s := f.fromRSS(it, now); s != nil {
			stories = append(stories, *s)
		}
	}
	for _, e := range doc.Entries {
		if len(stories) >= feedMaxItems {
			break
		}
		if s := f.fromAtom(e, now); s != nil {
			stories = append(stories, *s)
		}
	}
	return stories, nil
}

func (f *Feed) fromRSS(it rssItem, now time.Time) *Story {
	title := strings.TrimSpace(it.Title)
	if title == "" {
		return nil
	}
	id := it.GUID
	if id == "" {
		id = it.Link
	}
	return &Story{
		ID:        f.storyID(id, title),
		Title:     title,
		URL:       strings.TrimSpace(it.Link),
		Kind:      KindFeed,
		Summary:   cleanSummary(it.Description),
		FetchedAt: now,
	}
}

func (f *Feed) fromAtom(e atomEntry, now time.Time) *Story {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		return nil
	}
	var link string
	for _, l := range e.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			link = l.Href
			break
		}
	}
	summary := e.Summary
	if summary == "" {
		summary = e.Content
	}
	return &Story{
		ID:        f.storyID(e.ID, title),
		Title:     title,
		URL:       link,
		Kind:      KindFeed,
		Summary:   cleanSummary(summary),
		FetchedAt: now,
	}
}

func (f *Feed) storyID(raw, title string) string {
	if strings.TrimSpace(raw) == "" {
		raw = title
	}
	sum := sha1.Sum([]byte(raw))
	return NormalizeID(f.name + "-" + hex.EncodeToString(sum[:8]))
}

// cleanSummary strips embedded HTML and caps the text so prompts stay small.
func cleanSummary(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err == nil {
		raw = doc.Text()
	}
	raw = strings.Join(strings.Fields(raw), " ")
	runes := []rune(raw)
	if len(runes) > summaryMaxRune {
		raw = string(runes[:summaryMaxRune-3]) + "..."
	}
	return raw
}
