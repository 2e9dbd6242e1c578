package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`

	// Engine controls the bounded pool of concurrent cycle runs.
	Engine EngineConfig `json:"engine"`

	// Gateway controls external provider access (LLM, research, publishing):
	// retry policy, rate limiting, and model selection.
	Gateway GatewayConfig `json:"gateway"`

	Sources SourcesConfig `json:"sources"`
	Pool    PoolConfig    `json:"pool"`
	Content ContentConfig `json:"content"`

	// DefaultCredentials are the process-wide provider credentials used when a
	// user has not supplied their own. Per-user overrides live in the store and
	// are resolved once per cycle.
	DefaultCredentials CredentialsConfig `json:"default_credentials"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the sqlite-backed durable store.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// EngineConfig controls cycle execution.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 32
//   - run_timeout: "10m"
//   - grace_period: "30s"
type EngineConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	// RunTimeout bounds one full cycle, all stages included.
	RunTimeout string `json:"run_timeout,omitempty"`

	// GracePeriod is how long in-flight cycles get to reach a terminal state
	// on shutdown before they are recorded as aborted.
	GracePeriod string `json:"grace_period,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
}

type GatewayConfig struct {
	Retry RetryConfig `json:"retry"`

	// RatePerSec bounds all outbound provider calls process-wide.
	RatePerSec int `json:"rate_per_sec,omitempty"`

	Model         string `json:"model,omitempty"`
	ResearchModel string `json:"research_model,omitempty"`

	// ResearchBaseURL points the research client at an OpenAI-compatible
	// endpoint (e.g. Perplexity). Empty means the default OpenAI endpoint.
	ResearchBaseURL string `json:"research_base_url,omitempty"`
}

// RetryConfig is the bounded retry policy applied to every provider call.
type RetryConfig struct {
	MaxAttempts int     `json:"max_attempts,omitempty"`
	BaseDelay   string  `json:"base_delay,omitempty"`
	MaxDelay    string  `json:"max_delay,omitempty"`
	Jitter      float64 `json:"jitter,omitempty"` // 0.2 = 20%
	// Budget bounds the total time spent on one call including retries.
	Budget string `json:"budget,omitempty"`
}

type SourcesConfig struct {
	HackerNews HackerNewsConfig `json:"hackernews"`
	Feeds      []FeedConfig     `json:"feeds,omitempty"`
}

type HackerNewsConfig struct {
	Enabled    bool `json:"enabled"`
	MaxStories int  `json:"max_stories,omitempty"`
	MinScore   int  `json:"min_score,omitempty"`
}

type FeedConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type PoolConfig struct {
	// MinScore filters aggregator stories below this popularity signal.
	MinScore int `json:"min_score,omitempty"`

	// DedupWindow is how far back published history reaches when dropping
	// already-covered stories. Go duration string; default "336h" (14 days).
	DedupWindow string `json:"dedup_window,omitempty"`

	MaxCandidates int `json:"max_candidates,omitempty"`
}

// ContentConfig bounds the synthesized long-form post.
type ContentConfig struct {
	MinChars int    `json:"min_chars,omitempty"`
	MaxChars int    `json:"max_chars,omitempty"`
	Style    string `json:"style,omitempty"`
}

// CredentialsConfig mirrors gateway.Credentials for config files.
type CredentialsConfig struct {
	LLMAPIKey      string `json:"llm_api_key,omitempty"`
	ResearchAPIKey string `json:"research_api_key,omitempty"`

	Twitter  TwitterCredentials  `json:"twitter,omitempty"`
	LinkedIn LinkedInCredentials `json:"linkedin,omitempty"`
	Telegram TelegramCredentials `json:"telegram,omitempty"`
}

type TwitterCredentials struct {
	ConsumerKey    string `json:"consumer_key,omitempty"`
	ConsumerSecret string `json:"consumer_secret,omitempty"`
	AccessToken    string `json:"access_token,omitempty"`
	AccessSecret   string `json:"access_secret,omitempty"`
}

type LinkedInCredentials struct {
	AccessToken string `json:"access_token,omitempty"`
	PersonURN   string `json:"person_urn,omitempty"`
}

type TelegramCredentials struct {
	BotToken string `json:"bot_token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
}

// Validate rejects configs that cannot produce a working daemon.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if c.Engine.Workers < 0 {
		return errors.New("engine.workers must be >= 0")
	}
	if c.Content.MinChars < 0 || c.Content.MaxChars < 0 {
		return errors.New("content char bounds must be >= 0")
	}
	if c.Content.MinChars > 0 && c.Content.MaxChars > 0 && c.Content.MinChars >= c.Content.MaxChars {
		return fmt.Errorf("content.min_chars (%d) must be below content.max_chars (%d)", c.Content.MinChars, c.Content.MaxChars)
	}
	for _, d := range []struct {
		name, raw string
	}{
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"engine.run_timeout", c.Engine.RunTimeout},
		{"engine.grace_period", c.Engine.GracePeriod},
		{"gateway.retry.base_delay", c.Gateway.Retry.BaseDelay},
		{"gateway.retry.max_delay", c.Gateway.Retry.MaxDelay},
		{"gateway.retry.budget", c.Gateway.Retry.Budget},
		{"pool.dedup_window", c.Pool.DedupWindow},
	} {
		if _, err := ParseDuration(d.raw, 0); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	for i, f := range c.Sources.Feeds {
		if strings.TrimSpace(f.URL) == "" {
			return fmt.Errorf("sources.feeds[%d].url is required", i)
		}
	}
	return nil
}

// ParseDuration parses a Go duration string, returning def for empty input.
func ParseDuration(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}

// DurationOr parses raw and falls back to def on empty or invalid input.
// Use Validate() to surface bad values; this keeps call sites terse.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDuration(raw, def)
	if err != nil {
		return def
	}
	return d
}
