package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// User holds one user's credentials and posting settings.
//
// Credential fields left empty fall back to the process-wide defaults from the
// config file; resolution happens once per cycle, never deep inside call paths.
type User struct {
	ID        int64
	Username  string
	CreatedAt time.Time

	LLMAPIKey      string
	ResearchAPIKey string

	TwitterConsumerKey    string
	TwitterConsumerSecret string
	TwitterAccessToken    string
	TwitterAccessSecret   string

	LinkedInAccessToken string
	LinkedInPersonURN   string

	TelegramBotToken string
	TelegramChatID   int64

	// Settings
	ScheduleTimes []string // "HH:MM", ordered
	Timezone      string   // IANA TZ
	Enabled       bool
	Style         string
	Targets       []string // publish targets in priority order; first is primary
}

// ScheduleEntry is the slice of User the scheduler cares about.
type ScheduleEntry struct {
	UserID   int64
	Times    []string
	Timezone string
	Enabled  bool
}

// RunRecord is the appended outcome of one cycle.
type RunRecord struct {
	ID         string
	UserID     int64
	StartedAt  time.Time
	FinishedAt time.Time
	Stage      string // terminal stage
	Outcome    string // done | skipped | failed | aborted
	Error      string
	StoryID    string
	DryRun     bool
}

// PublishedRecord is the durable proof a cycle posted externally.
// Append-only; never mutated after creation.
type PublishedRecord struct {
	ID          int64
	UserID      int64
	Platform    string
	PostID      string
	Text        string
	StoryID     string
	StoryTitle  string
	StoryURL    string
	ChartPath   string
	PublishedAt time.Time
}

// Store is the narrow CRUD boundary the core consumes. Atomicity of the
// individual writes is the database's job, not the caller's.
type Store interface {
	User(ctx context.Context, id int64) (*User, error)
	UpsertUser(ctx context.Context, u *User) (int64, error)
	Schedules(ctx context.Context) ([]ScheduleEntry, error)

	WriteRun(ctx context.Context, r RunRecord) error
	AppendPublished(ctx context.Context, p PublishedRecord) error

	// RecentRuns returns up to n most recent run records for the user,
	// newest first.
	RecentRuns(ctx context.Context, userID int64, n int) ([]RunRecord, error)

	// RecentlyPublished returns the story identifiers published for the user
	// within the window, for cross-cycle deduplication.
	RecentlyPublished(ctx context.Context, userID int64, window time.Duration) (map[string]struct{}, error)

	// RecentTitles returns up to n most recent published story titles for the
	// user, newest first. Fed into story selection to avoid topic repeats.
	RecentTitles(ctx context.Context, userID int64, n int) ([]string, error)

	Close() error
}
