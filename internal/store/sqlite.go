package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (and migrates) the sqlite store at cfg.Path.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var userColumns = []string{
	"id", "username", "created_at",
	"llm_api_key", "research_api_key",
	"twitter_consumer_key", "twitter_consumer_secret",
	"twitter_access_token", "twitter_access_secret",
	"linkedin_access_token", "linkedin_person_urn",
	"telegram_bot_token", "telegram_chat_id",
	"schedule_times", "timezone", "enabled", "style", "targets",
}

func (s *sqliteStore) User(ctx context.Context, id int64) (*User, error) {
	query, args, err := sq.Select(userColumns...).From("users").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, query, args...)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (s *sqliteStore) UpsertUser(ctx context.Context, u *User) (int64, error) {
	if u == nil {
		return 0, errors.New("user is nil")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	times, err := json.Marshal(orEmpty(u.ScheduleTimes))
	if err != nil {
		return 0, err
	}
	targets, err := json.Marshal(orEmpty(u.Targets))
	if err != nil {
		return 0, err
	}

	vals := map[string]any{
		"username":                u.Username,
		"created_at":              u.CreatedAt.Format(time.RFC3339Nano),
		"llm_api_key":             nullStr(u.LLMAPIKey),
		"research_api_key":        nullStr(u.ResearchAPIKey),
		"twitter_consumer_key":    nullStr(u.TwitterConsumerKey),
		"twitter_consumer_secret": nullStr(u.TwitterConsumerSecret),
		"twitter_access_token":    nullStr(u.TwitterAccessToken),
		"twitter_access_secret":   nullStr(u.TwitterAccessSecret),
		"linkedin_access_token":   nullStr(u.LinkedInAccessToken),
		"linkedin_person_urn":     nullStr(u.LinkedInPersonURN),
		"telegram_bot_token":      nullStr(u.TelegramBotToken),
		"telegram_chat_id":        u.TelegramChatID,
		"schedule_times":          string(times),
		"timezone":                u.Timezone,
		"enabled":                 boolInt(u.Enabled),
		"style":                   u.Style,
		"targets":                 string(targets),
	}

	if u.ID > 0 {
		query, args, err := sq.Update("users").SetMap(vals).Where(sq.Eq{"id": u.ID}).ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return 0, err
		}
		return u.ID, nil
	}

	cols := make([]string, 0, len(vals))
	colVals := make([]any, 0, len(vals))
	for k, v := range vals {
		cols = append(cols, k)
		colVals = append(colVals, v)
	}
	query, args, err := sq.Insert("users").Columns(cols...).Values(colVals...).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) Schedules(ctx context.Context) ([]ScheduleEntry, error) {
	query, args, err := sq.Select("id", "schedule_times", "timezone", "enabled").
		From("users").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduleEntry
	for rows.Next() {
		var (
			e        ScheduleEntry
			timesRaw string
			enabled  int
		)
		if err := rows.Scan(&e.UserID, &timesRaw, &e.Timezone, &enabled); err != nil {
			return nil, err
		}
		e.Enabled = enabled != 0
		if err := json.Unmarshal([]byte(timesRaw), &e.Times); err != nil {
			s.log.Warn("bad schedule_times; skipping user", logx.Int64("user", e.UserID), logx.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) WriteRun(ctx context.Context, r RunRecord) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	query, args, err := sq.Insert("runs").
		Columns("id", "user_id", "started_at", "finished_at", "stage", "outcome", "err", "story_id", "dry_run").
		Values(
			r.ID, r.UserID,
			r.StartedAt.Format(time.RFC3339Nano), r.FinishedAt.Format(time.RFC3339Nano),
			r.Stage, r.Outcome, nullStr(r.Error), nullStr(r.StoryID), boolInt(r.DryRun),
		).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *sqliteStore) AppendPublished(ctx context.Context, p PublishedRecord) error {
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now()
	}
	query, args, err := sq.Insert("published").
		Columns("user_id", "platform", "post_id", "text", "story_id", "story_title", "story_url", "chart_path", "published_at").
		Values(
			p.UserID, p.Platform, p.PostID, p.Text,
			nullStr(p.StoryID), nullStr(p.StoryTitle), nullStr(p.StoryURL), nullStr(p.ChartPath),
			p.PublishedAt.Format(time.RFC3339Nano),
		).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, userID int64, n int) ([]RunRecord, error) {
	if n <= 0 {
		n = 10
	}
	query, args, err := sq.Select("id", "user_id", "started_at", "finished_at", "stage", "outcome", "err", "story_id", "dry_run").
		From("runs").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("started_at DESC").
		Limit(uint64(n)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r                 RunRecord
			startedAt, doneAt string
			errStr, storyID   sql.NullString
			dryRun            int
		)
		if err := rows.Scan(&r.ID, &r.UserID, &startedAt, &doneAt, &r.Stage, &r.Outcome, &errStr, &storyID, &dryRun); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			r.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, doneAt); err == nil {
			r.FinishedAt = t
		}
		r.Error = errStr.String
		r.StoryID = storyID.String
		r.DryRun = dryRun != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) RecentlyPublished(ctx context.Context, userID int64, window time.Duration) (map[string]struct{}, error) {
	cutoff := time.Now().Add(-window).Format(time.RFC3339Nano)
	query, args, err := sq.Select("story_id").
		From("published").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.GtOrEq{"published_at": cutoff}).
		Where(sq.NotEq{"story_id": nil}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids, rows.Err()
}

func (s *sqliteStore) RecentTitles(ctx context.Context, userID int64, n int) ([]string, error) {
	if n <= 0 {
		n = 10
	}
	query, args, err := sq.Select("story_title").
		From("published").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.NotEq{"story_title": nil}).
		OrderBy("published_at DESC").
		Limit(uint64(n)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		if t != "" {
			titles = append(titles, t)
		}
	}
	return titles, rows.Err()
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u                                        User
		createdAt                                string
		llmKey, researchKey                      sql.NullString
		twCK, twCS, twAT, twAS                   sql.NullString
		liToken, liURN, tgToken                  sql.NullString
		timesRaw, targetsRaw, timezone, username string
		enabled                                  int
		style                                    string
	)
	err := row.Scan(
		&u.ID, &username, &createdAt,
		&llmKey, &researchKey,
		&twCK, &twCS, &twAT, &twAS,
		&liToken, &liURN,
		&tgToken, &u.TelegramChatID,
		&timesRaw, &timezone, &enabled, &style, &targetsRaw,
	)
	if err != nil {
		return nil, err
	}
	u.Username = username
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		u.CreatedAt = t
	}
	u.LLMAPIKey = llmKey.String
	u.ResearchAPIKey = researchKey.String
	u.TwitterConsumerKey = twCK.String
	u.TwitterConsumerSecret = twCS.String
	u.TwitterAccessToken = twAT.String
	u.TwitterAccessSecret = twAS.String
	u.LinkedInAccessToken = liToken.String
	u.LinkedInPersonURN = liURN.String
	u.TelegramBotToken = tgToken.String
	u.Timezone = timezone
	u.Enabled = enabled != 0
	u.Style = style
	_ = json.Unmarshal([]byte(timesRaw), &u.ScheduleTimes)
	_ = json.Unmarshal([]byte(targetsRaw), &u.Targets)
	return &u, nil
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
