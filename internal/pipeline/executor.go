// Package pipeline drives one content cycle for one user through its stage
// machine: fetch candidates, select a story, research it, synthesize the
// post, render the chart, publish, and record the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/chart"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/config"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/gateway"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/pool"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/publisher"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/source"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/store"
	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

// Renderer is the chart-drawing surface the executor depends on.
type Renderer interface {
	Render(spec chart.Spec, name string) (string, error)
}

// Options tune one executor. Zero values get sensible defaults.
type Options struct {
	Pool         pool.Options
	DedupWindow  time.Duration
	Bounds       gateway.Bounds
	DefaultStyle string
	RecentTitles int
	Retry        gateway.Policy
	Defaults     config.CredentialsConfig
}

func (o Options) normalized() Options {
	if o.DedupWindow <= 0 {
		o.DedupWindow = 14 * 24 * time.Hour
	}
	if o.Bounds.MinChars <= 0 {
		o.Bounds.MinChars = 800
	}
	if o.Bounds.MaxChars <= 0 {
		o.Bounds.MaxChars = 2000
	}
	if o.RecentTitles <= 0 {
		o.RecentTitles = 10
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = gateway.DefaultPolicy()
	}
	return o
}

// Executor runs cycles. It is safe for concurrent use; every cycle owns its
// run exclusively and the store is the only shared resource.
type Executor struct {
	store      store.Store
	llm        gateway.LLM
	sources    []source.Source
	renderer   Renderer
	publishers map[string]publisher.Publisher
	opts       Options
	log        logx.Logger
}

func NewExecutor(
	st store.Store,
	llm gateway.LLM,
	sources []source.Source,
	renderer Renderer,
	publishers map[string]publisher.Publisher,
	opts Options,
	log logx.Logger,
) *Executor {
	return &Executor{
		store:      st,
		llm:        llm,
		sources:    sources,
		renderer:   renderer,
		publishers: publishers,
		opts:       opts.normalized(),
		log:        log,
	}
}

// Execute runs one full cycle for userID and returns the terminal run. The
// run record is written for every terminal outcome; only DONE writes
// published records. Failures never cross run boundaries.
func (e *Executor) Execute(ctx context.Context, userID int64, dryRun bool) (*Run, error) {
	run := newRun(userID, dryRun)
	log := e.log.With(logx.String("run", run.ID), logx.Int64("user", userID))

	user, err := e.store.User(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	creds := gateway.Resolve(user, e.opts.Defaults)

	err = e.drive(ctx, run, user, creds, log)
	e.finish(run, err, log)
	e.writeRun(run, log)
	return run, nil
}

// drive advances the run until DONE or the first stage error. Terminal
// bookkeeping happens in finish.
func (e *Executor) drive(ctx context.Context, run *Run, user *store.User, creds gateway.Credentials, log logx.Logger) error {
	// FETCHING
	candidates, err := e.fetch(ctx, user, log)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return ErrNoCandidates
	}

	// SELECTING
	run.advance(StageSelecting)
	story, err := e.selectStory(ctx, run, creds, candidates, log)
	if err != nil {
		return err
	}
	run.Story = &story

	// RESEARCHING
	run.advance(StageResearching)
	facts, err := e.research(ctx, creds, story, log)
	if err != nil {
		return err
	}

	// SYNTHESIZING
	run.advance(StageSynthesizing)
	style := user.Style
	if style == "" {
		style = e.opts.DefaultStyle
	}
	draft, err := e.synthesize(ctx, creds, story, facts, style, log)
	if err != nil {
		return err
	}

	// RENDERING
	run.advance(StageRendering)
	chartPath := e.render(run, draft.Chart, log)

	// PUBLISHING
	run.advance(StagePublishing)
	if run.DryRun {
		log.Info("dry run: publishing skipped",
			logx.Int("chars", len([]rune(draft.Text))),
			logx.String("chart", chartPath))
	} else {
		if err := e.publish(ctx, run, user, creds, draft.Text, chartPath, story, log); err != nil {
			return err
		}
	}

	run.advance(StageDone)
	return nil
}

func (e *Executor) fetch(ctx context.Context, user *store.User, log logx.Logger) ([]source.Story, error) {
	published, err := e.store.RecentlyPublished(ctx, user.ID, e.opts.DedupWindow)
	if err != nil {
		return nil, fmt.Errorf("load published history: %w", err)
	}

	stories, err := pool.Fetch(ctx, e.sources, log)
	if err != nil {
		return nil, err
	}
	candidates := pool.Collect(stories, published, e.opts.Pool)
	log.Info("candidate pool built",
		logx.Int("fetched", len(stories)),
		logx.Int("candidates", len(candidates)))
	return candidates, nil
}

// selectStory asks the model to pick; on any selection failure the
// highest-scored candidate is used instead so a flaky model never costs a
// cycle.
func (e *Executor) selectStory(ctx context.Context, run *Run, creds gateway.Credentials, candidates []source.Story, log logx.Logger) (source.Story, error) {
	recent, err := e.store.RecentTitles(ctx, run.UserID, e.opts.RecentTitles)
	if err != nil {
		log.Warn("recent titles unavailable", logx.Err(err))
	}

	sel, err := e.llm.SelectStory(ctx, creds, candidates, recent)
	if err == nil && (sel.Index < 0 || sel.Index >= len(candidates)) {
		err = fmt.Errorf("selection index %d out of range [0,%d)", sel.Index, len(candidates))
	}
	if err != nil {
		if ctx.Err() != nil {
			return source.Story{}, ctx.Err()
		}
		log.Warn("model selection failed; falling back to top score", logx.Err(err))
		return candidates[0], nil
	}
	log.Info("story selected",
		logx.String("title", candidates[sel.Index].Title),
		logx.String("reason", sel.Reason))
	return candidates[sel.Index], nil
}

// research returns the fact bundle, or empty when no research key is
// configured. Empty facts put synthesis in degraded mode; a real provider
// failure fails the stage.
func (e *Executor) research(ctx context.Context, creds gateway.Credentials, story source.Story, log logx.Logger) (string, error) {
	if creds.ResearchAPIKey == "" {
		log.Info("research skipped: no key configured")
		return "", nil
	}
	facts, err := e.llm.Research(ctx, creds, story)
	if err != nil {
		return "", fmt.Errorf("research: %w", err)
	}
	if facts == "" {
		log.Warn("research returned no usable facts; synthesizing degraded")
	}
	return facts, nil
}

// synthesize produces the draft, applying the length invariant with one
// corrective refine before failing the stage.
func (e *Executor) synthesize(ctx context.Context, creds gateway.Credentials, story source.Story, facts, style string, log logx.Logger) (gateway.Draft, error) {
	draft, err := e.llm.Synthesize(ctx, creds, story, facts, style, e.opts.Bounds)
	if err != nil {
		return gateway.Draft{}, fmt.Errorf("synthesize: %w", err)
	}

	if e.withinBounds(draft.Text) {
		return draft, nil
	}

	log.Warn("draft outside length bounds; refining once",
		logx.Int("chars", len([]rune(draft.Text))))
	refined, err := e.llm.Refine(ctx, creds, draft.Text, e.opts.Bounds)
	if err != nil {
		return gateway.Draft{}, fmt.Errorf("refine: %w", err)
	}
	if !e.withinBounds(refined) {
		return gateway.Draft{}, &ContentValidationError{
			Length:   len([]rune(refined)),
			MinChars: e.opts.Bounds.MinChars,
			MaxChars: e.opts.Bounds.MaxChars,
		}
	}
	draft.Text = refined
	return draft, nil
}

func (e *Executor) withinBounds(text string) bool {
	n := len([]rune(text))
	return n >= e.opts.Bounds.MinChars && n <= e.opts.Bounds.MaxChars
}

// render never fails the run. A renderer error costs the chart, not the
// cycle.
func (e *Executor) render(run *Run, spec chart.Spec, log logx.Logger) string {
	path, err := e.renderer.Render(spec, run.ID)
	if err != nil {
		log.Warn("chart render failed; continuing without artifact", logx.Err(err))
		return ""
	}
	return path
}

// publish posts to the user's targets in priority order. The first
// configured target gates DONE; the rest are best-effort. The published
// record is written only after the platform confirms, which is the
// exactly-once guarantee.
func (e *Executor) publish(ctx context.Context, run *Run, user *store.User, creds gateway.Credentials, text, chartPath string, story source.Story, log logx.Logger) error {
	targets := user.Targets
	if len(targets) == 0 {
		targets = []string{"twitter"}
	}

	art := publisher.Artifact{
		ChartPath:  chartPath,
		StoryURL:   story.URL,
		StoryTitle: story.Title,
	}

	for i, target := range targets {
		primary := i == 0
		pub, err := publisher.ForTarget(target, e.publishers)
		if err != nil {
			if primary {
				return err
			}
			log.Warn("skipping unknown secondary target", logx.String("target", target))
			continue
		}
		if !pub.Configured(creds) {
			if primary {
				return gateway.Reject(target, "no credentials configured")
			}
			log.Debug("secondary target not configured", logx.String("target", target))
			continue
		}

		var postID string
		err = gateway.Do(ctx, e.opts.Retry, log, "publish:"+target, func(ctx context.Context) (err error) {
			postID, err = pub.Publish(ctx, creds, text, art)
			return err
		})
		if err != nil {
			if primary {
				return fmt.Errorf("publish %s: %w", target, err)
			}
			log.Warn("secondary publish failed", logx.String("target", target), logx.Err(err))
			continue
		}

		e.recordPublished(user.ID, target, postID, text, story, chartPath, log)
		log.Info("published", logx.String("target", target), logx.String("post", postID))
	}
	return nil
}

// recordPublished writes the durable record. A write failure after a
// confirmed external publish is the accepted residual edge: the post exists
// with no local record, so log it at error level and move on.
func (e *Executor) recordPublished(userID int64, platform, postID, text string, story source.Story, chartPath string, log logx.Logger) {
	rec := store.PublishedRecord{
		UserID:      userID,
		Platform:    platform,
		PostID:      postID,
		Text:        text,
		StoryID:     source.NormalizeID(story.ID),
		StoryTitle:  story.Title,
		StoryURL:    story.URL,
		ChartPath:   chartPath,
		PublishedAt: time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.store.AppendPublished(ctx, rec); err != nil {
		log.Error("published externally but record write failed; post has no local record",
			logx.String("platform", platform),
			logx.String("post", postID),
			logx.Err(err))
	}
}

// finish maps the drive result onto the run's terminal outcome.
func (e *Executor) finish(run *Run, err error, log logx.Logger) {
	switch {
	case err == nil:
		run.Outcome = OutcomeDone
	case errors.Is(err, ErrNoCandidates):
		run.Outcome = OutcomeSkipped
		log.Info("cycle skipped: empty candidate pool")
	case errors.Is(err, context.Canceled), errors.Is(err, ErrAborted):
		run.Outcome = OutcomeAborted
		run.Err = ErrAborted.Error()
		log.Warn("cycle aborted", logx.String("stage", string(run.Stage)))
	default:
		run.Outcome = OutcomeFailed
		run.Err = err.Error()
		log.Error("cycle failed",
			logx.String("stage", string(run.Stage)),
			logx.Err(err))
	}
	if run.Outcome == OutcomeDone {
		log.Info("cycle done", logx.Bool("dry_run", run.DryRun))
	}
}

// writeRun records the terminal outcome. Uses a fresh context so shutdown
// cancellation cannot lose the record.
func (e *Executor) writeRun(run *Run, log logx.Logger) {
	rec := store.RunRecord{
		ID:         run.ID,
		UserID:     run.UserID,
		StartedAt:  run.StartedAt,
		FinishedAt: time.Now(),
		Stage:      string(run.Stage),
		Outcome:    string(run.Outcome),
		Error:      run.Err,
		DryRun:     run.DryRun,
	}
	if run.Story != nil {
		rec.StoryID = source.NormalizeID(run.Story.ID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.store.WriteRun(ctx, rec); err != nil {
		log.Error("run record write failed", logx.Err(err))
	}
}
