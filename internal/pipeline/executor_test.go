package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/chart"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/gateway"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/publisher"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/source"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/store"
	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

type fakeStore struct {
	mu        sync.Mutex
	user      *store.User
	published []store.PublishedRecord
	runs      []store.RunRecord
	recent    map[string]struct{}
	titles    []string
	appendErr error
}

func (f *fakeStore) User(ctx context.Context, id int64) (*store.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, store.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeStore) UpsertUser(ctx context.Context, u *store.User) (int64, error) {
	return u.ID, nil
}

func (f *fakeStore) Schedules(ctx context.Context) ([]store.ScheduleEntry, error) {
	return nil, nil
}

func (f *fakeStore) WriteRun(ctx context.Context, r store.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, r)
	return nil
}

func (f *fakeStore) AppendPublished(ctx context.Context, p store.PublishedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.published = append(f.published, p)
	return nil
}

func (f *fakeStore) RecentRuns(ctx context.Context, userID int64, n int) ([]store.RunRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.RunRecord(nil), f.runs...), nil
}

func (f *fakeStore) RecentlyPublished(ctx context.Context, userID int64, w time.Duration) (map[string]struct{}, error) {
	if f.recent == nil {
		return map[string]struct{}{}, nil
	}
	return f.recent, nil
}

func (f *fakeStore) RecentTitles(ctx context.Context, userID int64, n int) ([]string, error) {
	return f.titles, nil
}

func (f *fakeStore) Close() error { return nil }

type fakeLLM struct {
	selectErr  error
	selectIdx  int
	facts      string
	researchEr error
	draft      gateway.Draft
	synthErr   error
	refined    string
	refineErr  error

	refineCalls int
}

func (f *fakeLLM) SelectStory(ctx context.Context, c gateway.Credentials, cands []source.Story, recent []string) (gateway.Selection, error) {
	if f.selectErr != nil {
		return gateway.Selection{}, f.selectErr
	}
	return gateway.Selection{Index: f.selectIdx, Reason: "test"}, nil
}

func (f *fakeLLM) Research(ctx context.Context, c gateway.Credentials, s source.Story) (string, error) {
	return f.facts, f.researchEr
}

func (f *fakeLLM) Synthesize(ctx context.Context, c gateway.Credentials, s source.Story, facts, style string, b gateway.Bounds) (gateway.Draft, error) {
	return f.draft, f.synthErr
}

func (f *fakeLLM) Refine(ctx context.Context, c gateway.Credentials, text string, b gateway.Bounds) (string, error) {
	f.refineCalls++
	return f.refined, f.refineErr
}

type fakeSrc struct {
	stories []source.Story
}

func (f *fakeSrc) Name() string { return "fake" }
func (f *fakeSrc) Fetch(context.Context) ([]source.Story, error) {
	return f.stories, nil
}

type fakeRenderer struct {
	path string
	err  error
}

func (f *fakeRenderer) Render(spec chart.Spec, name string) (string, error) {
	return f.path, f.err
}

type fakePublisher struct {
	mu       sync.Mutex
	postID   string
	err      error
	failures int // fail this many leading calls with a transient error
	calls    int
}

func (f *fakePublisher) Name() string                        { return "twitter" }
func (f *fakePublisher) Configured(gateway.Credentials) bool { return true }
func (f *fakePublisher) Publish(ctx context.Context, c gateway.Credentials, text string, a publisher.Artifact) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.calls <= f.failures {
		return "", gateway.Unavailable("twitter", errors.New("503"))
	}
	return f.postID, nil
}

func validText() string {
	return strings.Repeat("insightful analysis ", 50) // ~1000 chars
}

func testExecutor(st *fakeStore, llm *fakeLLM, pub *fakePublisher, stories []source.Story) *Executor {
	return NewExecutor(
		st,
		llm,
		[]source.Source{&fakeSrc{stories: stories}},
		&fakeRenderer{path: "/tmp/chart.png"},
		map[string]publisher.Publisher{"twitter": pub},
		Options{
			Bounds: gateway.Bounds{MinChars: 800, MaxChars: 2000},
			Retry:  gateway.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		},
		logx.Nop(),
	)
}

func testUser() *store.User {
	return &store.User{
		ID:            1,
		Username:      "dev",
		LLMAPIKey:     "k",
		Targets:       []string{"twitter"},
		ScheduleTimes: []string{"09:00"},
		Timezone:      "America/Los_Angeles",
		Enabled:       true,
	}
}

func goodDraft() gateway.Draft {
	return gateway.Draft{
		Text: validText(),
		Chart: chart.Spec{
			Kind:  chart.KindBar,
			Title: "numbers",
			Points: []chart.Point{
				{Label: "a", Value: 1},
				{Label: "b", Value: 2},
			},
		},
	}
}

func stories() []source.Story {
	return []source.Story{
		{ID: "hn-1", Title: "top", Kind: source.KindAggregator, Score: 300},
		{ID: "hn-2", Title: "second", Kind: source.KindAggregator, Score: 200},
	}
}

func TestExecuteHappyPath(t *testing.T) {
	t.Parallel()

	st := &fakeStore{user: testUser()}
	llm := &fakeLLM{selectIdx: 1, facts: "facts", draft: goodDraft()}
	pub := &fakePublisher{postID: "tw-123"}

	run, err := testExecutor(st, llm, pub, stories()).Execute(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeDone || run.Stage != StageDone {
		t.Fatalf("got %s/%s, want done/done", run.Stage, run.Outcome)
	}
	if run.Story == nil || run.Story.ID != "hn-2" {
		t.Fatalf("selected story = %+v, want hn-2", run.Story)
	}
	if len(st.published) != 1 || st.published[0].PostID != "tw-123" {
		t.Fatalf("published records = %+v", st.published)
	}
	if len(st.runs) != 1 || st.runs[0].Outcome != "done" {
		t.Fatalf("run records = %+v", st.runs)
	}
}

func TestExecuteEmptyPoolSkips(t *testing.T) {
	t.Parallel()

	st := &fakeStore{user: testUser()}
	pub := &fakePublisher{}

	run, err := testExecutor(st, &fakeLLM{}, pub, nil).Execute(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeSkipped {
		t.Fatalf("outcome = %s, want skipped", run.Outcome)
	}
	if run.Stage != StageFetching {
		t.Fatalf("stage = %s, want fetching", run.Stage)
	}
	if pub.calls != 0 {
		t.Fatal("skipped run reached the publisher")
	}
	if len(st.published) != 0 {
		t.Fatal("skipped run wrote a published record")
	}
}

func TestExecuteDedupCanEmptyThePool(t *testing.T) {
	t.Parallel()

	st := &fakeStore{
		user:   testUser(),
		recent: map[string]struct{}{"hn-1": {}, "hn-2": {}},
	}
	run, err := testExecutor(st, &fakeLLM{}, &fakePublisher{}, stories()).Execute(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeSkipped {
		t.Fatalf("outcome = %s, want skipped", run.Outcome)
	}
}

func TestExecuteSelectionFallsBackToTopScore(t *testing.T) {
	t.Parallel()

	st := &fakeStore{user: testUser()}
	llm := &fakeLLM{selectErr: errors.New("model down"), draft: goodDraft()}
	pub := &fakePublisher{postID: "tw-1"}

	run, err := testExecutor(st, llm, pub, stories()).Execute(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeDone {
		t.Fatalf("outcome = %s (%s), want done", run.Outcome, run.Err)
	}
	if run.Story.ID != "hn-1" {
		t.Fatalf("fallback selected %s, want hn-1 (top score)", run.Story.ID)
	}
}

func TestExecuteLengthRefineRecovers(t *testing.T) {
	t.Parallel()

	st := &fakeStore{user: testUser()}
	llm := &fakeLLM{
		draft:   gateway.Draft{Text: "too short", Chart: goodDraft().Chart},
		refined: validText(),
	}
	run, err := testExecutor(st, llm, &fakePublisher{postID: "x"}, stories()).Execute(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeDone {
		t.Fatalf("outcome = %s (%s), want done", run.Outcome, run.Err)
	}
	if llm.refineCalls != 1 {
		t.Fatalf("refine called %d times, want 1", llm.refineCalls)
	}
}

func TestExecuteLengthFailsAfterOneRetry(t *testing.T) {
	t.Parallel()

	st := &fakeStore{user: testUser()}
	llm := &fakeLLM{
		draft:   gateway.Draft{Text: "too short", Chart: goodDraft().Chart},
		refined: "still too short",
	}
	pub := &fakePublisher{}

	run, err := testExecutor(st, llm, pub, stories()).Execute(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeFailed || run.Stage != StageSynthesizing {
		t.Fatalf("got %s/%s, want synthesizing/failed", run.Stage, run.Outcome)
	}
	if llm.refineCalls != 1 {
		t.Fatalf("refine called %d times, want exactly 1", llm.refineCalls)
	}
	if pub.calls != 0 {
		t.Fatal("failed synthesis reached the publisher")
	}
}

func TestExecutePublishFailureWritesNoRecord(t *testing.T) {
	t.Parallel()

	st := &fakeStore{user: testUser()}
	llm := &fakeLLM{draft: goodDraft()}
	pub := &fakePublisher{err: gateway.Reject("twitter", "revoked auth")}

	run, err := testExecutor(st, llm, pub, stories()).Execute(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeFailed || run.Stage != StagePublishing {
		t.Fatalf("got %s/%s, want publishing/failed", run.Stage, run.Outcome)
	}
	if len(st.published) != 0 {
		t.Fatal("failed publish wrote a published record")
	}
	if pub.calls != 1 {
		t.Fatalf("rejected publish retried: %d calls", pub.calls)
	}
}

func TestExecutePublishRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	st := &fakeStore{user: testUser()}
	llm := &fakeLLM{draft: goodDraft()}
	pub := &fakePublisher{postID: "tw-3", failures: 2}

	e := NewExecutor(
		st,
		llm,
		[]source.Source{&fakeSrc{stories: stories()}},
		&fakeRenderer{path: "/tmp/chart.png"},
		map[string]publisher.Publisher{"twitter": pub},
		Options{
			Bounds: gateway.Bounds{MinChars: 800, MaxChars: 2000},
			Retry:  gateway.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		},
		logx.Nop(),
	)

	run, err := e.Execute(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeDone {
		t.Fatalf("outcome = %s (%s), want done after retries", run.Outcome, run.Err)
	}
	if pub.calls != 3 {
		t.Fatalf("publish attempts = %d, want 3", pub.calls)
	}
	if len(st.published) != 1 || st.published[0].PostID != "tw-3" {
		t.Fatalf("published records = %+v, want exactly one for tw-3", st.published)
	}
}

func TestExecuteSelectionIndexOutOfRangeFallsBack(t *testing.T) {
	t.Parallel()

	st := &fakeStore{user: testUser()}
	llm := &fakeLLM{selectIdx: 99, draft: goodDraft()}
	pub := &fakePublisher{postID: "tw-1"}

	run, err := testExecutor(st, llm, pub, stories()).Execute(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeDone {
		t.Fatalf("outcome = %s (%s), want done", run.Outcome, run.Err)
	}
	if run.Story.ID != "hn-1" {
		t.Fatalf("fallback selected %s, want hn-1 (top score)", run.Story.ID)
	}
}

func TestExecuteRecordWriteFailureStaysDone(t *testing.T) {
	t.Parallel()

	st := &fakeStore{user: testUser(), appendErr: errors.New("disk full")}
	llm := &fakeLLM{draft: goodDraft()}
	pub := &fakePublisher{postID: "tw-1"}

	run, err := testExecutor(st, llm, pub, stories()).Execute(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// External publish succeeded; the lost record is the accepted edge.
	if run.Outcome != OutcomeDone {
		t.Fatalf("outcome = %s, want done", run.Outcome)
	}
}

func TestExecuteDryRunSkipsPublishing(t *testing.T) {
	t.Parallel()

	st := &fakeStore{user: testUser()}
	llm := &fakeLLM{draft: goodDraft()}
	pub := &fakePublisher{postID: "x"}

	run, err := testExecutor(st, llm, pub, stories()).Execute(context.Background(), 1, true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeDone {
		t.Fatalf("outcome = %s, want done", run.Outcome)
	}
	if pub.calls != 0 {
		t.Fatal("dry run called the publisher")
	}
	if len(st.published) != 0 {
		t.Fatal("dry run wrote a published record")
	}
	if len(st.runs) != 1 || !st.runs[0].DryRun {
		t.Fatalf("dry run record = %+v", st.runs)
	}
}

func TestExecuteDegradedResearch(t *testing.T) {
	t.Parallel()

	// No research key: research is skipped, synthesis still runs.
	u := testUser()
	u.ResearchAPIKey = ""
	st := &fakeStore{user: u}
	llm := &fakeLLM{draft: goodDraft()}

	run, err := testExecutor(st, llm, &fakePublisher{postID: "x"}, stories()).Execute(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeDone {
		t.Fatalf("outcome = %s (%s), want done", run.Outcome, run.Err)
	}
}

func TestExecuteResearchProviderFailureFailsStage(t *testing.T) {
	t.Parallel()

	u := testUser()
	u.ResearchAPIKey = "rk"
	st := &fakeStore{user: u}
	llm := &fakeLLM{researchEr: gateway.Unavailable("research", errors.New("timeout")), draft: goodDraft()}

	run, err := testExecutor(st, llm, &fakePublisher{}, stories()).Execute(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeFailed || run.Stage != StageResearching {
		t.Fatalf("got %s/%s, want researching/failed", run.Stage, run.Outcome)
	}
}

func TestExecuteSecondaryTargetIsBestEffort(t *testing.T) {
	t.Parallel()

	u := testUser()
	u.Targets = []string{"twitter", "linkedin"}
	st := &fakeStore{user: u}
	llm := &fakeLLM{draft: goodDraft()}
	tw := &fakePublisher{postID: "tw-1"}

	e := NewExecutor(
		st,
		llm,
		[]source.Source{&fakeSrc{stories: stories()}},
		&fakeRenderer{path: "/tmp/chart.png"},
		map[string]publisher.Publisher{
			"twitter":  tw,
			"linkedin": &fakePublisher{err: gateway.Unavailable("linkedin", errors.New("502"))},
		},
		Options{
			Bounds: gateway.Bounds{MinChars: 800, MaxChars: 2000},
			Retry:  gateway.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		},
		logx.Nop(),
	)

	run, err := e.Execute(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeDone {
		t.Fatalf("outcome = %s (%s), want done despite secondary failure", run.Outcome, run.Err)
	}
	if len(st.published) != 1 || st.published[0].Platform != "twitter" {
		t.Fatalf("published = %+v, want only twitter", st.published)
	}
}

func TestExecuteCancelledContextAborts(t *testing.T) {
	t.Parallel()

	st := &fakeStore{user: testUser()}
	llm := &fakeLLM{selectErr: context.Canceled}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := testExecutor(st, llm, &fakePublisher{}, stories()).Execute(ctx, 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Outcome != OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", run.Outcome)
	}
}

func TestAdvancePanicsOnSkip(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("skipping a stage did not panic")
		}
	}()
	r := newRun(1, false)
	r.advance(StageResearching)
}
