package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/chart"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/eventbus"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/gateway"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/pipeline"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/publisher"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/source"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/store"
	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

func TestCronSpec(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tz, hhmm string
		want     string
		wantErr  bool
	}{
		{"America/Los_Angeles", "09:00", "CRON_TZ=America/Los_Angeles 0 9 * * *", false},
		{"UTC", "23:59", "CRON_TZ=UTC 59 23 * * *", false},
		{"Asia/Jakarta", "06:30", "CRON_TZ=Asia/Jakarta 30 6 * * *", false},
		{"UTC", "24:00", "", true},
		{"UTC", "12:60", "", true},
		{"UTC", "noon", "", true},
	}
	for _, c := range cases {
		got, err := CronSpec(c.tz, c.hhmm)
		if c.wantErr {
			if err == nil {
				t.Errorf("CronSpec(%q, %q): want error", c.tz, c.hhmm)
			}
			continue
		}
		if err != nil {
			t.Errorf("CronSpec(%q, %q): %v", c.tz, c.hhmm, err)
			continue
		}
		if got != c.want {
			t.Errorf("CronSpec(%q, %q) = %q, want %q", c.tz, c.hhmm, got, c.want)
		}
	}
}

type memStore struct {
	mu    sync.Mutex
	users map[int64]*store.User
	runs  []store.RunRecord
}

func (m *memStore) User(ctx context.Context, id int64) (*store.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (m *memStore) UpsertUser(ctx context.Context, u *store.User) (int64, error) {
	return u.ID, nil
}

func (m *memStore) Schedules(ctx context.Context) ([]store.ScheduleEntry, error) {
	var out []store.ScheduleEntry
	for _, u := range m.users {
		out = append(out, store.ScheduleEntry{
			UserID:   u.ID,
			Times:    u.ScheduleTimes,
			Timezone: u.Timezone,
			Enabled:  u.Enabled,
		})
	}
	return out, nil
}

func (m *memStore) WriteRun(ctx context.Context, r store.RunRecord) error {
	m.mu.Lock()
	m.runs = append(m.runs, r)
	m.mu.Unlock()
	return nil
}

func (m *memStore) runRecords() []store.RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.RunRecord(nil), m.runs...)
}

func (m *memStore) AppendPublished(ctx context.Context, p store.PublishedRecord) error {
	return nil
}

func (m *memStore) RecentRuns(ctx context.Context, userID int64, n int) ([]store.RunRecord, error) {
	return nil, nil
}

func (m *memStore) RecentlyPublished(ctx context.Context, userID int64, w time.Duration) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (m *memStore) RecentTitles(ctx context.Context, userID int64, n int) ([]string, error) {
	return nil, nil
}

func (m *memStore) Close() error { return nil }

// blockingLLM parks every cycle in SELECTING until released. When entered is
// set it is closed as soon as the first cycle reaches SELECTING.
type blockingLLM struct {
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (b *blockingLLM) SelectStory(ctx context.Context, c gateway.Credentials, cands []source.Story, recent []string) (gateway.Selection, error) {
	if b.entered != nil {
		b.once.Do(func() { close(b.entered) })
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return gateway.Selection{}, ctx.Err()
	}
	return gateway.Selection{Index: 0}, nil
}

func (b *blockingLLM) Research(context.Context, gateway.Credentials, source.Story) (string, error) {
	return "", nil
}

func (b *blockingLLM) Synthesize(context.Context, gateway.Credentials, source.Story, string, string, gateway.Bounds) (gateway.Draft, error) {
	return gateway.Draft{}, errors.New("not reached")
}

func (b *blockingLLM) Refine(context.Context, gateway.Credentials, string, gateway.Bounds) (string, error) {
	return "", errors.New("not reached")
}

type oneStorySrc struct{}

func (oneStorySrc) Name() string { return "test" }
func (oneStorySrc) Fetch(context.Context) ([]source.Story, error) {
	return []source.Story{{ID: "s-1", Title: "t", Kind: source.KindFeed}}, nil
}

type nullRenderer struct{}

func (nullRenderer) Render(chart.Spec, string) (string, error) { return "", nil }

func testStore() *memStore {
	return &memStore{users: map[int64]*store.User{
		1: {
			ID:            1,
			Username:      "one",
			LLMAPIKey:     "k",
			ScheduleTimes: []string{"09:00", "17:00"},
			Timezone:      "America/Los_Angeles",
			Enabled:       true,
		},
		2: {
			ID:            2,
			Username:      "two",
			LLMAPIKey:     "k",
			ScheduleTimes: []string{"08:00"},
			Timezone:      "not/a-zone",
			Enabled:       true,
		},
		3: {
			ID:            3,
			Username:      "disabled",
			ScheduleTimes: []string{"10:00"},
			Timezone:      "UTC",
			Enabled:       false,
		},
	}}
}

func testEngine(t *testing.T, st store.Store, llm gateway.LLM, workers, queue int) *Engine {
	return testEngineBus(t, st, llm, workers, queue, nil)
}

func testEngineBus(t *testing.T, st store.Store, llm gateway.LLM, workers, queue int, bus eventbus.Bus) *Engine {
	t.Helper()
	exec := pipeline.NewExecutor(
		st,
		llm,
		[]source.Source{oneStorySrc{}},
		nullRenderer{},
		map[string]publisher.Publisher{},
		pipeline.Options{Retry: gateway.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}},
		logx.Nop(),
	)
	e := NewEngine(EngineConfig{Workers: workers, QueueSize: queue, RunTimeout: 5 * time.Second}, exec, bus, logx.Nop())
	e.Start(context.Background())
	t.Cleanup(func() { e.Stop(2 * time.Second) })
	return e
}

func TestRehydrateSkipsBadAndDisabledSchedules(t *testing.T) {
	t.Parallel()

	st := testStore()
	svc := NewService(st, testEngine(t, st, &blockingLLM{release: make(chan struct{})}, 1, 4), logx.Nop())

	if err := svc.Rehydrate(context.Background()); err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}

	if got := svc.Status(1); !got.Scheduled {
		t.Fatal("user 1 not scheduled after rehydrate")
	}
	if got := svc.Status(2); got.Scheduled {
		t.Fatal("user 2 with a bad timezone got scheduled")
	}
	if got := svc.Status(3); got.Scheduled {
		t.Fatal("disabled user 3 got scheduled")
	}
}

func TestStopScheduleLeavesOthersAlone(t *testing.T) {
	t.Parallel()

	st := testStore()
	svc := NewService(st, testEngine(t, st, &blockingLLM{release: make(chan struct{})}, 1, 4), logx.Nop())

	if err := svc.StartSchedule(context.Background(), 1); err != nil {
		t.Fatalf("StartSchedule: %v", err)
	}
	svc.StopSchedule(1)
	if svc.Status(1).Scheduled {
		t.Fatal("user 1 still scheduled after StopSchedule")
	}

	// Removing a never-registered user is a no-op.
	svc.StopSchedule(42)
}

func TestNextTriggerAdvances(t *testing.T) {
	t.Parallel()

	st := testStore()
	svc := NewService(st, testEngine(t, st, &blockingLLM{release: make(chan struct{})}, 1, 4), logx.Nop())

	if err := svc.StartSchedule(context.Background(), 1); err != nil {
		t.Fatalf("StartSchedule: %v", err)
	}
	svc.Start()
	defer svc.Stop(context.Background())

	status := svc.Status(1)
	if status.NextTrigger.IsZero() {
		t.Fatal("no next trigger for a scheduled user")
	}
	if !status.NextTrigger.After(time.Now().Add(-time.Minute)) {
		t.Fatalf("next trigger in the past: %v", status.NextTrigger)
	}
}

func TestEnqueueOverlapSkips(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	st := testStore()
	e := testEngine(t, st, &blockingLLM{release: release}, 1, 4)

	if err := e.Enqueue(1, false); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	// The first run parks in SELECTING; a second trigger for the same user
	// must skip, not queue.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := e.Enqueue(1, false)
		if errors.Is(err, ErrOverlapSkip) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("second enqueue never hit the overlap gate: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(release)

	// The gate reopens once the run terminates.
	deadline = time.Now().Add(2 * time.Second)
	for e.Active(1) {
		if time.Now().After(deadline) {
			t.Fatal("run never released the overlap gate")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	st := &memStore{users: map[int64]*store.User{}}
	for i := int64(1); i <= 5; i++ {
		st.users[i] = &store.User{ID: i, LLMAPIKey: "k", Enabled: true, ScheduleTimes: []string{"09:00"}, Timezone: "UTC"}
	}
	e := testEngine(t, st, &blockingLLM{release: release}, 1, 1)

	// Worker takes one, queue holds one; the rest must drop.
	var full bool
	for i := int64(1); i <= 5; i++ {
		if errors.Is(e.Enqueue(i, false), ErrQueueFull) {
			full = true
		}
	}
	if !full {
		t.Fatal("queue never reported full")
	}
}

func TestRunNowRespectsOverlapGate(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	st := testStore()
	e := testEngine(t, st, &blockingLLM{release: release}, 1, 4)

	if err := e.Enqueue(1, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := e.RunNow(context.Background(), 1, true); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("RunNow during active run: err = %v, want overlap skip", err)
	}
}

func TestStopAbortsRunOutlivingGrace(t *testing.T) {
	t.Parallel()

	st := testStore()
	llm := &blockingLLM{release: make(chan struct{}), entered: make(chan struct{})}
	e := testEngine(t, st, llm, 1, 4)

	if err := e.Enqueue(1, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-llm.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("run never started")
	}

	// The run parks forever, so the grace period elapses and Stop cancels it.
	e.Stop(50 * time.Millisecond)

	runs := st.runRecords()
	if len(runs) != 1 {
		t.Fatalf("run records = %+v, want exactly one", runs)
	}
	if runs[0].Outcome != "aborted" {
		t.Fatalf("outcome = %q, want aborted", runs[0].Outcome)
	}
	if e.Active(1) {
		t.Fatal("overlap gate still held after Stop")
	}
}

func TestEngineEmitsRunLifecycleEvents(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	st := testStore()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	e := testEngineBus(t, st, &blockingLLM{release: release}, 1, 4, bus)

	if err := e.Enqueue(1, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// The gate is held from enqueue, so a second trigger skips immediately.
	if err := e.Enqueue(1, false); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second enqueue: err = %v, want overlap skip", err)
	}
	close(release)

	seen := map[string]int{}
	deadline := time.After(3 * time.Second)
	for seen["run.finished"] == 0 {
		select {
		case ev := <-ch:
			seen[ev.Type]++
			if sum, ok := ev.Data.(RunSummary); ok && sum.UserID != 1 {
				t.Errorf("event %s for user %d, want 1", ev.Type, sum.UserID)
			}
		case <-deadline:
			t.Fatalf("no run.finished event; saw %v", seen)
		}
	}
	if seen["run.started"] == 0 {
		t.Error("no run.started event")
	}
	if seen["run.skipped"] == 0 {
		t.Error("no run.skipped event")
	}
}
