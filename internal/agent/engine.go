package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/eventbus"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/pipeline"
	rtsup "github.com/DevanshuBrahmbhatt/Social-agents/internal/runtime/supervisor"
	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

const queueFullWarnEvery = 5 * time.Second

var (
	ErrOverlapSkip = errors.New("run skipped: previous run still active")
	ErrQueueFull   = errors.New("run skipped: queue full")
	ErrStopped     = errors.New("engine not running")
)

// EngineConfig bounds cycle execution.
type EngineConfig struct {
	Workers     int
	QueueSize   int
	RunTimeout  time.Duration
	HistorySize int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 32
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 10 * time.Minute
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	return c
}

// runState is the per-user overlap gate. Acquired at enqueue so a queued run
// blocks later triggers exactly like an active one.
type runState struct {
	mu     sync.Mutex
	active bool
}

func (s *runState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return false
	}
	s.active = true
	return true
}

func (s *runState) release() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

func (s *runState) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

type cycleTask struct {
	userID     int64
	dryRun     bool
	enqueuedAt time.Time
	state      *runState
}

// RunSummary is one finished cycle kept in the in-memory history ring.
type RunSummary struct {
	RunID    string
	UserID   int64
	Started  time.Time
	Duration time.Duration
	Stage    string
	Outcome  string
	Error    string
}

// Engine executes cycles on a fixed worker pool over a bounded queue. At
// most one run per user is live or queued at any moment.
type Engine struct {
	mu  sync.Mutex
	cfg EngineConfig
	log logx.Logger
	bus eventbus.Bus

	exec *pipeline.Executor

	q      chan cycleTask
	sup    *rtsup.Supervisor
	stopCh chan struct{}

	stateMu sync.Mutex
	states  map[int64]*runState

	hmu     sync.Mutex
	history []RunSummary

	droppedQueueFull    uint64
	lastQueueFullWarnAt int64
}

func NewEngine(cfg EngineConfig, exec *pipeline.Executor, bus eventbus.Bus, log logx.Logger) *Engine {
	return &Engine{
		cfg:    cfg.withDefaults(),
		exec:   exec,
		bus:    bus,
		log:    log,
		states: make(map[int64]*runState),
	}
}

func (e *Engine) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	if e.stopCh != nil {
		e.mu.Unlock()
		return
	}
	cfg := e.cfg
	e.q = make(chan cycleTask, cfg.QueueSize)
	e.stopCh = make(chan struct{})
	e.sup = rtsup.New(ctx,
		rtsup.WithLogger(e.log.With(logx.String("comp", "engine"))),
		rtsup.WithCancelOnError(false),
	)
	queue := e.q
	stopCh := e.stopCh
	sup := e.sup
	e.mu.Unlock()

	for i := 0; i < cfg.Workers; i++ {
		idx := i
		sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(c context.Context) error {
			e.worker(c, stopCh, queue)
			select {
			case <-stopCh:
				return context.Canceled
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("worker exited unexpectedly")
		})
	}
	e.log.Info("engine started", logx.Int("workers", cfg.Workers), logx.Int("queue", cap(queue)))
}

// Stop drains the engine: no new runs are accepted, in-flight runs get grace
// to reach a terminal state, then their contexts are cancelled so they are
// recorded aborted.
func (e *Engine) Stop(grace time.Duration) {
	e.mu.Lock()
	if e.stopCh == nil {
		e.mu.Unlock()
		return
	}
	close(e.stopCh)
	sup := e.sup
	e.q = nil
	e.stopCh = nil
	e.sup = nil
	e.mu.Unlock()

	graceCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := sup.Wait(graceCtx); err == nil {
		e.log.Info("engine stopped")
		return
	}

	e.log.Warn("grace period elapsed; aborting in-flight runs", logx.Duration("grace", grace))
	sup.Cancel()
	_ = sup.Wait(context.Background())
	e.log.Info("engine stopped")
}

// Enqueue schedules one cycle without blocking. A still-active previous run
// or a full queue skips the trigger with a log; there is no queueing of a
// second run per user.
func (e *Engine) Enqueue(userID int64, dryRun bool) error {
	e.mu.Lock()
	q := e.q
	stopCh := e.stopCh
	e.mu.Unlock()
	if q == nil || stopCh == nil {
		return ErrStopped
	}

	now := time.Now()
	st := e.stateFor(userID)
	if !st.tryAcquire() {
		e.publishSkip(userID, now, "overlap")
		e.log.Info("trigger skipped: run still active", logx.Int64("user", userID))
		return ErrOverlapSkip
	}

	t := cycleTask{userID: userID, dryRun: dryRun, enqueuedAt: now, state: st}
	select {
	case q <- t:
		return nil
	default:
		st.release()
		atomic.AddUint64(&e.droppedQueueFull, 1)
		e.warnQueueFull(now, userID)
		e.publishSkip(userID, now, "queue_full")
		return ErrQueueFull
	}
}

// RunNow executes one cycle synchronously, bypassing the queue but not the
// overlap gate. Used by the runOnce control surface and the CLI.
func (e *Engine) RunNow(ctx context.Context, userID int64, dryRun bool) (*pipeline.Run, error) {
	st := e.stateFor(userID)
	if !st.tryAcquire() {
		return nil, ErrOverlapSkip
	}
	defer st.release()

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	defer cancel()
	return e.execute(runCtx, userID, dryRun)
}

func (e *Engine) worker(ctx context.Context, stopCh chan struct{}, queue chan cycleTask) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			// Drain nothing: queued tasks die with the process; their
			// users simply wait for the next trigger.
			return
		case t := <-queue:
			e.runTask(ctx, t)
		}
	}
}

func (e *Engine) runTask(ctx context.Context, t cycleTask) {
	defer t.state.release()

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	defer cancel()

	_, _ = e.execute(runCtx, t.userID, t.dryRun)
}

func (e *Engine) execute(ctx context.Context, userID int64, dryRun bool) (*pipeline.Run, error) {
	started := time.Now()
	e.publish("run.started", eventbus.Event{Time: started, Data: RunSummary{UserID: userID, Started: started}})

	run, err := e.exec.Execute(ctx, userID, dryRun)
	if err != nil {
		e.log.Error("cycle could not start", logx.Int64("user", userID), logx.Err(err))
		e.appendHistory(RunSummary{
			UserID:   userID,
			Started:  started,
			Duration: time.Since(started),
			Outcome:  "failed",
			Error:    err.Error(),
		})
		return nil, err
	}

	sum := RunSummary{
		RunID:    run.ID,
		UserID:   userID,
		Started:  run.StartedAt,
		Duration: time.Since(run.StartedAt),
		Stage:    string(run.Stage),
		Outcome:  string(run.Outcome),
		Error:    run.Err,
	}
	e.appendHistory(sum)
	e.publish("run.finished", eventbus.Event{Time: time.Now(), Data: sum})
	return run, nil
}

func (e *Engine) stateFor(userID int64) *runState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	st, ok := e.states[userID]
	if !ok {
		st = &runState{}
		e.states[userID] = st
	}
	return st
}

// Active reports whether the user has a live or queued run.
func (e *Engine) Active(userID int64) bool {
	e.stateMu.Lock()
	st, ok := e.states[userID]
	e.stateMu.Unlock()
	return ok && st.isActive()
}

// Recent returns the newest history entries for the user, most recent first.
func (e *Engine) Recent(userID int64, n int) []RunSummary {
	if n <= 0 {
		n = 10
	}
	e.hmu.Lock()
	defer e.hmu.Unlock()
	var out []RunSummary
	for i := len(e.history) - 1; i >= 0 && len(out) < n; i-- {
		if e.history[i].UserID == userID {
			out = append(out, e.history[i])
		}
	}
	return out
}

func (e *Engine) appendHistory(s RunSummary) {
	e.hmu.Lock()
	e.history = append(e.history, s)
	if len(e.history) > e.cfg.HistorySize {
		e.history = e.history[len(e.history)-e.cfg.HistorySize:]
	}
	e.hmu.Unlock()
}

func (e *Engine) publish(typ string, ev eventbus.Event) {
	if e.bus == nil {
		return
	}
	ev.Type = typ
	e.bus.Publish(ev)
}

func (e *Engine) publishSkip(userID int64, now time.Time, reason string) {
	e.publish("run.skipped", eventbus.Event{
		Time: now,
		Data: RunSummary{UserID: userID, Started: now, Outcome: "skipped", Error: reason},
	})
}

// warnQueueFull logs at most once per interval so a hot queue cannot flood
// the log.
func (e *Engine) warnQueueFull(now time.Time, userID int64) {
	last := atomic.LoadInt64(&e.lastQueueFullWarnAt)
	if now.UnixNano()-last < int64(queueFullWarnEvery) {
		return
	}
	if atomic.CompareAndSwapInt64(&e.lastQueueFullWarnAt, last, now.UnixNano()) {
		e.log.Warn("trigger skipped: queue full",
			logx.Int64("user", userID),
			logx.Uint64("dropped_total", atomic.LoadUint64(&e.droppedQueueFull)))
	}
}
