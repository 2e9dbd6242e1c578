// Package agent schedules and executes per-user content cycles: a shared
// cron runner fires timezone-aware triggers, and a bounded engine runs the
// cycles with per-user overlap protection.
package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/pipeline"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/store"
	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

// Status is the control surface's view of one user.
type Status struct {
	Scheduled   bool
	ActiveRun   bool
	NextTrigger time.Time
	Recent      []RunSummary
}

type scheduleEntry struct {
	times    []string
	timezone string
	cronIDs  []cron.EntryID
}

// Service owns the scheduling registry: at most one live schedule entry per
// user, held only in memory and rehydrated from the store on boot.
type Service struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[int64]*scheduleEntry

	st     store.Store
	engine *Engine
	log    logx.Logger
}

func NewService(st store.Store, engine *Engine, log logx.Logger) *Service {
	return &Service{
		cron:    cron.New(),
		entries: make(map[int64]*scheduleEntry),
		st:      st,
		engine:  engine,
		log:     log,
	}
}

// Start begins firing triggers. Call Rehydrate first so boot picks up the
// stored schedules.
func (s *Service) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop halts triggers and waits for trigger callbacks already started. It
// does not touch in-flight cycle runs; the engine owns those.
func (s *Service) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// StartSchedule registers (or replaces) the user's triggers. Each trigger
// time becomes one cron entry evaluated in the user's timezone, so DST
// transitions may fire a trigger zero or two times in a calendar day.
func (s *Service) StartSchedule(ctx context.Context, userID int64) error {
	u, err := s.st.User(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	if !u.Enabled {
		return fmt.Errorf("user %d is disabled", userID)
	}
	return s.register(userID, u.ScheduleTimes, u.Timezone)
}

func (s *Service) register(userID int64, times []string, timezone string) error {
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", timezone, err)
	}
	if len(times) == 0 {
		return fmt.Errorf("user %d has no trigger times", userID)
	}

	specs := make([]string, 0, len(times))
	for _, t := range times {
		spec, err := CronSpec(timezone, t)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(userID)

	entry := &scheduleEntry{times: times, timezone: timezone}
	for _, spec := range specs {
		uid := userID
		id, err := s.cron.AddFunc(spec, func() {
			// Errors here are skips, already logged by the engine.
			_ = s.engine.Enqueue(uid, false)
		})
		if err != nil {
			// Roll back the partial registration.
			for _, added := range entry.cronIDs {
				s.cron.Remove(added)
			}
			return fmt.Errorf("add trigger %q: %w", spec, err)
		}
		entry.cronIDs = append(entry.cronIDs, id)
	}
	s.entries[userID] = entry

	s.log.Info("schedule registered",
		logx.Int64("user", userID),
		logx.String("timezone", timezone),
		logx.Any("times", times))
	return nil
}

// StopSchedule removes the user's triggers. An in-flight run is not
// aborted; deregistration only prevents future triggers.
func (s *Service) StopSchedule(userID int64) {
	s.mu.Lock()
	removed := s.removeLocked(userID)
	s.mu.Unlock()
	if removed {
		s.log.Info("schedule removed", logx.Int64("user", userID))
	}
}

func (s *Service) removeLocked(userID int64) bool {
	entry, ok := s.entries[userID]
	if !ok {
		return false
	}
	for _, id := range entry.cronIDs {
		s.cron.Remove(id)
	}
	delete(s.entries, userID)
	return true
}

// Rehydrate rebuilds the registry from stored schedules. The registry is
// never persisted itself; this runs once on boot before Start.
func (s *Service) Rehydrate(ctx context.Context) error {
	schedules, err := s.st.Schedules(ctx)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	var registered int
	for _, sched := range schedules {
		if !sched.Enabled {
			continue
		}
		if err := s.register(sched.UserID, sched.Times, sched.Timezone); err != nil {
			// One bad schedule must not keep the rest offline.
			s.log.Warn("schedule rehydrate failed",
				logx.Int64("user", sched.UserID), logx.Err(err))
			continue
		}
		registered++
	}
	s.log.Info("registry rehydrated", logx.Int("schedules", registered))
	return nil
}

// RunOnce executes one cycle immediately, subject to the overlap gate.
func (s *Service) RunOnce(ctx context.Context, userID int64, dryRun bool) (*pipeline.Run, error) {
	return s.engine.RunNow(ctx, userID, dryRun)
}

// Status reports schedule and run state for one user.
func (s *Service) Status(userID int64) Status {
	s.mu.Lock()
	entry, scheduled := s.entries[userID]
	var next time.Time
	if scheduled {
		for _, id := range entry.cronIDs {
			n := s.cron.Entry(id).Next
			if !n.IsZero() && (next.IsZero() || n.Before(next)) {
				next = n
			}
		}
	}
	s.mu.Unlock()

	return Status{
		Scheduled:   scheduled,
		ActiveRun:   s.engine.Active(userID),
		NextTrigger: next,
		Recent:      s.engine.Recent(userID, 10),
	}
}

// CronSpec converts a "HH:MM" trigger time into a cron spec evaluated in the
// given timezone.
func CronSpec(timezone, hhmm string) (string, error) {
	parts := strings.Split(strings.TrimSpace(hhmm), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("trigger time %q: want HH:MM", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("trigger time %q: bad hour", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("trigger time %q: bad minute", hhmm)
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", timezone, minute, hour), nil
}
