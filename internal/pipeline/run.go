package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/source"
)

// Stage is one step of a cycle. Stages advance strictly forward; there is no
// backward transition and no skipping.
type Stage string

const (
	StageFetching     Stage = "fetching"
	StageSelecting    Stage = "selecting"
	StageResearching  Stage = "researching"
	StageSynthesizing Stage = "synthesizing"
	StageRendering    Stage = "rendering"
	StagePublishing   Stage = "publishing"
	StageDone         Stage = "done"
)

// Outcome is the terminal result of a cycle.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	OutcomeAborted Outcome = "aborted"
)

// Run is one cycle for one user. It is owned exclusively by the executor
// driving it; nothing else mutates a live run.
type Run struct {
	ID        string
	UserID    int64
	StartedAt time.Time
	Stage     Stage
	Outcome   Outcome
	Err       string
	Story     *source.Story
	DryRun    bool
}

func newRun(userID int64, dryRun bool) *Run {
	return &Run{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: time.Now(),
		Stage:     StageFetching,
		DryRun:    dryRun,
	}
}

var order = map[Stage]int{
	StageFetching:     0,
	StageSelecting:    1,
	StageResearching:  2,
	StageSynthesizing: 3,
	StageRendering:    4,
	StagePublishing:   5,
	StageDone:         6,
}

// advance moves the run to next, panicking on any backward or skipping
// transition. The panic is a programming error, never data-dependent.
func (r *Run) advance(next Stage) {
	if order[next] != order[r.Stage]+1 {
		panic("illegal stage transition " + string(r.Stage) + " -> " + string(next))
	}
	r.Stage = next
}

// Terminal reports whether the run has reached an outcome.
func (r *Run) Terminal() bool { return r.Outcome != "" }
