// Package scheduler turns an ordered list of work items into terminal
// outcomes using a bounded pool of fetch workers.
//
// A single coordinating goroutine owns every piece of run state: the
// in-flight table, counters, stall flag and session mutations. Workers only
// receive item positions on jobs and send classified outcomes back on done.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"favesave/internal/fetch"
	"favesave/internal/model"
	"favesave/internal/session"
)

const (
	MinConcurrency = 1
	MaxConcurrency = 10

	DefaultStallThreshold = 60 * time.Second
	DefaultHarvestTick    = time.Second
)

// Reporter receives the human-facing progress stream. FetchProgress is
// called from worker goroutines; everything else from the coordinator.
type Reporter interface {
	Logf(format string, args ...any)
	Percent(pct int)
	Snapshot(s model.Snapshot)
	StateChanged(state model.RunState)
	FetchProgress(item model.WorkItem, line string)
}

// Recorder receives instrumentation events.
type Recorder interface {
	Disposition(c model.Category, d model.Disposition)
	FetchDuration(d time.Duration)
	InFlight(n int)
	Stalled(stalled bool)
}

type Config struct {
	RunID          string
	Dir            string
	MaxConcurrency int
	StallThreshold time.Duration
	// HarvestTick is how often a blocked coordinator re-checks for stalls.
	HarvestTick time.Duration
	Now         func() time.Time
}

type Deps struct {
	Fetcher  fetch.Fetcher
	Session  *session.Store
	Reporter Reporter
	Recorder Recorder
	Logger   *log.Entry
}

type Scheduler struct {
	cfg  Config
	deps Deps

	mu    sync.Mutex
	state model.RunState
}

// ClampConcurrency bounds n to the supported pool sizes.
func ClampConcurrency(n int) int {
	if n < MinConcurrency {
		return MinConcurrency
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

func New(cfg Config, deps Deps) *Scheduler {
	cfg.MaxConcurrency = ClampConcurrency(cfg.MaxConcurrency)
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = DefaultStallThreshold
	}
	if cfg.HarvestTick <= 0 {
		cfg.HarvestTick = DefaultHarvestTick
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Reporter == nil {
		deps.Reporter = nopReporter{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = log.NewEntry(log.StandardLogger())
	}
	deps.Logger = deps.Logger.WithFields(log.Fields{"run_id": cfg.RunID, "dest": cfg.Dir})
	return &Scheduler{cfg: cfg, deps: deps, state: model.StateIdle}
}

func (s *Scheduler) State() model.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) transition(to model.RunState) {
	s.mu.Lock()
	err := model.TransitionRunState(&s.state, to)
	s.mu.Unlock()
	if err != nil {
		// Transitions are driven only by Run; a rejection is a bug.
		panic(err)
	}
	s.deps.Logger.WithField("state", to).Debug("run state changed")
	s.deps.Reporter.StateChanged(to)
}

func (s *Scheduler) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if model.IsActive(s.state) {
		return fmt.Errorf("run already in progress (state=%s)", s.state)
	}
	s.state = model.StateIdle
	return nil
}

// Run processes items until every one has a terminal disposition or the
// context is cancelled. Cancellation stops new dispatches; in-flight fetches
// are signalled through ctx and drained before Run returns.
func (s *Scheduler) Run(ctx context.Context, items []model.WorkItem) (model.RunResult, error) {
	if s.deps.Fetcher == nil {
		return model.RunResult{}, fmt.Errorf("scheduler has no fetcher")
	}
	if err := s.begin(); err != nil {
		return model.RunResult{}, err
	}
	r := newRun(ctx, s, items)
	return r.execute(), nil
}

type nopReporter struct{}

func (nopReporter) Logf(string, ...any)                  {}
func (nopReporter) Percent(int)                          {}
func (nopReporter) Snapshot(model.Snapshot)              {}
func (nopReporter) StateChanged(model.RunState)          {}
func (nopReporter) FetchProgress(model.WorkItem, string) {}

type nopRecorder struct{}

func (nopRecorder) Disposition(model.Category, model.Disposition) {}
func (nopRecorder) FetchDuration(time.Duration)                   {}
func (nopRecorder) InFlight(int)                                  {}
func (nopRecorder) Stalled(bool)                                  {}
