// Package report fans run progress out to the user interface and keeps the
// heartbeat the watchdog polls.
package report

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"favesave/internal/model"
)

// Callbacks are the UI sinks. Any of them may be nil. Progress is called
// from fetch goroutines; the rest from the run coordinator.
type Callbacks struct {
	Log      func(line string)
	Percent  func(pct int)
	Snapshot func(s model.Snapshot)
	State    func(state model.RunState)
	Progress func(item model.WorkItem, line string)
}

type Options struct {
	Now    func() time.Time
	Logger *log.Entry
	// HTMLLog, when set, receives every log line with links rendered.
	HTMLLog *HTMLLog
}

type Reporter struct {
	cb     Callbacks
	now    func() time.Time
	logger *log.Entry
	html   *HTMLLog

	mu              sync.Mutex
	heartbeat       time.Time
	pct             int
	active          bool
	cancelRequested bool
	cancel          func()
}

func New(cb Callbacks, opts Options) *Reporter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}
	return &Reporter{
		cb:        cb,
		now:       opts.Now,
		logger:    opts.Logger,
		html:      opts.HTMLLog,
		heartbeat: opts.Now(),
	}
}

func (r *Reporter) Touch() {
	r.mu.Lock()
	r.heartbeat = r.now()
	r.mu.Unlock()
}

func (r *Reporter) Heartbeat() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.heartbeat
}

// Active reports whether a run is between its first state change and its
// terminal one.
func (r *Reporter) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Reporter) CancelRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelRequested
}

// BindCancel sets the function RequestCancel invokes for the current run.
func (r *Reporter) BindCancel(cancel func()) {
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
}

// RequestCancel signals the bound run to stop. It reports false when no run
// is active.
func (r *Reporter) RequestCancel() bool {
	r.mu.Lock()
	r.heartbeat = r.now()
	if !r.active {
		r.mu.Unlock()
		return false
	}
	first := !r.cancelRequested
	r.cancelRequested = true
	cancel := r.cancel
	r.mu.Unlock()

	if first {
		r.logger.Info("cancellation requested")
	}
	if cancel != nil {
		cancel()
	}
	return true
}

func (r *Reporter) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	r.Touch()
	r.logger.Info(line)
	if r.html != nil {
		r.html.Line(line)
	}
	if r.cb.Log != nil {
		r.cb.Log(line)
	}
}

// Percent forwards pct clamped to 0..100. Values below the last one seen in
// the current run are raised to it.
func (r *Reporter) Percent(pct int) {
	pct = max(0, min(pct, 100))
	r.mu.Lock()
	r.heartbeat = r.now()
	if pct < r.pct {
		pct = r.pct
	}
	r.pct = pct
	r.mu.Unlock()
	if r.cb.Percent != nil {
		r.cb.Percent(pct)
	}
}

func (r *Reporter) Snapshot(s model.Snapshot) {
	r.Touch()
	if r.cb.Snapshot != nil {
		r.cb.Snapshot(s)
	}
}

func (r *Reporter) StateChanged(state model.RunState) {
	r.mu.Lock()
	r.heartbeat = r.now()
	switch {
	case state == model.StateEnumerating:
		r.active = true
		r.pct = 0
		r.cancelRequested = false
	case model.IsTerminal(state):
		r.active = false
		r.cancel = nil
	}
	r.mu.Unlock()
	if r.cb.State != nil {
		r.cb.State(state)
	}
}

// FetchProgress forwards a backend progress line. It leaves the heartbeat
// alone.
func (r *Reporter) FetchProgress(item model.WorkItem, line string) {
	if r.cb.Progress != nil {
		r.cb.Progress(item, line)
	}
}
