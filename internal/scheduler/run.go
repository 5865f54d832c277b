package scheduler

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"favesave/internal/fetch"
	"favesave/internal/filter"
	"favesave/internal/model"
)

type completion struct {
	pos     int
	outcome model.Outcome
}

type inflightTask struct {
	item      model.WorkItem
	startedAt time.Time
}

// run is the coordinator-owned state of one Run call. Only the goroutine
// executing execute touches it; workers see jobs and done.
type run struct {
	s      *Scheduler
	ctx    context.Context
	items  []model.WorkItem
	logger *log.Entry

	started  time.Time
	jobs     chan int
	done     chan completion
	inflight map[int]inflightTask
	stalled  bool

	processed    int
	dispositions []model.Disposition
	messages     []string
	result       model.RunResult
}

func newRun(ctx context.Context, s *Scheduler, items []model.WorkItem) *run {
	return &run{
		s:            s,
		ctx:          ctx,
		items:        items,
		logger:       s.deps.Logger,
		jobs:         make(chan int),
		done:         make(chan completion, s.cfg.MaxConcurrency),
		inflight:     make(map[int]inflightTask, s.cfg.MaxConcurrency),
		dispositions: make([]model.Disposition, len(items)),
		messages:     make([]string, len(items)),
		result: model.RunResult{
			RunID:                s.cfg.RunID,
			TotalCandidates:      len(items),
			DownloadedByCategory: map[model.Category]int{},
			Items:                items,
		},
	}
}

func (r *run) execute() model.RunResult {
	r.started = r.s.cfg.Now()
	rep := r.s.deps.Reporter

	r.s.transition(model.StateEnumerating)
	queue := r.enumerate()

	var g errgroup.Group
	if r.ctx.Err() == nil && len(queue) > 0 {
		r.s.transition(model.StateDispatching)
		workers := min(r.s.cfg.MaxConcurrency, len(queue))
		for i := 0; i < workers; i++ {
			g.Go(r.worker)
		}
		r.dispatch(queue)
	}
	close(r.jobs)

	r.s.transition(model.StateDraining)
	ticker := time.NewTicker(r.s.cfg.HarvestTick)
	for len(r.inflight) > 0 {
		r.harvest(true, ticker.C)
	}
	ticker.Stop()
	_ = g.Wait()
	r.checkStall()

	if len(r.items) == 0 {
		rep.Logf("No videos to download.")
		rep.Percent(100)
	}

	final := model.StateCompleted
	if r.ctx.Err() != nil {
		final = model.StateCancelled
	}
	r.finish(final)
	r.s.transition(final)
	return r.result
}

// enumerate walks items in order, settling every skip item immediately and
// returning the positions that need a fetch. Cancellation stops the walk;
// anything not reached is left for finish to mark not attempted.
func (r *run) enumerate() []int {
	rep := r.s.deps.Reporter
	existing := filter.ScanExisting(r.s.cfg.Dir, r.logger)
	rep.Logf("Found %d existing files in download folder", len(existing))

	var excl filter.Exclusions
	if r.s.deps.Session != nil {
		excl = r.s.deps.Session
	}

	var queue []int
	for pos, item := range r.items {
		if r.ctx.Err() != nil {
			rep.Logf("Cancellation requested - stopping new downloads")
			return nil
		}
		switch filter.Classify(item, existing, excl) {
		case model.ClassEligible:
			queue = append(queue, pos)
			continue
		case model.ClassPreviouslyBlocked:
			r.settle(pos, model.DispositionSkippedBlocked, "")
			r.result.SkippedBlocked++
			rep.Logf("Skipping previously blocked: %s", item.URL)
		case model.ClassPreviouslyFailed:
			r.settle(pos, model.DispositionSkippedFailed, "")
			r.result.SkippedFailed++
			rep.Logf("Skipping previously failed: %s", item.URL)
		case model.ClassAlreadyPresent:
			r.settle(pos, model.DispositionAlreadyPresent, "")
			r.result.AlreadyPresent++
			r.result.DownloadedByCategory[item.Category]++
		}
		r.processed++
		r.snapshot(pos)
		rep.Percent(r.percent())
	}
	return queue
}

// dispatch submits queued positions in order, waiting for capacity when the
// pool is full and sweeping finished tasks after every submission.
func (r *run) dispatch(queue []int) {
	rep := r.s.deps.Reporter
	ticker := time.NewTicker(r.s.cfg.HarvestTick)
	defer ticker.Stop()

	for _, pos := range queue {
		if r.ctx.Err() != nil {
			rep.Logf("Cancellation requested - stopping new downloads")
			return
		}
		for len(r.inflight) >= r.s.cfg.MaxConcurrency {
			r.harvest(true, ticker.C)
		}
		if r.ctx.Err() != nil {
			rep.Logf("Cancellation requested - stopping new downloads")
			return
		}
		item := r.items[pos]
		r.inflight[pos] = inflightTask{item: item, startedAt: r.s.cfg.Now()}
		r.s.deps.Recorder.InFlight(len(r.inflight))
		r.logger.WithFields(log.Fields{"url": item.URL, "position": pos}).Debug("dispatching fetch")
		r.jobs <- pos
		r.harvest(false, nil)
	}
}

func (r *run) worker() error {
	f := r.s.deps.Fetcher
	rep := r.s.deps.Reporter
	for pos := range r.jobs {
		item := r.items[pos]
		outcome := fetch.Run(r.ctx, f, fetch.Request{
			URL:   item.URL,
			Dir:   r.s.cfg.Dir,
			Label: item.Label,
			Progress: func(line string) {
				rep.FetchProgress(item, line)
			},
		})
		r.done <- completion{pos: pos, outcome: outcome}
	}
	return nil
}

// harvest settles finished tasks. Blocking mode waits for at least one,
// re-checking stalls on every tick while it waits; non-blocking mode returns
// as soon as nothing more is ready.
func (r *run) harvest(block bool, tick <-chan time.Time) {
	if block {
		for {
			select {
			case c := <-r.done:
				r.complete(c)
				r.sweep()
				return
			case <-tick:
				r.checkStall()
			}
		}
	}
	r.sweep()
}

func (r *run) sweep() {
	for {
		select {
		case c := <-r.done:
			r.complete(c)
		default:
			return
		}
	}
}

func (r *run) complete(c completion) {
	rep := r.s.deps.Reporter
	rec := r.s.deps.Recorder
	task := r.inflight[c.pos]
	delete(r.inflight, c.pos)
	rec.InFlight(len(r.inflight))

	item := r.items[c.pos]
	out := c.outcome
	switch {
	case out.Kind == model.OutcomeDownloaded:
		r.settle(c.pos, model.DispositionDownloaded, "")
		r.result.Downloaded++
		r.result.DownloadedByCategory[item.Category]++
		rec.FetchDuration(out.Duration)
		rep.Logf("Downloaded: %s (%.1fs)", item.URL, out.Duration.Seconds())
	case out.Kind == model.OutcomeCancelled:
		r.settle(c.pos, model.DispositionCancelled, "")
		r.result.Cancelled++
		rep.Logf("Cancelled: %s", item.URL)
	case out.Blocked:
		r.settle(c.pos, model.DispositionBlocked, out.Message)
		r.result.Failed++
		r.result.Blocked++
		if r.s.deps.Session != nil {
			r.s.deps.Session.MarkBlocked(item.URL)
		}
		rep.Logf("Blocked: %s (%s)", item.URL, out.Message)
	default:
		r.settle(c.pos, model.DispositionFailed, out.Message)
		r.result.Failed++
		if r.s.deps.Session != nil {
			r.s.deps.Session.MarkFailed(item.URL)
		}
		rep.Logf("Failed: %s (%s)", item.URL, out.Message)
	}
	r.logger.WithFields(log.Fields{
		"url":         item.URL,
		"disposition": r.dispositions[c.pos],
		"took":        r.s.cfg.Now().Sub(task.startedAt),
	}).Debug("fetch finished")

	r.processed++
	r.checkStall()
	r.snapshot(c.pos)
	rep.Percent(r.percent())
}

// checkStall is edge-triggered: one warning when some task first exceeds
// the threshold, one recovery line when none does any more.
func (r *run) checkStall() {
	now := r.s.cfg.Now()
	var oldest time.Duration
	var oldestURL string
	for _, t := range r.inflight {
		if age := now.Sub(t.startedAt); age > oldest {
			oldest = age
			oldestURL = t.item.URL
		}
	}
	over := oldest > r.s.cfg.StallThreshold
	switch {
	case over && !r.stalled:
		r.stalled = true
		r.s.deps.Recorder.Stalled(true)
		r.logger.WithFields(log.Fields{"url": oldestURL, "running": oldest.Round(time.Second)}).Warn("download appears stalled")
		r.s.deps.Reporter.Logf("Warning: a download has been running for %s without finishing: %s", oldest.Round(time.Second), oldestURL)
	case !over && r.stalled:
		r.stalled = false
		r.s.deps.Recorder.Stalled(false)
		r.logger.Info("stalled downloads resumed")
		r.s.deps.Reporter.Logf("Downloads resumed")
	}
}

func (r *run) settle(pos int, d model.Disposition, msg string) {
	r.dispositions[pos] = d
	r.messages[pos] = msg
	r.s.deps.Recorder.Disposition(r.items[pos].Category, d)
}

func (r *run) snapshot(pos int) {
	r.s.deps.Reporter.Snapshot(model.Snapshot{
		CurrentIndex:    pos + 1,
		Total:           len(r.items),
		CurrentURL:      r.items[pos].URL,
		Elapsed:         r.s.cfg.Now().Sub(r.started),
		DownloadedSoFar: r.result.Downloaded + r.result.AlreadyPresent,
		FailedSoFar:     r.result.Failed + r.result.SkippedBlocked + r.result.SkippedFailed,
	})
}

func (r *run) percent() int {
	total := len(r.items)
	if total == 0 {
		return 100
	}
	return min(r.processed*100/total, 100)
}

// finish marks every unsettled item not attempted and fills the result.
func (r *run) finish(state model.RunState) {
	results := make([]model.ItemResult, len(r.items))
	for pos, item := range r.items {
		d := r.dispositions[pos]
		if d == "" {
			d = model.DispositionNotAttempted
			r.dispositions[pos] = d
			r.result.NotAttempted++
			r.s.deps.Recorder.Disposition(item.Category, d)
		}
		results[pos] = model.ItemResult{Item: item, Disposition: d, Message: r.messages[pos]}
	}
	r.result.Results = results
	r.result.State = state
	r.result.Elapsed = r.s.cfg.Now().Sub(r.started)
}
