// Package pipeline wires one download run end to end: dataset, destination
// checks, session record, work items and the scheduler.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"favesave/internal/export"
	"favesave/internal/fetch"
	"favesave/internal/model"
	"favesave/internal/runstore"
	"favesave/internal/scheduler"
	"favesave/internal/session"
)

// DefaultDirName is the folder created next to the dataset when no
// destination is configured.
const DefaultDirName = "downloaded_videos"

var ErrNoCategories = errors.New("select at least one of favorites, likes or shares")

type Options struct {
	RunID       string
	DatasetPath string
	DownloadDir string
	Faves       bool
	Likes       bool
	Shares      bool
	// Earliest is an inclusive YYYY-MM-DD cutoff; empty disables it.
	Earliest       string
	Concurrency    int
	RetryFailures  bool
	StallThreshold time.Duration
	HarvestTick    time.Duration
	Now            func() time.Time
}

type Deps struct {
	Fetcher  fetch.Fetcher
	Reporter scheduler.Reporter
	Recorder scheduler.Recorder
	Logger   *log.Entry
}

// Plan is everything resolved before the scheduler starts.
type Plan struct {
	RunID   string
	Dataset *export.Dataset
	Dir     string
	Filter  export.Options
	Items   []model.WorkItem
}

// ResolveDir returns dir, or the default folder next to datasetPath.
func ResolveDir(dir, datasetPath string) string {
	if d := strings.TrimSpace(dir); d != "" {
		return d
	}
	return filepath.Join(filepath.Dir(datasetPath), DefaultDirName)
}

// Prepare loads the dataset and builds the work list without touching the
// destination.
func Prepare(opts Options) (Plan, error) {
	filter := export.Options{Faves: opts.Faves, Likes: opts.Likes, Shares: opts.Shares}
	if !filter.AnyEnabled() {
		return Plan{}, ErrNoCategories
	}
	cutoff, err := export.ParseCutoff(opts.Earliest)
	if err != nil {
		return Plan{}, fmt.Errorf("invalid earliest date %q (want YYYY-MM-DD): %w", opts.Earliest, err)
	}
	filter.Earliest = cutoff

	if strings.TrimSpace(opts.DatasetPath) == "" {
		return Plan{}, fmt.Errorf("dataset path is required")
	}
	ds, err := export.Load(opts.DatasetPath)
	if err != nil {
		return Plan{}, err
	}

	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	return Plan{
		RunID:   runID,
		Dataset: ds,
		Dir:     ResolveDir(opts.DownloadDir, opts.DatasetPath),
		Filter:  filter,
		Items:   export.Build(ds.Activity, filter),
	}, nil
}

// Run executes one full download run. Errors are returned only for problems
// that stop the run before any item is processed; per-item failures are in
// the result.
func Run(ctx context.Context, opts Options, deps Deps) (model.RunResult, error) {
	if deps.Fetcher == nil {
		return model.RunResult{}, fmt.Errorf("no fetcher configured")
	}
	if deps.Logger == nil {
		deps.Logger = log.NewEntry(log.StandardLogger())
	}
	rep := deps.Reporter
	if rep == nil {
		rep = logReporter{deps.Logger}
	}

	plan, err := Prepare(opts)
	if err != nil {
		return model.RunResult{}, err
	}
	logger := deps.Logger.WithFields(log.Fields{"run_id": plan.RunID, "dest": plan.Dir})
	logRoot(logger, plan.Dataset)

	if err := runstore.ProbeWritable(plan.Dir); err != nil {
		return model.RunResult{}, fmt.Errorf("download folder %s is not writable: %w", plan.Dir, err)
	}
	lock, err := runstore.AcquireDirLock(plan.Dir, plan.RunID)
	if err != nil {
		return model.RunResult{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.WithError(err).Warn("could not release destination lock")
		}
	}()

	store := session.Load(plan.Dir, logger)
	if opts.RetryFailures {
		existed, err := store.Clear()
		switch {
		case err != nil:
			logger.WithError(err).Warn("could not delete previous failure record")
		case existed:
			rep.Logf("Cleared previous failures")
		default:
			rep.Logf("No previous failures found to clear")
		}
	}

	rep.Logf("Selected dataset: %s", plan.Dataset.Path)
	rep.Logf("Download folder: %s", plan.Dir)
	if plan.Filter.Earliest.IsZero() {
		rep.Logf("Date filter: off")
	} else {
		rep.Logf("Date filter: on or after %s", plan.Filter.Earliest.Format("2006-01-02"))
	}
	rep.Logf("Total candidates: %d", len(plan.Items))

	sched := scheduler.New(scheduler.Config{
		RunID:          plan.RunID,
		Dir:            plan.Dir,
		MaxConcurrency: opts.Concurrency,
		StallThreshold: opts.StallThreshold,
		HarvestTick:    opts.HarvestTick,
		Now:            opts.Now,
	}, scheduler.Deps{
		Fetcher:  deps.Fetcher,
		Session:  store,
		Reporter: rep,
		Recorder: deps.Recorder,
		Logger:   deps.Logger,
	})
	res, err := sched.Run(ctx, plan.Items)
	if err != nil {
		return res, err
	}
	Summarize(rep, res)
	return res, nil
}

func logRoot(logger *log.Entry, ds *export.Dataset) {
	switch ds.Root {
	case export.RootYourActivity:
		logger.WithField("root", ds.Root).Debug("using activity root")
	case "":
		logger.Warnf("dataset has neither %q nor %q; no activity to download", export.RootYourActivity, export.RootLikesAndFavorites)
	default:
		logger.WithField("root", ds.Root).Infof("%q not found, using fallback activity root", export.RootYourActivity)
	}
}

// Summarize writes the end-of-run lines.
func Summarize(rep scheduler.Reporter, res model.RunResult) {
	if res.State == model.StateCancelled {
		rep.Logf("Run cancelled after %s", res.Elapsed.Round(time.Second))
	} else {
		rep.Logf("Run finished in %s", res.Elapsed.Round(time.Second))
	}
	rep.Logf("Downloaded: %d, already present: %d, blocked: %d, failed: %d, cancelled: %d, not attempted: %d",
		res.Downloaded, res.AlreadyPresent, res.Blocked, res.Failed-res.Blocked, res.Cancelled, res.NotAttempted)
	if res.SkippedBlocked+res.SkippedFailed > 0 {
		rep.Logf("Skipped from earlier runs: %d blocked, %d failed", res.SkippedBlocked, res.SkippedFailed)
	}
	for _, c := range model.Categories {
		if n := res.DownloadedByCategory[c]; n > 0 {
			rep.Logf("  %s: %d", c, n)
		}
	}
}

// logReporter sends the human log stream to logrus when no UI is attached.
type logReporter struct {
	logger *log.Entry
}

func (r logReporter) Logf(format string, args ...any)      { r.logger.Infof(format, args...) }
func (r logReporter) Percent(int)                          {}
func (r logReporter) Snapshot(model.Snapshot)              {}
func (r logReporter) StateChanged(model.RunState)          {}
func (r logReporter) FetchProgress(model.WorkItem, string) {}
