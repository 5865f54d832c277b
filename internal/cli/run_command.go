package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"favesave/internal/config"
	"favesave/internal/fetch"
	"favesave/internal/metrics"
	"favesave/internal/model"
	"favesave/internal/pipeline"
	"favesave/internal/report"
	"favesave/internal/tui"
	"favesave/internal/ytdlp"
)

type runFlags struct {
	configPath  string
	dataset     string
	dir         string
	faves       bool
	likes       bool
	shares      bool
	earliest    string
	concurrency int
	retry       bool
	backend     string
	limitMBps   float64
	htmlLog     string
	metricsAddr string
	logLevel    string
	logFormat   string
	logFile     string
	noTUI       bool
	noSave      bool
	jsonOut     bool
}

func runDownload(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var f runFlags
	fs.StringVar(&f.configPath, "config", config.DefaultPath(), "settings file path")
	fs.StringVar(&f.dataset, "dataset", "", "path to the exported user_data_tiktok.json")
	fs.StringVar(&f.dir, "dir", "", "download folder (default: <dataset folder>/downloaded_videos)")
	fs.BoolVar(&f.faves, "faves", true, "download favorite videos")
	fs.BoolVar(&f.likes, "likes", true, "download liked videos")
	fs.BoolVar(&f.shares, "shares", true, "download shared videos")
	fs.StringVar(&f.earliest, "earliest", "", "only items on or after YYYY-MM-DD (empty disables the date filter)")
	fs.IntVar(&f.concurrency, "concurrency", 0, "parallel downloads, 1-10 (0 = settings)")
	fs.BoolVar(&f.retry, "retry-failures", false, "forget previous blocked/failed items before starting")
	fs.StringVar(&f.backend, "backend", "", "fetch backend: auto|ytdlp|http")
	fs.Float64Var(&f.limitMBps, "limit-mb-s", -1, "per-download rate limit in MB/s (0 disables, -1 keeps settings)")
	fs.StringVar(&f.htmlLog, "html-log", "", "also write the run log as HTML with clickable links")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug|info|warn|error")
	fs.StringVar(&f.logFormat, "log-format", "", "log format: text|json")
	fs.StringVar(&f.logFile, "log-file", "", "write logs to this file (default: stderr, or nowhere while the TUI runs)")
	fs.BoolVar(&f.noTUI, "no-tui", false, "print plain log lines instead of the live view")
	fs.BoolVar(&f.noSave, "no-save", false, "do not remember these choices in the settings file")
	fs.BoolVar(&f.jsonOut, "json", false, "print the run result as JSON")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	applyRunFlags(fs, f, cfg)
	if cfg.Dataset == "" {
		fs.Usage()
		return errors.New("--dataset is required")
	}
	mode, err := fetch.ParseMode(cfg.Fetch.Backend)
	if err != nil {
		return err
	}
	if mode != fetch.ModeHTTP && strings.TrimSpace(cfg.Fetch.Binary) == "" {
		if err := ytdlp.CheckDependencies(); err != nil {
			return err
		}
	}

	useTUI := !f.noTUI && !f.jsonOut && stdinIsTTY()
	logOut, closeLog, err := openLogOutput(f.logFile, useTUI)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, logOut)

	var html *report.HTMLLog
	if strings.TrimSpace(f.htmlLog) != "" {
		if html, err = report.OpenHTMLLog(f.htmlLog); err != nil {
			return err
		}
		defer func() {
			if err := html.Close(); err != nil {
				logger.WithError(err).Warn("could not finish html log")
			}
		}()
	}

	rawOut := logger.WriterLevel(log.DebugLevel)
	defer rawOut.Close()
	direct := fetch.NewHTTPFetcher(fetch.HTTPOptions{
		LimitMBps: cfg.Fetch.LimitMBps,
		Timeout:   cfg.Fetch.HTTPTimeout,
	})
	defer direct.Close()
	fetcher := fetch.Router{
		Extractor: ytdlp.NewFetcher(ytdlp.Options{
			Binary:            cfg.Fetch.Binary,
			Format:            cfg.Fetch.Format,
			DownloadLimitMBps: cfg.Fetch.LimitMBps,
			LogWriter:         rawOut,
		}),
		Direct: direct,
		Mode:   mode,
	}
	recorder := metrics.New()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	sigCtx, stopSignals := signal.NotifyContext(runCtx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	var rep *report.Reporter
	var prog *tea.Program
	callbacks := report.Callbacks{}
	prompt := stdinPrompt
	if useTUI {
		prog = tea.NewProgram(tui.New(tui.Options{
			Title:  "FaveSave",
			Cancel: func() bool { return rep.RequestCancel() },
		}), tea.WithAltScreen())
		callbacks = tui.Callbacks(prog)
		prompt = tui.Prompt(prog)
	} else if !stdinIsTTY() {
		prompt = nil
	}
	rep = report.New(callbacks, report.Options{Logger: logger, HTMLLog: html})
	rep.BindCancel(cancelRun)

	if !f.noSave {
		if err := config.Save(f.configPath, cfg); err != nil {
			logger.WithError(err).Warn("could not remember settings")
		}
	}

	auxCtx, stopAux := context.WithCancel(context.Background())
	var aux errgroup.Group
	aux.Go(func() error {
		select {
		case <-auxCtx.Done():
		case <-sigCtx.Done():
			if !rep.RequestCancel() {
				cancelRun()
			}
		}
		return nil
	})
	aux.Go(func() error {
		report.NewWatchdog(rep, report.WatchdogOptions{
			Interval: cfg.Watchdog.Interval,
			Timeout:  cfg.Watchdog.Timeout,
			MaxHang:  cfg.Watchdog.MaxHang,
			Prompt:   prompt,
			Logger:   logger,
		}).Run(auxCtx)
		return nil
	})
	if addr := strings.TrimSpace(cfg.Metrics.Addr); addr != "" {
		aux.Go(func() error {
			if err := recorder.Serve(auxCtx, addr, logger); err != nil {
				logger.WithError(err).Warn("metrics endpoint stopped")
			}
			return nil
		})
	}

	opts := pipeline.Options{
		DatasetPath:    cfg.Dataset,
		DownloadDir:    cfg.DownloadDir,
		Faves:          cfg.Categories.Faves,
		Likes:          cfg.Categories.Likes,
		Shares:         cfg.Categories.Shares,
		Earliest:       cfg.Earliest(),
		Concurrency:    cfg.Run.Concurrency,
		RetryFailures:  f.retry || cfg.Run.RetryFailures,
		StallThreshold: cfg.Run.StallThreshold,
		HarvestTick:    cfg.Run.HarvestTick,
	}
	deps := pipeline.Deps{Fetcher: fetcher, Reporter: rep, Recorder: recorder, Logger: logger}

	var res model.RunResult
	var runErr error
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		res, runErr = pipeline.Run(sigCtx, opts, deps)
		if runErr == nil {
			recorder.RunFinished(res.State)
		}
		if prog != nil {
			prog.Send(tui.DoneMsg{Result: res, Err: runErr})
		}
	}()

	if prog != nil {
		if _, err := prog.Run(); err != nil {
			logger.WithError(err).Warn("live view stopped")
		}
		// Leaving the view early still stops and drains the run.
		select {
		case <-finished:
		default:
			rep.RequestCancel()
			cancelRun()
		}
	}
	<-finished
	stopAux()
	_ = aux.Wait()

	if runErr != nil {
		return runErr
	}
	if f.jsonOut {
		return printJSON(res)
	}
	if useTUI {
		printRunSummary(res)
	}
	return nil
}

// applyRunFlags overlays explicitly set flags on the loaded settings.
func applyRunFlags(fs *flag.FlagSet, f runFlags, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "dataset":
			cfg.Dataset = f.dataset
		case "dir":
			cfg.DownloadDir = f.dir
		case "faves":
			cfg.Categories.Faves = f.faves
		case "likes":
			cfg.Categories.Likes = f.likes
		case "shares":
			cfg.Categories.Shares = f.shares
		case "earliest":
			cfg.DateFilter.Earliest = strings.TrimSpace(f.earliest)
			cfg.DateFilter.Enabled = cfg.DateFilter.Earliest != ""
		case "concurrency":
			if f.concurrency > 0 {
				cfg.Run.Concurrency = f.concurrency
			}
		case "backend":
			cfg.Fetch.Backend = f.backend
		case "limit-mb-s":
			if f.limitMBps >= 0 {
				cfg.Fetch.LimitMBps = f.limitMBps
			}
		case "metrics-addr":
			cfg.Metrics.Addr = f.metricsAddr
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-format":
			cfg.Log.Format = f.logFormat
		}
	})
	config.Normalize(cfg)
}

func openLogOutput(path string, tuiActive bool) (io.Writer, func(), error) {
	if strings.TrimSpace(path) == "" {
		if tuiActive {
			return io.Discard, func() {}, nil
		}
		return os.Stderr, func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

func stdinPrompt(ctx context.Context, idle time.Duration) report.Choice {
	fmt.Fprintf(os.Stderr, "\nNo progress for %s. Downloads may be hung.\n[w]ait, [c]ancel the run, [q]uit now: ", idle.Round(time.Second))
	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		answer <- line
	}()
	select {
	case <-ctx.Done():
		return report.ChoiceWait
	case line := <-answer:
		return parseChoice(line)
	}
}

func parseChoice(line string) report.Choice {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "c", "cancel":
		return report.ChoiceCancel
	case "q", "quit":
		return report.ChoiceQuit
	default:
		return report.ChoiceWait
	}
}

func printRunSummary(res model.RunResult) {
	fmt.Printf("run: %s (%s)\n", res.State, res.Elapsed.Round(time.Second))
	fmt.Printf("downloaded: %d\n", res.Downloaded)
	fmt.Printf("already_present: %d\n", res.AlreadyPresent)
	fmt.Printf("blocked: %d\n", res.Blocked)
	fmt.Printf("failed: %d\n", res.Failed-res.Blocked)
	fmt.Printf("skipped: %d\n", res.SkippedBlocked+res.SkippedFailed)
	if res.Cancelled+res.NotAttempted > 0 {
		fmt.Printf("not_finished: %d\n", res.Cancelled+res.NotAttempted)
	}
}
