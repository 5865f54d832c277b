package report

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultWatchdogInterval = 5 * time.Second
	DefaultWatchdogTimeout  = 30 * time.Second
	DefaultWatchdogMaxHang  = 120 * time.Second
)

// Choice is the user's answer to the hang recovery prompt.
type Choice int

const (
	ChoiceWait Choice = iota
	ChoiceCancel
	ChoiceQuit
)

func (c Choice) String() string {
	switch c {
	case ChoiceCancel:
		return "cancel"
	case ChoiceQuit:
		return "quit"
	default:
		return "wait"
	}
}

// Monitor is the part of Reporter the watchdog reads and drives.
type Monitor interface {
	Heartbeat() time.Time
	Active() bool
	CancelRequested() bool
	Touch()
	RequestCancel() bool
}

type WatchdogOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	MaxHang  time.Duration
	Now      func() time.Time
	// Prompt asks the user how to recover from a hang. It may block.
	Prompt func(ctx context.Context, idle time.Duration) Choice
	Quit   func()
	Logger *log.Entry
}

// Watchdog polls a heartbeat and raises the alarm only while a run is in
// progress and not already being cancelled.
type Watchdog struct {
	mon    Monitor
	opts   WatchdogOptions
	warned bool
}

func NewWatchdog(mon Monitor, opts WatchdogOptions) *Watchdog {
	if opts.Interval <= 0 {
		opts.Interval = DefaultWatchdogInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultWatchdogTimeout
	}
	if opts.MaxHang <= 0 {
		opts.MaxHang = 4 * opts.Timeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Quit == nil {
		opts.Quit = func() { os.Exit(130) }
	}
	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}
	return &Watchdog{mon: mon, opts: opts}
}

// Run polls until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	t := time.NewTicker(w.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Check(ctx)
		}
	}
}

// Check performs a single poll.
func (w *Watchdog) Check(ctx context.Context) {
	if !w.mon.Active() || w.mon.CancelRequested() {
		w.warned = false
		return
	}
	idle := w.opts.Now().Sub(w.mon.Heartbeat())
	switch {
	case idle >= w.opts.MaxHang:
		w.warned = false
		w.handleHang(ctx, idle)
	case idle >= w.opts.Timeout:
		if !w.warned {
			w.warned = true
			w.opts.Logger.WithField("idle", idle.Round(time.Second)).Warn("no progress reported; downloads may be hung")
		}
	default:
		w.warned = false
	}
}

func (w *Watchdog) handleHang(ctx context.Context, idle time.Duration) {
	choice := ChoiceWait
	if w.opts.Prompt != nil {
		choice = w.opts.Prompt(ctx, idle)
	}
	w.opts.Logger.WithFields(log.Fields{"idle": idle.Round(time.Second), "choice": choice}).Warn("run appears hung")
	switch choice {
	case ChoiceCancel:
		w.mon.RequestCancel()
	case ChoiceQuit:
		w.opts.Quit()
	default:
		w.mon.Touch()
	}
}
