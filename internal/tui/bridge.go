package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"favesave/internal/model"
	"favesave/internal/report"
)

// Sender is the part of *tea.Program the bridge needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Callbacks routes reporter output into the program as messages.
func Callbacks(p Sender) report.Callbacks {
	return report.Callbacks{
		Log:      func(line string) { p.Send(LogMsg{Line: line}) },
		Percent:  func(pct int) { p.Send(PercentMsg{Pct: pct}) },
		Snapshot: func(s model.Snapshot) { p.Send(SnapshotMsg{Snapshot: s}) },
		State:    func(state model.RunState) { p.Send(StateMsg{State: state}) },
		Progress: func(item model.WorkItem, line string) { p.Send(FetchLineMsg{Item: item, Line: line}) },
	}
}

// Prompt shows the hang dialog and waits for the user's answer. A cancelled
// context answers ChoiceWait.
func Prompt(p Sender) func(ctx context.Context, idle time.Duration) report.Choice {
	return func(ctx context.Context, idle time.Duration) report.Choice {
		reply := make(chan report.Choice, 1)
		p.Send(HangMsg{Idle: idle, Reply: reply})
		select {
		case c := <-reply:
			return c
		case <-ctx.Done():
			return report.ChoiceWait
		}
	}
}
