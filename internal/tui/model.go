// Package tui renders a live download run: overall progress, the fetches in
// flight, the log stream and the hang recovery prompt.
package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"favesave/internal/model"
	"favesave/internal/report"
)

const maxLogLines = 500

type LogMsg struct{ Line string }

type PercentMsg struct{ Pct int }

type SnapshotMsg struct{ Snapshot model.Snapshot }

type StateMsg struct{ State model.RunState }

type FetchLineMsg struct {
	Item model.WorkItem
	Line string
}

// HangMsg opens the recovery prompt. The answer is sent on Reply.
type HangMsg struct {
	Idle  time.Duration
	Reply chan<- report.Choice
}

// DoneMsg ends the run view; the program keeps showing the summary until
// the user quits.
type DoneMsg struct {
	Result model.RunResult
	Err    error
}

type Options struct {
	Title string
	// Cancel asks the running pipeline to stop. It reports false when no
	// run was active.
	Cancel func() bool
}

type fetchLine struct {
	label string
	line  string
}

type Model struct {
	opts   Options
	width  int
	height int

	bar  progress.Model
	logs viewport.Model

	lines      []string // rendered with terminal hyperlinks
	pct        int
	snap       model.Snapshot
	state      model.RunState
	fetches    map[string]fetchLine
	order      []string
	hang       *HangMsg
	cancelling bool
	done       *DoneMsg
}

func New(opts Options) Model {
	if strings.TrimSpace(opts.Title) == "" {
		opts.Title = "FaveSave"
	}
	return Model{
		opts:    opts,
		width:   100,
		height:  30,
		bar:     progress.New(progress.WithDefaultGradient()),
		logs:    viewport.New(96, 10),
		state:   model.StateIdle,
		fetches: map[string]fetchLine{},
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

// Done returns the DoneMsg the model received, if any.
func (m Model) Done() (DoneMsg, bool) {
	if m.done == nil {
		return DoneMsg{}, false
	}
	return *m.done, true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil
	case LogMsg:
		m.appendLog(msg.Line)
		return m, nil
	case PercentMsg:
		m.pct = clampInt(msg.Pct, 0, 100)
		return m, nil
	case SnapshotMsg:
		m.snap = msg.Snapshot
		m.dropFetch(msg.Snapshot.CurrentURL)
		return m, nil
	case StateMsg:
		m.state = msg.State
		if msg.State == model.StateEnumerating {
			m.cancelling = false
			m.pct = 0
		}
		return m, nil
	case FetchLineMsg:
		if _, ok := m.fetches[msg.Item.URL]; !ok {
			m.order = append(m.order, msg.Item.URL)
		}
		m.fetches[msg.Item.URL] = fetchLine{label: msg.Item.Label + model.MediaID(msg.Item.URL), line: msg.Line}
		return m, nil
	case HangMsg:
		h := msg
		m.hang = &h
		return m, nil
	case DoneMsg:
		d := msg
		m.done = &d
		m.hang = nil
		m.fetches = map[string]fetchLine{}
		m.order = nil
		if d.Err != nil {
			m.appendLog("Error: " + d.Err.Error())
		}
		return m, nil
	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.hang != nil {
		choice, ok := hangChoice(msg)
		if !ok {
			return m, nil
		}
		select {
		case m.hang.Reply <- choice:
		default:
		}
		m.hang = nil
		if choice == report.ChoiceCancel {
			m.cancelling = true
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "esc":
		if m.done != nil {
			return m, tea.Quit
		}
		return m.requestCancel(), nil
	case "c":
		return m.requestCancel(), nil
	case "ctrl+c":
		if m.done != nil || m.cancelling {
			return m, tea.Quit
		}
		return m.requestCancel(), nil
	case "up", "k", "down", "j", "pgup", "pgdown":
		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(msg)
		return m, cmd
	}
	return m, nil
}

func hangChoice(msg tea.KeyMsg) (report.Choice, bool) {
	switch msg.String() {
	case "w", "enter":
		return report.ChoiceWait, true
	case "c":
		return report.ChoiceCancel, true
	case "q", "ctrl+c":
		return report.ChoiceQuit, true
	}
	return report.ChoiceWait, false
}

func (m Model) requestCancel() Model {
	if m.done != nil || m.cancelling {
		return m
	}
	if m.opts.Cancel != nil && m.opts.Cancel() {
		m.cancelling = true
		m.appendLog("Cancelling: waiting for running downloads to stop...")
	}
	return m
}

func (m *Model) appendLog(line string) {
	m.lines = append(m.lines, report.LinkifyTerminal(line))
	if len(m.lines) > maxLogLines {
		m.lines = slices.Clone(m.lines[len(m.lines)-maxLogLines:])
	}
	m.logs.SetContent(strings.Join(m.lines, "\n"))
	m.logs.GotoBottom()
}

func (m *Model) dropFetch(url string) {
	if _, ok := m.fetches[url]; !ok {
		return
	}
	delete(m.fetches, url)
	m.order = slices.DeleteFunc(m.order, func(u string) bool { return u == url })
}

func (m *Model) layout() {
	inner := max(m.width-4, 20)
	m.bar.Width = clampInt(inner-8, 10, 80)
	m.logs.Width = inner
	m.logs.Height = max(m.height-12-len(m.order), 3)
}

func (m Model) View() string {
	if m.hang != nil {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.hangView())
	}
	header := titleStyle.Render(m.opts.Title) + "  " + m.statusText()
	bar := m.bar.ViewAs(float64(m.pct)/100) + fmt.Sprintf(" %3d%%", m.pct)
	counts := mutedStyle.Render(fmt.Sprintf("item %d/%d | downloaded %d | failed %d | elapsed %s",
		m.snap.CurrentIndex, m.snap.Total, m.snap.DownloadedSoFar, m.snap.FailedSoFar, formatElapsed(m.snap.Elapsed)))

	inner := max(m.width-4, 20)
	active := make([]string, 0, len(m.order))
	for _, u := range m.order {
		f := m.fetches[u]
		active = append(active, truncateRunes(fmt.Sprintf("%s  %s", f.label, f.line), inner))
	}
	if len(active) == 0 {
		active = append(active, mutedStyle.Render("(no downloads running)"))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		bar,
		counts,
		panelStyle.Width(m.width-2).Render(strings.Join(active, "\n")),
		panelStyle.Width(m.width-2).Render(m.logs.View()),
		mutedStyle.Render(m.hints()),
	)
}

func (m Model) statusText() string {
	switch {
	case m.done != nil && m.done.Err != nil:
		return errorStyle.Render("failed")
	case m.done != nil && m.done.Result.State == model.StateCancelled:
		return warnStyle.Render("cancelled")
	case m.done != nil:
		return okStyle.Render("completed")
	case m.cancelling:
		return warnStyle.Render("cancelling")
	default:
		return mutedStyle.Render(string(m.state))
	}
}

func (m Model) hints() string {
	if m.done != nil {
		return "q: quit | up/down: scroll log"
	}
	if m.cancelling {
		return "ctrl+c: force quit | up/down: scroll log"
	}
	return "c: cancel run | up/down: scroll log"
}

func (m Model) hangView() string {
	text := fmt.Sprintf(
		"No progress for %s.\n\nDownloads may be hung.\n\nw: keep waiting\nc: cancel the run\nq: quit now",
		formatElapsed(m.hang.Idle),
	)
	boxW := clampInt(m.width-8, 36, 60)
	return panelStyle.Width(boxW).Render(warnStyle.Render("Run appears hung") + "\n\n" + text)
}
