package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/session"
)

// ErrInterrupted is the cancellation cause when the user stops a scan.
var ErrInterrupted = errors.New("interrupted by user")

// eventMsg wraps one session event.
type eventMsg struct {
	event session.Event
}

// eventsClosedMsg is sent when the event channel closes.
type eventsClosedMsg struct{}

// Phase represents a scan phase with its display name
type Phase struct {
	status session.Status
	name   string
}

var phases = []Phase{
	{session.Running, "Scanning"},
	{session.Completing, "Finalizing"},
}

// ProgressModel shows a spinner and live counters while a session runs.
type ProgressModel struct {
	root    string
	events  <-chan session.Event
	cancel  context.CancelCauseFunc
	keys    KeyMap
	spinner spinner.Model

	status     session.Status
	strategy   string
	filesystem string
	last       model.ProgressSnapshot
	stopping   bool

	summary *session.Summary
	err     error
	done    bool
}

// NewProgressModel returns a model that consumes events until the session
// completes. cancel is called when the user quits.
func NewProgressModel(root string, events <-chan session.Event, cancel context.CancelCauseFunc) ProgressModel {
	return ProgressModel{
		root:   root,
		events: events,
		cancel: cancel,
		keys:   DefaultKeyMap(),
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(ActiveStyle),
		),
	}
}

// Done reports whether the session completed.
func (m ProgressModel) Done() bool { return m.done }

// Result returns the summary and error of the completed session.
func (m ProgressModel) Result() (*session.Summary, error) {
	return m.summary, m.err
}

func (m ProgressModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

// Init implements tea.Model
func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

// Update implements tea.Model
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) && !m.stopping {
			m.stopping = true
			if m.cancel != nil {
				m.cancel(ErrInterrupted)
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventsClosedMsg:
		m.done = true
		return m, tea.Quit

	case eventMsg:
		switch ev := msg.event.(type) {
		case session.StatusChangedEvent:
			m.status = ev.To
		case session.StrategySelectedEvent:
			m.strategy = ev.Strategy
			m.filesystem = ev.Filesystem
		case session.ProgressEvent:
			m.last = ev.Snapshot
		case session.CompletedEvent:
			m.summary, m.err, m.done = ev.Summary, ev.Err, true
			return m, tea.Quit
		}
		return m, m.waitForEvent()
	}
	return m, nil
}

// View implements tea.Model
func (m ProgressModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	title := "Scanning " + m.root
	if m.strategy != "" {
		title += " · " + m.strategy
		if m.filesystem != "" {
			title += " (" + m.filesystem + ")"
		}
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")

	for _, phase := range phases {
		if phase.status > m.status {
			break
		}
		stats := ""
		if phase.status == session.Running && m.last.ProcessedEntries > 0 {
			stats = fmt.Sprintf(" · %s entries · %s", humanize.Comma(m.last.ProcessedEntries), FormatSize(m.last.ProcessedBytes))
			if m.last.Throughput > 0 {
				stats += fmt.Sprintf(" · %s/s", FormatSize(int64(m.last.Throughput)))
			}
		}
		if phase.status < m.status {
			b.WriteString(fmt.Sprintf("  %s %s\n", DoneStyle.Render("✓"), DoneStyle.Render(phase.name+stats)))
			continue
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", m.spinner.View(), ActiveStyle.Render(phase.name+"..."+stats)))
	}

	if m.stopping {
		b.WriteString(WarningStyle.Render("  stopping, keeping partial results") + "\n")
	} else {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("  %s %s", m.keys.Quit.Help().Key, m.keys.Quit.Help().Desc)) + "\n")
	}
	return b.String()
}

// RunProgress runs s with a live progress view written to out and returns
// the session outcome. Quitting the view cancels the scan with
// ErrInterrupted; the partial summary is still returned.
func RunProgress(ctx context.Context, s *session.Session, out io.Writer) (*session.Summary, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	events := s.RunAsync(ctx)
	p := tea.NewProgram(NewProgressModel(s.Root(), events, cancel), tea.WithOutput(out))
	final, runErr := p.Run()

	if m, ok := final.(ProgressModel); ok && m.Done() {
		return m.Result()
	}

	// The view failed before the session finished: stop it and wait.
	cancel(ErrInterrupted)
	for ev := range events {
		if c, ok := ev.(session.CompletedEvent); ok {
			if c.Err == nil && runErr != nil && c.Summary == nil {
				return nil, runErr
			}
			return c.Summary, c.Err
		}
	}
	return nil, runErr
}
