// Package tui provides a terminal front-end for a running engine: a list
// of patterns with their live play state, and keys to toggle mute/queue
// and start/stop the transport. It performs no musical decision-making of
// its own; every action it sends goes straight through *engine.Engine,
// the same object the HTTP API drives.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/loopforge/engine/internal/arena"
	"github.com/loopforge/engine/internal/engine"
	"github.com/loopforge/engine/internal/pattern"
)

// tickInterval drives both the engine's scheduler step and the display
// refresh; it is deliberately coarser than the scheduler's own internal
// stepping granularity (spec §4.4 calls that "typically 1ms") since this
// is a status display, not the scheduler itself.
const tickInterval = 50 * time.Millisecond

var (
	accent    = lipgloss.Color("#39FF14")
	dim       = lipgloss.Color("#888888")
	warn      = lipgloss.Color("#FFFF00")
	titleBox  = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	rowStyle  = lipgloss.NewStyle().PaddingLeft(2)
	selStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent).PaddingLeft(2)
	helpStyle = lipgloss.NewStyle().Foreground(dim).MarginTop(1)
	boxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(1, 2)
	runStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	stopStyle = lipgloss.NewStyle().Foreground(warn)
)

// Model is the Bubble Tea model wrapping an *engine.Engine.
type Model struct {
	eng     *engine.Engine
	cursor  int
	spinner spinner.Model
	width   int
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// New builds a Model driving eng.
func New(eng *engine.Engine) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accent)
	return Model{eng: eng, spinner: s}
}

// Init starts the spinner and the periodic engine-tick/refresh loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// Update handles key presses (navigate/mute/queue/start/stop/quit) and the
// periodic tick that advances the engine and refreshes the display.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		if m.eng.Running() {
			m.eng.Tick()
		}
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	handles := m.eng.Patterns()
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(handles)-1 {
			m.cursor++
		}
	case "m":
		if h, ok := selected(handles, m.cursor); ok {
			sum, _ := m.eng.PatternSummary(h)
			_ = m.eng.SetMute(h, sum.State != pattern.Muted)
		}
	case "o":
		if h, ok := selected(handles, m.cursor); ok {
			_ = m.eng.QueueOn(h)
		}
	case "f":
		if h, ok := selected(handles, m.cursor); ok {
			_ = m.eng.QueueOff(h)
		}
	case " ":
		if m.eng.Running() {
			m.eng.Stop()
		} else {
			m.eng.Start(0)
		}
	}
	return m, nil
}

func selected(handles []arena.Handle, i int) (arena.Handle, bool) {
	if i < 0 || i >= len(handles) {
		return 0, false
	}
	return handles[i], true
}

// View renders the pattern list and transport status.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleBox.Render(" LOOPFORGE ENGINE "))
	b.WriteString("\n\n")
	b.WriteString(m.viewTransport())
	b.WriteString("\n")
	b.WriteString(m.viewPatterns())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓: select  m: mute  o: queue-on  f: queue-off  space: start/stop  q: quit"))
	return b.String()
}

func (m Model) viewTransport() string {
	tick := m.eng.CurrentTick()
	bpm := m.eng.BPMAt(tick)
	status := stopStyle.Render("stopped")
	if m.eng.Running() {
		status = runStyle.Render(m.spinner.View() + " running")
	}
	return boxStyle.Render(fmt.Sprintf("%s   tick=%d   bpm=%.1f   ppqn=%d", status, tick, bpm, m.eng.PPQN()))
}

func (m Model) viewPatterns() string {
	handles := m.eng.Patterns()
	if len(handles) == 0 {
		return rowStyle.Render("(no patterns)")
	}
	var b strings.Builder
	for i, h := range handles {
		sum, err := m.eng.PatternSummary(h)
		if err != nil {
			continue
		}
		line := fmt.Sprintf("%-16s ch=%-2d bus=%-2d len=%-6d %s", sum.Name, sum.Channel, sum.Bus, sum.Length, engine.StateName(sum.State))
		if i == m.cursor {
			b.WriteString(selStyle.Render("▸ " + line))
		} else {
			b.WriteString(rowStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// Run starts the TUI against eng in the alt screen.
func Run(eng *engine.Engine) error {
	p := tea.NewProgram(New(eng), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
