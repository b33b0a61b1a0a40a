// Package tui hosts a live field in the terminal. The bubbletea program
// loop is the single goroutine that owns the text area and the sync
// controller; transport callbacks and timer fires reach it as program
// messages.
package tui

import (
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"collabtext/internal/clock"
	"collabtext/livesync"
	"collabtext/textarea"
)

// Config describes the field being hosted.
type Config struct {
	Room    string
	Channel livesync.Channel

	QuietInterval time.Duration
	Clock         clock.Clock
	Logger        *slog.Logger
}

// eventMsg carries a controller event into the program loop.
type eventMsg livesync.Event

// Program is a running terminal host.
type Program struct {
	program *tea.Program
	model   *Model
}

// NewProgram builds the model and the bubbletea program around it.
func NewProgram(cfg Config, opts ...tea.ProgramOption) *Program {
	p := &Program{}
	p.model = newModel(cfg, p.Post)
	p.program = tea.NewProgram(p.model, opts...)
	return p
}

// Post delivers ev to the program loop. Safe from any goroutine.
func (p *Program) Post(ev livesync.Event) { p.program.Send(eventMsg(ev)) }

// Run blocks until the user quits or Quit is called.
func (p *Program) Run() error {
	_, err := p.program.Run()
	return err
}

func (p *Program) Quit() { p.program.Quit() }

type statusLine struct{ text string }

func (s *statusLine) SetText(text string) { s.text = text }

var (
	caretStyle  = lipgloss.NewStyle().Reverse(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Model is the bubbletea model for one field.
type Model struct {
	room       string
	area       *textarea.Area
	status     *statusLine
	controller *livesync.Controller
	width      int
}

func newModel(cfg Config, post func(livesync.Event)) *Model {
	m := &Model{
		room:   cfg.Room,
		area:   textarea.New(0),
		status: &statusLine{text: "Connecting..."},
	}
	m.controller = livesync.New(livesync.Config{
		Surface:       m.area,
		Status:        m.status,
		Channel:       cfg.Channel,
		Post:          post,
		QuietInterval: cfg.QuietInterval,
		Clock:         cfg.Clock,
		Logger:        cfg.Logger,
	})
	return m
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.controller.Handle(livesync.Event(msg))
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.area.SetHeight(max(msg.Height-1, 1))
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			m.controller.Flush()
			m.controller.Close()
			return m, tea.Quit
		}
		if m.edit(msg) {
			m.controller.Handle(livesync.Event{Kind: livesync.KindInput})
		}
	}
	return m, nil
}

// edit applies a key to the text area and reports whether the text
// changed.
func (m *Model) edit(msg tea.KeyMsg) bool {
	a := m.area
	switch msg.Type {
	case tea.KeyRunes:
		return a.Insert(string(msg.Runes))
	case tea.KeySpace:
		return a.Insert(" ")
	case tea.KeyEnter:
		return a.Insert("\n")
	case tea.KeyTab:
		return a.Insert("\t")
	case tea.KeyBackspace:
		return a.Backspace()
	case tea.KeyDelete:
		return a.Delete()
	case tea.KeyLeft:
		a.MoveLeft()
	case tea.KeyRight:
		a.MoveRight()
	case tea.KeyUp:
		a.MoveUp()
	case tea.KeyDown:
		a.MoveDown()
	case tea.KeyHome:
		a.LineStart()
	case tea.KeyEnd:
		a.LineEnd()
	case tea.KeyPgUp:
		a.PageUp()
	case tea.KeyPgDown:
		a.PageDown()
	}
	return false
}

func (m *Model) View() string {
	var b strings.Builder
	lines, first := m.area.VisibleLines()
	caretLine, caretCol := m.area.Position(m.area.Caret())
	for i, line := range lines {
		if first+i == caretLine {
			line = withCaret(line, caretCol)
		}
		if m.width > 0 {
			line = ansi.Truncate(line, m.width, "…")
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(statusStyle.Render(m.room + " · " + m.status.text))
	b.WriteString(hintStyle.Render("  esc to quit"))
	return b.String()
}

func withCaret(line string, col int) string {
	runes := []rune(line)
	if col >= len(runes) {
		return line + caretStyle.Render(" ")
	}
	return string(runes[:col]) + caretStyle.Render(string(runes[col])) + string(runes[col+1:])
}
