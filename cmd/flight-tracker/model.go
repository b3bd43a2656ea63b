package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/flighttrack/internal/session"
	"github.com/unklstewy/flighttrack/pkg/config"
	"github.com/unklstewy/flighttrack/pkg/flight"
	"github.com/unklstewy/flighttrack/pkg/render"
	"github.com/unklstewy/flighttrack/pkg/render/grid"
)

// Screen rows above the canvas' top border: title and a blank line
const canvasTop = 2

const requestTimeout = 15 * time.Second

type model struct {
	session *session.Session
	canvas  *grid.Canvas
	refresh time.Duration
	startup []tea.Cmd

	view     *session.View
	position *flight.TrackingSample // Result of the last time query
	cursor   int                    // Sample index being scrubbed, -1 for current
	clicked  *render.Marker
	active   []flight.Flight
	selected int
	showList bool
	loading  bool
	err      error
	now      time.Time

	inputMode   string // "flight", "time" or ""
	inputBuffer string
}

type tickMsg time.Time

type viewMsg struct {
	view *session.View
	err  error
}

type positionMsg struct {
	pos session.Position
	err error
}

type activeMsg struct {
	flights []flight.Flight
	err     error
}

func newModel(sess *session.Session, cfg *config.Config) model {
	c := grid.NewCanvas(cfg.UI.GridWidth, cfg.UI.GridHeight)
	m := model{
		session: sess,
		canvas:  c,
		refresh: cfg.UI.RefreshInterval(),
		cursor:  -1,
		now:     time.Now(),
	}
	return m
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(append([]tea.Cmd{m.tick()}, m.startup...)...)
}

func (m model) trackCmd(number string) tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		v, err := sess.TrackFlight(ctx, number)
		return viewMsg{view: v, err: err}
	}
}

func (m model) positionCmd(number string, at time.Time) tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		pos, err := sess.Locate(ctx, number, at)
		return positionMsg{pos: pos, err: err}
	}
}

func (m model) activeCmd() tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		flights, err := sess.ActiveFlights(ctx)
		return activeMsg{flights: flights, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.inputMode != "" {
			return m.updateInput(msg)
		}

		// Clear error on any keypress (but don't quit)
		if m.err != nil {
			m.err = nil
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "/", "f":
			m.inputMode = "flight"
			m.inputBuffer = ""
		case "t":
			if m.view != nil {
				m.inputMode = "time"
				m.inputBuffer = ""
			}
		case "a":
			m.showList = !m.showList
			if m.showList {
				m.loading = true
				return m, m.activeCmd()
			}
		case "up", "k":
			if m.showList && m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.showList && m.selected < len(m.active)-1 {
				m.selected++
			}
		case "enter", " ":
			if m.showList && m.selected < len(m.active) {
				m.showList = false
				m.loading = true
				return m, m.trackCmd(m.active[m.selected].FlightNumber)
			}
		case "left", "h":
			return m.scrub(-1)
		case "right", "l":
			return m.scrub(1)
		case "n":
			// Back to the current position
			return m.resetCurrent(), nil
		case "r":
			if m.view != nil {
				m.loading = true
				return m, m.trackCmd(m.view.Flight.FlightNumber)
			}
		}

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			// One column for the left border, one row for the top border
			if mk, ok := m.canvas.ClickAt(msg.X-1, msg.Y-canvasTop-1); ok {
				m.clicked = &mk
			} else {
				m.clicked = nil
			}
		}

	case tea.WindowSizeMsg:
		w, h := msg.Width-2-infoWidth-2, msg.Height-canvasTop-2-3
		if w >= 20 && h >= 5 {
			m.canvas.Resize(w, h)
		}

	case viewMsg:
		m.loading = false
		if msg.err != nil {
			if !errors.Is(msg.err, session.ErrSuperseded) {
				m.err = msg.err
			}
			return m, nil
		}
		err := m.session.Paint(m.canvas, msg.view)
		if errors.Is(err, session.ErrSuperseded) {
			return m, nil
		}
		if err != nil {
			m.err = err
		}
		m.view = msg.view
		m.position = nil
		m.cursor = -1
		m.clicked = nil

	case positionMsg:
		if msg.err != nil {
			if !errors.Is(msg.err, session.ErrSuperseded) {
				m.err = msg.err
			}
			return m, nil
		}
		err := m.session.ShowPosition(m.canvas, msg.pos)
		if errors.Is(err, session.ErrSuperseded) {
			return m, nil
		}
		if err != nil {
			m.err = err
		}
		pos := msg.pos.TrackingSample
		m.position = &pos

	case activeMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.showList = false
			return m, nil
		}
		m.active = msg.flights
		m.selected = 0

	case tickMsg:
		m.now = time.Time(msg)
		return m, m.tick()
	}

	return m, nil
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		mode, buf := m.inputMode, strings.TrimSpace(m.inputBuffer)
		m.inputMode = ""
		m.inputBuffer = ""
		switch mode {
		case "flight":
			if buf == "" {
				return m, nil
			}
			m.loading = true
			return m, m.trackCmd(buf)
		case "time":
			at, err := parseQueryTime(buf, m.view.Path)
			if err != nil {
				m.err = err
				return m, nil
			}
			return m, m.positionCmd(m.view.Flight.FlightNumber, at)
		}
	case "esc":
		m.inputMode = ""
		m.inputBuffer = ""
	case "backspace":
		if len(m.inputBuffer) > 0 {
			m.inputBuffer = m.inputBuffer[:len(m.inputBuffer)-1]
		}
	default:
		if len(msg.String()) == 1 {
			m.inputBuffer += msg.String()
		}
	}
	return m, nil
}

// scrub steps the time query one sample back or forward.
func (m model) scrub(step int) (tea.Model, tea.Cmd) {
	if m.view == nil || len(m.view.Path) == 0 {
		return m, nil
	}
	last := len(m.view.Path) - 1
	cur := m.cursor
	if cur < 0 {
		cur = last
	}
	cur += step
	if cur < 0 {
		cur = 0
	}
	if cur >= last {
		return m.resetCurrent(), nil
	}
	m.cursor = cur
	return m, m.positionCmd(m.view.Flight.FlightNumber, m.view.Path[cur].Timestamp)
}

func (m model) resetCurrent() model {
	m.cursor = -1
	m.position = nil
	if m.view != nil {
		err := m.session.ShowCurrent(m.canvas, m.view)
		if err != nil && !errors.Is(err, session.ErrSuperseded) {
			m.err = err
		}
	}
	return m
}

// parseQueryTime accepts RFC 3339, or HH:MM[:SS] on the UTC day of the
// path's first sample (today when the path is empty).
func parseQueryTime(s string, path []flight.TrackingSample) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	day := time.Now().UTC()
	if len(path) > 0 {
		day = path[0].Timestamp.UTC()
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use HH:MM, HH:MM:SS or RFC 3339", s)
}

func (m model) View() string {
	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	title := "FLIGHT TRACKER"
	if m.view != nil {
		title += " - " + m.view.Flight.FlightNumber
	}
	s.WriteString(titleStyle.Render(title))
	s.WriteString("\n\n")

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	if m.inputMode != "" {
		promptStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
		inputStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("226"))

		prompt := "Enter flight number (e.g., AA100):"
		if m.inputMode == "time" {
			prompt = "Enter time (HH:MM, HH:MM:SS UTC or RFC 3339):"
		}
		s.WriteString(promptStyle.Render(prompt))
		s.WriteString("\n")
		s.WriteString(inputStyle.Render("> " + m.inputBuffer + "_"))
		s.WriteString("\n\n")
		s.WriteString(helpStyle.Render("ENTER: Submit  ESC: Cancel"))
		return s.String()
	}

	if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		s.WriteString(errStyle.Render("Error: " + flight.Message(m.err)))
		s.WriteString("\n\n")
		s.WriteString(helpStyle.Render("Press any key to continue..."))
		return s.String()
	}

	if m.showList {
		s.WriteString(m.renderActiveList())
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("↑/↓: Select  ENTER: Track  A: Close  Q: Quit"))
		return s.String()
	}

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.canvas.Render(), "  ", m.renderInfo()))
	s.WriteString("\n")
	s.WriteString(m.renderLegend())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("/: Flight  T: Time  ←/→: Step  N: Now  R: Reload  A: Active  Click: Details  Q: Quit"))
	s.WriteString("\n")
	return s.String()
}
