package main

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unklstewy/flighttrack/internal/session"
	"github.com/unklstewy/flighttrack/pkg/config"
	"github.com/unklstewy/flighttrack/pkg/flight"
	"github.com/unklstewy/flighttrack/pkg/gateway"
)

var day = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

type fakeBackend struct{ session.Backend }

func (fakeBackend) GetFlight(_ context.Context, n string) (flight.Flight, error) {
	if n != "AA1" {
		return flight.Flight{}, &flight.RemoteError{Operation: "get flight", StatusCode: 404, Message: "Flight not found"}
	}
	return flight.Flight{FlightNumber: "AA1", Status: flight.StatusActive,
		Origin: flight.Airport{Code: "JFK", City: "New York", Coordinates: flight.Coordinates{Latitude: 40.6, Longitude: -73.8}}}, nil
}

func (fakeBackend) Path(context.Context, string, gateway.PathRange) ([]flight.TrackingSample, error) {
	out := make([]flight.TrackingSample, 0, 4)
	for i := 0; i < 4; i++ {
		out = append(out, flight.TrackingSample{
			FlightNumber: "AA1",
			Timestamp:    day.Add(time.Duration(12*60+i*10) * time.Minute),
			Position:     flight.Position{Latitude: 41 + float64(i)*0.5, Longitude: -73 + float64(i), Altitude: 30000},
			Speed:        450,
			Heading:      60,
		})
	}
	return out, nil
}

func (fakeBackend) Location(context.Context, string, *time.Time) (flight.TrackingSample, error) {
	return flight.TrackingSample{}, &flight.RemoteError{Operation: "get location", StatusCode: 404}
}

func newTestModel() model {
	cfg := config.DefaultConfig()
	sess := session.New(fakeBackend{}, session.Options{Render: cfg.Map.RenderOptions()})
	return newModel(sess, cfg)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send feeds msg to the model and runs the returned command once.
func send(t *testing.T, m model, msg tea.Msg) (model, tea.Msg) {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(model)
	if cmd == nil {
		return m, nil
	}
	return m, cmd()
}

func typeFlight(t *testing.T, m model, number string) model {
	t.Helper()
	m, _ = send(t, m, key("/"))
	for _, r := range number {
		m, _ = send(t, m, key(string(r)))
	}
	m, out := send(t, m, key("enter"))
	if out == nil {
		t.Fatal("Expected a track command after ENTER")
	}
	m, _ = send(t, m, out)
	return m
}

func TestTrackFlightFromInput(t *testing.T) {
	m := typeFlight(t, newTestModel(), "aa1")

	if m.err != nil {
		t.Fatalf("Expected no error, got %v", m.err)
	}
	if m.view == nil || m.view.Flight.FlightNumber != "AA1" {
		t.Fatalf("Expected AA1 view, got %+v", m.view)
	}
	grid := strings.Join(m.canvas.Rows(), "\n")
	if !strings.ContainsRune(grid, '↗') {
		t.Errorf("Expected current position arrow on the map:\n%s", grid)
	}
	if !strings.Contains(m.View(), "JFK - New York") {
		t.Error("Expected origin in the info panel")
	}
}

func TestTrackUnknownFlight(t *testing.T) {
	m := typeFlight(t, newTestModel(), "ZZ9")
	if m.err == nil || !strings.Contains(m.View(), "Flight not found") {
		t.Errorf("Expected backend message in view, got err %v", m.err)
	}

	// Any key clears the error
	m, _ = send(t, m, key("x"))
	if m.err != nil {
		t.Error("Expected error cleared by keypress")
	}
}

func TestScrubAndTimeQuery(t *testing.T) {
	m := typeFlight(t, newTestModel(), "AA1")

	m, out := send(t, m, key("left"))
	if m.cursor != 2 {
		t.Errorf("Expected cursor on sample 2, got %d", m.cursor)
	}
	m, _ = send(t, m, out)
	if m.position == nil || !m.position.Timestamp.Equal(day.Add(12*time.Hour+20*time.Minute)) {
		t.Fatalf("Expected position at 12:20, got %+v", m.position)
	}

	t.Run("Typed time", func(t *testing.T) {
		m, _ := send(t, m, key("t"))
		for _, r := range "12:15" {
			m, _ = send(t, m, key(string(r)))
		}
		m, out := send(t, m, key("enter"))
		m, _ = send(t, m, out)
		if m.position == nil || !m.position.Timestamp.Equal(day.Add(12*time.Hour+10*time.Minute)) {
			t.Errorf("Expected preceding sample at 12:10, got %+v", m.position)
		}
	})

	t.Run("Back to now", func(t *testing.T) {
		m, _ := send(t, m, key("n"))
		if m.position != nil || m.cursor != -1 {
			t.Error("Expected time query cleared")
		}
	})
}

func TestSupersededResultIsIgnored(t *testing.T) {
	m := newTestModel()
	m, _ = send(t, m, viewMsg{err: session.ErrSuperseded})
	if m.err != nil {
		t.Errorf("Superseded results must not surface as errors, got %v", m.err)
	}
}

func TestStaleResultsAreNotPainted(t *testing.T) {
	ctx := context.Background()

	t.Run("View overtaken before it is applied", func(t *testing.T) {
		m := newTestModel()
		stale, err := m.session.TrackFlight(ctx, "AA1")
		if err != nil {
			t.Fatalf("TrackFlight: %v", err)
		}
		// A newer track request starts before the first view reaches Update
		m.session.TrackFlight(ctx, "ZZ9")

		m, _ = send(t, m, viewMsg{view: stale})
		if m.view != nil {
			t.Errorf("Expected stale view dropped, got %s", m.view.Flight.FlightNumber)
		}
		if m.err != nil {
			t.Errorf("Expected no error, got %v", m.err)
		}
		if grid := strings.Join(m.canvas.Rows(), ""); strings.TrimSpace(grid) != "" {
			t.Errorf("Expected blank map, got:\n%s", grid)
		}
	})

	t.Run("Position overtaken before it is applied", func(t *testing.T) {
		m := typeFlight(t, newTestModel(), "AA1")
		stale, err := m.session.Locate(ctx, "AA1", day.Add(12*time.Hour+10*time.Minute))
		if err != nil {
			t.Fatalf("Locate: %v", err)
		}
		if _, err := m.session.Locate(ctx, "AA1", day.Add(12*time.Hour+20*time.Minute)); err != nil {
			t.Fatalf("Locate: %v", err)
		}

		m, _ = send(t, m, positionMsg{pos: stale})
		if m.position != nil {
			t.Errorf("Expected stale position dropped, got %v", m.position.Timestamp)
		}
	})
}

func TestParseQueryTime(t *testing.T) {
	path := []flight.TrackingSample{{Timestamp: day.Add(9 * time.Hour)}}

	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"12:30", day.Add(12*time.Hour + 30*time.Minute), true},
		{"12:30:15", day.Add(12*time.Hour + 30*time.Minute + 15*time.Second), true},
		{"2025-03-15T01:00:00Z", day.Add(25 * time.Hour), true},
		{"noon", time.Time{}, false},
	}
	for _, tt := range tests {
		got, err := parseQueryTime(tt.in, path)
		if tt.ok && (err != nil || !got.Equal(tt.want)) {
			t.Errorf("parseQueryTime(%q): expected %v, got %v (%v)", tt.in, tt.want, got, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("parseQueryTime(%q): expected error", tt.in)
		}
	}
}
