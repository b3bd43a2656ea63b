package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/flighttrack/internal/session"
	"github.com/unklstewy/flighttrack/pkg/config"
	"github.com/unklstewy/flighttrack/pkg/flight"
	"github.com/unklstewy/flighttrack/pkg/render"
	"github.com/unklstewy/flighttrack/pkg/render/grid"
	"github.com/unklstewy/flighttrack/pkg/tracking"
)

// requestTimeout bounds every backend round trip started from the UI
const requestTimeout = 15 * time.Second

// InputMode is what the input field is currently asking for
type InputMode int

const (
	InputNone InputMode = iota
	InputFlight
	InputTime
)

// AppConfig holds the application dependencies
type AppConfig struct {
	Config  *config.Config
	Session *session.Session
	Logs    *LogManager
}

// App represents the console application
type App struct {
	config  *config.Config
	session *session.Session

	// UI components
	tviewApp   *tview.Application
	mapView    *MapView
	info       *tview.TextView
	controls   *tview.TextView
	flights    *tview.List
	input      *tview.InputField
	logs       *LogManager
	rootLayout *tview.Flex
	inputMode  InputMode

	// State
	mu       sync.RWMutex
	view     *session.View
	position *flight.TrackingSample
	cursor   int
	clicked  *render.Marker
	active   []flight.Flight

	unsubscribe func()
	updateTimer *time.Ticker
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewApp creates a new application instance
func NewApp(cfg *AppConfig) *App {
	app := &App{
		config:   cfg.Config,
		session:  cfg.Session,
		logs:     cfg.Logs,
		cursor:   -1,
		stopChan: make(chan struct{}),
	}

	app.setupUI()
	return app
}

// setupUI initializes the user interface
func (a *App) setupUI() {
	a.tviewApp = tview.NewApplication().EnableMouse(true)

	a.mapView = NewMapView()
	a.mapView.OnPointClick(a.markerClicked)

	a.createInfoPanel()
	a.createControlsPanel()
	a.createFlightList()
	a.createInput()
	a.createLayout()

	a.tviewApp.SetInputCapture(a.handleKeyboard)
}

func (a *App) createInfoPanel() {
	a.info = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	a.info.SetBorder(true).SetTitle(" Flight ")
	a.updateInfo()
}

func (a *App) createControlsPanel() {
	a.controls = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	a.controls.SetBorder(true).SetTitle(" Controls ")

	fmt.Fprint(a.controls, "[yellow]Flight:[-]\n")
	fmt.Fprint(a.controls, "  /      Track flight\n")
	fmt.Fprint(a.controls, "  a      Active flights\n")
	fmt.Fprint(a.controls, "  r      Reload\n")
	fmt.Fprint(a.controls, "  c      Complete flight\n")
	fmt.Fprint(a.controls, "\n[yellow]Time:[-]\n")
	fmt.Fprint(a.controls, "  t      Position at time\n")
	fmt.Fprint(a.controls, "  [ / ]  Step samples\n")
	fmt.Fprint(a.controls, "  n      Back to now\n")
	fmt.Fprint(a.controls, "\n[yellow]Map:[-]\n")
	fmt.Fprint(a.controls, "  click  Inspect marker\n")
	fmt.Fprint(a.controls, "  q      Quit\n")
}

func (a *App) createFlightList() {
	a.flights = tview.NewList().ShowSecondaryText(true)
	a.flights.SetBorder(true).SetTitle(" Active Flights ")
	a.flights.SetSelectedFunc(func(_ int, number, _ string, _ rune) {
		a.tviewApp.SetFocus(a.mapView)
		a.track(number)
	})
	a.flights.SetDoneFunc(func() {
		a.tviewApp.SetFocus(a.mapView)
	})
}

func (a *App) createInput() {
	a.input = tview.NewInputField().
		SetFieldWidth(32)
	a.input.SetDoneFunc(func(key tcell.Key) {
		value := strings.TrimSpace(a.input.GetText())
		mode := a.inputMode
		a.closeInput()
		if key != tcell.KeyEnter || value == "" {
			return
		}
		switch mode {
		case InputFlight:
			a.track(value)
		case InputTime:
			a.queryTime(value)
		}
	})
}

// createLayout arranges the map beside a sidebar of panels
func (a *App) createLayout() {
	sidebar := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.info, 0, 4, false).
		AddItem(a.flights, 0, 2, false).
		AddItem(a.controls, 0, 3, false)

	main := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.mapView, 0, 3, true).
		AddItem(a.logs.GetView(), 0, 1, false).
		AddItem(a.input, 1, 0, false)

	a.rootLayout = tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(main, 0, 7, true).
		AddItem(sidebar, 0, 3, false)

	a.tviewApp.SetRoot(a.rootLayout, true).SetFocus(a.mapView)
}

func (a *App) openInput(mode InputMode) {
	a.inputMode = mode
	switch mode {
	case InputFlight:
		a.input.SetLabel("Flight number: ")
	case InputTime:
		a.input.SetLabel("Time (HH:MM[:SS] or RFC 3339): ")
	}
	a.input.SetText("")
	a.tviewApp.SetFocus(a.input)
}

func (a *App) closeInput() {
	a.inputMode = InputNone
	a.input.SetLabel("").SetText("")
	a.tviewApp.SetFocus(a.mapView)
}

// handleKeyboard handles keyboard input
func (a *App) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	// Text entry owns the keyboard while it has focus
	if a.inputMode != InputNone || a.tviewApp.GetFocus() == a.flights && event.Key() != tcell.KeyRune {
		return event
	}

	key := event.Key()
	r := event.Rune()

	switch {
	case key == tcell.KeyEscape || r == 'q':
		a.Stop()
		return nil
	case r == '/' || r == 'f':
		a.openInput(InputFlight)
		return nil
	case r == 't':
		a.openInput(InputTime)
		return nil
	case r == 'a':
		a.loadActive()
		return nil
	case r == 'r':
		if n := a.session.Tracked(); n != "" {
			a.track(n)
		}
		return nil
	case r == 'c':
		a.complete()
		return nil
	case r == '[' || key == tcell.KeyLeft:
		a.scrub(-1)
		return nil
	case r == ']' || key == tcell.KeyRight:
		a.scrub(1)
		return nil
	case r == 'n':
		a.resetCurrent()
		return nil
	}

	return event
}

// track fetches a flight and paints it
func (a *App) track(number string) {
	a.logs.Info("Tracking %s", flight.NormalizeFlightNumber(number))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		view, err := a.session.TrackFlight(ctx, number)
		if errors.Is(err, session.ErrSuperseded) {
			return
		}
		if err != nil {
			a.logs.Error("Track %s: %v", number, err)
			return
		}

		a.tviewApp.QueueUpdateDraw(func() {
			err := a.session.Paint(a.mapView, view)
			if errors.Is(err, session.ErrSuperseded) {
				return
			}
			if err != nil {
				a.logs.Error("Paint %s: %v", view.Flight.FlightNumber, err)
			}

			a.mu.Lock()
			a.view = view
			a.position = nil
			a.cursor = -1
			a.clicked = nil
			a.mu.Unlock()

			a.mapView.SetTitle(fmt.Sprintf(" %s ", view.Flight.FlightNumber))
			a.updateInfo()
		})
		a.logs.Info("%s: %d samples, status %s", view.Flight.FlightNumber, len(view.Path), view.Flight.Status)
	}()
}

// queryTime resolves the tracked flight's position at a typed time
func (a *App) queryTime(value string) {
	a.mu.RLock()
	view := a.view
	a.mu.RUnlock()
	if view == nil {
		a.logs.Warn("No flight loaded")
		return
	}

	at, err := parseQueryTime(value, view.Path)
	if err != nil {
		a.logs.Error("%v", err)
		return
	}
	a.positionAt(view.Flight.FlightNumber, at, -1)
}

func (a *App) positionAt(number string, at time.Time, cursor int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		pos, err := a.session.Locate(ctx, number, at)
		if errors.Is(err, session.ErrSuperseded) {
			return
		}
		if err != nil {
			a.logs.Warn("Position of %s at %s: %v", number, at.UTC().Format(time.RFC3339), err)
			return
		}

		a.tviewApp.QueueUpdateDraw(func() {
			err := a.session.ShowPosition(a.mapView, pos)
			if errors.Is(err, session.ErrSuperseded) {
				return
			}
			if err != nil {
				a.logs.Error("Draw position: %v", err)
			}

			sample := pos.TrackingSample
			a.mu.Lock()
			a.position = &sample
			a.cursor = cursor
			a.mu.Unlock()
			a.updateInfo()
		})
	}()
}

// scrub steps the highlighted position one sample back or forward
func (a *App) scrub(step int) {
	a.mu.RLock()
	view, cur := a.view, a.cursor
	a.mu.RUnlock()
	if view == nil || len(view.Path) == 0 {
		return
	}

	last := len(view.Path) - 1
	if cur < 0 {
		cur = last
	}
	cur += step
	if cur < 0 {
		cur = 0
	}
	if cur >= last {
		a.resetCurrent()
		return
	}
	a.positionAt(view.Flight.FlightNumber, view.Path[cur].Timestamp, cur)
}

func (a *App) resetCurrent() {
	a.mu.Lock()
	view := a.view
	a.position = nil
	a.cursor = -1
	a.mu.Unlock()

	if view != nil {
		err := a.session.ShowCurrent(a.mapView, view)
		if err != nil && !errors.Is(err, session.ErrSuperseded) {
			a.logs.Error("Draw position: %v", err)
		}
	}
	a.updateInfo()
}

// loadActive fills the flight list with the backend's active flights
func (a *App) loadActive() {
	a.logs.Debug("Fetching active flights")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		flights, err := a.session.ActiveFlights(ctx)
		if err != nil {
			a.logs.Error("Active flights: %v", err)
			return
		}

		a.tviewApp.QueueUpdateDraw(func() {
			a.mu.Lock()
			a.active = flights
			a.mu.Unlock()

			a.flights.Clear()
			for _, f := range flights {
				a.flights.AddItem(f.FlightNumber, routeLabel(f), 0, nil)
			}
			a.flights.SetTitle(fmt.Sprintf(" Active Flights (%d) ", len(flights)))
			if len(flights) > 0 {
				a.tviewApp.SetFocus(a.flights)
			}
		})
		a.logs.Info("%d active flights", len(flights))
	}()
}

// complete marks the tracked flight completed
func (a *App) complete() {
	number := a.session.Tracked()
	if number == "" {
		a.logs.Warn("No flight loaded")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		msg, err := a.session.CompleteFlight(ctx, number)
		if err != nil {
			a.logs.Error("Complete %s: %v", number, err)
			return
		}
		if msg == "" {
			msg = "flight completed"
		}
		a.logs.Info("%s: %s", number, msg)
		a.track(number)
	}()
}

func (a *App) markerClicked(m render.Marker) {
	a.mu.Lock()
	a.clicked = &m
	a.mu.Unlock()
	a.logs.Debug("Clicked %s", m.Key)
	a.updateInfo()
}

func routeLabel(f flight.Flight) string {
	from, to := f.Origin.Code, f.Destination.Code
	if from == "" && to == "" {
		return string(f.Status)
	}
	return fmt.Sprintf("%s → %s", from, to)
}

// updateInfo redraws the flight panel. Call from the UI goroutine.
func (a *App) updateInfo() {
	a.mu.RLock()
	defer a.mu.RUnlock()

	a.info.Clear()
	if a.view == nil {
		fmt.Fprint(a.info, "[gray]No flight loaded.\nPress / to search.[-]\n")
		return
	}

	f := a.view.Flight
	fmt.Fprintf(a.info, "[yellow]%s[-]  %s\n", f.FlightNumber, statusTag(f.Status))
	if f.Airline != "" {
		fmt.Fprintf(a.info, "Airline:  %s\n", f.Airline)
	}
	if f.AircraftType != "" {
		fmt.Fprintf(a.info, "Aircraft: %s\n", f.AircraftType)
	}
	if l := f.Origin.Label(); l != "" {
		fmt.Fprintf(a.info, "From:     %s\n", l)
	}
	if l := f.Destination.Label(); l != "" {
		fmt.Fprintf(a.info, "To:       %s\n", l)
	}

	st := a.view.Statistics
	fmt.Fprintf(a.info, "\n[yellow]Path:[-] %d samples\n", st.TotalPoints)
	if st.TotalPoints > 0 {
		fmt.Fprintf(a.info, "Distance: %.0f NM\n", st.DistanceNM)
		fmt.Fprintf(a.info, "Duration: %.0f min\n", st.DurationMinutes)
		fmt.Fprintf(a.info, "Max alt:  %.0f ft\n", st.MaxAltitude)
	}

	pos, heading := a.view.Current, "Current"
	if a.position != nil {
		pos, heading = a.position, "At query"
	}
	fmt.Fprintf(a.info, "\n[yellow]%s:[-]\n", heading)
	if pos == nil {
		fmt.Fprint(a.info, "[gray]No position reported[-]\n")
	} else {
		fmt.Fprintf(a.info, "Time:     %s\n", pos.Timestamp.UTC().Format("15:04:05Z"))
		fmt.Fprintf(a.info, "Lat/Lon:  %.4f, %.4f\n", pos.Position.Latitude, pos.Position.Longitude)
		fmt.Fprintf(a.info, "Altitude: %.0f ft\n", pos.Position.Altitude)
		fmt.Fprintf(a.info, "Speed:    %.0f kts\n", pos.Speed)
		fmt.Fprintf(a.info, "Heading:  %.0f° %c\n", pos.Heading, grid.HeadingGlyph(pos.Heading))
	}

	if a.clicked != nil {
		fmt.Fprintf(a.info, "\n[yellow]Marker %s:[-]\n", a.clicked.Key)
		if a.clicked.Label != "" {
			fmt.Fprintf(a.info, "%s\n", tview.Escape(a.clicked.Label))
		}
		keys := make([]string, 0, len(a.clicked.Metadata))
		for k := range a.clicked.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(a.info, "%-9s %s\n", k+":", a.clicked.Metadata[k])
		}
	}
}

func statusTag(s flight.Status) string {
	switch s {
	case flight.StatusActive:
		return "[green]active[-]"
	case flight.StatusCompleted:
		return "[gray]completed[-]"
	}
	return "[blue]" + string(s) + "[-]"
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

// Run starts the application
func (a *App) Run() error {
	a.unsubscribe = a.session.Subscribe(func(ev tracking.PathEvent) {
		if ev.FlightNumber == a.session.Tracked() {
			a.logs.Debug("%s path %s (v%d, %d samples)", ev.FlightNumber, ev.Kind, ev.Version, ev.Count)
		}
	})

	a.updateTimer = time.NewTicker(a.config.UI.RefreshInterval())
	go a.updateLoop()

	return a.tviewApp.Run()
}

// updateLoop keeps the map in step with the terminal size
func (a *App) updateLoop() {
	for {
		select {
		case <-a.updateTimer.C:
			a.tviewApp.Draw()
		case <-a.stopChan:
			return
		}
	}
}

// Stop stops the application
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		a.logs.Info("Shutting down...")
		if a.updateTimer != nil {
			a.updateTimer.Stop()
		}
		if a.unsubscribe != nil {
			a.unsubscribe()
		}
		close(a.stopChan)
		a.tviewApp.Stop()
	})
}
