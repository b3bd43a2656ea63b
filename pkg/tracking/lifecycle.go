package tracking

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/unklstewy/flighttrack/pkg/flight"
)

// Lifecycle tracks the metadata and status of every flight this client has
// fetched. Status only moves forward:
//
//	scheduled -> active -> completed
//	scheduled ----------> completed
//
// Completing a flight releases its samples from the PathStore; the archived
// path lives on in the backend's flight log.
type Lifecycle struct {
	mu      sync.RWMutex
	flights map[string]flight.Flight
	store   *PathStore
	logger  *slog.Logger
}

// NewLifecycle creates a tracker that clears paths in store on completion.
func NewLifecycle(store *PathStore) *Lifecycle {
	return &Lifecycle{
		flights: make(map[string]flight.Flight),
		store:   store,
		logger:  slog.Default(),
	}
}

// SetLogger replaces the default logger.
func (l *Lifecycle) SetLogger(logger *slog.Logger) { l.logger = logger }

// Track registers or refreshes a flight with metadata fetched from the
// backend and returns the record as held. A refresh updates metadata but
// never moves the status backwards. A flight reported completed out of band
// has its path cleared.
func (l *Lifecycle) Track(f flight.Flight) flight.Flight {
	f.FlightNumber = flight.NormalizeFlightNumber(f.FlightNumber)
	if !f.Status.Valid() {
		f.Status = flight.StatusScheduled
	}

	l.mu.Lock()
	prev, known := l.flights[f.FlightNumber]
	if known && f.Status.Before(prev.Status) {
		l.logger.Debug("ignoring status regression from backend",
			"flight", f.FlightNumber, "held", prev.Status, "reported", f.Status)
		f.Status = prev.Status
	}
	l.flights[f.FlightNumber] = f
	l.mu.Unlock()

	if f.Status == flight.StatusCompleted && (!known || prev.Status != flight.StatusCompleted) {
		l.store.Clear(f.FlightNumber)
	}
	return f
}

// Get returns the held record of a flight.
func (l *Lifecycle) Get(flightNumber string) (flight.Flight, error) {
	number := flight.NormalizeFlightNumber(flightNumber)

	l.mu.RLock()
	defer l.mu.RUnlock()

	f, ok := l.flights[number]
	if !ok {
		return flight.Flight{}, &flight.UnknownFlightError{FlightNumber: number}
	}
	return f, nil
}

// List returns every held flight ordered by flight number.
func (l *Lifecycle) List() []flight.Flight {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]flight.Flight, 0, len(l.flights))
	for _, f := range l.flights {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FlightNumber < out[j].FlightNumber })
	return out
}

// IsCompleted reports whether a known flight has completed. Unknown flights
// are not completed.
func (l *Lifecycle) IsCompleted(flightNumber string) bool {
	f, err := l.Get(flightNumber)
	return err == nil && f.Status == flight.StatusCompleted
}

// CanTransition reports whether moving from one status to another is legal.
// Staying in the same status is always allowed.
func CanTransition(from, to flight.Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return from == to || from.Before(to)
}

// Transition moves a flight to a new status.
func (l *Lifecycle) Transition(flightNumber string, to flight.Status) error {
	number := flight.NormalizeFlightNumber(flightNumber)

	l.mu.Lock()
	f, ok := l.flights[number]
	if !ok {
		l.mu.Unlock()
		return &flight.UnknownFlightError{FlightNumber: number}
	}
	if !CanTransition(f.Status, to) {
		l.mu.Unlock()
		return &flight.TransitionError{FlightNumber: number, From: f.Status, To: to}
	}
	from := f.Status
	f.Status = to
	l.flights[number] = f
	l.mu.Unlock()

	if to == flight.StatusCompleted && from != flight.StatusCompleted {
		l.store.Clear(number)
		l.logger.Info("flight completed, path released", "flight", number)
	}
	return nil
}

// MarkCompleted completes a flight and releases its client-held samples.
func (l *Lifecycle) MarkCompleted(flightNumber string) error {
	return l.Transition(flightNumber, flight.StatusCompleted)
}
