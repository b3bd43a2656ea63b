package tracking

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/unklstewy/flighttrack/pkg/flight"
)

// Rejection records why one record of a batch was skipped.
type Rejection struct {
	// Index is the record's position in the batch (0 for single ingests)
	Index int

	// Field is the offending field, empty when the cause is not a field
	Field string

	Err error
}

// AssemblyResult summarizes one ingest call.
type AssemblyResult struct {
	FlightNumber string
	Accepted     int
	Rejected     int

	// Replaced counts accepted samples that superseded a stored sample
	// with the same timestamp
	Replaced int

	Rejections []Rejection

	// Samples holds the accepted samples in batch order
	Samples []flight.TrackingSample
}

// Err joins the rejection errors, nil when every record was accepted.
func (r AssemblyResult) Err() error {
	if len(r.Rejections) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Rejections))
	for _, rej := range r.Rejections {
		errs = append(errs, fmt.Errorf("record %d: %w", rej.Index, rej.Err))
	}
	return errors.Join(errs...)
}

// Observer receives assembly outcomes, e.g. for metrics.
type Observer interface {
	ObserveAssembly(flightNumber string, accepted, rejected, replaced int)
}

// Assembler validates incoming tracking records and merges the valid ones
// into a PathStore.
//
// A malformed record never blocks the rest of its batch: it is skipped and
// reported in the result. Batches for the same flight run one at a time;
// different flights proceed independently.
type Assembler struct {
	store     *PathStore
	lifecycle *Lifecycle
	observer  Observer
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAssembler creates an assembler writing into store. lifecycle may be nil;
// when set, records for flights it knows to be completed are rejected.
func NewAssembler(store *PathStore, lifecycle *Lifecycle) *Assembler {
	return &Assembler{
		store:     store,
		lifecycle: lifecycle,
		logger:    slog.Default(),
		locks:     make(map[string]*sync.Mutex),
	}
}

// SetObserver installs an observer notified after every ingest.
func (a *Assembler) SetObserver(o Observer) { a.observer = o }

// SetLogger replaces the default logger.
func (a *Assembler) SetLogger(l *slog.Logger) { a.logger = l }

// flightLock returns the mutex serializing ingestion for one flight.
func (a *Assembler) flightLock(number string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[number]
	if !ok {
		l = &sync.Mutex{}
		a.locks[number] = l
	}
	return l
}

// Ingest validates and stores a single raw record.
func (a *Assembler) Ingest(flightNumber string, raw map[string]interface{}) (flight.TrackingSample, error) {
	res := a.IngestBatch(flightNumber, []map[string]interface{}{raw})
	if res.Accepted == 0 {
		return flight.TrackingSample{}, res.Rejections[0].Err
	}
	return res.Samples[0], nil
}

// IngestBatch validates every raw record and stores the valid ones.
func (a *Assembler) IngestBatch(flightNumber string, raws []map[string]interface{}) AssemblyResult {
	number := flight.NormalizeFlightNumber(flightNumber)
	return a.assemble(number, len(raws), func(i int) (flight.TrackingSample, error) {
		return flight.ValidateSampleFor(number, raws[i])
	})
}

// Load stores already decoded samples, e.g. a path history fetched from the
// backend. Samples are range checked like raw records.
func (a *Assembler) Load(flightNumber string, samples []flight.TrackingSample) AssemblyResult {
	number := flight.NormalizeFlightNumber(flightNumber)
	return a.assemble(number, len(samples), a.loaded(number, samples))
}

// loaded checks decoded samples against the flight they are stored under.
func (a *Assembler) loaded(number string, samples []flight.TrackingSample) func(int) (flight.TrackingSample, error) {
	return func(i int) (flight.TrackingSample, error) {
		s := samples[i]
		if s.FlightNumber == "" {
			s.FlightNumber = number
		}
		s.FlightNumber = flight.NormalizeFlightNumber(s.FlightNumber)
		if s.FlightNumber != number {
			return s, &flight.ValidationError{Field: "flightNumber",
				Reason: fmt.Sprintf("sample belongs to %s, not %s", s.FlightNumber, number)}
		}
		s.Timestamp = s.Timestamp.UTC()
		return s, s.Validate()
	}
}

// Replace validates samples like Load and swaps them in for the flight's
// current path in one store mutation.
func (a *Assembler) Replace(flightNumber string, samples []flight.TrackingSample) AssemblyResult {
	number := flight.NormalizeFlightNumber(flightNumber)
	return a.assembleInto(number, len(samples), a.loaded(number, samples), a.store.ReplaceAll)
}

func (a *Assembler) assemble(number string, n int, validate func(int) (flight.TrackingSample, error)) AssemblyResult {
	return a.assembleInto(number, n, validate, a.store.UpsertAll)
}

func (a *Assembler) assembleInto(number string, n int, validate func(int) (flight.TrackingSample, error),
	write func(string, []flight.TrackingSample) int) AssemblyResult {
	res := AssemblyResult{FlightNumber: number}

	l := a.flightLock(number)
	l.Lock()
	defer l.Unlock()

	var completedErr error
	if a.lifecycle != nil && a.lifecycle.IsCompleted(number) {
		completedErr = fmt.Errorf("flight %s: %w", number, flight.ErrFlightCompleted)
	}

	accepted := make([]flight.TrackingSample, 0, n)
	for i := 0; i < n; i++ {
		if completedErr != nil {
			res.reject(i, completedErr)
			continue
		}
		s, err := validate(i)
		if err != nil {
			res.reject(i, err)
			continue
		}
		accepted = append(accepted, s)
	}

	res.Accepted = len(accepted)
	res.Samples = accepted
	res.Replaced = write(number, accepted)

	if res.Rejected > 0 {
		a.logger.Warn("tracking records rejected",
			"flight", number, "accepted", res.Accepted, "rejected", res.Rejected,
			"first_error", res.Rejections[0].Err)
	}
	if a.observer != nil {
		a.observer.ObserveAssembly(number, res.Accepted, res.Rejected, res.Replaced)
	}
	return res
}

func (r *AssemblyResult) reject(i int, err error) {
	rej := Rejection{Index: i, Err: err}
	var ve *flight.ValidationError
	if errors.As(err, &ve) {
		rej.Field = ve.Field
	}
	r.Rejections = append(r.Rejections, rej)
	r.Rejected++
}
