// Package session ties the gateway, the tracking core and the render
// adapter together for one interactive user.
//
// Every query is tagged. When a newer query of the same kind starts, or a
// different flight becomes the tracked one, the older query's result is
// dropped on arrival with ErrSuperseded. Front ends draw results through
// Paint and ShowPosition, which repeat the check at draw time. In-flight
// network calls are not cancelled.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unklstewy/flighttrack/pkg/flight"
	"github.com/unklstewy/flighttrack/pkg/gateway"
	"github.com/unklstewy/flighttrack/pkg/render"
	"github.com/unklstewy/flighttrack/pkg/tracking"
)

// ErrSuperseded is returned when a result arrived after a newer request
// replaced it.
var ErrSuperseded = errors.New("request superseded by a newer one")

// Request kinds with independent latest tags.
const (
	KindTrack    = "track"
	KindPosition = "position"
)

// Backend is the subset of the gateway client a session uses.
type Backend interface {
	GetFlight(ctx context.Context, flightNumber string) (flight.Flight, error)
	CreateFlight(ctx context.Context, f flight.Flight) (flight.Flight, string, error)
	ActiveFlights(ctx context.Context) ([]flight.Flight, error)
	UpdateFlightStatus(ctx context.Context, flightNumber string, status flight.Status) (flight.Flight, error)
	Path(ctx context.Context, flightNumber string, r gateway.PathRange) ([]flight.TrackingSample, error)
	Location(ctx context.Context, flightNumber string, at *time.Time) (flight.TrackingSample, error)
	Ingest(ctx context.Context, s flight.TrackingSample) (string, error)
	IngestBatch(ctx context.Context, flightNumber string, samples []flight.TrackingSample) (gateway.BatchResult, error)
	CompleteFlight(ctx context.Context, flightNumber string) (string, error)
}

var _ Backend = (*gateway.Client)(nil)

// Observer receives session outcomes, e.g. for metrics.
type Observer interface {
	ObserveResolve(found bool)
	ObserveSuperseded(kind string)
}

// Options configure a session.
type Options struct {
	Render render.Options

	// Interpolate makes PositionAt estimate positions between samples
	// instead of returning the last sample at or before the query time
	Interpolate bool
}

// View is the result of tracking a flight.
type View struct {
	Flight     flight.Flight
	Path       []flight.TrackingSample
	Current    *flight.TrackingSample
	Statistics flight.FlightStatistics
	Scene      render.Scene

	ticket ticket
}

// Position is a resolved position together with the request that produced
// it, so that it can be applied only while that request is the latest.
type Position struct {
	flight.TrackingSample

	ticket ticket
}

// Session holds the client-side state of one user.
type Session struct {
	backend   Backend
	store     *tracking.PathStore
	lifecycle *tracking.Lifecycle
	assembler *tracking.Assembler
	resolver  *tracking.Resolver
	adapter   *render.Adapter
	opts      Options
	observer  Observer
	logger    *slog.Logger

	seq atomic.Uint64

	mu      sync.Mutex
	latest  map[string]uint64
	tracked string
}

// New creates a session talking to backend.
func New(backend Backend, opts Options) *Session {
	store := tracking.NewPathStore()
	lc := tracking.NewLifecycle(store)
	return &Session{
		backend:   backend,
		store:     store,
		lifecycle: lc,
		assembler: tracking.NewAssembler(store, lc),
		resolver:  tracking.NewResolver(store),
		adapter:   render.NewAdapter(opts.Render),
		opts:      opts,
		logger:    slog.Default(),
		latest:    make(map[string]uint64),
	}
}

// SetLogger replaces the default logger of the session and its components.
func (s *Session) SetLogger(l *slog.Logger) {
	s.logger = l
	s.lifecycle.SetLogger(l)
	s.assembler.SetLogger(l)
}

// SetObserver installs an observer for resolve and supersession outcomes.
func (s *Session) SetObserver(o Observer) { s.observer = o }

// SetAssemblyObserver installs an observer for ingestion outcomes.
func (s *Session) SetAssemblyObserver(o tracking.Observer) { s.assembler.SetObserver(o) }

// Store exposes the path store, e.g. for metrics.
func (s *Session) Store() *tracking.PathStore { return s.store }

// Adapter exposes the render adapter for front ends that draw.
func (s *Session) Adapter() *render.Adapter { return s.adapter }

// Lifecycle exposes the flight lifecycle tracker.
func (s *Session) Lifecycle() *tracking.Lifecycle { return s.lifecycle }

// Tracked returns the flight number currently tracked, empty if none.
func (s *Session) Tracked() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracked
}

// ticket identifies one tagged request.
type ticket struct {
	kind    string
	tag     uint64
	tracked string
}

// begin tags a new request of kind. Track requests also switch the tracked
// flight.
func (s *Session) begin(kind, number string) ticket {
	tag := s.seq.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[kind] = tag
	if kind == KindTrack {
		s.tracked = number
	}
	return ticket{kind: kind, tag: tag, tracked: s.tracked}
}

// latestLocked reports whether t is still the newest request of its kind
// for the tracked flight. s.mu must be held.
func (s *Session) latestLocked(t ticket) bool {
	return t.tag != 0 && s.latest[t.kind] == t.tag && s.tracked == t.tracked
}

// valid reports whether t's result may still be applied.
func (s *Session) valid(t ticket) bool {
	s.mu.Lock()
	ok := s.latestLocked(t)
	s.mu.Unlock()

	if !ok {
		s.dropped(t)
	}
	return ok
}

func (s *Session) dropped(t ticket) {
	s.logger.Debug("dropping superseded result", "kind", t.kind, "tag", t.tag)
	if s.observer != nil {
		s.observer.ObserveSuperseded(t.kind)
	}
}

// apply runs fn while t is the latest request, holding off newer requests
// until fn returns. It returns ErrSuperseded without calling fn otherwise.
func (s *Session) apply(t ticket, fn func() error) error {
	s.mu.Lock()
	ok := s.latestLocked(t)
	var err error
	if ok {
		err = fn()
	}
	s.mu.Unlock()

	if !ok {
		s.dropped(t)
		return ErrSuperseded
	}
	return err
}

// Current reports whether v still answers the latest track request.
func (s *Session) Current(v *View) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestLocked(v.ticket)
}

// Paint draws v on r unless a newer request has superseded it since
// TrackFlight returned, in which case r is left alone and ErrSuperseded is
// returned.
func (s *Session) Paint(r render.Renderer, v *View) error {
	return s.apply(v.ticket, func() error { return s.adapter.Paint(r, v.Scene) })
}

// ShowCurrent puts v's own current position back on r and drops any
// position query still in flight.
func (s *Session) ShowCurrent(r render.Renderer, v *View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.latestLocked(v.ticket) {
		return ErrSuperseded
	}
	s.latest[KindPosition] = s.seq.Add(1)
	return s.adapter.SetCurrent(r, v.Current)
}

// ShowPosition moves the current-position marker on r to p unless a newer
// position query or a different tracked flight superseded it.
func (s *Session) ShowPosition(r render.Renderer, p Position) error {
	return s.apply(p.ticket, func() error {
		sample := p.TrackingSample
		return s.adapter.SetCurrent(r, &sample)
	})
}

func checkNumber(number string) (string, error) {
	n := flight.NormalizeFlightNumber(number)
	if n == "" {
		return "", &flight.ValidationError{Field: "flightNumber", Reason: "is required"}
	}
	return n, nil
}

// TrackFlight makes number the tracked flight and loads its metadata, path
// and current position from the backend.
//
// For a completed flight the fetched path is shown but not held, since
// completion releases client-side samples.
func (s *Session) TrackFlight(ctx context.Context, number string) (*View, error) {
	n, err := checkNumber(number)
	if err != nil {
		return nil, err
	}
	t := s.begin(KindTrack, n)

	f, err := s.backend.GetFlight(ctx, n)
	if err != nil {
		return nil, s.failed(t, fmt.Errorf("get flight %s: %w", n, err))
	}
	path, err := s.backend.Path(ctx, n, gateway.PathRange{})
	if err != nil {
		return nil, s.failed(t, fmt.Errorf("get path of %s: %w", n, err))
	}
	if len(path) > 0 {
		loc, err := s.backend.Location(ctx, n, nil)
		switch {
		case err == nil:
			path = append(path, loc)
		case !errors.Is(err, flight.ErrNotFound) && !isRemoteNotFound(err):
			s.logger.Warn("current location unavailable, using path", "flight", n, "error", err)
		}
	}

	if !s.valid(t) {
		return nil, ErrSuperseded
	}

	f = s.lifecycle.Track(f)
	view := &View{Flight: f, ticket: t}

	if f.Status == flight.StatusCompleted {
		view.Path = sortedCopy(path)
		if len(view.Path) > 0 {
			cur := view.Path[len(view.Path)-1]
			view.Current = &cur
		}
	} else {
		res := s.assembler.Replace(n, path)
		if res.Rejected > 0 {
			s.logger.Warn("backend path contained invalid samples", "flight", n, "rejected", res.Rejected)
		}
		view.Path = s.store.Get(n)
		if cur, err := s.resolver.ResolveCurrent(n); err == nil {
			view.Current = &cur
		}
	}
	view.Statistics = tracking.PathStatistics(n, view.Path)
	view.Scene = s.adapter.Build(view.Path, &view.Flight, view.Current)
	return view, nil
}

// failed maps a backend failure to ErrSuperseded when nobody waits for the
// result anymore.
func (s *Session) failed(t ticket, err error) error {
	if !s.valid(t) {
		return ErrSuperseded
	}
	return err
}

func isRemoteNotFound(err error) bool {
	var re *flight.RemoteError
	return errors.As(err, &re) && re.IsNotFound()
}

// sortedCopy orders samples by time without going through the store.
func sortedCopy(path []flight.TrackingSample) []flight.TrackingSample {
	out := make([]flight.TrackingSample, len(path))
	copy(out, path)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// PositionAt returns the position of a flight at t. A loaded path is
// resolved locally, otherwise the backend is asked.
func (s *Session) PositionAt(ctx context.Context, number string, at time.Time) (flight.TrackingSample, error) {
	p, err := s.Locate(ctx, number, at)
	return p.TrackingSample, err
}

// Locate is PositionAt for front ends that draw the result later with
// ShowPosition.
func (s *Session) Locate(ctx context.Context, number string, at time.Time) (Position, error) {
	n, err := checkNumber(number)
	if err != nil {
		return Position{}, err
	}
	t := s.begin(KindPosition, n)

	var pos flight.TrackingSample
	if s.store.Len(n) > 0 {
		pos, err = s.resolveLocal(n, at)
	} else {
		pos, err = s.backend.Location(ctx, n, &at)
		if isRemoteNotFound(err) {
			at := at.UTC()
			err = &flight.NotFoundError{FlightNumber: n, At: &at}
		}
	}

	if !s.valid(t) {
		return Position{}, ErrSuperseded
	}
	if s.observer != nil {
		s.observer.ObserveResolve(err == nil)
	}
	if err != nil {
		return Position{}, err
	}
	return Position{TrackingSample: pos, ticket: t}, nil
}

func (s *Session) resolveLocal(n string, at time.Time) (flight.TrackingSample, error) {
	if !s.opts.Interpolate {
		return s.resolver.ResolveAt(n, at)
	}
	is, err := s.resolver.ResolveInterpolated(n, at)
	if err != nil {
		return flight.TrackingSample{}, err
	}
	return is.TrackingSample, nil
}

// Ingest validates a raw record, sends it and stores it once the backend
// accepted it.
func (s *Session) Ingest(ctx context.Context, number string, raw map[string]interface{}) (flight.TrackingSample, string, error) {
	n, err := checkNumber(number)
	if err != nil {
		return flight.TrackingSample{}, "", err
	}
	if s.lifecycle.IsCompleted(n) {
		return flight.TrackingSample{}, "", fmt.Errorf("flight %s: %w", n, flight.ErrFlightCompleted)
	}
	sample, err := flight.ValidateSampleFor(n, raw)
	if err != nil {
		return flight.TrackingSample{}, "", err
	}

	msg, err := s.backend.Ingest(ctx, sample)
	if err != nil {
		return flight.TrackingSample{}, "", err
	}
	s.assembler.Load(n, []flight.TrackingSample{sample})
	return sample, msg, nil
}

// BatchReport combines local validation and backend verdicts for a batch.
type BatchReport struct {
	FlightNumber string
	Accepted     int

	// Rejections are indexed by position in the submitted batch
	Rejections []tracking.Rejection

	// Message is the backend's summary, empty if nothing was sent
	Message string
}

// Err joins the rejection errors, nil when every record was accepted.
func (r BatchReport) Err() error {
	return tracking.AssemblyResult{Rejections: r.Rejections}.Err()
}

// IngestBatch validates every record, sends the valid ones in one request
// and stores those the backend accepted.
func (s *Session) IngestBatch(ctx context.Context, number string, raws []map[string]interface{}) (BatchReport, error) {
	n, err := checkNumber(number)
	if err != nil {
		return BatchReport{}, err
	}
	report := BatchReport{FlightNumber: n}

	if s.lifecycle.IsCompleted(n) {
		completed := fmt.Errorf("flight %s: %w", n, flight.ErrFlightCompleted)
		for i := range raws {
			report.Rejections = append(report.Rejections, tracking.Rejection{Index: i, Err: completed})
		}
		return report, nil
	}

	valid := make([]flight.TrackingSample, 0, len(raws))
	origin := make([]int, 0, len(raws))
	for i, raw := range raws {
		sample, err := flight.ValidateSampleFor(n, raw)
		if err != nil {
			report.Rejections = append(report.Rejections, rejection(i, err))
			continue
		}
		valid = append(valid, sample)
		origin = append(origin, i)
	}
	if len(valid) == 0 {
		return report, nil
	}

	res, err := s.backend.IngestBatch(ctx, n, valid)
	if err != nil {
		return report, err
	}
	report.Message = res.Message

	accepted := make([]flight.TrackingSample, 0, len(valid))
	for i, sample := range valid {
		if res.Accepted(i) {
			accepted = append(accepted, sample)
			continue
		}
		report.Rejections = append(report.Rejections, tracking.Rejection{
			Index: origin[i],
			Err: &flight.RemoteError{
				Operation:  "ingest batch",
				StatusCode: http.StatusUnprocessableEntity,
				Message:    remoteMessage(res, i),
			},
		})
	}
	s.assembler.Load(n, accepted)
	report.Accepted = len(accepted)
	sortRejections(report.Rejections)
	return report, nil
}

func rejection(i int, err error) tracking.Rejection {
	rej := tracking.Rejection{Index: i, Err: err}
	var ve *flight.ValidationError
	if errors.As(err, &ve) {
		rej.Field = ve.Field
	}
	return rej
}

func remoteMessage(res gateway.BatchResult, i int) string {
	for _, r := range res.Results {
		if r.Index == i && r.Message != "" {
			return r.Message
		}
	}
	return "rejected by backend"
}

func sortRejections(rs []tracking.Rejection) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Index < rs[j].Index })
}

// CreateFlight registers a new flight with the backend and starts holding
// its record.
func (s *Session) CreateFlight(ctx context.Context, f flight.Flight) (flight.Flight, string, error) {
	created, msg, err := s.backend.CreateFlight(ctx, f)
	if err != nil {
		return flight.Flight{}, "", err
	}
	return s.lifecycle.Track(created), msg, nil
}

// CompleteFlight completes a flight on the backend, then releases its path.
// Only a flight this session has fetched can be completed; any other fails
// with UnknownFlightError before the backend is asked.
func (s *Session) CompleteFlight(ctx context.Context, number string) (string, error) {
	n, err := checkNumber(number)
	if err != nil {
		return "", err
	}
	if _, err := s.lifecycle.Get(n); err != nil {
		return "", err
	}
	msg, err := s.backend.CompleteFlight(ctx, n)
	if err != nil {
		return "", err
	}

	if err := s.lifecycle.MarkCompleted(n); err != nil {
		return msg, err
	}
	return msg, nil
}

// UpdateStatus moves a flight forward on the backend and locally. A
// backwards move is refused before anything is sent.
func (s *Session) UpdateStatus(ctx context.Context, number string, status flight.Status) (flight.Flight, error) {
	n, err := checkNumber(number)
	if err != nil {
		return flight.Flight{}, err
	}
	if held, err := s.lifecycle.Get(n); err == nil && !tracking.CanTransition(held.Status, status) {
		return flight.Flight{}, &flight.TransitionError{FlightNumber: n, From: held.Status, To: status}
	}

	updated, err := s.backend.UpdateFlightStatus(ctx, n, status)
	if err != nil {
		return flight.Flight{}, err
	}
	return s.lifecycle.Track(updated), nil
}

// ActiveFlights lists the flights the backend considers active and holds
// their records.
func (s *Session) ActiveFlights(ctx context.Context) ([]flight.Flight, error) {
	flights, err := s.backend.ActiveFlights(ctx)
	if err != nil {
		return nil, err
	}
	for i := range flights {
		flights[i] = s.lifecycle.Track(flights[i])
	}
	return flights, nil
}

// Subscribe registers fn for path change notifications.
func (s *Session) Subscribe(fn func(tracking.PathEvent)) (unsubscribe func()) {
	return s.store.Subscribe(fn)
}
