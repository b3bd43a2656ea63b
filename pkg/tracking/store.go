// Package tracking assembles tracking samples into time-ordered flight paths
// and answers position queries against them.
//
// The PathStore is the only keeper of samples. The Assembler validates and
// merges incoming records into it, the Resolver reads from it, and the
// Lifecycle tracker clears a flight's path once the flight completes.
package tracking

import (
	"sort"
	"sync"
	"time"

	"github.com/unklstewy/flighttrack/pkg/flight"
)

// EventKind describes what happened to a flight path.
type EventKind string

const (
	EventUpserted EventKind = "upserted"
	EventCleared  EventKind = "cleared"
)

// PathEvent is delivered to store subscribers after every mutation.
type PathEvent struct {
	FlightNumber string
	Version      uint64
	Kind         EventKind

	// Count is the path length after the mutation
	Count int
}

// PathSnapshot is an immutable, versioned copy of one flight path.
type PathSnapshot struct {
	FlightNumber string
	Version      uint64
	Samples      []flight.TrackingSample
}

// Empty reports whether the snapshot holds no samples.
func (p PathSnapshot) Empty() bool { return len(p.Samples) == 0 }

// flightPath is the ordered sample sequence of one flight.
// Invariant: samples are sorted by strictly increasing timestamp.
type flightPath struct {
	samples []flight.TrackingSample
	version uint64
}

// search returns the index of the first sample not before ts.
func (p *flightPath) search(ts time.Time) int {
	return sort.Search(len(p.samples), func(i int) bool {
		return !p.samples[i].Timestamp.Before(ts)
	})
}

// upsert inserts s in timestamp order, replacing a sample with the same
// timestamp. Reports whether a sample was replaced.
func (p *flightPath) upsert(s flight.TrackingSample) bool {
	i := p.search(s.Timestamp)
	if i < len(p.samples) && p.samples[i].Timestamp.Equal(s.Timestamp) {
		p.samples[i] = s
		return true
	}
	p.samples = append(p.samples, flight.TrackingSample{})
	copy(p.samples[i+1:], p.samples[i:])
	p.samples[i] = s
	return false
}

// PathStore keeps one ordered flight path per flight number.
//
// Reads return copies, so callers may hold on to results while the store
// keeps changing. Subscribers are notified synchronously, outside the lock,
// after each mutation.
type PathStore struct {
	mu    sync.RWMutex
	paths map[string]*flightPath

	subMu       sync.Mutex
	subscribers map[int]func(PathEvent)
	nextSub     int
}

// NewPathStore creates an empty store.
func NewPathStore() *PathStore {
	return &PathStore{
		paths:       make(map[string]*flightPath),
		subscribers: make(map[int]func(PathEvent)),
	}
}

// Upsert adds one sample to a flight's path. A sample whose timestamp is
// already present replaces the stored one (last write wins).
func (s *PathStore) Upsert(flightNumber string, sample flight.TrackingSample) (replaced bool) {
	replacedCount, ev := s.upsertAll(flightNumber, []flight.TrackingSample{sample})
	s.notify(ev)
	return replacedCount > 0
}

// UpsertAll applies samples in order as a single mutation: one version bump
// and one event. Duplicate timestamps within samples resolve to the last one.
func (s *PathStore) UpsertAll(flightNumber string, samples []flight.TrackingSample) (replaced int) {
	if len(samples) == 0 {
		return 0
	}
	replaced, ev := s.upsertAll(flightNumber, samples)
	s.notify(ev)
	return replaced
}

func (s *PathStore) upsertAll(flightNumber string, samples []flight.TrackingSample) (int, PathEvent) {
	number := flight.NormalizeFlightNumber(flightNumber)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.paths[number]
	if !ok {
		p = &flightPath{}
		s.paths[number] = p
	}

	replaced := 0
	for _, sample := range samples {
		sample.FlightNumber = number
		if p.upsert(sample) {
			replaced++
		}
	}
	p.version++

	return replaced, PathEvent{
		FlightNumber: number,
		Version:      p.version,
		Kind:         EventUpserted,
		Count:        len(p.samples),
	}
}

// ReplaceAll swaps the flight's whole path for samples as a single mutation:
// one version bump and one event. Subscribers never see the path empty in
// between. An empty samples clears the path.
func (s *PathStore) ReplaceAll(flightNumber string, samples []flight.TrackingSample) (replaced int) {
	number := flight.NormalizeFlightNumber(flightNumber)

	s.mu.Lock()
	p, ok := s.paths[number]
	if !ok {
		if len(samples) == 0 {
			s.mu.Unlock()
			return 0
		}
		p = &flightPath{}
		s.paths[number] = p
	}
	p.samples = nil
	for _, sample := range samples {
		sample.FlightNumber = number
		if p.upsert(sample) {
			replaced++
		}
	}
	p.version++
	ev := PathEvent{FlightNumber: number, Version: p.version, Kind: EventUpserted, Count: len(p.samples)}
	if len(p.samples) == 0 {
		ev.Kind = EventCleared
	}
	s.mu.Unlock()

	s.notify(ev)
	return replaced
}

// Get returns a copy of the flight's ordered path. An unknown flight yields
// an empty, non-nil slice: "no data yet" is not an error.
func (s *PathStore) Get(flightNumber string) []flight.TrackingSample {
	return s.Snapshot(flightNumber).Samples
}

// Snapshot returns the flight's path together with its version.
func (s *PathStore) Snapshot(flightNumber string) PathSnapshot {
	number := flight.NormalizeFlightNumber(flightNumber)

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := PathSnapshot{FlightNumber: number, Samples: []flight.TrackingSample{}}
	if p, ok := s.paths[number]; ok {
		snap.Version = p.version
		snap.Samples = append(snap.Samples, p.samples...)
	}
	return snap
}

// Version returns the current version of a flight path, 0 if never written.
func (s *PathStore) Version(flightNumber string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.paths[flight.NormalizeFlightNumber(flightNumber)]; ok {
		return p.version
	}
	return 0
}

// Len returns the number of samples stored for a flight.
func (s *PathStore) Len(flightNumber string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.paths[flight.NormalizeFlightNumber(flightNumber)]; ok {
		return len(p.samples)
	}
	return 0
}

// Clear drops every sample of a flight. The version keeps increasing so
// that subscribers can tell the cleared path from an older one.
func (s *PathStore) Clear(flightNumber string) {
	number := flight.NormalizeFlightNumber(flightNumber)

	s.mu.Lock()
	p, ok := s.paths[number]
	if !ok {
		s.mu.Unlock()
		return
	}
	p.samples = nil
	p.version++
	ev := PathEvent{FlightNumber: number, Version: p.version, Kind: EventCleared}
	s.mu.Unlock()

	s.notify(ev)
}

// Flights lists the flight numbers that currently hold samples, sorted.
func (s *PathStore) Flights() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	numbers := make([]string, 0, len(s.paths))
	for number, p := range s.paths {
		if len(p.samples) > 0 {
			numbers = append(numbers, number)
		}
	}
	sort.Strings(numbers)
	return numbers
}

// Subscribe registers fn for every path mutation. The returned function
// removes the subscription.
func (s *PathStore) Subscribe(fn func(PathEvent)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *PathStore) notify(ev PathEvent) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(PathEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subscribers[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
