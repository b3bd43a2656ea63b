package tracking

import (
	"sort"
	"time"

	"github.com/skypies/geo"

	"github.com/unklstewy/flighttrack/pkg/flight"
)

// Resolver answers position queries against a PathStore.
//
// ResolveAt deliberately returns the last observed sample at or before the
// query time and never manufactures positions. Interpolation between
// observations is available only through ResolveInterpolated.
type Resolver struct {
	store *PathStore
}

// NewResolver creates a resolver reading from store.
func NewResolver(store *PathStore) *Resolver {
	return &Resolver{store: store}
}

// ResolveCurrent returns the most recent sample of a flight.
func (r *Resolver) ResolveCurrent(flightNumber string) (flight.TrackingSample, error) {
	path := r.store.Get(flightNumber)
	if len(path) == 0 {
		return flight.TrackingSample{}, &flight.NotFoundError{
			FlightNumber: flight.NormalizeFlightNumber(flightNumber),
		}
	}
	return path[len(path)-1], nil
}

// ResolveAt returns the sample with the greatest timestamp <= t, found by
// binary search. A query before the first sample fails with NotFound.
func (r *Resolver) ResolveAt(flightNumber string, t time.Time) (flight.TrackingSample, error) {
	path := r.store.Get(flightNumber)
	i := precedingIndex(path, t)
	if i < 0 {
		return flight.TrackingSample{}, notFoundAt(flightNumber, t)
	}
	return path[i], nil
}

// precedingIndex returns the index of the last sample at or before t, or -1.
func precedingIndex(path []flight.TrackingSample, t time.Time) int {
	// First sample strictly after t; its predecessor is the answer.
	i := sort.Search(len(path), func(i int) bool {
		return path[i].Timestamp.After(t)
	})
	return i - 1
}

func notFoundAt(flightNumber string, t time.Time) error {
	at := t.UTC()
	return &flight.NotFoundError{
		FlightNumber: flight.NormalizeFlightNumber(flightNumber),
		At:           &at,
	}
}

// InterpolatedSample is a position estimated between two observed samples.
type InterpolatedSample struct {
	flight.TrackingSample // Only the interpolatable fields are populated

	Pre, Post *flight.TrackingSample // The samples we interpolated between
	Ratio     float64                // How far t lies from Pre (0) to Post (1)
}

// Observed reports whether the result coincides with a real sample.
func (s InterpolatedSample) Observed() bool {
	return s.Pre == s.Post || s.Ratio == 0 || s.Ratio == 1
}

// ResolveInterpolated estimates the position at t by interpolating between
// the samples either side of it: position and heading along the shortest
// path, altitude, speed and vertical speed linearly. Queries before the
// first sample fail with NotFound; queries after the last sample return the
// last sample unchanged with Ratio 1, and an exact hit has Ratio 0.
func (r *Resolver) ResolveInterpolated(flightNumber string, t time.Time) (InterpolatedSample, error) {
	path := r.store.Get(flightNumber)
	i := precedingIndex(path, t)
	if i < 0 {
		return InterpolatedSample{}, notFoundAt(flightNumber, t)
	}

	pre := path[i]
	if pre.Timestamp.Equal(t) {
		return InterpolatedSample{TrackingSample: pre, Pre: &pre, Post: &pre, Ratio: 0}, nil
	}
	if i == len(path)-1 {
		// Past the end: held at the last sample
		return InterpolatedSample{TrackingSample: pre, Pre: &pre, Post: &pre, Ratio: 1}, nil
	}

	post := path[i+1]
	ratio := float64(t.Sub(pre.Timestamp)) / float64(post.Timestamp.Sub(pre.Timestamp))
	return interpolate(pre, post, ratio, t), nil
}

func interpolate(from, to flight.TrackingSample, ratio float64, t time.Time) InterpolatedSample {
	fromLL := geo.Latlong{Lat: from.Position.Latitude, Long: from.Position.Longitude}
	toLL := geo.Latlong{Lat: to.Position.Latitude, Long: to.Position.Longitude}
	ll := fromLL.InterpolateTo(toLL, ratio)

	return InterpolatedSample{
		Pre:   &from,
		Post:  &to,
		Ratio: ratio,
		TrackingSample: flight.TrackingSample{
			FlightNumber: from.FlightNumber,
			Timestamp:    t.UTC(),
			Position: flight.Position{
				Latitude:  ll.Lat,
				Longitude: ll.Long,
				Altitude:  interpolateFloat64(from.Position.Altitude, to.Position.Altitude, ratio),
			},
			Speed:         interpolateFloat64(from.Speed, to.Speed, ratio),
			Heading:       geo.InterpolateHeading(from.Heading, to.Heading, ratio),
			VerticalSpeed: interpolateFloat64(from.VerticalSpeed, to.VerticalSpeed, ratio),
		},
	}
}

func interpolateFloat64(from, to, ratio float64) float64 {
	return from + (to-from)*ratio
}
