package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/unklstewy/flighttrack/pkg/flight"
)

// IngestResult is the backend's verdict on one record of a batch.
type IngestResult struct {
	Index   int    `json:"index"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// BatchResult summarizes a batch ingest as reported by the backend.
type BatchResult struct {
	Message    string         `json:"-"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Results    []IngestResult `json:"results"`
}

// Accepted reports whether the backend accepted record i. When the backend
// gives no per-record detail, a batch with no failures accepts everything.
func (b BatchResult) Accepted(i int) bool {
	for _, r := range b.Results {
		if r.Index == i {
			return r.Success
		}
	}
	return len(b.Results) == 0 && b.Failed == 0
}

// PathRange bounds a path query. Nil bounds are open.
type PathRange struct {
	Start, End *time.Time
}

// ActiveTrack is one entry of the backend's active tracking overview.
type ActiveTrack struct {
	FlightNumber    string                 `json:"flightNumber"`
	CurrentPosition *flight.TrackingSample `json:"currentPosition"`
	Flight          *flight.Flight         `json:"flight,omitempty"`
}

// Ingest sends a single tracking sample.
func (c *Client) Ingest(ctx context.Context, s flight.TrackingSample) (string, error) {
	_, msg, err := call[json.RawMessage](ctx, c, request{
		op: "ingest", method: http.MethodPost, path: "/tracking/ingest", body: s,
	})
	return msg, err
}

// IngestBatch sends several samples of one flight in a single request.
func (c *Client) IngestBatch(ctx context.Context, flightNumber string, samples []flight.TrackingSample) (BatchResult, error) {
	body := struct {
		FlightNumber      string                  `json:"flightNumber"`
		TrackingDataArray []flight.TrackingSample `json:"trackingDataArray"`
	}{flight.NormalizeFlightNumber(flightNumber), samples}

	res, msg, err := call[BatchResult](ctx, c, request{
		op: "ingest batch", method: http.MethodPost, path: "/tracking/ingest/batch", body: body,
	})
	res.Message = msg
	return res, err
}

// Location asks the backend for a flight's position. A nil at means the
// current position.
func (c *Client) Location(ctx context.Context, flightNumber string, at *time.Time) (flight.TrackingSample, error) {
	q := url.Values{}
	if at != nil {
		q.Set("timestamp", formatTime(*at))
	}
	data, _, err := call[struct {
		CurrentPosition *flight.TrackingSample `json:"currentPosition"`
	}](ctx, c, request{
		op: "flight location", method: http.MethodGet,
		path: flightPath("/tracking/%s/location", flightNumber), query: q,
	})
	if err != nil {
		return flight.TrackingSample{}, err
	}
	if data.CurrentPosition == nil {
		nf := &flight.NotFoundError{FlightNumber: flight.NormalizeFlightNumber(flightNumber)}
		if at != nil {
			t := at.UTC()
			nf.At = &t
		}
		return flight.TrackingSample{}, nf
	}
	return *data.CurrentPosition, nil
}

// Path fetches a flight's path history, optionally bounded by r.
func (c *Client) Path(ctx context.Context, flightNumber string, r PathRange) ([]flight.TrackingSample, error) {
	q := url.Values{}
	if r.Start != nil {
		q.Set("startTime", formatTime(*r.Start))
	}
	if r.End != nil {
		q.Set("endTime", formatTime(*r.End))
	}
	data, _, err := call[struct {
		Path []flight.TrackingSample `json:"path"`
	}](ctx, c, request{
		op: "flight path", method: http.MethodGet,
		path: flightPath("/tracking/%s/path", flightNumber), query: q,
	})
	if data.Path == nil {
		data.Path = []flight.TrackingSample{}
	}
	return data.Path, err
}

// ActiveTracking lists the latest position of every tracked flight.
func (c *Client) ActiveTracking(ctx context.Context, limit int) ([]ActiveTrack, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	tracks, _, err := call[[]ActiveTrack](ctx, c, request{
		op: "active tracking", method: http.MethodGet, path: "/tracking/active", query: q,
	})
	return tracks, err
}

// CompleteFlight marks a flight completed; the backend archives its path
// into a flight log.
func (c *Client) CompleteFlight(ctx context.Context, flightNumber string) (string, error) {
	_, msg, err := call[json.RawMessage](ctx, c, request{
		op: "complete flight", method: http.MethodPost,
		path: flightPath("/tracking/%s/complete", flightNumber),
	})
	return msg, err
}
