package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/unklstewy/flighttrack/pkg/flight"
)

// ListOptions filters ListFlights. Zero fields are not sent.
type ListOptions struct {
	Status  flight.Status
	Airline string
	Limit   int
}

func (o ListOptions) values() url.Values {
	q := url.Values{}
	if o.Status != "" {
		q.Set("status", string(o.Status))
	}
	if o.Airline != "" {
		q.Set("airline", o.Airline)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	return q
}

// CreateFlight registers a new flight with the backend. The flight is
// validated locally first so obvious mistakes never leave the client.
func (c *Client) CreateFlight(ctx context.Context, f flight.Flight) (flight.Flight, string, error) {
	f.FlightNumber = flight.NormalizeFlightNumber(f.FlightNumber)
	if f.Status == "" {
		f.Status = flight.StatusScheduled
	}
	if err := flight.ValidateFlight(f); err != nil {
		return flight.Flight{}, "", err
	}
	return call[flight.Flight](ctx, c, request{
		op: "create flight", method: http.MethodPost, path: "/flights", body: f,
	})
}

// ListFlights returns every flight known to the backend matching opts.
func (c *Client) ListFlights(ctx context.Context, opts ListOptions) ([]flight.Flight, error) {
	flights, _, err := call[[]flight.Flight](ctx, c, request{
		op: "list flights", method: http.MethodGet, path: "/flights", query: opts.values(),
	})
	return flights, err
}

// GetFlight fetches the metadata of one flight.
func (c *Client) GetFlight(ctx context.Context, flightNumber string) (flight.Flight, error) {
	f, _, err := call[flight.Flight](ctx, c, request{
		op: "get flight", method: http.MethodGet, path: flightPath("/flights/%s", flightNumber),
	})
	return f, err
}

// ActiveFlights lists the flights currently in the active state.
func (c *Client) ActiveFlights(ctx context.Context) ([]flight.Flight, error) {
	flights, _, err := call[[]flight.Flight](ctx, c, request{
		op: "active flights", method: http.MethodGet, path: "/flights/active",
	})
	return flights, err
}

// UpdateFlightStatus changes the status of a flight on the backend.
func (c *Client) UpdateFlightStatus(ctx context.Context, flightNumber string, status flight.Status) (flight.Flight, error) {
	if !status.Valid() {
		return flight.Flight{}, &flight.ValidationError{Field: "status", Reason: "unknown status " + strconv.Quote(string(status))}
	}
	f, _, err := call[flight.Flight](ctx, c, request{
		op:     "update flight status",
		method: http.MethodPut,
		path:   flightPath("/flights/%s/status", flightNumber),
		body:   map[string]flight.Status{"status": status},
	})
	return f, err
}

// DeleteFlight removes a flight from the backend.
func (c *Client) DeleteFlight(ctx context.Context, flightNumber string) (string, error) {
	_, msg, err := call[json.RawMessage](ctx, c, request{
		op: "delete flight", method: http.MethodDelete, path: flightPath("/flights/%s", flightNumber),
	})
	return msg, err
}
