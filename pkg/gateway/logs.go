package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/unklstewy/flighttrack/pkg/flight"
)

// FlightLogs lists the archived logs of every completed flight.
func (c *Client) FlightLogs(ctx context.Context) ([]flight.FlightLog, error) {
	logs, _, err := call[[]flight.FlightLog](ctx, c, request{
		op: "flight logs", method: http.MethodGet, path: "/logs",
	})
	return logs, err
}

// LatestFlightLog fetches the most recent log of one flight.
func (c *Client) LatestFlightLog(ctx context.Context, flightNumber string) (flight.FlightLog, error) {
	log, _, err := call[flight.FlightLog](ctx, c, request{
		op: "flight log", method: http.MethodGet, path: flightPath("/logs/%s", flightNumber),
	})
	return log, err
}

// AllFlightLogs fetches every archived log of one flight.
func (c *Client) AllFlightLogs(ctx context.Context, flightNumber string) ([]flight.FlightLog, error) {
	logs, _, err := call[[]flight.FlightLog](ctx, c, request{
		op: "flight logs", method: http.MethodGet, path: flightPath("/logs/%s/all", flightNumber),
	})
	return logs, err
}

// FlightStatistics fetches the backend's statistics for a flight.
func (c *Client) FlightStatistics(ctx context.Context, flightNumber string) (flight.FlightStatistics, error) {
	stats, _, err := call[flight.FlightStatistics](ctx, c, request{
		op: "flight statistics", method: http.MethodGet, path: flightPath("/logs/%s/statistics", flightNumber),
	})
	return stats, err
}

// DeleteFlightLog removes one archived log by its ID.
func (c *Client) DeleteFlightLog(ctx context.Context, id string) (string, error) {
	_, msg, err := call[json.RawMessage](ctx, c, request{
		op: "delete flight log", method: http.MethodDelete, path: "/logs/" + url.PathEscape(id),
	})
	return msg, err
}
