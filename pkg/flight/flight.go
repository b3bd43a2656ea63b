// Package flight defines the flight tracking domain model shared by the
// client packages: flights and their lifecycle status, tracking samples,
// archived flight logs, and the error taxonomy every layer reports with.
//
// JSON field names follow the backend's wire format so the same types are
// decoded straight from gateway responses.
package flight

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Status is the lifecycle state of a flight.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusActive, StatusCompleted:
		return true
	}
	return false
}

// rank orders statuses so that transitions can be checked for regression.
func (s Status) rank() int {
	switch s {
	case StatusScheduled:
		return 0
	case StatusActive:
		return 1
	case StatusCompleted:
		return 2
	}
	return -1
}

// Before reports whether s comes strictly earlier in the lifecycle than other.
func (s Status) Before(other Status) bool {
	return s.rank() < other.rank()
}

// Coordinates is a latitude/longitude pair in decimal degrees (WGS84).
type Coordinates struct {
	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude" yaml:"latitude"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Airport is an origin or destination of a flight.
type Airport struct {
	Code        string      `json:"airport"`
	City        string      `json:"city"`
	Country     string      `json:"country"`
	Coordinates Coordinates `json:"coordinates"`
}

// Label is the short human readable form used by markers and info panels.
func (a Airport) Label() string {
	switch {
	case a.Code != "" && a.City != "":
		return a.Code + " - " + a.City
	case a.Code != "":
		return a.Code
	}
	return a.City
}

// Flight is the metadata record of a single flight, keyed by flight number.
// A Flight never holds its tracking samples; those live in the path store.
type Flight struct {
	FlightNumber       string    `json:"flightNumber"`
	Airline            string    `json:"airline"`
	AircraftType       string    `json:"aircraftType"`
	Origin             Airport   `json:"origin"`
	Destination        Airport   `json:"destination"`
	ScheduledDeparture time.Time `json:"scheduledDeparture"`
	ScheduledArrival   time.Time `json:"scheduledArrival"`
	Status             Status    `json:"status"`
}

// LogValue implements slog.LogValuer.
func (f Flight) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("flight", f.FlightNumber),
		slog.String("status", string(f.Status)),
		slog.String("origin", f.Origin.Code),
		slog.String("destination", f.Destination.Code),
	)
}

// Position is the reported location of an aircraft.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Altitude in feet above mean sea level
	Altitude float64 `json:"altitude"`
}

// ReceiverInfo identifies the ground station that captured a sample.
type ReceiverInfo struct {
	ReceiverID       string      `json:"receiverId"`
	ReceiverLocation Coordinates `json:"receiverLocation"`

	// SignalStrength in percent (0-100)
	SignalStrength float64 `json:"signalStrength"`
}

// TrackingSample is one geospatial and kinematic observation of a flight.
// Samples are immutable once accepted into a path.
type TrackingSample struct {
	FlightNumber string    `json:"flightNumber"`
	Timestamp    time.Time `json:"timestamp"`
	Position     Position  `json:"position"`

	// Speed is ground speed in knots
	Speed float64 `json:"speed"`

	// Heading in degrees [0, 360), 0 = North
	Heading float64 `json:"heading"`

	// VerticalSpeed in feet per minute (positive = climbing)
	VerticalSpeed float64 `json:"verticalSpeed"`

	ReceiverInfo ReceiverInfo `json:"receiverInfo"`
	Squawk       string       `json:"squawk,omitempty"`
}

// UnmarshalJSON accepts the position nested under "position" or flat on the
// sample itself, the two layouts the backend has used for path points.
func (s *TrackingSample) UnmarshalJSON(data []byte) error {
	type plain TrackingSample
	var aux struct {
		plain
		Position  *Position `json:"position"`
		Latitude  *float64  `json:"latitude"`
		Longitude *float64  `json:"longitude"`
		Altitude  *float64  `json:"altitude"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*s = TrackingSample(aux.plain)
	if aux.Position != nil {
		s.Position = *aux.Position
		return nil
	}
	if aux.Latitude != nil {
		s.Position.Latitude = *aux.Latitude
	}
	if aux.Longitude != nil {
		s.Position.Longitude = *aux.Longitude
	}
	if aux.Altitude != nil {
		s.Position.Altitude = *aux.Altitude
	}
	return nil
}

func (s TrackingSample) String() string {
	return fmt.Sprintf("[%s] %s (%.4f,%.4f) %.0fft, %.0fkts, %.0fdeg",
		s.Timestamp.UTC().Format(time.RFC3339), s.FlightNumber,
		s.Position.Latitude, s.Position.Longitude,
		s.Position.Altitude, s.Speed, s.Heading)
}

// LogValue implements slog.LogValuer.
func (s TrackingSample) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("flight", s.FlightNumber),
		slog.Time("timestamp", s.Timestamp),
		slog.Float64("lat", s.Position.Latitude),
		slog.Float64("lon", s.Position.Longitude),
	)
}

// FlightLog is the backend's archival record of a completed flight.
type FlightLog struct {
	ID           string           `json:"_id"`
	FlightNumber string           `json:"flightNumber"`
	Path         []TrackingSample `json:"path"`
	StartTime    time.Time        `json:"startTime"`
	EndTime      time.Time        `json:"endTime"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// FlightStatistics are derived figures the backend computes from a flight log.
type FlightStatistics struct {
	FlightNumber string  `json:"flightNumber"`
	TotalPoints  int     `json:"totalPoints"`
	MaxAltitude  float64 `json:"maxAltitude"`
	AverageSpeed float64 `json:"averageSpeed"`
	MaxSpeed     float64 `json:"maxSpeed"`
	DistanceNM   float64 `json:"distanceNM"`

	// DurationMinutes is the elapsed time between the first and last sample
	DurationMinutes float64 `json:"durationMinutes"`
}

// NormalizeFlightNumber trims and uppercases a flight number and strips
// everything that is not a letter or digit ("aa 123" -> "AA123").
func NormalizeFlightNumber(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
