package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unklstewy/flighttrack/internal/session"
	"github.com/unklstewy/flighttrack/pkg/flight"
	"github.com/unklstewy/flighttrack/pkg/gateway"
)

func respond(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": status < 400,
		"message": message,
		"data":    data,
	})
}

// newTestManager wires a manager to an in-memory backend holding AA1.
func newTestManager(t *testing.T, stdin string) (*manager, *bytes.Buffer, *[]flight.TrackingSample) {
	t.Helper()

	var sent []flight.TrackingSample
	r := chi.NewRouter()
	r.Get("/flights", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, "", []flight.Flight{
			{FlightNumber: "AA1", Airline: "American", Status: flight.StatusActive,
				Origin: flight.Airport{Code: "JFK"}, Destination: flight.Airport{Code: "LAX"}},
		})
	})
	r.Get("/flights/{number}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "number") != "AA1" {
			respond(w, http.StatusNotFound, "Flight not found", nil)
			return
		}
		respond(w, http.StatusOK, "", flight.Flight{FlightNumber: "AA1", Status: flight.StatusActive})
	})
	r.Get("/tracking/{number}/path", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, "", map[string]interface{}{"path": []flight.TrackingSample{}})
	})
	r.Post("/tracking/ingest/batch", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TrackingDataArray []flight.TrackingSample `json:"trackingDataArray"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		sent = append(sent, body.TrackingDataArray...)
		respond(w, http.StatusOK, "Batch processed", map[string]interface{}{
			"successful": len(body.TrackingDataArray), "failed": 0,
		})
	})
	r.Post("/tracking/{number}/complete", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, "Flight completed and logged", map[string]interface{}{})
	})
	r.Get("/logs/{number}/statistics", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, "", flight.FlightStatistics{
			FlightNumber: "AA1", TotalPoints: 12, DistanceNM: 2145.5, DurationMinutes: 330,
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	client := gateway.NewClient(gateway.Config{BaseURL: srv.URL, RequestsPerSecond: 1000})
	var out bytes.Buffer
	m := &manager{
		client:  client,
		session: session.New(client, session.Options{}),
		out:     &out,
		in:      strings.NewReader(stdin),
	}
	return m, &out, &sent
}

func record(ts int64, lat float64) map[string]interface{} {
	return map[string]interface{}{
		"timestamp": float64(ts),
		"position":  map[string]interface{}{"latitude": lat, "longitude": -75.0, "altitude": 31000.0},
		"speed":     450.0,
		"heading":   270.0,
	}
}

func TestBatch(t *testing.T) {
	records := []map[string]interface{}{
		record(1700000000, 40.5),
		record(1700000060, 200), // out of range
		record(1700000120, 40.7),
	}
	input, _ := json.Marshal(records)
	m, out, sent := newTestManager(t, string(input))

	if err := m.run(context.Background(), []string{"batch", "-flight", "aa1"}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "AA1: 2 accepted, 1 rejected") {
		t.Errorf("Expected batch summary, got:\n%s", got)
	}
	if !strings.Contains(got, "record 1:") {
		t.Errorf("Expected rejection of record 1, got:\n%s", got)
	}
	if len(*sent) != 2 {
		t.Errorf("Expected 2 samples sent to the backend, got %d", len(*sent))
	}
	if n := m.session.Store().Len("AA1"); n != 2 {
		t.Errorf("Expected 2 samples held locally, got %d", n)
	}
}

func TestList(t *testing.T) {
	m, out, _ := newTestManager(t, "")

	t.Run("Prints a table", func(t *testing.T) {
		if err := m.run(context.Background(), []string{"list"}); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !strings.Contains(out.String(), "JFK-LAX") {
			t.Errorf("Expected route column, got:\n%s", out.String())
		}
	})

	t.Run("Rejects unknown status", func(t *testing.T) {
		if err := m.run(context.Background(), []string{"list", "-status", "boarding"}); err == nil {
			t.Error("Expected error for invalid status")
		}
	})
}

func TestLogsStats(t *testing.T) {
	m, out, _ := newTestManager(t, "")

	if err := m.run(context.Background(), []string{"logs", "stats", "AA1"}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out.String(), "Distance:  2145.5 NM") {
		t.Errorf("Unexpected output:\n%s", out.String())
	}

	if err := m.run(context.Background(), []string{"logs", "purge"}); err == nil {
		t.Error("Expected error for unknown logs command")
	}
}

func TestShowUnknownFlight(t *testing.T) {
	m, _, _ := newTestManager(t, "")

	err := m.run(context.Background(), []string{"show", "ZZ9"})
	var re *flight.RemoteError
	if !errors.As(err, &re) || re.StatusCode != http.StatusNotFound {
		t.Errorf("Expected remote 404, got %v", err)
	}
}

func TestComplete(t *testing.T) {
	m, out, _ := newTestManager(t, "")

	if err := m.run(context.Background(), []string{"complete", "aa1"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "AA1: Flight completed and logged") {
		t.Errorf("Unexpected output %q", out.String())
	}
	if !m.session.Lifecycle().IsCompleted("AA1") {
		t.Error("Expected AA1 completed locally")
	}

	err := m.run(context.Background(), []string{"complete", "ZZ9"})
	var re *flight.RemoteError
	if !errors.As(err, &re) || re.StatusCode != http.StatusNotFound {
		t.Errorf("Expected remote 404 for an unknown flight, got %v", err)
	}
}

func TestStatusArguments(t *testing.T) {
	m, _, _ := newTestManager(t, "")

	if err := m.run(context.Background(), []string{"status", "AA1"}); err == nil {
		t.Error("Expected usage error")
	}
	if err := m.run(context.Background(), []string{"status", "AA1", "landed"}); err == nil {
		t.Error("Expected invalid status error")
	}
	if err := m.run(context.Background(), []string{"takeoff"}); err == nil {
		t.Error("Expected unknown command error")
	}
}

func TestReadRecords(t *testing.T) {
	t.Run("Single object", func(t *testing.T) {
		m := &manager{in: strings.NewReader(`{"speed": 10}`)}
		recs, err := m.readRecords("-")
		if err != nil || len(recs) != 1 || recs[0]["speed"] != 10.0 {
			t.Errorf("Unexpected result %v, %v", recs, err)
		}
	})

	t.Run("Array", func(t *testing.T) {
		m := &manager{in: strings.NewReader(` [{"speed": 1}, {"speed": 2}]`)}
		recs, err := m.readRecords("")
		if err != nil || len(recs) != 2 {
			t.Errorf("Unexpected result %v, %v", recs, err)
		}
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		m := &manager{in: strings.NewReader(`{"speed":`)}
		if _, err := m.readRecords("-"); err == nil {
			t.Error("Expected decode error")
		}
	})
}

func TestParseFlight(t *testing.T) {
	f, err := parseFlight([]string{
		"-flight", "ua 100", "-airline", "United",
		"-from", "SFO", "-from-lat", "37.62", "-from-lon", "-122.38",
		"-to", "ORD", "-departs", "2024-03-01T08:00:00Z",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if f.Origin.Code != "SFO" || f.Origin.Coordinates.Latitude != 37.62 {
		t.Errorf("Unexpected origin %+v", f.Origin)
	}
	if f.Status != flight.StatusScheduled {
		t.Errorf("Expected default status scheduled, got %s", f.Status)
	}
	if !f.ScheduledDeparture.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected departure %v", f.ScheduledDeparture)
	}

	if _, err := parseFlight([]string{"-departs", "tomorrow"}); err == nil {
		t.Error("Expected error for bad departure time")
	}
}
