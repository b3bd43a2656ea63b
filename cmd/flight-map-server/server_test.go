package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unklstewy/flighttrack/internal/metrics"
	"github.com/unklstewy/flighttrack/internal/session"
	"github.com/unklstewy/flighttrack/pkg/config"
	"github.com/unklstewy/flighttrack/pkg/flight"
	"github.com/unklstewy/flighttrack/pkg/gateway"
)

// staticBackend serves one active flight with a three sample path.
type staticBackend struct{}

func ts(sec int64) time.Time { return time.Unix(1_700_000_000+sec, 0).UTC() }

func (staticBackend) flight() flight.Flight {
	return flight.Flight{
		FlightNumber: "AA1",
		Status:       flight.StatusActive,
		Origin:       flight.Airport{Code: "JFK", City: "New York", Coordinates: flight.Coordinates{Latitude: 40.6, Longitude: -73.8}},
		Destination:  flight.Airport{Code: "BOS", City: "Boston", Coordinates: flight.Coordinates{Latitude: 42.4, Longitude: -71}},
	}
}

func (b staticBackend) GetFlight(_ context.Context, n string) (flight.Flight, error) {
	if n != "AA1" {
		return flight.Flight{}, &flight.RemoteError{Operation: "get flight", StatusCode: 404, Message: "Flight not found"}
	}
	return b.flight(), nil
}

func (b staticBackend) CreateFlight(_ context.Context, f flight.Flight) (flight.Flight, string, error) {
	return f, "created", nil
}

func (b staticBackend) ActiveFlights(context.Context) ([]flight.Flight, error) {
	return []flight.Flight{b.flight()}, nil
}

func (b staticBackend) UpdateFlightStatus(_ context.Context, n string, st flight.Status) (flight.Flight, error) {
	f := b.flight()
	f.Status = st
	return f, nil
}

func (staticBackend) Path(_ context.Context, n string, _ gateway.PathRange) ([]flight.TrackingSample, error) {
	if n != "AA1" {
		return []flight.TrackingSample{}, nil
	}
	mk := func(sec int64, lat, lon float64) flight.TrackingSample {
		return flight.TrackingSample{FlightNumber: "AA1", Timestamp: ts(sec),
			Position: flight.Position{Latitude: lat, Longitude: lon, Altitude: 30000}, Speed: 420, Heading: 45}
	}
	return []flight.TrackingSample{mk(0, 40.7, -73.7), mk(60, 41.0, -73.0), mk(120, 41.4, -72.2)}, nil
}

func (staticBackend) Location(_ context.Context, n string, _ *time.Time) (flight.TrackingSample, error) {
	return flight.TrackingSample{}, &flight.RemoteError{Operation: "get location", StatusCode: 404}
}

func (staticBackend) Ingest(context.Context, flight.TrackingSample) (string, error) { return "", nil }

func (staticBackend) IngestBatch(_ context.Context, _ string, s []flight.TrackingSample) (gateway.BatchResult, error) {
	return gateway.BatchResult{Successful: len(s)}, nil
}

func (staticBackend) CompleteFlight(context.Context, string) (string, error) { return "", nil }

func newTestServer(token string) *Server {
	cfg := config.DefaultConfig()
	cfg.Map.AccessToken = token
	m := metrics.New()
	sess := session.New(staticBackend{}, session.Options{Render: cfg.Map.RenderOptions()})
	sess.SetObserver(m)
	sess.SetAssemblyObserver(m)
	return NewServer(cfg, sess, m)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestMapConfig(t *testing.T) {
	t.Run("Without token", func(t *testing.T) {
		s := newTestServer("")
		rec := do(t, s, http.MethodGet, "/api/v1/map/config", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("Expected 503, got %d", rec.Code)
		}
		body := decode(t, rec)
		if body["success"] != false || !strings.Contains(body["message"].(string), config.EnvMapToken) {
			t.Errorf("Expected message naming %s, got %v", config.EnvMapToken, body)
		}

		if rec := do(t, s, http.MethodGet, "/api/v1/flights/AA1/geojson", ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503 for geojson without token, got %d", rec.Code)
		}
	})

	t.Run("With token", func(t *testing.T) {
		rec := do(t, newTestServer("pk.test"), http.MethodGet, "/api/v1/map/config", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		data := decode(t, rec)["data"].(map[string]interface{})
		if data["accessToken"] != "pk.test" {
			t.Errorf("Expected token in map config, got %v", data)
		}
	})
}

func TestTrackFlight(t *testing.T) {
	s := newTestServer("pk.test")

	rec := do(t, s, http.MethodGet, "/api/v1/flights/aa1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decode(t, rec)["data"].(map[string]interface{})
	scene := data["scene"].(map[string]interface{})
	if n := len(scene["samples"].([]interface{})); n != 3 {
		t.Errorf("Expected 3 sample markers, got %d", n)
	}
	if data["statistics"].(map[string]interface{})["totalPoints"].(float64) != 3 {
		t.Errorf("Unexpected statistics %v", data["statistics"])
	}

	t.Run("Unknown flight maps to 404", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/v1/flights/ZZ9", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("GeoJSON layers", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/v1/flights/AA1/geojson?layer=route-points", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/geo+json" {
			t.Errorf("Unexpected content type %s", ct)
		}
		fc := decode(t, rec)
		// 3 samples, origin, destination, current
		if n := len(fc["features"].([]interface{})); n != 6 {
			t.Errorf("Expected 6 point features, got %d", n)
		}

		if rec := do(t, s, http.MethodGet, "/api/v1/flights/AA1/geojson?layer=nope", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for unknown layer, got %d", rec.Code)
		}
	})

	t.Run("Position moves the current marker", func(t *testing.T) {
		at := ts(90).Format(time.RFC3339)
		rec := do(t, s, http.MethodGet, "/api/v1/flights/AA1/position?at="+at, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		pos := decode(t, rec)["data"].(map[string]interface{})["currentPosition"].(map[string]interface{})
		if pos["timestamp"] != ts(60).Format(time.RFC3339) {
			t.Errorf("Expected the 60s sample, got %v", pos["timestamp"])
		}

		rec = do(t, s, http.MethodPost, "/api/v1/map/click", `{"key":"current"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		m := decode(t, rec)["data"].(map[string]interface{})
		if m["position"].(map[string]interface{})["lat"] != 41.0 {
			t.Errorf("Expected current marker at the 60s sample, got %v", m["position"])
		}
	})

	t.Run("Bad position time", func(t *testing.T) {
		if rec := do(t, s, http.MethodGet, "/api/v1/flights/AA1/position?at=yesterday", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("Click on an unknown marker", func(t *testing.T) {
		if rec := do(t, s, http.MethodPost, "/api/v1/map/click", `{"key":"sample:42"}`); rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
		if rec := do(t, s, http.MethodPost, "/api/v1/map/click", `{"key":"plane"}`); rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/metrics", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "flighttrack_samples_accepted_total") {
			t.Error("Expected flighttrack collectors in /metrics output")
		}
	})
}

func TestActiveFlights(t *testing.T) {
	rec := do(t, newTestServer(""), http.MethodGet, "/api/v1/flights/active", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if n := len(decode(t, rec)["data"].([]interface{})); n != 1 {
		t.Errorf("Expected 1 active flight, got %d", n)
	}
}

func TestStream(t *testing.T) {
	s := newTestServer("")
	hs := httptest.NewServer(s.router)
	defer hs.Close()

	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http") + "/api/v1/flights/AA1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg streamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Read initial scene: %v", err)
	}
	if msg.Type != "scene" || msg.FlightNumber != "AA1" || len(msg.Scene.Samples) != 0 {
		t.Errorf("Unexpected initial message %+v", msg)
	}

	resp, err := http.Get(hs.URL + "/api/v1/flights/AA1")
	if err != nil {
		t.Fatalf("Track request: %v", err)
	}
	resp.Body.Close()

	for {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Waiting for upsert: %v", err)
		}
		if msg.Kind == "upserted" {
			break
		}
	}
	if len(msg.Scene.Samples) != 3 {
		t.Errorf("Expected 3 samples after load, got %d", len(msg.Scene.Samples))
	}
	if msg.Scene.Origin == nil || msg.Scene.Origin.Label != "JFK - New York" {
		t.Errorf("Expected origin marker in streamed scene, got %+v", msg.Scene.Origin)
	}
}
