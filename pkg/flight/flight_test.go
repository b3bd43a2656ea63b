package flight

import (
	"encoding/json"
	"testing"
)

func TestTrackingSampleJSONLayouts(t *testing.T) {
	t.Run("Nested position", func(t *testing.T) {
		var s TrackingSample
		err := json.Unmarshal([]byte(`{"flightNumber":"AA1","position":{"latitude":1,"longitude":2,"altitude":3},"latitude":9}`), &s)
		if err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if s.Position != (Position{Latitude: 1, Longitude: 2, Altitude: 3}) {
			t.Errorf("Expected nested position to win, got %+v", s.Position)
		}
	})

	t.Run("Flat position", func(t *testing.T) {
		var s TrackingSample
		err := json.Unmarshal([]byte(`{"flightNumber":"AA1","latitude":4,"longitude":5,"altitude":6,"squawk":"7000"}`), &s)
		if err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if s.Position != (Position{Latitude: 4, Longitude: 5, Altitude: 6}) || s.Squawk != "7000" {
			t.Errorf("Unexpected flat decode %+v", s)
		}
	})

	t.Run("Round trip keeps nested layout", func(t *testing.T) {
		in := TrackingSample{FlightNumber: "AA1", Position: Position{Latitude: 7, Longitude: 8}}
		b, _ := json.Marshal(in)
		var out TrackingSample
		if err := json.Unmarshal(b, &out); err != nil || out.Position != in.Position {
			t.Errorf("Round trip lost position: %+v, %v", out, err)
		}
	})
}
