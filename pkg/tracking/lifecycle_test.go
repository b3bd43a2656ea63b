package tracking

import (
	"errors"
	"testing"

	"github.com/unklstewy/flighttrack/pkg/flight"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to flight.Status
		want     bool
	}{
		{flight.StatusScheduled, flight.StatusActive, true},
		{flight.StatusScheduled, flight.StatusCompleted, true},
		{flight.StatusActive, flight.StatusCompleted, true},
		{flight.StatusActive, flight.StatusActive, true},
		{flight.StatusActive, flight.StatusScheduled, false},
		{flight.StatusCompleted, flight.StatusActive, false},
		{flight.StatusCompleted, flight.StatusScheduled, false},
		{flight.StatusScheduled, flight.Status("diverted"), false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

// TestCompletionClearsPath verifies completing a flight releases its samples.
func TestCompletionClearsPath(t *testing.T) {
	store := NewPathStore()
	lc := NewLifecycle(store)
	asm := NewAssembler(store, lc)
	res := NewResolver(store)

	lc.Track(flight.Flight{FlightNumber: "AA1", Status: flight.StatusScheduled})
	if err := lc.Transition("AA1", flight.StatusActive); err != nil {
		t.Fatalf("Transition to active: %v", err)
	}
	asm.IngestBatch("AA1", []map[string]interface{}{rawSample(100, 10, 10), rawSample(200, 11, 11)})

	if _, err := res.ResolveCurrent("AA1"); err != nil {
		t.Fatalf("Expected a current position before completion, got %v", err)
	}

	if err := lc.MarkCompleted("AA1"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	if _, err := res.ResolveCurrent("AA1"); !errors.Is(err, flight.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after completion, got %v", err)
	}
	if !lc.IsCompleted("AA1") {
		t.Error("Expected AA1 to be completed")
	}
}

func TestTransitionErrors(t *testing.T) {
	lc := NewLifecycle(NewPathStore())

	t.Run("Unknown flight", func(t *testing.T) {
		err := lc.Transition("XX1", flight.StatusActive)
		if !errors.Is(err, flight.ErrUnknownFlight) {
			t.Errorf("Expected ErrUnknownFlight, got %v", err)
		}
	})

	t.Run("Backwards transition", func(t *testing.T) {
		lc.Track(flight.Flight{FlightNumber: "DL4", Status: flight.StatusCompleted})
		err := lc.Transition("DL4", flight.StatusActive)
		if !errors.Is(err, flight.ErrTransition) {
			t.Errorf("Expected ErrTransition, got %v", err)
		}
		f, _ := lc.Get("DL4")
		if f.Status != flight.StatusCompleted {
			t.Errorf("Status changed on a rejected transition: %s", f.Status)
		}
	})
}

func TestTrackRefresh(t *testing.T) {
	store := NewPathStore()
	lc := NewLifecycle(store)

	t.Run("Invalid status defaults to scheduled", func(t *testing.T) {
		f := lc.Track(flight.Flight{FlightNumber: "ba 7", Status: "boarding"})
		if f.FlightNumber != "BA7" || f.Status != flight.StatusScheduled {
			t.Errorf("Unexpected record %+v", f)
		}
	})

	t.Run("Status never regresses", func(t *testing.T) {
		lc.Track(flight.Flight{FlightNumber: "BA7", Status: flight.StatusActive})
		f := lc.Track(flight.Flight{FlightNumber: "BA7", Airline: "British Airways", Status: flight.StatusScheduled})
		if f.Status != flight.StatusActive {
			t.Errorf("Expected active, got %s", f.Status)
		}
		if f.Airline != "British Airways" {
			t.Error("Expected metadata to be refreshed")
		}
	})

	t.Run("Completed refresh clears the path", func(t *testing.T) {
		store.Upsert("BA7", sampleAt("BA7", 100, 1, 1))
		lc.Track(flight.Flight{FlightNumber: "BA7", Status: flight.StatusCompleted})
		if store.Len("BA7") != 0 {
			t.Error("Expected path cleared when backend reports completion")
		}
	})

	t.Run("List is ordered", func(t *testing.T) {
		lc.Track(flight.Flight{FlightNumber: "AA1"})
		list := lc.List()
		if len(list) != 2 || list[0].FlightNumber != "AA1" || list[1].FlightNumber != "BA7" {
			t.Errorf("Unexpected list %+v", list)
		}
	})
}
