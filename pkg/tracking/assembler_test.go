package tracking

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/unklstewy/flighttrack/pkg/flight"
)

func rawSample(ts int64, lat, lon float64) map[string]interface{} {
	return map[string]interface{}{
		"timestamp": float64(ts),
		"position": map[string]interface{}{
			"latitude":  lat,
			"longitude": lon,
			"altitude":  32000.0,
		},
		"speed":   430.0,
		"heading": 90.0,
	}
}

type recordingObserver struct {
	calls [][3]int
}

func (o *recordingObserver) ObserveAssembly(_ string, accepted, rejected, replaced int) {
	o.calls = append(o.calls, [3]int{accepted, rejected, replaced})
}

// TestIngestBatchPartialFailure verifies one bad record does not block the
// rest of its batch.
func TestIngestBatchPartialFailure(t *testing.T) {
	store := NewPathStore()
	asm := NewAssembler(store, nil)
	obs := &recordingObserver{}
	asm.SetObserver(obs)

	batch := []map[string]interface{}{
		rawSample(100, 10, 10),
		rawSample(200, 200, 11), // latitude out of range
		rawSample(300, 12, 12),
		rawSample(400, 13, 13),
	}

	res := asm.IngestBatch("AA1", batch)

	if res.Accepted != 3 {
		t.Errorf("Expected 3 accepted, got %d", res.Accepted)
	}
	if res.Rejected != 1 || len(res.Rejections) != 1 {
		t.Fatalf("Expected exactly one rejection, got %d", res.Rejected)
	}
	rej := res.Rejections[0]
	if rej.Index != 1 {
		t.Errorf("Expected rejection at index 1, got %d", rej.Index)
	}
	if rej.Field != "latitude" {
		t.Errorf("Expected rejection naming latitude, got %q", rej.Field)
	}
	if !errors.Is(res.Err(), flight.ErrValidation) {
		t.Errorf("Expected joined validation error, got %v", res.Err())
	}
	if got := timestamps(store.Get("AA1")); fmt.Sprint(got) != "[100 300 400]" {
		t.Errorf("Expected stored [100 300 400], got %v", got)
	}
	if len(obs.calls) != 1 || obs.calls[0] != [3]int{3, 1, 0} {
		t.Errorf("Unexpected observer calls %v", obs.calls)
	}
}

func TestIngest(t *testing.T) {
	store := NewPathStore()
	asm := NewAssembler(store, nil)

	t.Run("Valid record", func(t *testing.T) {
		s, err := asm.Ingest("aa1", rawSample(100, 10, 10))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if s.FlightNumber != "AA1" {
			t.Errorf("Expected AA1, got %s", s.FlightNumber)
		}
	})

	t.Run("Invalid record", func(t *testing.T) {
		rec := rawSample(200, 10, 10)
		rec["heading"] = 720.0
		_, err := asm.Ingest("AA1", rec)
		var ve *flight.ValidationError
		if !errors.As(err, &ve) || ve.Field != "heading" {
			t.Errorf("Expected heading validation error, got %v", err)
		}
		if store.Len("AA1") != 1 {
			t.Error("Rejected record must not be stored")
		}
	})

	t.Run("Record for a different flight", func(t *testing.T) {
		rec := rawSample(300, 10, 10)
		rec["flightNumber"] = "DL5"
		res := asm.IngestBatch("AA1", []map[string]interface{}{rec})
		if res.Rejected != 1 || res.Rejections[0].Field != "flightNumber" {
			t.Errorf("Expected flightNumber rejection, got %+v", res)
		}
	})
}

func TestIngestAgainstCompletedFlight(t *testing.T) {
	store := NewPathStore()
	lc := NewLifecycle(store)
	asm := NewAssembler(store, lc)

	lc.Track(flight.Flight{FlightNumber: "AA1", Status: flight.StatusActive})
	if err := lc.MarkCompleted("AA1"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	res := asm.IngestBatch("AA1", []map[string]interface{}{rawSample(100, 10, 10), rawSample(200, 11, 11)})
	if res.Accepted != 0 || res.Rejected != 2 {
		t.Fatalf("Expected all records rejected, got %+v", res)
	}
	if !errors.Is(res.Rejections[0].Err, flight.ErrFlightCompleted) {
		t.Errorf("Expected ErrFlightCompleted, got %v", res.Rejections[0].Err)
	}
	if store.Len("AA1") != 0 {
		t.Error("Completed flight must not receive samples")
	}
}

func TestLoadAndReplace(t *testing.T) {
	store := NewPathStore()
	asm := NewAssembler(store, nil)

	asm.Load("AA1", []flight.TrackingSample{sampleAt("AA1", 500, 1, 1)})

	history := []flight.TrackingSample{
		sampleAt("", 300, 12, 12),
		sampleAt("AA1", 100, 10, 10),
		sampleAt("AA1", 200, 95, 11), // out of range
	}
	res := asm.Replace("AA1", history)

	if res.Accepted != 2 || res.Rejected != 1 {
		t.Errorf("Expected 2 accepted / 1 rejected, got %d / %d", res.Accepted, res.Rejected)
	}
	if got := timestamps(store.Get("AA1")); fmt.Sprint(got) != "[100 300]" {
		t.Errorf("Expected replaced path [100 300], got %v", got)
	}
}

// TestReplaceIsOneMutation re-tracks a flight while a subscriber listens.
// The path must go straight from the old samples to the new ones.
func TestReplaceIsOneMutation(t *testing.T) {
	store := NewPathStore()
	asm := NewAssembler(store, nil)
	asm.Load("AA1", []flight.TrackingSample{sampleAt("AA1", 100, 10, 10), sampleAt("AA1", 200, 11, 11)})

	var events []PathEvent
	store.Subscribe(func(ev PathEvent) {
		if n := store.Len(ev.FlightNumber); n == 0 {
			t.Errorf("Subscriber saw an empty path at version %d", ev.Version)
		}
		events = append(events, ev)
	})

	before := store.Version("AA1")
	asm.Replace("AA1", []flight.TrackingSample{
		sampleAt("AA1", 100, 10, 10),
		sampleAt("AA1", 200, 11, 11),
		sampleAt("AA1", 300, 12, 12),
	})

	if len(events) != 1 {
		t.Fatalf("Expected exactly 1 event, got %d: %+v", len(events), events)
	}
	if events[0].Kind != EventUpserted || events[0].Count != 3 {
		t.Errorf("Unexpected event %+v", events[0])
	}
	if v := store.Version("AA1"); v != before+1 {
		t.Errorf("Expected version %d, got %d", before+1, v)
	}
}

// TestConcurrentBatches verifies batches for different flights and for the
// same flight can run concurrently without losing samples.
func TestConcurrentBatches(t *testing.T) {
	store := NewPathStore()
	asm := NewAssembler(store, nil)

	var wg sync.WaitGroup
	for f := 0; f < 4; f++ {
		for b := 0; b < 5; b++ {
			wg.Add(1)
			go func(f, b int) {
				defer wg.Done()
				batch := make([]map[string]interface{}, 0, 10)
				for i := 0; i < 10; i++ {
					batch = append(batch, rawSample(int64(b*10+i+1), 10, 10))
				}
				asm.IngestBatch(fmt.Sprintf("FL%d", f), batch)
			}(f, b)
		}
	}
	wg.Wait()

	for f := 0; f < 4; f++ {
		if n := store.Len(fmt.Sprintf("FL%d", f)); n != 50 {
			t.Errorf("Flight FL%d: expected 50 samples, got %d", f, n)
		}
	}
}
