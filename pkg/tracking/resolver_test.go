package tracking

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/unklstewy/flighttrack/pkg/flight"
)

func at(ts int64) time.Time { return time.Unix(ts, 0).UTC() }

// TestResolveScenario walks a three sample path the way a viewer would.
func TestResolveScenario(t *testing.T) {
	store := NewPathStore()
	asm := NewAssembler(store, nil)
	res := NewResolver(store)

	// Ingested out of order on purpose
	for _, ts := range []int64{300, 100, 200} {
		if _, err := asm.Ingest("AA1", rawSample(ts, float64(ts)/10, 5)); err != nil {
			t.Fatalf("Ingest(%d): %v", ts, err)
		}
	}

	t.Run("Path is ordered", func(t *testing.T) {
		got := timestamps(store.Get("AA1"))
		want := []int64{100, 200, 300}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Expected %v, got %v", want, got)
			}
		}
	})

	t.Run("Between samples resolves to the preceding one", func(t *testing.T) {
		s, err := res.ResolveAt("AA1", at(250))
		if err != nil {
			t.Fatalf("ResolveAt: %v", err)
		}
		if s.Timestamp.Unix() != 200 {
			t.Errorf("Expected sample at 200, got %d", s.Timestamp.Unix())
		}
	})

	t.Run("Exact timestamp resolves to that sample", func(t *testing.T) {
		s, err := res.ResolveAt("AA1", at(100))
		if err != nil || s.Timestamp.Unix() != 100 {
			t.Errorf("Expected sample at 100, got %v (err %v)", s.Timestamp, err)
		}
	})

	t.Run("Before the first sample is not found", func(t *testing.T) {
		_, err := res.ResolveAt("AA1", at(50))
		if !errors.Is(err, flight.ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
		var nf *flight.NotFoundError
		if !errors.As(err, &nf) || nf.At == nil || nf.At.Unix() != 50 {
			t.Errorf("Expected NotFoundError carrying the query time, got %v", err)
		}
	})

	t.Run("Current equals resolve at or after the last sample", func(t *testing.T) {
		cur, err := res.ResolveCurrent("AA1")
		if err != nil {
			t.Fatalf("ResolveCurrent: %v", err)
		}
		for _, q := range []int64{300, 301, 100000} {
			s, err := res.ResolveAt("AA1", at(q))
			if err != nil {
				t.Fatalf("ResolveAt(%d): %v", q, err)
			}
			if !s.Timestamp.Equal(cur.Timestamp) || s.Position != cur.Position {
				t.Errorf("ResolveAt(%d) = %v, ResolveCurrent = %v", q, s, cur)
			}
		}
	})
}

func TestResolveUnknownFlight(t *testing.T) {
	res := NewResolver(NewPathStore())

	if _, err := res.ResolveCurrent("ZZ1"); !errors.Is(err, flight.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from ResolveCurrent, got %v", err)
	}
	if _, err := res.ResolveAt("ZZ1", at(100)); !errors.Is(err, flight.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from ResolveAt, got %v", err)
	}
	if _, err := res.ResolveInterpolated("ZZ1", at(100)); !errors.Is(err, flight.ErrNotFound) {
		t.Errorf("Expected ErrNotFound from ResolveInterpolated, got %v", err)
	}
}

// TestResolveAtMatchesLinearScan compares the binary search against a
// straightforward scan over many query times.
func TestResolveAtMatchesLinearScan(t *testing.T) {
	store := NewPathStore()
	for _, ts := range []int64{10, 20, 35, 36, 80, 81, 200} {
		store.Upsert("UA9", sampleAt("UA9", ts, 1, 1))
	}
	res := NewResolver(store)
	path := store.Get("UA9")

	for q := int64(0); q <= 250; q++ {
		want := -1
		for i, s := range path {
			if s.Timestamp.Unix() <= q {
				want = i
			}
		}

		s, err := res.ResolveAt("UA9", at(q))
		if want < 0 {
			if err == nil {
				t.Errorf("q=%d: expected not found, got %v", q, s.Timestamp.Unix())
			}
			continue
		}
		if err != nil {
			t.Fatalf("q=%d: %v", q, err)
		}
		if s.Timestamp.Unix() != path[want].Timestamp.Unix() {
			t.Errorf("q=%d: expected %d, got %d", q, path[want].Timestamp.Unix(), s.Timestamp.Unix())
		}
	}
}

func TestResolveInterpolated(t *testing.T) {
	store := NewPathStore()
	a := sampleAt("AA1", 100, 40, -75)
	a.Heading = 350
	a.Position.Altitude = 10000
	b := sampleAt("AA1", 200, 40, -74)
	b.Heading = 10
	b.Position.Altitude = 20000
	store.UpsertAll("AA1", []flight.TrackingSample{a, b})

	res := NewResolver(store)

	t.Run("Midpoint", func(t *testing.T) {
		s, err := res.ResolveInterpolated("AA1", at(150))
		if err != nil {
			t.Fatalf("ResolveInterpolated: %v", err)
		}
		if s.Observed() {
			t.Error("Midpoint should not be an observed sample")
		}
		if math.Abs(s.Ratio-0.5) > 1e-9 {
			t.Errorf("Expected ratio 0.5, got %f", s.Ratio)
		}
		if math.Abs(s.Position.Altitude-15000) > 1e-6 {
			t.Errorf("Expected altitude 15000, got %f", s.Position.Altitude)
		}
		if s.Position.Longitude <= -75 || s.Position.Longitude >= -74 {
			t.Errorf("Expected longitude between samples, got %f", s.Position.Longitude)
		}
		// Heading wraps through north rather than sweeping through south
		if s.Heading > 20 && s.Heading < 340 {
			t.Errorf("Expected heading near 0, got %f", s.Heading)
		}
		if s.Pre.Timestamp.Unix() != 100 || s.Post.Timestamp.Unix() != 200 {
			t.Errorf("Unexpected bracketing samples %v / %v", s.Pre.Timestamp, s.Post.Timestamp)
		}
	})

	t.Run("After the last sample returns it unchanged", func(t *testing.T) {
		s, err := res.ResolveInterpolated("AA1", at(900))
		if err != nil {
			t.Fatalf("ResolveInterpolated: %v", err)
		}
		if !s.Observed() || s.Timestamp.Unix() != 200 {
			t.Errorf("Expected observed last sample, got %+v", s.TrackingSample)
		}
		if s.Ratio != 1 || s.Pre != s.Post || s.Pre.Timestamp.Unix() != 200 {
			t.Errorf("Expected ratio 1 with Pre=Post=last, got ratio %f", s.Ratio)
		}
	})

	t.Run("Exact sample time", func(t *testing.T) {
		s, err := res.ResolveInterpolated("AA1", at(100))
		if err != nil {
			t.Fatalf("ResolveInterpolated: %v", err)
		}
		if s.Ratio != 0 || s.Pre != s.Post || s.Position.Altitude != 10000 {
			t.Errorf("Expected ratio 0 at the observed sample, got ratio %f altitude %f", s.Ratio, s.Position.Altitude)
		}
	})

	t.Run("Before the first sample is not found", func(t *testing.T) {
		if _, err := res.ResolveInterpolated("AA1", at(99)); !errors.Is(err, flight.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ResolveAt does not interpolate", func(t *testing.T) {
		s, _ := res.ResolveAt("AA1", at(150))
		if s.Position.Altitude != 10000 {
			t.Errorf("Expected observed altitude 10000, got %f", s.Position.Altitude)
		}
	})
}

func TestStatistics(t *testing.T) {
	store := NewPathStore()
	res := NewResolver(store)

	if got := res.Statistics("AA1"); got.TotalPoints != 0 || got.DistanceNM != 0 {
		t.Errorf("Expected empty statistics, got %+v", got)
	}

	a := sampleAt("AA1", 0, 40, -74)
	a.Speed = 300
	b := sampleAt("AA1", 600, 41, -74)
	b.Speed = 500
	b.Position.Altitude = 35000
	store.UpsertAll("AA1", []flight.TrackingSample{a, b})

	got := res.Statistics("aa1")
	if got.FlightNumber != "AA1" || got.TotalPoints != 2 {
		t.Errorf("Unexpected header %+v", got)
	}
	if got.MaxAltitude != 35000 || got.MaxSpeed != 500 || got.AverageSpeed != 400 {
		t.Errorf("Unexpected extremes %+v", got)
	}
	if math.Abs(got.DistanceNM-60) > 0.5 {
		t.Errorf("Expected ~60nm, got %f", got.DistanceNM)
	}
	if got.DurationMinutes != 10 {
		t.Errorf("Expected 10 minutes, got %f", got.DurationMinutes)
	}
}
