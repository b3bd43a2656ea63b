package coordinates

import (
	"math"
	"testing"
)

func TestBearing(t *testing.T) {
	origin := Geographic{Latitude: 40.0, Longitude: -74.0}

	tests := []struct {
		name      string
		to        Geographic
		want      float64
		tolerance float64
	}{
		{"Due north", Geographic{Latitude: 41.0, Longitude: -74.0}, 0.0, 0.01},
		{"Due south", Geographic{Latitude: 39.0, Longitude: -74.0}, 180.0, 0.01},
		{"Roughly east", Geographic{Latitude: 40.0, Longitude: -73.0}, 90.0, 1.0},
		{"Roughly west", Geographic{Latitude: 40.0, Longitude: -75.0}, 270.0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(origin, tt.to)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("Bearing() = %.3f, want %.3f ± %.3f", got, tt.want, tt.tolerance)
			}
			if got < 0 || got >= 360 {
				t.Errorf("Bearing() = %.3f, outside [0, 360)", got)
			}
		})
	}
}

func TestDistanceNauticalMiles(t *testing.T) {
	t.Run("One degree of latitude is about 60nm", func(t *testing.T) {
		d := DistanceNauticalMiles(
			Geographic{Latitude: 40.0, Longitude: -74.0},
			Geographic{Latitude: 41.0, Longitude: -74.0},
		)
		if math.Abs(d-60.0) > 0.5 {
			t.Errorf("Expected ~60nm, got %.3f", d)
		}
	})

	t.Run("JFK to LAX", func(t *testing.T) {
		d := DistanceNauticalMiles(
			Geographic{Latitude: 40.6413, Longitude: -73.7781},
			Geographic{Latitude: 33.9416, Longitude: -118.4085},
		)
		// Published great-circle distance is about 2145nm
		if math.Abs(d-2145) > 15 {
			t.Errorf("Expected ~2145nm, got %.1f", d)
		}
	})

	t.Run("Same point", func(t *testing.T) {
		p := Geographic{Latitude: 12.5, Longitude: 99.1}
		if d := DistanceNauticalMiles(p, p); d != 0 {
			t.Errorf("Expected 0, got %f", d)
		}
	})
}

func TestPathLengthNauticalMiles(t *testing.T) {
	path := []Geographic{
		{Latitude: 0, Longitude: 0},
		{Latitude: 1, Longitude: 0},
		{Latitude: 2, Longitude: 0},
	}
	got := PathLengthNauticalMiles(path)
	want := DistanceNauticalMiles(path[0], path[2])
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("Collinear legs should sum to the direct distance: %f vs %f", got, want)
	}
	if PathLengthNauticalMiles(path[:1]) != 0 {
		t.Error("Single point path should have zero length")
	}
}

func TestDestination(t *testing.T) {
	start := Geographic{Latitude: 40.0, Longitude: -74.0}

	t.Run("Round trip with distance and bearing", func(t *testing.T) {
		for _, brg := range []float64{0, 45, 90, 135, 180, 270, 315} {
			end := Destination(start, brg, 100)
			if d := DistanceNauticalMiles(start, end); math.Abs(d-100) > 0.01 {
				t.Errorf("Bearing %.0f: expected 100nm, got %.4f", brg, d)
			}
			if b := Bearing(start, end); math.Abs(HeadingDifference(brg, b)) > 0.01 {
				t.Errorf("Bearing %.0f: initial bearing came back as %.4f", brg, b)
			}
		}
	})

	t.Run("Crossing the antimeridian wraps longitude", func(t *testing.T) {
		end := Destination(Geographic{Latitude: 0, Longitude: 179.9}, 90, 60)
		if end.Longitude > 180 || end.Longitude > 0 {
			t.Errorf("Expected wrapped negative longitude, got %f", end.Longitude)
		}
	})
}

func TestDeadReckon(t *testing.T) {
	start := Geographic{Latitude: 40.0, Longitude: -74.0}

	// 360 knots for 10 minutes is 60nm, about one degree of latitude
	end := DeadReckon(start, 360, 0, 600)
	if math.Abs(end.Latitude-41.0) > 0.01 {
		t.Errorf("Expected ~41.0, got %f", end.Latitude)
	}

	if got := DeadReckon(start, 0, 90, 600); got != start {
		t.Errorf("Stationary aircraft should not move, got %+v", got)
	}
	if got := DeadReckon(start, 400, 90, -5); got != start {
		t.Errorf("Negative time should not move, got %+v", got)
	}
}

func TestNormalize(t *testing.T) {
	azTests := map[float64]float64{0: 0, 360: 0, 370: 10, -10: 350, -370: 350}
	for in, want := range azTests {
		if got := NormalizeAzimuth(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("NormalizeAzimuth(%f) = %f, want %f", in, got, want)
		}
	}

	if got := HeadingDifference(350, 10); math.Abs(got-20) > 1e-9 {
		t.Errorf("HeadingDifference(350, 10) = %f, want 20", got)
	}
	if got := HeadingDifference(10, 350); math.Abs(got+20) > 1e-9 {
		t.Errorf("HeadingDifference(10, 350) = %f, want -20", got)
	}
}
