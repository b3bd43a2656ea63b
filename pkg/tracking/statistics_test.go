package tracking

import (
	"math"
	"testing"

	"github.com/unklstewy/flighttrack/pkg/flight"
)

func TestPathStatistics(t *testing.T) {
	t.Run("Empty path", func(t *testing.T) {
		st := PathStatistics("aa1", nil)
		if st.FlightNumber != "AA1" || st.TotalPoints != 0 || st.MaxAltitude != 0 {
			t.Errorf("Unexpected statistics for empty path: %+v", st)
		}
	})

	t.Run("Equatorial path", func(t *testing.T) {
		path := []flight.TrackingSample{
			sampleAt("AA1", 100, 0, 0),
			sampleAt("AA1", 160, 0, 1),
			sampleAt("AA1", 220, 0, 2),
		}
		path[1].Speed = 480
		path[2].Position.Altitude = 35000

		st := PathStatistics("AA1", path)
		if st.TotalPoints != 3 {
			t.Errorf("Expected 3 points, got %d", st.TotalPoints)
		}
		// One degree of arc is about 60.04 NM
		if math.Abs(st.DistanceNM-120.08) > 0.1 {
			t.Errorf("Expected about 120.08 NM, got %.2f", st.DistanceNM)
		}
		if st.DurationMinutes != 2 {
			t.Errorf("Expected 2 minutes, got %f", st.DurationMinutes)
		}
		if st.MaxSpeed != 480 || st.AverageSpeed != 440 {
			t.Errorf("Unexpected speeds max=%f avg=%f", st.MaxSpeed, st.AverageSpeed)
		}
		if st.MaxAltitude != 35000 {
			t.Errorf("Expected max altitude 35000, got %f", st.MaxAltitude)
		}
	})

	t.Run("Resolver reads the held path", func(t *testing.T) {
		store := NewPathStore()
		store.Upsert("AA1", sampleAt("AA1", 100, 10, 10))
		if got := NewResolver(store).Statistics("AA1").TotalPoints; got != 1 {
			t.Errorf("Expected 1 point, got %d", got)
		}
	})
}
