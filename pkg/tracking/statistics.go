package tracking

import (
	"math"

	"github.com/unklstewy/flighttrack/pkg/coordinates"
	"github.com/unklstewy/flighttrack/pkg/flight"
)

// PathStatistics summarizes an ordered path the same way the backend
// summarizes an archived flight log.
func PathStatistics(flightNumber string, path []flight.TrackingSample) flight.FlightStatistics {
	stats := flight.FlightStatistics{
		FlightNumber: flight.NormalizeFlightNumber(flightNumber),
		TotalPoints:  len(path),
	}
	if len(path) == 0 {
		return stats
	}

	points := make([]coordinates.Geographic, len(path))
	speedSum := 0.0
	stats.MaxAltitude = math.Inf(-1)
	for i, s := range path {
		points[i] = coordinates.Geographic{Latitude: s.Position.Latitude, Longitude: s.Position.Longitude}
		stats.MaxAltitude = math.Max(stats.MaxAltitude, s.Position.Altitude)
		stats.MaxSpeed = math.Max(stats.MaxSpeed, s.Speed)
		speedSum += s.Speed
	}

	stats.AverageSpeed = speedSum / float64(len(path))
	stats.DistanceNM = coordinates.PathLengthNauticalMiles(points)
	stats.DurationMinutes = path[len(path)-1].Timestamp.Sub(path[0].Timestamp).Minutes()
	return stats
}

// Statistics summarizes the path currently held for a flight.
func (r *Resolver) Statistics(flightNumber string) flight.FlightStatistics {
	return PathStatistics(flightNumber, r.store.Get(flightNumber))
}
