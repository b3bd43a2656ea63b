// Package coordinates provides the spherical-earth geodesy used to measure
// and draw flight paths: bearings, great-circle distances and dead-reckoned
// destination points.
package coordinates

import (
	"math"
)

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusKm is the Earth's radius in kilometers (WGS84 mean radius)
	EarthRadiusKm = 6371.0

	// KmPerNauticalMile is the length of one nautical mile
	KmPerNauticalMile = 1.852

	// FeetToMeters converts feet to meters
	FeetToMeters = 0.3048
)

// Geographic represents a position on Earth's surface.
// Uses the WGS84 coordinate system (same as GPS).
type Geographic struct {
	// Latitude in decimal degrees (-90 to +90)
	// Positive = North, Negative = South
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	// Positive = East, Negative = West
	Longitude float64
}

// NormalizeAzimuth ensures azimuth is in the range [0, 360).
func NormalizeAzimuth(azimuth float64) float64 {
	az := math.Mod(azimuth, 360.0)
	if az < 0 {
		az += 360.0
	}
	return az
}

// NormalizeLongitude wraps a longitude into [-180, 180].
func NormalizeLongitude(lon float64) float64 {
	for lon > 180.0 {
		lon -= 360.0
	}
	for lon < -180.0 {
		lon += 360.0
	}
	return lon
}

// HeadingDifference returns the signed turn from one heading to another in
// the range [-180, 180]. Positive is clockwise.
func HeadingDifference(from, to float64) float64 {
	return NormalizeLongitude(to - from)
}

// Bearing calculates the initial bearing (forward azimuth) from one point to another.
// Uses spherical trigonometry to calculate the bearing along a great circle.
// Returns bearing in degrees (0-360), where 0/360 = North, 90 = East, 180 = South, 270 = West.
func Bearing(from, to Geographic) float64 {
	lat1 := from.Latitude * DegreesToRadians
	lon1 := from.Longitude * DegreesToRadians
	lat2 := to.Latitude * DegreesToRadians
	lon2 := to.Longitude * DegreesToRadians

	dLon := lon2 - lon1
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return NormalizeAzimuth(math.Atan2(y, x) * RadiansToDegrees)
}

// DistanceNauticalMiles calculates the great-circle distance between two points.
// Uses the Haversine formula for accuracy over short and long distances.
func DistanceNauticalMiles(from, to Geographic) float64 {
	lat1Rad := from.Latitude * DegreesToRadians
	lon1Rad := from.Longitude * DegreesToRadians
	lat2Rad := to.Latitude * DegreesToRadians
	lon2Rad := to.Longitude * DegreesToRadians

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c / KmPerNauticalMile
}

// PathLengthNauticalMiles sums the great-circle legs of an ordered path.
func PathLengthNauticalMiles(points []Geographic) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += DistanceNauticalMiles(points[i-1], points[i])
	}
	return total
}

// Destination returns the point reached by travelling distanceNM along a
// great circle from start with the given initial bearing.
//
//	lat2 = asin(sin(lat1)*cos(d) + cos(lat1)*sin(d)*cos(brg))
//	lon2 = lon1 + atan2(sin(brg)*sin(d)*cos(lat1), cos(d)-sin(lat1)*sin(lat2))
func Destination(start Geographic, bearingDeg, distanceNM float64) Geographic {
	latRad := start.Latitude * DegreesToRadians
	lonRad := start.Longitude * DegreesToRadians
	brgRad := bearingDeg * DegreesToRadians

	// Angular distance (distance / Earth radius)
	d := distanceNM * KmPerNauticalMile / EarthRadiusKm

	newLatRad := math.Asin(
		math.Sin(latRad)*math.Cos(d) +
			math.Cos(latRad)*math.Sin(d)*math.Cos(brgRad),
	)
	newLonRad := lonRad + math.Atan2(
		math.Sin(brgRad)*math.Sin(d)*math.Cos(latRad),
		math.Cos(d)-math.Sin(latRad)*math.Sin(newLatRad),
	)

	return Geographic{
		Latitude:  newLatRad * RadiansToDegrees,
		Longitude: NormalizeLongitude(newLonRad * RadiansToDegrees),
	}
}

// DeadReckon projects a position forward given ground speed in knots and
// track in degrees for the given number of seconds.
func DeadReckon(start Geographic, speedKnots, trackDeg, seconds float64) Geographic {
	if seconds <= 0 || speedKnots <= 0 {
		return start
	}
	// 1 knot = 1 nautical mile per hour
	return Destination(start, trackDeg, speedKnots*seconds/3600.0)
}
