package flight

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Range limits for tracking sample fields.
const (
	MinLatitude       = -90.0
	MaxLatitude       = 90.0
	MinLongitude      = -180.0
	MaxLongitude      = 180.0
	MaxHeading        = 360.0 // exclusive
	MaxSignalStrength = 100.0

	// MaxSpeed in knots, well above any aircraft reporting ADS-B
	MaxSpeed = 2500.0

	// DefaultSignalStrength is assumed when a record carries no receiver quality
	DefaultSignalStrength = 100.0

	minFlightNumberLen = 2
	maxFlightNumberLen = 10
)

// ValidateSample checks an untyped tracking record (a decoded JSON object or
// form values) and converts it into a TrackingSample. The record must carry
// its own flight number.
func ValidateSample(raw map[string]interface{}) (TrackingSample, error) {
	return ValidateSampleFor("", raw)
}

// ValidateSampleFor is ValidateSample for records ingested on behalf of a
// known flight. A record without a flight number inherits flightNumber; a
// record naming a different flight is rejected.
//
// Both nested ("position": {"latitude": ...}) and flat ("latitude": ...)
// layouts are accepted. Fields are checked in a fixed order and the first
// offending one is reported.
func ValidateSampleFor(flightNumber string, raw map[string]interface{}) (TrackingSample, error) {
	var s TrackingSample

	if raw == nil {
		return s, &ValidationError{Field: "record", Reason: "is empty"}
	}

	// Flight number
	number := NormalizeFlightNumber(flightNumber)
	if v, ok := lookup(raw, "flightNumber"); ok {
		str, isStr := v.(string)
		if !isStr {
			return s, &ValidationError{Field: "flightNumber", Reason: "must be a string"}
		}
		own := NormalizeFlightNumber(str)
		if number != "" && own != number {
			return s, &ValidationError{Field: "flightNumber",
				Reason: fmt.Sprintf("record belongs to %s, not %s", own, number)}
		}
		number = own
	}
	if err := checkFlightNumber(number); err != nil {
		return s, err
	}
	s.FlightNumber = number

	// Timestamp
	v, ok := lookup(raw, "timestamp")
	if !ok {
		return s, &ValidationError{Field: "timestamp", Reason: "is required"}
	}
	ts, err := toTime(v)
	if err != nil {
		return s, &ValidationError{Field: "timestamp", Reason: err.Error()}
	}
	s.Timestamp = ts

	// Position
	if s.Position.Latitude, err = requiredNumber(raw, "latitude", "position.latitude", "latitude"); err != nil {
		return s, err
	}
	if s.Position.Latitude < MinLatitude || s.Position.Latitude > MaxLatitude {
		return s, outOfRange("latitude", s.Position.Latitude, "[-90, 90]")
	}
	if s.Position.Longitude, err = requiredNumber(raw, "longitude", "position.longitude", "longitude"); err != nil {
		return s, err
	}
	if s.Position.Longitude < MinLongitude || s.Position.Longitude > MaxLongitude {
		return s, outOfRange("longitude", s.Position.Longitude, "[-180, 180]")
	}
	// Altitude is not range checked.
	if s.Position.Altitude, err = requiredNumber(raw, "altitude", "position.altitude", "altitude"); err != nil {
		return s, err
	}

	// Kinematics
	if s.Speed, err = requiredNumber(raw, "speed", "speed"); err != nil {
		return s, err
	}
	if s.Speed < 0 || s.Speed > MaxSpeed {
		return s, outOfRange("speed", s.Speed, "[0, 2500]")
	}
	if s.Heading, err = requiredNumber(raw, "heading", "heading"); err != nil {
		return s, err
	}
	if s.Heading < 0 || s.Heading >= MaxHeading {
		return s, outOfRange("heading", s.Heading, "[0, 360)")
	}
	if s.VerticalSpeed, err = optionalNumber(raw, "verticalSpeed", 0, "verticalSpeed"); err != nil {
		return s, err
	}

	// Receiver metadata
	s.ReceiverInfo.SignalStrength, err = optionalNumber(raw, "receiverInfo.signalStrength",
		DefaultSignalStrength, "receiverInfo.signalStrength", "signalStrength")
	if err != nil {
		return s, err
	}
	if s.ReceiverInfo.SignalStrength < 0 || s.ReceiverInfo.SignalStrength > MaxSignalStrength {
		return s, outOfRange("receiverInfo.signalStrength", s.ReceiverInfo.SignalStrength, "[0, 100]")
	}
	if v, ok := lookup(raw, "receiverInfo.receiverId", "receiverId"); ok {
		s.ReceiverInfo.ReceiverID = fmt.Sprint(v)
	}
	if s.ReceiverInfo.ReceiverLocation.Latitude, err = optionalNumber(raw,
		"receiverInfo.receiverLocation.latitude", 0, "receiverInfo.receiverLocation.latitude"); err != nil {
		return s, err
	}
	if s.ReceiverInfo.ReceiverLocation.Longitude, err = optionalNumber(raw,
		"receiverInfo.receiverLocation.longitude", 0, "receiverInfo.receiverLocation.longitude"); err != nil {
		return s, err
	}

	if v, ok := lookup(raw, "squawk"); ok {
		s.Squawk = strings.TrimSpace(fmt.Sprint(v))
	}

	return s, nil
}

// ValidateFlight checks a flight record before it is sent to the backend.
func ValidateFlight(f Flight) error {
	if err := checkFlightNumber(NormalizeFlightNumber(f.FlightNumber)); err != nil {
		return err
	}
	if f.Status != "" && !f.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", f.Status)}
	}
	for _, ap := range []struct {
		name string
		c    Coordinates
	}{
		{"origin.coordinates", f.Origin.Coordinates},
		{"destination.coordinates", f.Destination.Coordinates},
	} {
		if ap.c.Latitude < MinLatitude || ap.c.Latitude > MaxLatitude {
			return outOfRange(ap.name+".latitude", ap.c.Latitude, "[-90, 90]")
		}
		if ap.c.Longitude < MinLongitude || ap.c.Longitude > MaxLongitude {
			return outOfRange(ap.name+".longitude", ap.c.Longitude, "[-180, 180]")
		}
	}
	if !f.ScheduledDeparture.IsZero() && !f.ScheduledArrival.IsZero() &&
		f.ScheduledArrival.Before(f.ScheduledDeparture) {
		return &ValidationError{Field: "scheduledArrival", Reason: "is before scheduled departure"}
	}
	return nil
}

func checkFlightNumber(number string) error {
	switch {
	case number == "":
		return &ValidationError{Field: "flightNumber", Reason: "is required"}
	case len(number) < minFlightNumberLen || len(number) > maxFlightNumberLen:
		return &ValidationError{Field: "flightNumber",
			Reason: fmt.Sprintf("must be %d-%d letters or digits", minFlightNumberLen, maxFlightNumberLen)}
	}
	return nil
}

func outOfRange(field string, v float64, want string) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf("%g is outside %s", v, want)}
}

// requiredNumber looks a numeric field up under each path in turn.
func requiredNumber(raw map[string]interface{}, field string, paths ...string) (float64, error) {
	v, ok := lookup(raw, paths...)
	if !ok {
		return 0, &ValidationError{Field: field, Reason: "is required"}
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, &ValidationError{Field: field, Reason: err.Error()}
	}
	return f, nil
}

func optionalNumber(raw map[string]interface{}, field string, def float64, paths ...string) (float64, error) {
	v, ok := lookup(raw, paths...)
	if !ok {
		return def, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, &ValidationError{Field: field, Reason: err.Error()}
	}
	return f, nil
}

// lookup resolves the first present dotted path ("position.latitude").
// Explicit nulls count as absent.
func lookup(raw map[string]interface{}, paths ...string) (interface{}, bool) {
	for _, path := range paths {
		var cur interface{} = raw
		found := true
		for _, key := range strings.Split(path, ".") {
			m, ok := cur.(map[string]interface{})
			if !ok {
				found = false
				break
			}
			if cur, ok = m[key]; !ok || cur == nil {
				found = false
				break
			}
		}
		if found {
			return cur, true
		}
	}
	return nil, false
}

func toFloat(v interface{}) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("must be numeric, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("must be a finite number")
	}
	return f, nil
}

// toTime accepts RFC3339 strings (with or without fractional seconds),
// time.Time values and Unix epochs. Epochs above 1e12 are milliseconds.
func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, fmt.Errorf("is zero")
		}
		return t.UTC(), nil
	case string:
		str := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
			if parsed, err := time.Parse(layout, str); err == nil {
				return parsed.UTC(), nil
			}
		}
		if _, err := strconv.ParseFloat(str, 64); err != nil {
			return time.Time{}, fmt.Errorf("%q is not a valid time", t)
		}
	}
	f, err := toFloat(v)
	if err != nil {
		return time.Time{}, err
	}
	if f <= 0 {
		return time.Time{}, fmt.Errorf("%g is not a valid epoch", f)
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC(), nil
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// Validate applies the range checks of ValidateSample to an already typed
// sample, e.g. one decoded from a backend path response.
func (s TrackingSample) Validate() error {
	if err := checkFlightNumber(s.FlightNumber); err != nil {
		return err
	}
	if s.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "is required"}
	}
	if math.IsNaN(s.Position.Latitude) || s.Position.Latitude < MinLatitude || s.Position.Latitude > MaxLatitude {
		return outOfRange("latitude", s.Position.Latitude, "[-90, 90]")
	}
	if math.IsNaN(s.Position.Longitude) || s.Position.Longitude < MinLongitude || s.Position.Longitude > MaxLongitude {
		return outOfRange("longitude", s.Position.Longitude, "[-180, 180]")
	}
	if math.IsNaN(s.Speed) || s.Speed < 0 || s.Speed > MaxSpeed {
		return outOfRange("speed", s.Speed, "[0, 2500]")
	}
	if math.IsNaN(s.Heading) || s.Heading < 0 || s.Heading >= MaxHeading {
		return outOfRange("heading", s.Heading, "[0, 360)")
	}
	if s.ReceiverInfo.SignalStrength < 0 || s.ReceiverInfo.SignalStrength > MaxSignalStrength {
		return outOfRange("receiverInfo.signalStrength", s.ReceiverInfo.SignalStrength, "[0, 100]")
	}
	return nil
}
