// Package render turns a flight path into a renderer-agnostic Scene and
// paints it through a Renderer binding.
//
// A Scene always replaces whatever was drawn before: bindings clear, then
// draw. The Adapter keeps a registry of the markers it has drawn so that
// the current-position marker can be swapped without a full redraw.
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LatLon is a map coordinate in decimal degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Finite reports whether both coordinates are finite numbers.
func (p LatLon) Finite() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lon) && !math.IsInf(p.Lon, 0)
}

// Role says what a marker stands for.
type Role string

const (
	RoleSample      Role = "sample"
	RoleOrigin      Role = "origin"
	RoleDestination Role = "destination"
	RoleCurrent     Role = "current"
)

// MarkerKey identifies a marker in the registry. Index is the path index
// for sample markers and 0 for every other role.
type MarkerKey struct {
	Role  Role
	Index int
}

func (k MarkerKey) String() string {
	if k.Role == RoleSample {
		return fmt.Sprintf("%s:%d", k.Role, k.Index)
	}
	return string(k.Role)
}

func (k MarkerKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *MarkerKey) UnmarshalText(b []byte) error {
	parsed, err := ParseMarkerKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseMarkerKey is the inverse of MarkerKey.String.
func ParseMarkerKey(s string) (MarkerKey, error) {
	role, idx, found := strings.Cut(s, ":")
	switch Role(role) {
	case RoleOrigin, RoleDestination, RoleCurrent:
		if found {
			return MarkerKey{}, fmt.Errorf("marker key %q: role %s takes no index", s, role)
		}
		return MarkerKey{Role: Role(role)}, nil
	case RoleSample:
		i, err := strconv.Atoi(idx)
		if !found || err != nil || i < 0 {
			return MarkerKey{}, fmt.Errorf("marker key %q: bad sample index", s)
		}
		return MarkerKey{Role: RoleSample, Index: i}, nil
	}
	return MarkerKey{}, fmt.Errorf("marker key %q: unknown role", s)
}

// Marker is a point of interest on the map.
type Marker struct {
	Key      MarkerKey `json:"key"`
	Position LatLon    `json:"position"`
	Label    string    `json:"label"`

	// Rotation in degrees clockwise from north; only the current-position
	// marker is rotated
	Rotation float64 `json:"rotation,omitempty"`

	// Metadata is shown when the marker is clicked
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Polyline is an ordered line on the map.
type Polyline struct {
	ID     string   `json:"id"`
	Points []LatLon `json:"points"`
}

// Check reports why a binding cannot draw the polyline, nil if it can.
func (p Polyline) Check() error {
	if len(p.Points) == 0 {
		return fmt.Errorf("polyline %q has no points", p.ID)
	}
	for i, pt := range p.Points {
		if !pt.Finite() {
			return fmt.Errorf("polyline %q: point %d is not finite", p.ID, i)
		}
	}
	return nil
}

// Viewport is the bounding box a renderer should fit.
type Viewport struct {
	SouthWest LatLon `json:"southWest"`
	NorthEast LatLon `json:"northEast"`

	// Empty is set when there is nothing to fit
	Empty bool `json:"empty,omitempty"`
}

// Contains reports whether p lies inside the viewport.
func (v Viewport) Contains(p LatLon) bool {
	return !v.Empty &&
		p.Lat >= v.SouthWest.Lat && p.Lat <= v.NorthEast.Lat &&
		p.Lon >= v.SouthWest.Lon && p.Lon <= v.NorthEast.Lon
}

// Scene is the complete drawing description of one flight.
type Scene struct {
	FlightNumber string `json:"flightNumber"`

	// Route connects the samples in path order
	Route Polyline `json:"route"`

	// Vector projects the current heading ahead of the aircraft, nil when
	// there is no current position or vectors are disabled
	Vector *Polyline `json:"vector,omitempty"`

	// Samples holds one marker per path sample, in path order
	Samples []Marker `json:"samples"`

	Origin      *Marker `json:"origin,omitempty"`
	Destination *Marker `json:"destination,omitempty"`
	Current     *Marker `json:"current,omitempty"`

	Viewport Viewport `json:"viewport"`

	// Replace tells the binding to clear before drawing
	Replace bool `json:"replace"`
}

// Markers lists every marker of the scene in drawing order: samples, then
// airports, then the current position on top.
func (s Scene) Markers() []Marker {
	out := make([]Marker, 0, len(s.Samples)+3)
	out = append(out, s.Samples...)
	for _, m := range []*Marker{s.Origin, s.Destination, s.Current} {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}

// Renderer is the capability set a drawing surface provides.
type Renderer interface {
	Clear()
	DrawPolyline(Polyline) error
	DrawMarker(Marker) error
	RemoveMarker(MarkerKey) error
	FitBounds(Viewport) error
	OnPointClick(func(Marker))
}
