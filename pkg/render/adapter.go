package render

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/skypies/geo"

	"github.com/unklstewy/flighttrack/pkg/coordinates"
	"github.com/unklstewy/flighttrack/pkg/flight"
)

// Route and vector polyline IDs.
const (
	RouteID  = "route"
	VectorID = "heading-vector"
)

// Options tune scene construction.
type Options struct {
	// Padding grows the viewport by this fraction of its span on each side
	Padding float64

	// MinExtentKM is the smallest viewport side, so that a single sample
	// does not produce a zero-area box
	MinExtentKM float64

	// VectorMinutes is how far ahead the heading vector reaches (0 disables)
	VectorMinutes float64
}

// DefaultOptions returns the options used by the bundled front ends.
func DefaultOptions() Options {
	return Options{Padding: 0.1, MinExtentKM: 20, VectorMinutes: 1}
}

// Adapter builds scenes and draws them through a Renderer.
type Adapter struct {
	opts Options

	mu      sync.Mutex
	markers map[MarkerKey]Marker
	last    *Scene
}

// NewAdapter creates an adapter with the given options.
func NewAdapter(opts Options) *Adapter {
	return &Adapter{opts: opts, markers: make(map[MarkerKey]Marker)}
}

// Build describes path, the flight's airports and the resolved current
// position as a Scene. It does not touch any renderer. f and current may
// be nil.
func (a *Adapter) Build(path []flight.TrackingSample, f *flight.Flight, current *flight.TrackingSample) Scene {
	scene := Scene{
		Route:   Polyline{ID: RouteID, Points: make([]LatLon, 0, len(path))},
		Samples: make([]Marker, 0, len(path)),
		Replace: true,
	}

	var box *geo.LatlongBox
	enclose := func(ll geo.Latlong) {
		if box == nil {
			b := ll.BoxTo(ll)
			box = &b
			return
		}
		box.Enclose(ll)
	}

	for i, s := range path {
		p := LatLon{Lat: s.Position.Latitude, Lon: s.Position.Longitude}
		scene.Route.Points = append(scene.Route.Points, p)
		scene.Samples = append(scene.Samples, sampleMarker(i, s))
		enclose(geo.Latlong{Lat: p.Lat, Long: p.Lon})
		if scene.FlightNumber == "" {
			scene.FlightNumber = s.FlightNumber
		}
	}

	if f != nil {
		scene.FlightNumber = f.FlightNumber
		scene.Origin = airportMarker(RoleOrigin, f.Origin)
		scene.Destination = airportMarker(RoleDestination, f.Destination)
	}

	if current != nil {
		m := currentMarker(*current)
		scene.Current = &m
		scene.Vector = a.vector(*current)
	}

	if box == nil {
		scene.Viewport = Viewport{Empty: true}
	} else {
		scene.Viewport = a.viewport(*box)
	}
	return scene
}

// viewport pads the path's bounding box.
func (a *Adapter) viewport(box geo.LatlongBox) Viewport {
	// Grow degenerate boxes to the minimum extent around their center
	if a.opts.MinExtentKM > 0 {
		if box.NW().DistKM(box.NE) < a.opts.MinExtentKM || box.NW().DistKM(box.SW) < a.opts.MinExtentKM {
			center := geo.Latlong{
				Lat:  (box.SW.Lat + box.NE.Lat) / 2,
				Long: (box.SW.Long + box.NE.Long) / 2,
			}
			box.Enclose(center.Box(a.opts.MinExtentKM, a.opts.MinExtentKM).SW)
			box.Enclose(center.Box(a.opts.MinExtentKM, a.opts.MinExtentKM).NE)
		}
	}

	dLat := (box.NE.Lat - box.SW.Lat) * a.opts.Padding
	dLon := (box.NE.Long - box.SW.Long) * a.opts.Padding
	return Viewport{
		SouthWest: LatLon{Lat: math.Max(box.SW.Lat-dLat, -90), Lon: math.Max(box.SW.Long-dLon, -180)},
		NorthEast: LatLon{Lat: math.Min(box.NE.Lat+dLat, 90), Lon: math.Min(box.NE.Long+dLon, 180)},
	}
}

// vector is the heading line from the current position, dead reckoned for
// VectorMinutes at the current ground speed.
func (a *Adapter) vector(s flight.TrackingSample) *Polyline {
	if a.opts.VectorMinutes <= 0 || s.Speed <= 0 {
		return nil
	}
	start := coordinates.Geographic{Latitude: s.Position.Latitude, Longitude: s.Position.Longitude}
	end := coordinates.DeadReckon(start, s.Speed, s.Heading, a.opts.VectorMinutes*60)
	v := &Polyline{ID: VectorID, Points: []LatLon{
		{Lat: start.Latitude, Lon: start.Longitude},
		{Lat: end.Latitude, Lon: end.Longitude},
	}}
	if v.Check() != nil {
		return nil
	}
	return v
}

func sampleMarker(i int, s flight.TrackingSample) Marker {
	return Marker{
		Key:      MarkerKey{Role: RoleSample, Index: i},
		Position: LatLon{Lat: s.Position.Latitude, Lon: s.Position.Longitude},
		Label:    s.Timestamp.UTC().Format("15:04:05"),
		Metadata: map[string]string{
			"index":     strconv.Itoa(i),
			"altitude":  strconv.FormatFloat(s.Position.Altitude, 'f', 0, 64),
			"speed":     strconv.FormatFloat(s.Speed, 'f', 0, 64),
			"timestamp": s.Timestamp.UTC().Format(time.RFC3339),
		},
	}
}

func airportMarker(role Role, ap flight.Airport) *Marker {
	if ap.Code == "" && ap.City == "" {
		return nil
	}
	return &Marker{
		Key:      MarkerKey{Role: role},
		Position: LatLon{Lat: ap.Coordinates.Latitude, Lon: ap.Coordinates.Longitude},
		Label:    ap.Label(),
		Metadata: map[string]string{"airport": ap.Code, "city": ap.City, "country": ap.Country},
	}
}

func currentMarker(s flight.TrackingSample) Marker {
	return Marker{
		Key:      MarkerKey{Role: RoleCurrent},
		Position: LatLon{Lat: s.Position.Latitude, Lon: s.Position.Longitude},
		Label:    s.FlightNumber,
		Rotation: s.Heading,
		Metadata: map[string]string{
			"altitude":  strconv.FormatFloat(s.Position.Altitude, 'f', 0, 64),
			"speed":     strconv.FormatFloat(s.Speed, 'f', 0, 64),
			"heading":   strconv.FormatFloat(s.Heading, 'f', 0, 64),
			"timestamp": s.Timestamp.UTC().Format(time.RFC3339),
		},
	}
}

// Draw builds a scene and paints it on r, replacing everything r showed.
func (a *Adapter) Draw(r Renderer, path []flight.TrackingSample, f *flight.Flight, current *flight.TrackingSample) (Scene, error) {
	scene := a.Build(path, f, current)
	return scene, a.Paint(r, scene)
}

// Paint clears r and draws scene on it.
func (a *Adapter) Paint(r Renderer, scene Scene) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	r.Clear()
	a.markers = make(map[MarkerKey]Marker)
	a.last = &scene

	if len(scene.Route.Points) > 0 {
		if err := r.DrawPolyline(scene.Route); err != nil {
			return fmt.Errorf("draw route: %w", err)
		}
	}
	if scene.Vector != nil {
		if err := r.DrawPolyline(*scene.Vector); err != nil {
			return fmt.Errorf("draw heading vector: %w", err)
		}
	}
	for _, m := range scene.Markers() {
		if err := r.DrawMarker(m); err != nil {
			return fmt.Errorf("draw marker %s: %w", m.Key, err)
		}
		a.markers[m.Key] = m
	}
	if !scene.Viewport.Empty {
		if err := r.FitBounds(scene.Viewport); err != nil {
			return fmt.Errorf("fit bounds: %w", err)
		}
	}
	return nil
}

// SetCurrent replaces the current-position marker (and heading vector) of
// the last painted scene. A nil sample removes it.
func (a *Adapter) SetCurrent(r Renderer, current *flight.TrackingSample) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := MarkerKey{Role: RoleCurrent}
	if _, ok := a.markers[key]; ok {
		if err := r.RemoveMarker(key); err != nil {
			return fmt.Errorf("remove current marker: %w", err)
		}
		delete(a.markers, key)
	}

	if a.last != nil {
		a.last.Current = nil
		a.last.Vector = nil
	}
	if current == nil {
		return nil
	}

	m := currentMarker(*current)
	if err := r.DrawMarker(m); err != nil {
		return fmt.Errorf("draw current marker: %w", err)
	}
	a.markers[key] = m

	if a.last != nil {
		a.last.Current = &m
		if v := a.vector(*current); v != nil {
			if err := r.DrawPolyline(*v); err != nil {
				return fmt.Errorf("draw heading vector: %w", err)
			}
			a.last.Vector = v
		}
	}
	return nil
}

// Last returns the most recently painted scene.
func (a *Adapter) Last() (Scene, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return Scene{}, false
	}
	return *a.last, true
}

// Marker looks up a drawn marker by key.
func (a *Adapter) Marker(key MarkerKey) (Marker, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.markers[key]
	return m, ok
}

// Markers returns every drawn marker, samples first in path order.
func (a *Adapter) Markers() []Marker {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Marker, 0, len(a.markers))
	for _, m := range a.markers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := roleOrder(out[i].Key.Role), roleOrder(out[j].Key.Role)
		if ri != rj {
			return ri < rj
		}
		return out[i].Key.Index < out[j].Key.Index
	})
	return out
}

func roleOrder(r Role) int {
	switch r {
	case RoleSample:
		return 0
	case RoleOrigin:
		return 1
	case RoleDestination:
		return 2
	}
	return 3
}
