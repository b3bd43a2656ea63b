package render

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	geojson "github.com/paulmach/go.geojson"
)

// ErrMissingMapToken is returned when a map binding is created without an
// access token.
var ErrMissingMapToken = errors.New("map access token is not configured")

// GeoJSON layer names.
const (
	LayerRoute  = "route"
	LayerPoints = "route-points"
)

// MapConfig is what a browser map needs to initialize.
type MapConfig struct {
	AccessToken string `json:"accessToken"`
	Style       string `json:"style"`
}

// GeoJSONRenderer keeps the drawn scene as GeoJSON features, ready to be
// served to a web map.
type GeoJSONRenderer struct {
	config MapConfig

	mu       sync.RWMutex
	lines    map[string]Polyline
	markers  map[MarkerKey]Marker
	viewport Viewport
	onClick  func(Marker)
}

// NewGeoJSONRenderer creates a renderer for a web map. The access token is
// required.
func NewGeoJSONRenderer(cfg MapConfig) (*GeoJSONRenderer, error) {
	if cfg.AccessToken == "" {
		return nil, ErrMissingMapToken
	}
	r := &GeoJSONRenderer{config: cfg}
	r.Clear()
	return r, nil
}

// Config returns the map initialization settings.
func (r *GeoJSONRenderer) Config() MapConfig { return r.config }

func (r *GeoJSONRenderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = make(map[string]Polyline)
	r.markers = make(map[MarkerKey]Marker)
	r.viewport = Viewport{Empty: true}
}

func (r *GeoJSONRenderer) DrawPolyline(p Polyline) error {
	if err := p.Check(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[p.ID] = p
	return nil
}

func (r *GeoJSONRenderer) DrawMarker(m Marker) error {
	if !m.Position.Finite() {
		return fmt.Errorf("marker %s: position is not finite", m.Key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers[m.Key] = m
	return nil
}

func (r *GeoJSONRenderer) RemoveMarker(key MarkerKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.markers, key)
	if key.Role == RoleCurrent {
		delete(r.lines, VectorID)
	}
	return nil
}

func (r *GeoJSONRenderer) FitBounds(v Viewport) error {
	if !v.Empty && (v.SouthWest.Lat > v.NorthEast.Lat || v.SouthWest.Lon > v.NorthEast.Lon) {
		return fmt.Errorf("inverted viewport %+v", v)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport = v
	return nil
}

func (r *GeoJSONRenderer) OnPointClick(fn func(Marker)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClick = fn
}

// Click simulates a click on the marker with the given key, as reported by
// the browser. It returns false when no such marker is drawn.
func (r *GeoJSONRenderer) Click(key MarkerKey) bool {
	r.mu.RLock()
	m, ok := r.markers[key]
	fn := r.onClick
	r.mu.RUnlock()

	if !ok {
		return false
	}
	if fn != nil {
		fn(m)
	}
	return true
}

// Layer returns one layer as a feature collection. Unknown layers are
// empty.
func (r *GeoJSONRenderer) Layer(name string) *geojson.FeatureCollection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fc := geojson.NewFeatureCollection()
	switch name {
	case LayerRoute:
		ids := make([]string, 0, len(r.lines))
		for id := range r.lines {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fc.AddFeature(lineFeature(r.lines[id]))
		}
	case LayerPoints:
		for _, m := range r.sortedMarkers() {
			fc.AddFeature(markerFeature(m))
		}
	}
	r.setBounds(fc)
	return fc
}

// FeatureCollection returns every drawn feature, lines first.
func (r *GeoJSONRenderer) FeatureCollection() *geojson.FeatureCollection {
	fc := r.Layer(LayerRoute)
	for _, f := range r.Layer(LayerPoints).Features {
		fc.AddFeature(f)
	}
	return fc
}

// MarshalJSON encodes the full feature collection.
func (r *GeoJSONRenderer) MarshalJSON() ([]byte, error) {
	return r.FeatureCollection().MarshalJSON()
}

// Viewport returns the bounds last fitted.
func (r *GeoJSONRenderer) Viewport() Viewport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewport
}

func (r *GeoJSONRenderer) setBounds(fc *geojson.FeatureCollection) {
	if r.viewport.Empty {
		return
	}
	v := r.viewport
	fc.BoundingBox = []float64{v.SouthWest.Lon, v.SouthWest.Lat, v.NorthEast.Lon, v.NorthEast.Lat}
}

func (r *GeoJSONRenderer) sortedMarkers() []Marker {
	out := make([]Marker, 0, len(r.markers))
	for _, m := range r.markers {
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

func lineFeature(p Polyline) *geojson.Feature {
	coords := make([][]float64, len(p.Points))
	for i, pt := range p.Points {
		coords[i] = []float64{pt.Lon, pt.Lat}
	}
	f := geojson.NewLineStringFeature(coords)
	f.ID = p.ID
	f.SetProperty("layer", LayerRoute)
	return f
}

func markerFeature(m Marker) *geojson.Feature {
	f := geojson.NewPointFeature([]float64{m.Position.Lon, m.Position.Lat})
	f.ID = m.Key.String()
	f.SetProperty("layer", LayerPoints)
	f.SetProperty("role", string(m.Key.Role))
	f.SetProperty("label", m.Label)
	if m.Key.Role == RoleCurrent {
		f.SetProperty("rotation", m.Rotation)
	}
	for k, v := range m.Metadata {
		f.SetProperty(k, v)
	}
	return f
}
