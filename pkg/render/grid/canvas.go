// Package grid is a terminal Renderer: it rasterizes a scene onto a
// character grid with an equirectangular projection and styles it with
// lipgloss.
package grid

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/flighttrack/pkg/coordinates"
	"github.com/unklstewy/flighttrack/pkg/render"
)

// Glyphs used on the grid.
const (
	GlyphRoute       = '·'
	GlyphVector      = '-'
	GlyphSample      = '•'
	GlyphOrigin      = 'O'
	GlyphDestination = 'D'
)

// headingGlyphs are indexed by heading in 45 degree steps from north.
var headingGlyphs = []rune{'↑', '↗', '→', '↘', '↓', '↙', '←', '↖'}

// HeadingGlyph returns the arrow closest to a heading in degrees.
func HeadingGlyph(heading float64) rune {
	i := int(math.Round(coordinates.NormalizeAzimuth(heading)/45)) % len(headingGlyphs)
	return headingGlyphs[i]
}

var (
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	routeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	vectorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	sampleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	airportStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	currentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
)

// Canvas is a W x H character map. Coordinates passed to ClickAt and
// returned by Project are inside the border, with (0, 0) at the top left.
type Canvas struct {
	mu       sync.RWMutex
	width    int
	height   int
	lines    map[string]render.Polyline
	markers  map[render.MarkerKey]render.Marker
	viewport render.Viewport
	onClick  func(render.Marker)
}

// NewCanvas creates an empty canvas. Sizes below 2 are raised to 2.
func NewCanvas(width, height int) *Canvas {
	c := &Canvas{}
	c.Resize(width, height)
	c.Clear()
	return c
}

// Resize changes the grid size; the drawn scene is kept.
func (c *Canvas) Resize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = max(width, 2)
	c.height = max(height, 2)
}

// Size returns the grid size.
func (c *Canvas) Size() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width, c.height
}

func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = make(map[string]render.Polyline)
	c.markers = make(map[render.MarkerKey]render.Marker)
	c.viewport = render.Viewport{Empty: true}
}

func (c *Canvas) DrawPolyline(p render.Polyline) error {
	if err := p.Check(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines[p.ID] = p
	return nil
}

func (c *Canvas) DrawMarker(m render.Marker) error {
	if !m.Position.Finite() {
		return fmt.Errorf("marker %s: position is not finite", m.Key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers[m.Key] = m
	return nil
}

func (c *Canvas) RemoveMarker(key render.MarkerKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markers, key)
	if key.Role == render.RoleCurrent {
		delete(c.lines, render.VectorID)
	}
	return nil
}

func (c *Canvas) FitBounds(v render.Viewport) error {
	if !v.Empty && (v.SouthWest.Lat > v.NorthEast.Lat || v.SouthWest.Lon > v.NorthEast.Lon) {
		return fmt.Errorf("inverted viewport %+v", v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = v
	return nil
}

func (c *Canvas) OnPointClick(fn func(render.Marker)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClick = fn
}

// Project maps a coordinate to a grid cell. ok is false when nothing has
// been fitted or the point falls outside the grid.
func (c *Canvas) Project(p render.LatLon) (x, y int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.project(p)
}

func (c *Canvas) project(p render.LatLon) (int, int, bool) {
	v := c.viewport
	if v.Empty || !p.Finite() {
		return 0, 0, false
	}
	fx := fraction(p.Lon-v.SouthWest.Lon, v.NorthEast.Lon-v.SouthWest.Lon)
	fy := fraction(v.NorthEast.Lat-p.Lat, v.NorthEast.Lat-v.SouthWest.Lat)
	x := int(math.Round(fx * float64(c.width-1)))
	y := int(math.Round(fy * float64(c.height-1)))
	if x < 0 || x >= c.width || y < 0 || y >= c.height {
		return x, y, false
	}
	return x, y, true
}

// fraction is offset/span clamped to a few grid widths either side, so that
// far off-screen points stay cheap to walk. A zero span centers.
func fraction(offset, span float64) float64 {
	if span == 0 {
		return 0.5
	}
	return math.Max(-4, math.Min(5, offset/span))
}

// ClickAt reports a click on a grid cell to the click handler. The topmost
// marker in that cell wins.
func (c *Canvas) ClickAt(x, y int) (render.Marker, bool) {
	c.mu.RLock()
	var hit *render.Marker
	for _, m := range c.sortedMarkers() {
		mx, my, ok := c.project(m.Position)
		if ok && mx == x && my == y {
			m := m
			hit = &m
		}
	}
	fn := c.onClick
	c.mu.RUnlock()

	if hit == nil {
		return render.Marker{}, false
	}
	if fn != nil {
		fn(*hit)
	}
	return *hit, true
}

// Rows rasterizes the scene without styling, one string per grid row.
func (c *Canvas) Rows() []string {
	g := c.rasterize()
	rows := make([]string, len(g))
	for i, row := range g {
		rows[i] = string(row)
	}
	return rows
}

// Render draws the bordered, styled grid.
func (c *Canvas) Render() string {
	g := c.rasterize()
	width := 0
	if len(g) > 0 {
		width = len(g[0])
	}

	var sb strings.Builder
	sb.WriteString(borderStyle.Render("┌" + strings.Repeat("─", width) + "┐"))
	sb.WriteString("\n")
	for _, row := range g {
		sb.WriteString(borderStyle.Render("│"))
		for _, ch := range row {
			sb.WriteString(styleFor(ch).Render(string(ch)))
		}
		sb.WriteString(borderStyle.Render("│"))
		sb.WriteString("\n")
	}
	sb.WriteString(borderStyle.Render("└" + strings.Repeat("─", width) + "┘"))
	return sb.String()
}

func styleFor(ch rune) lipgloss.Style {
	switch ch {
	case GlyphRoute:
		return routeStyle
	case GlyphVector:
		return vectorStyle
	case GlyphSample:
		return sampleStyle
	case GlyphOrigin, GlyphDestination:
		return airportStyle
	}
	for _, h := range headingGlyphs {
		if ch == h {
			return currentStyle
		}
	}
	return lipgloss.NewStyle()
}

func (c *Canvas) rasterize() [][]rune {
	c.mu.RLock()
	defer c.mu.RUnlock()

	g := make([][]rune, c.height)
	for i := range g {
		g[i] = make([]rune, c.width)
		for j := range g[i] {
			g[i][j] = ' '
		}
	}

	ids := make([]string, 0, len(c.lines))
	for id := range c.lines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		glyph := GlyphRoute
		if id == render.VectorID {
			glyph = GlyphVector
		}
		c.drawLine(g, c.lines[id].Points, glyph)
	}

	// Markers overwrite lines; later roles overwrite earlier ones
	for _, m := range c.sortedMarkers() {
		x, y, ok := c.project(m.Position)
		if !ok {
			continue
		}
		g[y][x] = glyphFor(m)
	}
	return g
}

func glyphFor(m render.Marker) rune {
	switch m.Key.Role {
	case render.RoleOrigin:
		return GlyphOrigin
	case render.RoleDestination:
		return GlyphDestination
	case render.RoleCurrent:
		return HeadingGlyph(m.Rotation)
	}
	return GlyphSample
}

// drawLine connects consecutive points with Bresenham segments. Segments
// with an endpoint off the grid are clipped cell by cell; segments touching
// a non-finite point are skipped.
func (c *Canvas) drawLine(g [][]rune, pts []render.LatLon, glyph rune) {
	for i := 0; i+1 < len(pts); i++ {
		x0, y0, ok0 := c.cell(pts[i])
		x1, y1, ok1 := c.cell(pts[i+1])
		if !ok0 || !ok1 {
			continue
		}
		bresenham(x0, y0, x1, y1, func(x, y int) { setCell(g, x, y, glyph) })
	}
	if len(pts) == 1 {
		if x, y, ok := c.cell(pts[0]); ok {
			setCell(g, x, y, glyph)
		}
	}
}

// cell projects without bounds checking. ok is false only for a point that
// cannot be projected at all.
func (c *Canvas) cell(p render.LatLon) (int, int, bool) {
	if c.viewport.Empty || !p.Finite() {
		return 0, 0, false
	}
	x, y, _ := c.project(p)
	return x, y, true
}

// setCell writes a glyph if the cell is on the grid and still blank.
func setCell(g [][]rune, x, y int, ch rune) {
	if y >= 0 && y < len(g) && x >= 0 && x < len(g[y]) && g[y][x] == ' ' {
		g[y][x] = ch
	}
}

func bresenham(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (c *Canvas) sortedMarkers() []render.Marker {
	out := make([]render.Marker, 0, len(c.markers))
	for _, m := range c.markers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rank(out[i].Key.Role), rank(out[j].Key.Role)
		if ri != rj {
			return ri < rj
		}
		return out[i].Key.Index < out[j].Key.Index
	})
	return out
}

func rank(r render.Role) int {
	switch r {
	case render.RoleSample:
		return 0
	case render.RoleOrigin, render.RoleDestination:
		return 1
	}
	return 2
}
