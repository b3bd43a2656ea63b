package main

import (
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/flighttrack/pkg/render"
	"github.com/unklstewy/flighttrack/pkg/render/grid"
)

// MapView is a tview primitive that draws a flight scene. It implements
// render.Renderer by rasterizing through a grid canvas sized to the view's
// inner rectangle.
type MapView struct {
	*tview.Box

	canvas *grid.Canvas

	mu      sync.Mutex
	onClick func(render.Marker)
}

var _ render.Renderer = (*MapView)(nil)

// NewMapView creates an empty map view
func NewMapView() *MapView {
	mv := &MapView{
		Box:    tview.NewBox(),
		canvas: grid.NewCanvas(60, 20),
	}
	mv.SetBorder(true).SetTitle(" Map ")
	mv.canvas.OnPointClick(func(m render.Marker) {
		mv.mu.Lock()
		fn := mv.onClick
		mv.mu.Unlock()
		if fn != nil {
			fn(m)
		}
	})
	return mv
}

func (mv *MapView) Clear()                                { mv.canvas.Clear() }
func (mv *MapView) DrawPolyline(p render.Polyline) error  { return mv.canvas.DrawPolyline(p) }
func (mv *MapView) DrawMarker(m render.Marker) error      { return mv.canvas.DrawMarker(m) }
func (mv *MapView) RemoveMarker(k render.MarkerKey) error { return mv.canvas.RemoveMarker(k) }
func (mv *MapView) FitBounds(v render.Viewport) error     { return mv.canvas.FitBounds(v) }

func (mv *MapView) OnPointClick(fn func(render.Marker)) {
	mv.mu.Lock()
	defer mv.mu.Unlock()
	mv.onClick = fn
}

var glyphStyles = map[rune]tcell.Style{
	grid.GlyphRoute:       tcell.StyleDefault.Foreground(tcell.ColorGray),
	grid.GlyphVector:      tcell.StyleDefault.Foreground(tcell.ColorOrange),
	grid.GlyphSample:      tcell.StyleDefault.Foreground(tcell.ColorSteelBlue),
	grid.GlyphOrigin:      tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true),
	grid.GlyphDestination: tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true),
}

var aircraftStyle = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)

// Draw renders the scene into the inner rectangle
func (mv *MapView) Draw(screen tcell.Screen) {
	mv.Box.DrawForSubclass(screen, mv)

	x, y, width, height := mv.GetInnerRect()
	if width < 2 || height < 2 {
		return
	}
	mv.canvas.Resize(width, height)

	for row, line := range mv.canvas.Rows() {
		col := 0
		for _, ch := range line {
			if ch != ' ' {
				style, ok := glyphStyles[ch]
				if !ok {
					style = aircraftStyle
				}
				screen.SetContent(x+col, y+row, ch, nil, style)
			}
			col++
		}
	}
}

// MouseHandler reports clicks on markers
func (mv *MapView) MouseHandler() func(action tview.MouseAction, event *tcell.EventMouse, setFocus func(p tview.Primitive)) (consumed bool, capture tview.Primitive) {
	return mv.WrapMouseHandler(func(action tview.MouseAction, event *tcell.EventMouse, setFocus func(p tview.Primitive)) (consumed bool, capture tview.Primitive) {
		if action != tview.MouseLeftClick || !mv.InRect(event.Position()) {
			return false, nil
		}
		setFocus(mv)
		mx, my := event.Position()
		x, y, _, _ := mv.GetInnerRect()
		mv.canvas.ClickAt(mx-x, my-y)
		return true, nil
	})
}
