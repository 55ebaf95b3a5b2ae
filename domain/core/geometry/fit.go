package geometry

import (
	"math"

	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
)

const (
	// FitPadding is the margin, in screen units, kept around the fitted content.
	FitPadding = 100.0

	FitMinZoom = 0.1
	FitMaxZoom = 1.5
)

// Rect is an axis-aligned rectangle.
type Rect struct {
	X, Y, W, H float64
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p valueobjects.Position) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Center returns the centre point of r.
func (r Rect) Center() valueobjects.Position {
	return valueobjects.Position{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Bounds returns the box enclosing every node rectangle, and false when
// nodes is empty.
func Bounds(nodes []entities.Node) (Rect, bool) {
	if len(nodes) == 0 {
		return Rect{}, false
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range nodes {
		minX = math.Min(minX, n.Position.X)
		minY = math.Min(minY, n.Position.Y)
		maxX = math.Max(maxX, n.Position.X+n.Width)
		maxY = math.Max(maxY, n.Position.Y+n.Height)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}, true
}

// originSpan measures how far apart the node origins are on each axis.
func originSpan(nodes []entities.Node) (float64, float64) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range nodes {
		minX = math.Min(minX, n.Position.X)
		minY = math.Min(minY, n.Position.Y)
		maxX = math.Max(maxX, n.Position.X)
		maxY = math.Max(maxY, n.Position.Y)
	}
	return maxX - minX, maxY - minY
}

// FitView returns a viewport that shows every node with FitPadding around
// them, centred on the bounding box. With no nodes it returns the identity
// viewport. When every node sits at the same origin (a single node, or a
// stack) the current viewport is returned unchanged.
func FitView(nodes []entities.Node, screen valueobjects.Size, current valueobjects.Viewport) valueobjects.Viewport {
	box, ok := Bounds(nodes)
	if !ok {
		return valueobjects.IdentityViewport()
	}
	spanX, spanY := originSpan(nodes)
	if (spanX == 0 && spanY == 0) || box.W == 0 || box.H == 0 {
		return current
	}

	zoomX := (screen.Width - FitPadding*2) / box.W
	zoomY := (screen.Height - FitPadding*2) / box.H
	zoom := clamp(math.Min(zoomX, zoomY), FitMinZoom, FitMaxZoom)

	c := box.Center()
	return valueobjects.Viewport{
		X:    screen.Width/2 - c.X*zoom,
		Y:    screen.Height/2 - c.Y*zoom,
		Zoom: zoom,
	}
}
