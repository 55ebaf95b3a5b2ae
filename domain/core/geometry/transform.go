// Package geometry converts between world and screen space and answers the
// spatial questions the interaction layer asks about nodes.
package geometry

import (
	"math"

	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
)

// WheelSensitivity is the zoom change per unit of wheel delta.
const WheelSensitivity = 0.001

// ScreenToWorld maps a screen point into world space: (screen - offset) / zoom.
func ScreenToWorld(screen valueobjects.Position, vp valueobjects.Viewport) valueobjects.Position {
	return valueobjects.Position{
		X: (screen.X - vp.X) / vp.Zoom,
		Y: (screen.Y - vp.Y) / vp.Zoom,
	}
}

// WorldToScreen maps a world point into screen space: world*zoom + offset.
func WorldToScreen(world valueobjects.Position, vp valueobjects.Viewport) valueobjects.Position {
	return valueobjects.Position{
		X: world.X*vp.Zoom + vp.X,
		Y: world.Y*vp.Zoom + vp.Y,
	}
}

// ClampZoom bounds z to the interactive zoom range.
func ClampZoom(z float64) float64 {
	return clamp(z, valueobjects.MinZoom, valueobjects.MaxZoom)
}

// ZoomBy applies a wheel delta. Scaling is anchored at the screen origin, so
// only Zoom changes.
func ZoomBy(vp valueobjects.Viewport, deltaY float64) valueobjects.Viewport {
	vp.Zoom = ClampZoom(vp.Zoom - deltaY*WheelSensitivity)
	return vp
}

// ScaleBy multiplies the zoom by factor, as a pinch gesture does.
func ScaleBy(vp valueobjects.Viewport, factor float64) valueobjects.Viewport {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return vp
	}
	vp.Zoom = ClampZoom(vp.Zoom * factor)
	return vp
}

// ViewCenter returns the world point shown at the centre of a screen of the given size.
func ViewCenter(screen valueobjects.Size, vp valueobjects.Viewport) valueobjects.Position {
	return ScreenToWorld(valueobjects.Position{X: screen.Width / 2, Y: screen.Height / 2}, vp)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
