package valueobjects

// Zoom bounds for interactive zoom (wheel, pinch).
const (
	MinZoom = 0.1
	MaxZoom = 5.0
)

// Viewport is the world-to-screen transform: screen = world*Zoom + (X, Y).
// It is local to one editor and is never synchronised.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// IdentityViewport has no offset and unit zoom.
func IdentityViewport() Viewport {
	return Viewport{Zoom: 1}
}

// Offset returns the translation part of the transform.
func (v Viewport) Offset() Position {
	return Position{X: v.X, Y: v.Y}
}

// WithOffset returns a copy translated to p.
func (v Viewport) WithOffset(p Position) Viewport {
	v.X, v.Y = p.X, p.Y
	return v
}

// IsValid reports whether the viewport can be inverted.
func (v Viewport) IsValid() bool {
	return v.Zoom > 0 && isValidCoordinate(v.X) && isValidCoordinate(v.Y) && isValidCoordinate(v.Zoom)
}
