package entities

import (
	"math/rand/v2"
	"time"
)

// CursorPalette is the set of colours handed out to editor sessions
var CursorPalette = []string{"#ef4444", "#f59e0b", "#10b981", "#3b82f6", "#8b5cf6", "#ec4899"}

// RandomCursorColor picks a palette colour for a new session
func RandomCursorColor() string {
	return CursorPalette[rand.IntN(len(CursorPalette))]
}

// Cursor is a peer's pointer position in world coordinates
type Cursor struct {
	ID    string  `json:"id" validate:"required"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
	Name  string  `json:"name"`
}

// RemoteCursor is a Cursor plus the time it was last heard from
type RemoteCursor struct {
	Cursor
	LastSeen time.Time `json:"-"`
}
