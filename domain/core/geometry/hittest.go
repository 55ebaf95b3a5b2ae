package geometry

import (
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
)

// RegionKind classifies what lies under a point.
type RegionKind int

const (
	RegionEmpty RegionKind = iota
	RegionBody
	RegionTextInput
	RegionControl
	RegionHandle
)

func (k RegionKind) String() string {
	switch k {
	case RegionBody:
		return "body"
	case RegionTextInput:
		return "text-input"
	case RegionControl:
		return "control"
	case RegionHandle:
		return "handle"
	default:
		return "empty"
	}
}

// Control identifies a button inside a node.
type Control string

const (
	ControlDelete   Control = "delete"
	ControlGenerate Control = "generate"
)

// Hit describes the topmost region under a world point.
type Hit struct {
	Kind    RegionKind
	NodeID  string
	Handle  HandleType
	Anchor  valueobjects.Position
	Control Control
}

// Layout of a node's interior, relative to its origin. Widths that depend on
// the node width are computed in controlRects and inputRects.
var (
	titleRect = Rect{X: 48, Y: 16, W: 128, H: 28}
)

const (
	buttonSize   = 24.0
	buttonInset  = 16.0
	contentTop   = 56.0
	contentInset = 16.0
	contentH     = 96.0
)

func controlRects(n entities.Node) map[Control]Rect {
	rects := map[Control]Rect{
		ControlDelete: {X: n.Width - buttonInset - buttonSize, Y: buttonInset, W: buttonSize, H: buttonSize},
	}
	if n.Type == entities.NodeTypeGenerator {
		rects[ControlGenerate] = Rect{X: n.Width - 2*(buttonInset+buttonSize), Y: buttonInset, W: buttonSize, H: buttonSize}
	}
	return rects
}

func inputRects(n entities.Node) []Rect {
	return []Rect{
		titleRect,
		{X: contentInset, Y: contentTop, W: n.Width - 2*contentInset, H: contentH},
	}
}

// HitTest returns the topmost region at world point p. Nodes later in the
// slice are painted above earlier ones. Within a node, handles win over
// controls, controls over text inputs, and text inputs over the body.
func HitTest(nodes []entities.Node, p valueobjects.Position) Hit {
	for i := len(nodes) - 1; i >= 0; i-- {
		if h, ok := hitNode(nodes[i], p); ok {
			return h
		}
	}
	return Hit{Kind: RegionEmpty}
}

// HandleAt returns the handle under p, if any, searching topmost first.
func HandleAt(nodes []entities.Node, p valueobjects.Position) (Hit, bool) {
	for i := len(nodes) - 1; i >= 0; i-- {
		if h, ok := hitHandle(nodes[i], p); ok {
			return h, true
		}
	}
	return Hit{}, false
}

func hitNode(n entities.Node, p valueobjects.Position) (Hit, bool) {
	if h, ok := hitHandle(n, p); ok {
		return h, true
	}
	if !n.Contains(p) {
		return Hit{}, false
	}

	local := p.Sub(n.Position)
	for ctrl, r := range controlRects(n) {
		if r.Contains(local) {
			return Hit{Kind: RegionControl, NodeID: n.ID, Control: ctrl}, true
		}
	}
	for _, r := range inputRects(n) {
		if r.Contains(local) {
			return Hit{Kind: RegionTextInput, NodeID: n.ID}, true
		}
	}
	return Hit{Kind: RegionBody, NodeID: n.ID}, true
}

func hitHandle(n entities.Node, p valueobjects.Position) (Hit, bool) {
	for _, h := range []HandleType{HandleTarget, HandleSource} {
		a := Anchor(n, h)
		if a.DistanceTo(p) <= HandleRadius {
			return Hit{Kind: RegionHandle, NodeID: n.ID, Handle: h, Anchor: a}, true
		}
	}
	return Hit{}, false
}
