package geometry

import (
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
)

const (
	// HeaderHeight is the vertical offset of both handles from the node top.
	HeaderHeight = 76.0

	// HandleRadius is the hit radius of a connection handle.
	HandleRadius = 12.0
)

// HandleType tells which end of an edge a handle accepts.
type HandleType string

const (
	// HandleSource is the outbound handle on the right edge.
	HandleSource HandleType = "source"
	// HandleTarget is the inbound handle on the left edge.
	HandleTarget HandleType = "target"
)

// Opposite returns the handle type an edge drafted from h must end on.
func (h HandleType) Opposite() HandleType {
	if h == HandleSource {
		return HandleTarget
	}
	return HandleSource
}

// InboundAnchor is the left-edge connection point of n.
func InboundAnchor(n entities.Node) valueobjects.Position {
	return valueobjects.Position{X: n.Position.X, Y: n.Position.Y + HeaderHeight}
}

// OutboundAnchor is the right-edge connection point of n.
func OutboundAnchor(n entities.Node) valueobjects.Position {
	return valueobjects.Position{X: n.Position.X + n.Width, Y: n.Position.Y + HeaderHeight}
}

// Anchor returns the anchor of the given handle type.
func Anchor(n entities.Node, h HandleType) valueobjects.Position {
	if h == HandleSource {
		return OutboundAnchor(n)
	}
	return InboundAnchor(n)
}

// EdgePath returns the start and end points an edge is drawn between.
func EdgePath(source, target entities.Node) (valueobjects.Position, valueobjects.Position) {
	return OutboundAnchor(source), InboundAnchor(target)
}
