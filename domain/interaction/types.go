package interaction

import (
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/geometry"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
)

// State is the gesture the machine is currently tracking.
type State int

const (
	Idle State = iota
	PanningViewport
	DraggingNode
	DraftingConnection
)

func (s State) String() string {
	switch s {
	case PanningViewport:
		return "panning-viewport"
	case DraggingNode:
		return "dragging-node"
	case DraftingConnection:
		return "drafting-connection"
	default:
		return "idle"
	}
}

// PointerKind tells mouse input from touch input.
type PointerKind int

const (
	Mouse PointerKind = iota
	Touch
)

// Button is a mouse button number, as browsers report it.
type Button int

const (
	ButtonPrimary Button = iota
	ButtonMiddle
	ButtonSecondary
)

// PointerEvent is one press, move or release in screen coordinates.
type PointerEvent struct {
	Screen valueobjects.Position
	Button Button
	Kind   PointerKind
}

// Scene is what the machine needs to know about the editor to interpret a
// pointer event.
type Scene struct {
	Viewport valueobjects.Viewport
	Nodes    []entities.Node
	// ReadOnly is set for viewers.
	ReadOnly bool
	// Live is set while a realtime session is joined; it enables cursor broadcasts.
	Live bool
}

// DragKind tags which variant of DragItem is in use.
type DragKind int

const (
	DragViewport DragKind = iota
	DragNode
	DragConnection
)

// DragItem is the state of one gesture, from press to release.
type DragItem struct {
	Kind DragKind
	// Start and Current are screen positions of the pointer.
	Start   valueobjects.Position
	Current valueobjects.Position

	// DragViewport
	StartViewport valueobjects.Viewport

	// DragNode: world offset from the node origin to the pointer at press time.
	NodeID string
	Offset valueobjects.Position

	// DragConnection: the handle the draft started on and the live endpoint, in world space.
	Handle   geometry.HandleType
	Anchor   valueobjects.Position
	Endpoint valueobjects.Position
}

// EffectKind enumerates what the editor must do after a transition.
type EffectKind int

const (
	EffectSetViewport EffectKind = iota
	EffectMoveNode
	EffectFlushNode
	EffectCreateEdge
	EffectRequestSave
	EffectBroadcastCursor
	EffectActivateControl
)

func (k EffectKind) String() string {
	switch k {
	case EffectSetViewport:
		return "set-viewport"
	case EffectMoveNode:
		return "move-node"
	case EffectFlushNode:
		return "flush-node"
	case EffectCreateEdge:
		return "create-edge"
	case EffectRequestSave:
		return "request-save"
	case EffectBroadcastCursor:
		return "broadcast-cursor"
	case EffectActivateControl:
		return "activate-control"
	default:
		return "unknown"
	}
}

// Effect is one instruction for the editor. Only the fields relevant to
// Kind are set.
type Effect struct {
	Kind     EffectKind
	Viewport valueobjects.Viewport
	NodeID   string
	// Position is the node position for EffectMoveNode and the world cursor
	// position for EffectBroadcastCursor.
	Position valueobjects.Position
	Source   string
	Target   string
	Control  geometry.Control
}

// Outcome is the result of feeding one input to the machine.
type Outcome struct {
	State   State
	Effects []Effect
	// PreventDefault asks the host to suppress native touch scrolling.
	PreventDefault bool
}

// Has reports whether the outcome contains an effect of kind k.
func (o Outcome) Has(k EffectKind) bool {
	_, ok := o.Find(k)
	return ok
}

// Find returns the first effect of kind k.
func (o Outcome) Find(k EffectKind) (Effect, bool) {
	for _, e := range o.Effects {
		if e.Kind == k {
			return e, true
		}
	}
	return Effect{}, false
}
