// Package interaction turns raw pointer input into canvas gestures. The
// machine is pure: it never touches the graph, it only returns effects.
package interaction

import (
	"github.com/Jovicsi/flowminds.ai/domain/core/geometry"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
)

// Machine tracks at most one gesture at a time.
type Machine struct {
	state State
	drag  DragItem
}

// NewMachine creates a machine in the Idle state
func NewMachine() *Machine {
	return &Machine{state: Idle}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Drag returns the active gesture, if any
func (m *Machine) Drag() (DragItem, bool) {
	if m.state == Idle {
		return DragItem{}, false
	}
	return m.drag, true
}

// Draft returns the world-space line of a connection being drafted
func (m *Machine) Draft() (from, to valueobjects.Position, ok bool) {
	if m.state != DraftingConnection {
		return valueobjects.Position{}, valueobjects.Position{}, false
	}
	return m.drag.Anchor, m.drag.Endpoint, true
}

func (m *Machine) outcome(ev PointerEvent, effects ...Effect) Outcome {
	return Outcome{
		State:          m.state,
		Effects:        effects,
		PreventDefault: ev.Kind == Touch && m.state != Idle,
	}
}

// Down handles a press.
func (m *Machine) Down(ev PointerEvent, scene Scene) Outcome {
	if m.state != Idle {
		return m.outcome(ev)
	}
	if ev.Kind == Mouse && ev.Button != ButtonPrimary {
		return m.outcome(ev)
	}

	world := geometry.ScreenToWorld(ev.Screen, scene.Viewport)
	hit := geometry.HitTest(scene.Nodes, world)

	switch hit.Kind {
	case geometry.RegionTextInput:
		return m.outcome(ev)

	case geometry.RegionControl:
		if scene.ReadOnly {
			return m.outcome(ev)
		}
		return m.outcome(ev, Effect{Kind: EffectActivateControl, NodeID: hit.NodeID, Control: hit.Control})

	case geometry.RegionHandle:
		if !scene.ReadOnly {
			m.state = DraftingConnection
			m.drag = DragItem{
				Kind:     DragConnection,
				Start:    ev.Screen,
				Current:  ev.Screen,
				NodeID:   hit.NodeID,
				Handle:   hit.Handle,
				Anchor:   hit.Anchor,
				Endpoint: world,
			}
			return m.outcome(ev)
		}

	case geometry.RegionBody:
		if !scene.ReadOnly {
			node, _ := findNode(scene, hit.NodeID)
			m.state = DraggingNode
			m.drag = DragItem{
				Kind:    DragNode,
				Start:   ev.Screen,
				Current: ev.Screen,
				NodeID:  hit.NodeID,
				Offset:  world.Sub(node.Position),
			}
			return m.outcome(ev)
		}
	}

	m.state = PanningViewport
	m.drag = DragItem{
		Kind:          DragViewport,
		Start:         ev.Screen,
		Current:       ev.Screen,
		StartViewport: scene.Viewport,
	}
	return m.outcome(ev)
}

// Move handles pointer motion, with or without an active gesture.
func (m *Machine) Move(ev PointerEvent, scene Scene) Outcome {
	var effects []Effect
	world := geometry.ScreenToWorld(ev.Screen, scene.Viewport)

	switch m.state {
	case PanningViewport:
		m.drag.Current = ev.Screen
		offset := m.drag.StartViewport.Offset().Add(ev.Screen.Sub(m.drag.Start))
		vp := scene.Viewport.WithOffset(offset)
		effects = append(effects, Effect{Kind: EffectSetViewport, Viewport: vp})
		// the cursor is reported in the world space of the new viewport
		world = geometry.ScreenToWorld(ev.Screen, vp)

	case DraggingNode:
		m.drag.Current = ev.Screen
		effects = append(effects, Effect{
			Kind:     EffectMoveNode,
			NodeID:   m.drag.NodeID,
			Position: world.Sub(m.drag.Offset),
		})

	case DraftingConnection:
		m.drag.Current = ev.Screen
		m.drag.Endpoint = world
	}

	if scene.Live {
		effects = append(effects, Effect{Kind: EffectBroadcastCursor, Position: world})
	}
	return m.outcome(ev, effects...)
}

// Up handles a release. Every state returns to Idle.
func (m *Machine) Up(ev PointerEvent, scene Scene) Outcome {
	var effects []Effect

	switch m.state {
	case DraggingNode:
		effects = append(effects,
			Effect{Kind: EffectFlushNode, NodeID: m.drag.NodeID},
			Effect{Kind: EffectRequestSave},
		)

	case DraftingConnection:
		world := geometry.ScreenToWorld(ev.Screen, scene.Viewport)
		if e, ok := m.connectionTo(world, scene); ok {
			effects = append(effects, e)
		}
	}

	m.reset()
	return m.outcome(ev, effects...)
}

// connectionTo resolves a draft released at world into an edge, oriented
// from the source handle to the target handle.
func (m *Machine) connectionTo(world valueobjects.Position, scene Scene) (Effect, bool) {
	hit, ok := geometry.HandleAt(scene.Nodes, world)
	if !ok || hit.NodeID == m.drag.NodeID || hit.Handle != m.drag.Handle.Opposite() {
		return Effect{}, false
	}
	if m.drag.Handle == geometry.HandleSource {
		return Effect{Kind: EffectCreateEdge, Source: m.drag.NodeID, Target: hit.NodeID}, true
	}
	return Effect{Kind: EffectCreateEdge, Source: hit.NodeID, Target: m.drag.NodeID}, true
}

// Wheel zooms by a wheel delta. It never changes the gesture state.
func (m *Machine) Wheel(deltaY float64, scene Scene) Outcome {
	vp := geometry.ZoomBy(scene.Viewport, deltaY)
	return Outcome{State: m.state, Effects: []Effect{{Kind: EffectSetViewport, Viewport: vp}}}
}

// Pinch zooms by a scale factor, as reported by a two-finger gesture.
func (m *Machine) Pinch(factor float64, scene Scene) Outcome {
	vp := geometry.ScaleBy(scene.Viewport, factor)
	return Outcome{
		State:          m.state,
		Effects:        []Effect{{Kind: EffectSetViewport, Viewport: vp}},
		PreventDefault: true,
	}
}

// Cancel abandons the current gesture without effects. A node that was
// being dragged stays where the last move put it.
func (m *Machine) Cancel() Outcome {
	m.reset()
	return Outcome{State: m.state}
}

func (m *Machine) reset() {
	m.state = Idle
	m.drag = DragItem{}
}
