package editor

import (
	"context"

	"github.com/Jovicsi/flowminds.ai/application/persistence"
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/geometry"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	"github.com/Jovicsi/flowminds.ai/domain/events"
	"github.com/Jovicsi/flowminds.ai/domain/interaction"
)

// followUp is the network and scheduling work left over from a turn.
type followUp struct {
	changes []events.Event
	trigger persistence.Trigger
	drag    *entities.Node
	cursor  *valueobjects.Position
	touched bool
	save    bool
}

func (e *Editor) sceneLocked() interaction.Scene {
	return interaction.Scene{
		Viewport: e.viewport,
		Nodes:    e.store.Snapshot().Nodes,
		ReadOnly: !e.role.CanEdit(),
		Live:     e.sync != nil && e.sync.Live(),
	}
}

// PointerDown feeds a press to the gesture machine. Pressing a node's
// delete button deletes it here; the generate button is left to the host,
// which sees it as an EffectActivateControl in the returned outcome.
func (e *Editor) PointerDown(ctx context.Context, ev interaction.PointerEvent) interaction.Outcome {
	return e.input(ctx, func(scene interaction.Scene) interaction.Outcome {
		return e.machine.Down(ev, scene)
	})
}

// PointerMove feeds pointer motion to the gesture machine
func (e *Editor) PointerMove(ctx context.Context, ev interaction.PointerEvent) interaction.Outcome {
	return e.input(ctx, func(scene interaction.Scene) interaction.Outcome {
		return e.machine.Move(ev, scene)
	})
}

// PointerUp feeds a release to the gesture machine
func (e *Editor) PointerUp(ctx context.Context, ev interaction.PointerEvent) interaction.Outcome {
	return e.input(ctx, func(scene interaction.Scene) interaction.Outcome {
		return e.machine.Up(ev, scene)
	})
}

// Wheel zooms the viewport
func (e *Editor) Wheel(ctx context.Context, deltaY float64) interaction.Outcome {
	return e.input(ctx, func(scene interaction.Scene) interaction.Outcome {
		return e.machine.Wheel(deltaY, scene)
	})
}

// Pinch zooms the viewport by a touch scale factor
func (e *Editor) Pinch(ctx context.Context, factor float64) interaction.Outcome {
	return e.input(ctx, func(scene interaction.Scene) interaction.Outcome {
		return e.machine.Pinch(factor, scene)
	})
}

// CancelGesture abandons the current gesture
func (e *Editor) CancelGesture() interaction.Outcome {
	e.turn.Lock()
	defer e.turn.Unlock()
	return e.machine.Cancel()
}

func (e *Editor) input(ctx context.Context, step func(interaction.Scene) interaction.Outcome) interaction.Outcome {
	e.turn.Lock()
	if e.closed {
		e.turn.Unlock()
		return interaction.Outcome{State: interaction.Idle}
	}
	out := step(e.sceneLocked())
	f := e.executeLocked(out.Effects)
	e.handOff()

	e.finish(ctx, f)
	return out
}

// executeLocked applies the machine's effects to editor state and collects
// what has to happen once the turn ends.
func (e *Editor) executeLocked(effects []interaction.Effect) followUp {
	f := followUp{trigger: persistence.TriggerStructural}
	for _, eff := range effects {
		switch eff.Kind {
		case interaction.EffectSetViewport:
			e.viewport = eff.Viewport

		case interaction.EffectMoveNode:
			if n, _, ok := e.store.MoveNode(eff.NodeID, eff.Position); ok {
				f.drag = &n
				f.touched = true
			}

		case interaction.EffectFlushNode:
			if n, ok := e.store.Snapshot().Node(eff.NodeID); ok {
				f.changes = append(f.changes, events.NodeUpdated(n))
				f.drag = nil
			}

		case interaction.EffectCreateEdge:
			if _, evt, ok := e.store.CreateEdge(eff.Source, eff.Target); ok {
				f.changes = append(f.changes, evt)
			}

		case interaction.EffectRequestSave:
			f.save = true

		case interaction.EffectBroadcastCursor:
			pos := eff.Position
			f.cursor = &pos

		case interaction.EffectActivateControl:
			if eff.Control == geometry.ControlDelete {
				if evt, ok := e.store.DeleteNode(eff.NodeID); ok {
					f.changes = append(f.changes, evt)
				}
			}
		}
	}
	return f
}

func (e *Editor) finish(ctx context.Context, f followUp) {
	defer e.send.Unlock()
	if e.sync != nil {
		if f.drag != nil {
			e.sync.BroadcastNodeMove(ctx, *f.drag)
		}
		if f.cursor != nil {
			e.sync.BroadcastCursor(ctx, *f.cursor)
		}
	}
	if len(f.changes) > 0 {
		e.emit(ctx, f.trigger, f.changes...)
		return
	}
	if f.save {
		e.scheduler.Trigger(f.trigger)
	}
	if f.touched {
		e.scheduler.NotifyChange()
	}
}
