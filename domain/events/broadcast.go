// Package events defines the broadcast messages peers exchange to replay each
// other's graph mutations.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
)

// Type is the discriminator of a broadcast event.
type Type string

const (
	TypeCursorMove    Type = "cursor-move"
	TypeNodeUpdate    Type = "node-update"
	TypeNodeCreate    Type = "node-create"
	TypeNodeDelete    Type = "node-delete"
	TypeEdgeCreate    Type = "edge-create"
	TypeEdgeDelete    Type = "edge-delete"
	TypeProjectRename Type = "project-rename"
)

// IsValid reports whether t is a known event type
func (t Type) IsValid() bool {
	switch t {
	case TypeCursorMove, TypeNodeUpdate, TypeNodeCreate, TypeNodeDelete,
		TypeEdgeCreate, TypeEdgeDelete, TypeProjectRename:
		return true
	}
	return false
}

// IsStructural reports whether the event changes the graph shape rather
// than the content or position of an existing node.
func (t Type) IsStructural() bool {
	switch t {
	case TypeNodeCreate, TypeNodeDelete, TypeEdgeCreate, TypeEdgeDelete:
		return true
	}
	return false
}

// Event is one broadcast message. Exactly one payload field is meaningful,
// selected by Type. On the wire it is {"type": ..., "payload": ...}.
type Event struct {
	Type   Type
	Node   *entities.Node
	Edge   *entities.Edge
	Cursor *entities.Cursor
	// ID carries the payload of node-delete and edge-delete.
	ID string
	// Name carries the payload of project-rename.
	Name string
}

type wireEvent struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NodeCreated builds a node-create event
func NodeCreated(n entities.Node) Event {
	return Event{Type: TypeNodeCreate, Node: &n}
}

// NodeUpdated builds a node-update event carrying the whole node
func NodeUpdated(n entities.Node) Event {
	return Event{Type: TypeNodeUpdate, Node: &n}
}

// NodeDeleted builds a node-delete event
func NodeDeleted(id string) Event {
	return Event{Type: TypeNodeDelete, ID: id}
}

// EdgeCreated builds an edge-create event
func EdgeCreated(e entities.Edge) Event {
	return Event{Type: TypeEdgeCreate, Edge: &e}
}

// EdgeDeleted builds an edge-delete event
func EdgeDeleted(id string) Event {
	return Event{Type: TypeEdgeDelete, ID: id}
}

// ProjectRenamed builds a project-rename event
func ProjectRenamed(name string) Event {
	return Event{Type: TypeProjectRename, Name: name}
}

// CursorMoved builds a cursor-move event
func CursorMoved(c entities.Cursor) Event {
	return Event{Type: TypeCursorMove, Cursor: &c}
}

// payload returns the value that goes into the "payload" field.
func (e Event) payload() (interface{}, error) {
	switch e.Type {
	case TypeNodeCreate, TypeNodeUpdate:
		if e.Node == nil {
			return nil, fmt.Errorf("%s event without node", e.Type)
		}
		return e.Node, nil
	case TypeEdgeCreate:
		if e.Edge == nil {
			return nil, fmt.Errorf("%s event without edge", e.Type)
		}
		return e.Edge, nil
	case TypeCursorMove:
		if e.Cursor == nil {
			return nil, fmt.Errorf("%s event without cursor", e.Type)
		}
		return e.Cursor, nil
	case TypeNodeDelete, TypeEdgeDelete:
		return e.ID, nil
	case TypeProjectRename:
		return e.Name, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

// MarshalJSON implements json.Marshaler
func (e Event) MarshalJSON() ([]byte, error) {
	p, err := e.payload()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{Type: e.Type, Payload: raw})
}

// UnmarshalJSON implements json.Unmarshaler
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Payload) == 0 {
		return fmt.Errorf("%s event without payload", w.Type)
	}

	out := Event{Type: w.Type}
	var err error
	switch w.Type {
	case TypeNodeCreate, TypeNodeUpdate:
		out.Node = &entities.Node{}
		err = json.Unmarshal(w.Payload, out.Node)
	case TypeEdgeCreate:
		out.Edge = &entities.Edge{}
		err = json.Unmarshal(w.Payload, out.Edge)
	case TypeCursorMove:
		out.Cursor = &entities.Cursor{}
		err = json.Unmarshal(w.Payload, out.Cursor)
	case TypeNodeDelete, TypeEdgeDelete:
		err = json.Unmarshal(w.Payload, &out.ID)
	case TypeProjectRename:
		err = json.Unmarshal(w.Payload, &out.Name)
	default:
		return fmt.Errorf("unknown event type %q", w.Type)
	}
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", w.Type, err)
	}
	*e = out
	return nil
}

// Subject returns the id of the entity the event is about, for logging.
func (e Event) Subject() string {
	switch {
	case e.Node != nil:
		return e.Node.ID
	case e.Edge != nil:
		return e.Edge.ID
	case e.Cursor != nil:
		return e.Cursor.ID
	case e.ID != "":
		return e.ID
	default:
		return e.Name
	}
}
