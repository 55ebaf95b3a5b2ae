// Package aggregates holds the graph store: the single owner of a canvas's
// nodes and edges.
package aggregates

import (
	"sync/atomic"

	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	"github.com/Jovicsi/flowminds.ai/domain/events"
)

// DropReason explains why a remote event left the store unchanged.
type DropReason string

const (
	DropNone            DropReason = ""
	DropUnknownNode     DropReason = "unknown_node"
	DropMissingEndpoint DropReason = "missing_endpoint"
	DropSelfLoop        DropReason = "self_loop"
	DropDuplicatePair   DropReason = "duplicate_pair"
	DropUnsupported     DropReason = "unsupported"
	DropInvalid         DropReason = "invalid"
)

// ApplyResult is the outcome of applying a remote event.
type ApplyResult struct {
	Changed bool
	Dropped DropReason
}

// Store owns the graph. It has a single writer; Snapshot may be called from
// any goroutine.
//
// Mutations return the event that reproduces them on a peer and ok=false
// when they were rejected. A rejected mutation changes nothing and returns
// no event.
type Store struct {
	snap  atomic.Pointer[Snapshot]
	newID func() string
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithIDGenerator replaces the UUID generator used for new nodes and edges
func WithIDGenerator(f func() string) StoreOption {
	return func(s *Store) { s.newID = f }
}

// NewStore creates an empty store
func NewStore(opts ...StoreOption) *Store {
	s := &Store{newID: valueobjects.NewNodeID}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Store(newSnapshot(entities.DefaultProjectName, nil, nil, 0))
	return s
}

// Snapshot returns the current state
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Revision is incremented by every successful mutation
func (s *Store) Revision() uint64 {
	return s.snap.Load().Revision
}

func (s *Store) commit(name string, nodes []entities.Node, edges []entities.Edge) {
	cur := s.snap.Load()
	s.snap.Store(newSnapshot(name, nodes, edges, cur.Revision+1))
}

// Load replaces the whole state with a persisted project. Edges whose
// endpoints are missing, self-loops and duplicate pairs are dropped; the
// number dropped is returned.
func (s *Store) Load(p entities.Project) int {
	nodes := make([]entities.Node, 0, len(p.Nodes))
	seen := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		nodes = append(nodes, n)
	}

	edges := make([]entities.Edge, 0, len(p.Edges))
	pairs := make(map[edgePair]bool, len(p.Edges))
	ids := make(map[string]bool, len(p.Edges))
	dropped := 0
	for _, e := range p.Edges {
		pair := edgePair{e.Source, e.Target}
		if !seen[e.Source] || !seen[e.Target] || e.IsSelfLoop() || pairs[pair] || ids[e.ID] {
			dropped++
			continue
		}
		pairs[pair] = true
		ids[e.ID] = true
		edges = append(edges, e)
	}

	name := p.Name
	if name == "" {
		name = entities.DefaultProjectName
	}
	s.commit(name, nodes, edges)
	return dropped
}

// CreateNode adds a node of type t at pos with the type's default size,
// title and colour.
func (s *Store) CreateNode(t entities.NodeType, pos valueobjects.Position) (entities.Node, events.Event) {
	n := entities.NewNode(s.newID(), t, pos)
	evt, _ := s.AddNode(n)
	return n, evt
}

// AddNode inserts a fully specified node. It is rejected if the id is
// already taken.
func (s *Store) AddNode(n entities.Node) (events.Event, bool) {
	cur := s.snap.Load()
	if n.ID == "" || cur.HasNode(n.ID) {
		return events.Event{}, false
	}
	nodes := make([]entities.Node, len(cur.Nodes), len(cur.Nodes)+1)
	copy(nodes, cur.Nodes)
	nodes = append(nodes, n)
	s.commit(cur.ProjectName, nodes, cur.Edges)
	return events.NodeCreated(n), true
}

// UpdateNode shallow-merges patch into the node's data. Unknown ids and
// empty patches are no-ops.
func (s *Store) UpdateNode(id string, patch entities.NodeDataPatch) (entities.Node, events.Event, bool) {
	cur := s.snap.Load()
	n, ok := cur.Node(id)
	if !ok || patch.IsEmpty() {
		return entities.Node{}, events.Event{}, false
	}
	n.Data = n.Data.Merge(patch)
	s.replaceNode(cur, n)
	return n, events.NodeUpdated(n), true
}

// MoveNode sets the node's position and leaves everything else alone
func (s *Store) MoveNode(id string, pos valueobjects.Position) (entities.Node, events.Event, bool) {
	cur := s.snap.Load()
	n, ok := cur.Node(id)
	if !ok || !pos.IsValid() {
		return entities.Node{}, events.Event{}, false
	}
	n.Position = pos
	s.replaceNode(cur, n)
	return n, events.NodeUpdated(n), true
}

func (s *Store) replaceNode(cur *Snapshot, n entities.Node) {
	nodes := make([]entities.Node, len(cur.Nodes))
	copy(nodes, cur.Nodes)
	nodes[cur.nodeIdx[n.ID]] = n
	s.commit(cur.ProjectName, nodes, cur.Edges)
}

// DeleteNode removes the node and every edge touching it in one step
func (s *Store) DeleteNode(id string) (events.Event, bool) {
	cur := s.snap.Load()
	if !cur.HasNode(id) {
		return events.Event{}, false
	}
	s.deleteNode(cur, id)
	return events.NodeDeleted(id), true
}

func (s *Store) deleteNode(cur *Snapshot, id string) {
	nodes := make([]entities.Node, 0, len(cur.Nodes)-1)
	for _, n := range cur.Nodes {
		if n.ID != id {
			nodes = append(nodes, n)
		}
	}
	edges := make([]entities.Edge, 0, len(cur.Edges))
	for _, e := range cur.Edges {
		if !e.Touches(id) {
			edges = append(edges, e)
		}
	}
	s.commit(cur.ProjectName, nodes, edges)
}

// CreateEdge connects source to target. Self-loops, duplicate pairs and
// missing endpoints are rejected.
func (s *Store) CreateEdge(source, target string) (entities.Edge, events.Event, bool) {
	e := entities.Edge{ID: s.newID(), Source: source, Target: target}
	if reason := s.Snapshot().checkEdge(e); reason != DropNone {
		return entities.Edge{}, events.Event{}, false
	}
	s.insertEdge(s.Snapshot(), e)
	return e, events.EdgeCreated(e), true
}

func (s *Snapshot) checkEdge(e entities.Edge) DropReason {
	switch {
	case e.ID == "":
		return DropInvalid
	case e.IsSelfLoop():
		return DropSelfLoop
	case !s.HasNode(e.Source) || !s.HasNode(e.Target):
		return DropMissingEndpoint
	}
	if _, dup := s.EdgeBetween(e.Source, e.Target); dup {
		return DropDuplicatePair
	}
	return DropNone
}

func (s *Store) insertEdge(cur *Snapshot, e entities.Edge) {
	edges := make([]entities.Edge, len(cur.Edges), len(cur.Edges)+1)
	copy(edges, cur.Edges)
	edges = append(edges, e)
	s.commit(cur.ProjectName, cur.Nodes, edges)
}

// DeleteEdge removes an edge by id
func (s *Store) DeleteEdge(id string) (events.Event, bool) {
	cur := s.snap.Load()
	if _, ok := cur.Edge(id); !ok {
		return events.Event{}, false
	}
	s.deleteEdge(cur, id)
	return events.EdgeDeleted(id), true
}

func (s *Store) deleteEdge(cur *Snapshot, id string) {
	edges := make([]entities.Edge, 0, len(cur.Edges))
	for _, e := range cur.Edges {
		if e.ID != id {
			edges = append(edges, e)
		}
	}
	s.commit(cur.ProjectName, cur.Nodes, edges)
}

// RenameProject sets the project name. Renaming to the current name is a no-op.
func (s *Store) RenameProject(name string) (events.Event, bool) {
	cur := s.snap.Load()
	if name == cur.ProjectName {
		return events.Event{}, false
	}
	s.commit(name, cur.Nodes, cur.Edges)
	return events.ProjectRenamed(name), true
}

// Apply replays a peer's event. Applying the same event twice has the same
// effect as applying it once.
//
// Concurrent edge-create events for the same pair with different ids are
// resolved in favour of the lexicographically smaller id, so every peer
// ends up with the same edge.
func (s *Store) Apply(evt events.Event) ApplyResult {
	cur := s.snap.Load()
	switch evt.Type {
	case events.TypeNodeCreate:
		if evt.Node == nil || evt.Node.ID == "" {
			return ApplyResult{Dropped: DropInvalid}
		}
		if cur.HasNode(evt.Node.ID) {
			return ApplyResult{}
		}
		_, ok := s.AddNode(*evt.Node)
		return ApplyResult{Changed: ok}

	case events.TypeNodeUpdate:
		if evt.Node == nil {
			return ApplyResult{Dropped: DropInvalid}
		}
		if !cur.HasNode(evt.Node.ID) {
			return ApplyResult{Dropped: DropUnknownNode}
		}
		s.replaceNode(cur, *evt.Node)
		return ApplyResult{Changed: true}

	case events.TypeNodeDelete:
		if !cur.HasNode(evt.ID) {
			return ApplyResult{}
		}
		s.deleteNode(cur, evt.ID)
		return ApplyResult{Changed: true}

	case events.TypeEdgeCreate:
		if evt.Edge == nil {
			return ApplyResult{Dropped: DropInvalid}
		}
		return s.applyEdgeCreate(cur, *evt.Edge)

	case events.TypeEdgeDelete:
		if _, ok := cur.Edge(evt.ID); !ok {
			return ApplyResult{}
		}
		s.deleteEdge(cur, evt.ID)
		return ApplyResult{Changed: true}

	case events.TypeProjectRename:
		if evt.Name == cur.ProjectName {
			return ApplyResult{}
		}
		s.commit(evt.Name, cur.Nodes, cur.Edges)
		return ApplyResult{Changed: true}

	default:
		return ApplyResult{Dropped: DropUnsupported}
	}
}

func (s *Store) applyEdgeCreate(cur *Snapshot, e entities.Edge) ApplyResult {
	if _, exists := cur.Edge(e.ID); exists {
		return ApplyResult{}
	}
	switch reason := cur.checkEdge(e); reason {
	case DropNone:
		s.insertEdge(cur, e)
		return ApplyResult{Changed: true}
	case DropDuplicatePair:
		existing, _ := cur.EdgeBetween(e.Source, e.Target)
		if e.ID >= existing {
			return ApplyResult{Dropped: DropDuplicatePair}
		}
		edges := make([]entities.Edge, len(cur.Edges))
		copy(edges, cur.Edges)
		edges[cur.edgeIdx[existing]] = e
		s.commit(cur.ProjectName, cur.Nodes, edges)
		return ApplyResult{Changed: true}
	default:
		return ApplyResult{Dropped: reason}
	}
}
