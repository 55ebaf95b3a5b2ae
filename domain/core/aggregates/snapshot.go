package aggregates

import (
	"time"

	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
)

// Snapshot is one immutable state of the graph. Every store mutation builds
// a new Snapshot; holders of an older one never see it change.
type Snapshot struct {
	ProjectName string
	Nodes       []entities.Node
	Edges       []entities.Edge
	Revision    uint64

	nodeIdx map[string]int
	edgeIdx map[string]int
	pairs   map[edgePair]string
}

type edgePair struct {
	source, target string
}

func newSnapshot(name string, nodes []entities.Node, edges []entities.Edge, rev uint64) *Snapshot {
	s := &Snapshot{
		ProjectName: name,
		Nodes:       nodes,
		Edges:       edges,
		Revision:    rev,
		nodeIdx:     make(map[string]int, len(nodes)),
		edgeIdx:     make(map[string]int, len(edges)),
		pairs:       make(map[edgePair]string, len(edges)),
	}
	for i, n := range nodes {
		s.nodeIdx[n.ID] = i
	}
	for i, e := range edges {
		s.edgeIdx[e.ID] = i
		s.pairs[edgePair{e.Source, e.Target}] = e.ID
	}
	return s
}

// Node returns the node with the given id
func (s *Snapshot) Node(id string) (entities.Node, bool) {
	i, ok := s.nodeIdx[id]
	if !ok {
		return entities.Node{}, false
	}
	return s.Nodes[i], true
}

// HasNode reports whether a node with the given id exists
func (s *Snapshot) HasNode(id string) bool {
	_, ok := s.nodeIdx[id]
	return ok
}

// Edge returns the edge with the given id
func (s *Snapshot) Edge(id string) (entities.Edge, bool) {
	i, ok := s.edgeIdx[id]
	if !ok {
		return entities.Edge{}, false
	}
	return s.Edges[i], true
}

// EdgeBetween returns the id of the edge source→target, if one exists
func (s *Snapshot) EdgeBetween(source, target string) (string, bool) {
	id, ok := s.pairs[edgePair{source, target}]
	return id, ok
}

// EdgesOf returns the edges incident to nodeID
func (s *Snapshot) EdgesOf(nodeID string) []entities.Edge {
	var out []entities.Edge
	for _, e := range s.Edges {
		if e.Touches(nodeID) {
			out = append(out, e)
		}
	}
	return out
}

// ToProject converts the snapshot into its persisted form
func (s *Snapshot) ToProject(id, ownerID string, updatedAt time.Time) entities.Project {
	nodes := make([]entities.Node, len(s.Nodes))
	copy(nodes, s.Nodes)
	edges := make([]entities.Edge, len(s.Edges))
	copy(edges, s.Edges)
	return entities.Project{
		ID:        id,
		OwnerID:   ownerID,
		Name:      s.ProjectName,
		Nodes:     nodes,
		Edges:     edges,
		UpdatedAt: updatedAt,
	}
}
