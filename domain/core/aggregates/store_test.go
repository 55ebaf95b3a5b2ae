package aggregates

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	"github.com/Jovicsi/flowminds.ai/domain/events"
)

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func newTestStore() *Store {
	return NewStore(WithIDGenerator(sequentialIDs("id-")))
}

func TestCreateNode(t *testing.T) {
	s := newTestStore()
	pos := valueobjects.Position{X: 500, Y: 400}

	n, evt := s.CreateNode(entities.NodeTypeNote, pos)

	assert.Equal(t, "id-1", n.ID)
	assert.Equal(t, pos, n.Position)
	assert.Equal(t, "New Note", n.Data.Title)
	assert.Equal(t, events.TypeNodeCreate, evt.Type)
	assert.Equal(t, n, *evt.Node)
	assert.Equal(t, uint64(1), s.Revision())
	assert.Len(t, s.Snapshot().Nodes, 1)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	s := newTestStore()
	n, _ := s.CreateNode(entities.NodeTypeNote, valueobjects.Position{})
	before := s.Snapshot()

	title := "changed"
	_, _, ok := s.UpdateNode(n.ID, entities.NodeDataPatch{Title: &title})
	require.True(t, ok)

	old, _ := before.Node(n.ID)
	assert.Equal(t, "New Note", old.Data.Title)
	now, _ := s.Snapshot().Node(n.ID)
	assert.Equal(t, "changed", now.Data.Title)
}

func TestUpdateNode(t *testing.T) {
	s := newTestStore()
	n, _ := s.CreateNode(entities.NodeTypeNote, valueobjects.Position{})
	content := "hello"

	tests := []struct {
		name   string
		id     string
		patch  entities.NodeDataPatch
		wantOK bool
	}{
		{"merges content", n.ID, entities.NodeDataPatch{Content: &content}, true},
		{"unknown id is a no-op", "missing", entities.NodeDataPatch{Content: &content}, false},
		{"empty patch is a no-op", n.ID, entities.NodeDataPatch{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rev := s.Revision()
			updated, evt, ok := s.UpdateNode(tt.id, tt.patch)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Equal(t, rev, s.Revision())
				assert.Equal(t, events.Event{}, evt)
				return
			}
			assert.Equal(t, "hello", updated.Data.Content)
			assert.Equal(t, "New Note", updated.Data.Title)
			assert.Equal(t, events.TypeNodeUpdate, evt.Type)
		})
	}
}

func TestMoveNode(t *testing.T) {
	s := newTestStore()
	n, _ := s.CreateNode(entities.NodeTypeNote, valueobjects.Position{})

	moved, evt, ok := s.MoveNode(n.ID, valueobjects.Position{X: 10, Y: 20})
	require.True(t, ok)
	assert.Equal(t, valueobjects.Position{X: 10, Y: 20}, moved.Position)
	assert.Equal(t, n.Data, moved.Data)
	assert.Equal(t, events.TypeNodeUpdate, evt.Type)

	_, _, ok = s.MoveNode("missing", valueobjects.Position{})
	assert.False(t, ok)
}

func TestCascadeDelete(t *testing.T) {
	s := newTestStore()
	a, _ := s.CreateNode(entities.NodeTypeNote, valueobjects.Position{})
	b, _ := s.CreateNode(entities.NodeTypeNote, valueobjects.Position{X: 400})
	_, _, ok := s.CreateEdge(a.ID, b.ID)
	require.True(t, ok)

	evt, ok := s.DeleteNode(a.ID)
	require.True(t, ok)
	assert.Equal(t, events.NodeDeleted(a.ID), evt)

	snap := s.Snapshot()
	assert.False(t, snap.HasNode(a.ID))
	assert.Empty(t, snap.Edges)
	assert.Empty(t, snap.EdgesOf(a.ID))

	_, ok = s.DeleteNode(a.ID)
	assert.False(t, ok)
}

func TestCreateEdge(t *testing.T) {
	s := newTestStore()
	a, _ := s.CreateNode(entities.NodeTypeNote, valueobjects.Position{})
	b, _ := s.CreateNode(entities.NodeTypeNote, valueobjects.Position{X: 400})

	e, evt, ok := s.CreateEdge(a.ID, b.ID)
	require.True(t, ok)
	assert.Equal(t, events.EdgeCreated(e), evt)

	tests := []struct {
		name           string
		source, target string
	}{
		{"duplicate pair", a.ID, b.ID},
		{"self loop", a.ID, a.ID},
		{"missing source", "ghost", b.ID},
		{"missing target", a.ID, "ghost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := s.CreateEdge(tt.source, tt.target)
			assert.False(t, ok)
			assert.Len(t, s.Snapshot().Edges, 1)
		})
	}

	_, _, ok = s.CreateEdge(b.ID, a.ID)
	assert.True(t, ok, "the reverse direction is a different edge")
}

func TestDeleteEdgeAndRename(t *testing.T) {
	s := newTestStore()
	a, _ := s.CreateNode(entities.NodeTypeNote, valueobjects.Position{})
	b, _ := s.CreateNode(entities.NodeTypeNote, valueobjects.Position{})
	e, _, _ := s.CreateEdge(a.ID, b.ID)

	_, ok := s.DeleteEdge(e.ID)
	assert.True(t, ok)
	_, ok = s.DeleteEdge(e.ID)
	assert.False(t, ok)

	evt, ok := s.RenameProject("Roadmap")
	assert.True(t, ok)
	assert.Equal(t, events.ProjectRenamed("Roadmap"), evt)
	_, ok = s.RenameProject("Roadmap")
	assert.False(t, ok)
	assert.Equal(t, "Roadmap", s.Snapshot().ProjectName)
}

func TestLoadDropsDanglingEdges(t *testing.T) {
	s := newTestStore()
	dropped := s.Load(entities.Project{
		Name: "Loaded",
		Nodes: []entities.Node{
			{ID: "a"}, {ID: "b"}, {ID: "a"},
		},
		Edges: []entities.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "a", Target: "zombie"},
			{ID: "e3", Source: "b", Target: "b"},
			{ID: "e4", Source: "a", Target: "b"},
		},
	})

	assert.Equal(t, 3, dropped)
	snap := s.Snapshot()
	assert.Len(t, snap.Nodes, 2)
	assert.Equal(t, []entities.Edge{{ID: "e1", Source: "a", Target: "b"}}, snap.Edges)
	assert.Equal(t, "Loaded", snap.ProjectName)

	s.Load(entities.Project{})
	assert.Equal(t, entities.DefaultProjectName, s.Snapshot().ProjectName)
}

func TestApply(t *testing.T) {
	nodeA := entities.Node{ID: "a", Type: entities.NodeTypeNote}
	nodeB := entities.Node{ID: "b", Type: entities.NodeTypeNote}

	tests := []struct {
		name        string
		setup       []events.Event
		event       events.Event
		wantChanged bool
		wantDrop    DropReason
		check       func(t *testing.T, snap *Snapshot)
	}{
		{
			name:        "node create on empty store",
			event:       events.NodeCreated(nodeA),
			wantChanged: true,
		},
		{
			name:  "node create with existing id is ignored",
			setup: []events.Event{events.NodeCreated(nodeA)},
			event: events.NodeCreated(entities.Node{ID: "a", Data: entities.NodeData{Title: "other"}}),
			check: func(t *testing.T, snap *Snapshot) {
				n, _ := snap.Node("a")
				assert.Empty(t, n.Data.Title)
			},
		},
		{
			name:        "node update replaces the whole node",
			setup:       []events.Event{events.NodeCreated(nodeA)},
			event:       events.NodeUpdated(entities.Node{ID: "a", Position: valueobjects.Position{X: 9}}),
			wantChanged: true,
			check: func(t *testing.T, snap *Snapshot) {
				n, _ := snap.Node("a")
				assert.Equal(t, 9.0, n.Position.X)
				assert.Empty(t, n.Type)
			},
		},
		{
			name:     "node update for unknown node is dropped",
			event:    events.NodeUpdated(nodeA),
			wantDrop: DropUnknownNode,
			check: func(t *testing.T, snap *Snapshot) {
				assert.Empty(t, snap.Nodes)
			},
		},
		{
			name:        "node delete cascades",
			setup:       []events.Event{events.NodeCreated(nodeA), events.NodeCreated(nodeB), events.EdgeCreated(entities.Edge{ID: "e", Source: "a", Target: "b"})},
			event:       events.NodeDeleted("b"),
			wantChanged: true,
			check: func(t *testing.T, snap *Snapshot) {
				assert.Empty(t, snap.Edges)
			},
		},
		{
			name:  "node delete of unknown node is a no-op",
			event: events.NodeDeleted("ghost"),
		},
		{
			name:     "edge create with missing endpoint is dropped",
			setup:    []events.Event{events.NodeCreated(nodeA)},
			event:    events.EdgeCreated(entities.Edge{ID: "e", Source: "a", Target: "b"}),
			wantDrop: DropMissingEndpoint,
		},
		{
			name:     "self loop is dropped",
			setup:    []events.Event{events.NodeCreated(nodeA)},
			event:    events.EdgeCreated(entities.Edge{ID: "e", Source: "a", Target: "a"}),
			wantDrop: DropSelfLoop,
		},
		{
			name:        "concurrent edge with smaller id wins",
			setup:       []events.Event{events.NodeCreated(nodeA), events.NodeCreated(nodeB), events.EdgeCreated(entities.Edge{ID: "z", Source: "a", Target: "b"})},
			event:       events.EdgeCreated(entities.Edge{ID: "m", Source: "a", Target: "b"}),
			wantChanged: true,
			check: func(t *testing.T, snap *Snapshot) {
				assert.Equal(t, []entities.Edge{{ID: "m", Source: "a", Target: "b"}}, snap.Edges)
			},
		},
		{
			name:     "concurrent edge with larger id loses",
			setup:    []events.Event{events.NodeCreated(nodeA), events.NodeCreated(nodeB), events.EdgeCreated(entities.Edge{ID: "m", Source: "a", Target: "b"})},
			event:    events.EdgeCreated(entities.Edge{ID: "z", Source: "a", Target: "b"}),
			wantDrop: DropDuplicatePair,
		},
		{
			name:  "edge delete is idempotent",
			event: events.EdgeDeleted("nope"),
		},
		{
			name:        "rename overwrites",
			event:       events.ProjectRenamed("Remote name"),
			wantChanged: true,
			check: func(t *testing.T, snap *Snapshot) {
				assert.Equal(t, "Remote name", snap.ProjectName)
			},
		},
		{
			name:     "cursor events are not store events",
			event:    events.CursorMoved(entities.Cursor{ID: "i"}),
			wantDrop: DropUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			for _, e := range tt.setup {
				s.Apply(e)
			}
			res := s.Apply(tt.event)
			assert.Equal(t, tt.wantChanged, res.Changed)
			assert.Equal(t, tt.wantDrop, res.Dropped)
			if tt.check != nil {
				tt.check(t, s.Snapshot())
			}
		})
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	stream := []events.Event{
		events.NodeCreated(entities.Node{ID: "a"}),
		events.NodeCreated(entities.Node{ID: "b"}),
		events.EdgeCreated(entities.Edge{ID: "e", Source: "a", Target: "b"}),
	}

	once := newTestStore()
	twice := newTestStore()
	for _, e := range stream {
		once.Apply(e)
		twice.Apply(e)
		twice.Apply(e)
	}

	assert.Equal(t, once.Snapshot().Nodes, twice.Snapshot().Nodes)
	assert.Equal(t, once.Snapshot().Edges, twice.Snapshot().Edges)
}

func TestLocalAndRemoteConverge(t *testing.T) {
	local := NewStore(WithIDGenerator(sequentialIDs("l-")))
	remote := newTestStore()

	var stream []events.Event
	a, evt := local.CreateNode(entities.NodeTypeNote, valueobjects.Position{})
	stream = append(stream, evt)
	b, evt := local.CreateNode(entities.NodeTypeGenerator, valueobjects.Position{X: 400})
	stream = append(stream, evt)
	_, evt, _ = local.CreateEdge(a.ID, b.ID)
	stream = append(stream, evt)
	_, evt, _ = local.MoveNode(b.ID, valueobjects.Position{X: 450, Y: 30})
	stream = append(stream, evt)
	evt, _ = local.RenameProject("Shared")
	stream = append(stream, evt)

	for _, e := range stream {
		remote.Apply(e)
	}

	assert.Equal(t, local.Snapshot().Nodes, remote.Snapshot().Nodes)
	assert.Equal(t, local.Snapshot().Edges, remote.Snapshot().Edges)
	assert.Equal(t, "Shared", remote.Snapshot().ProjectName)
}

func TestToProject(t *testing.T) {
	s := newTestStore()
	s.CreateNode(entities.NodeTypeNote, valueobjects.Position{})
	snap := s.Snapshot()

	p := snap.ToProject("p1", "owner", fixedTime())
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "owner", p.OwnerID)
	assert.Len(t, p.Nodes, 1)

	p.Nodes[0].ID = "mutated"
	n := snap.Nodes[0]
	assert.NotEqual(t, "mutated", n.ID)
}
