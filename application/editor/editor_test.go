package editor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Jovicsi/flowminds.ai/application/persistence"
	"github.com/Jovicsi/flowminds.ai/application/ports"
	"github.com/Jovicsi/flowminds.ai/application/session"
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	"github.com/Jovicsi/flowminds.ai/domain/interaction"
	"github.com/Jovicsi/flowminds.ai/infrastructure/persistence/memory"
	realtime "github.com/Jovicsi/flowminds.ai/infrastructure/realtime/memory"
	pkgerrors "github.com/Jovicsi/flowminds.ai/pkg/errors"
)

type mockAI struct {
	mock.Mock
}

func (m *mockAI) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *mockAI) PlanSteps(ctx context.Context, idea string) ([]ports.Step, error) {
	args := m.Called(ctx, idea)
	steps, _ := args.Get(0).([]ports.Step)
	return steps, args.Error(1)
}

var owner = session.User{ID: "u1", Email: "ana@example.com", DisplayName: "Ana"}

func testPolicy() persistence.Policy {
	return persistence.Policy{
		Structural:   time.Millisecond,
		ContentEdit:  40 * time.Millisecond,
		Idle:         time.Hour,
		WriteTimeout: time.Second,
	}
}

func openEditor(t *testing.T, deps Deps, role valueobjects.Role) *Editor {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = zaptest.NewLogger(t)
	}
	if deps.Policy == (persistence.Policy{}) {
		deps.Policy = testPolicy()
	}
	opened := &session.Opened{Project: entities.Project{ID: "p1", Name: "Board"}, Role: role}
	e, err := Open(context.Background(), deps, opened, owner)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestAddNodeDefaultsToViewCenter(t *testing.T) {
	e := openEditor(t, Deps{Projects: memory.NewStore()}, valueobjects.RoleOwner)
	e.SetScreenSize(valueobjects.Size{Width: 1000, Height: 800})

	n, err := e.AddNode(context.Background(), entities.NodeTypeNote, nil)
	require.NoError(t, err)
	assert.Equal(t, valueobjects.Position{X: 500, Y: 400}, n.Position)
	assert.Equal(t, "New Note", n.Data.Title)

	e.SetViewport(valueobjects.Viewport{X: 100, Y: 0, Zoom: 2})
	n, err = e.AddNode(context.Background(), entities.NodeTypeGenerator, nil)
	require.NoError(t, err)
	assert.Equal(t, valueobjects.Position{X: 200, Y: 200}, n.Position)
}

func TestLocalEditsArePersisted(t *testing.T) {
	repo := memory.NewStore()
	e := openEditor(t, Deps{Projects: repo}, valueobjects.RoleOwner)
	ctx := context.Background()

	a, err := e.AddNode(ctx, entities.NodeTypeNote, &valueobjects.Position{X: 0, Y: 0})
	require.NoError(t, err)
	b, err := e.AddNode(ctx, entities.NodeTypeNote, &valueobjects.Position{X: 400, Y: 0})
	require.NoError(t, err)
	_, err = e.Connect(ctx, a.ID, b.ID)
	require.NoError(t, err)

	_, err = e.Connect(ctx, a.ID, b.ID)
	assert.True(t, pkgerrors.IsValidation(err), "duplicate pair")
	_, err = e.Connect(ctx, a.ID, a.ID)
	assert.True(t, pkgerrors.IsValidation(err), "self-loop")

	require.Eventually(t, func() bool {
		p, err := repo.GetByID(ctx, "p1")
		return err == nil && len(p.Edges) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, e.DeleteNode(ctx, a.ID))
	assert.Empty(t, e.Snapshot().Edges, "cascade")

	require.Eventually(t, func() bool {
		p, err := repo.GetByID(ctx, "p1")
		return err == nil && len(p.Nodes) == 1 && len(p.Edges) == 0 && p.OwnerID == "u1"
	}, time.Second, 5*time.Millisecond)

	assert.True(t, pkgerrors.IsNotFound(e.DeleteNode(ctx, "missing")))
	_, err = e.UpdateNode(ctx, "missing", entities.NodeDataPatch{})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestViewerCannotEdit(t *testing.T) {
	repo := memory.NewStore()
	e := openEditor(t, Deps{Projects: repo}, valueobjects.RoleViewer)
	ctx := context.Background()

	_, err := e.AddNode(ctx, entities.NodeTypeNote, nil)
	assert.True(t, pkgerrors.IsForbidden(err))
	assert.True(t, pkgerrors.IsForbidden(e.Rename(ctx, "mine now")))
	require.NoError(t, e.Save(ctx))
	assert.Empty(t, repo.Saves())
}

func TestPointerDragMovesNodeAndSaves(t *testing.T) {
	repo := memory.NewStore()
	e := openEditor(t, Deps{Projects: repo}, valueobjects.RoleOwner)
	ctx := context.Background()

	n, err := e.AddNode(ctx, entities.NodeTypeNote, &valueobjects.Position{X: 100, Y: 100})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(repo.Saves()) == 1 }, time.Second, 5*time.Millisecond)

	down := e.PointerDown(ctx, interaction.PointerEvent{Screen: valueobjects.Position{X: 110, Y: 110}})
	assert.Equal(t, interaction.DraggingNode, down.State)

	e.PointerMove(ctx, interaction.PointerEvent{Screen: valueobjects.Position{X: 160, Y: 130}})
	moved, _ := e.Snapshot().Node(n.ID)
	assert.Equal(t, valueobjects.Position{X: 150, Y: 120}, moved.Position)

	up := e.PointerUp(ctx, interaction.PointerEvent{Screen: valueobjects.Position{X: 160, Y: 130}})
	assert.Equal(t, interaction.Idle, up.State)

	require.Eventually(t, func() bool {
		saves := repo.Saves()
		return len(saves) == 2 && saves[1].Nodes[0].Position == valueobjects.Position{X: 150, Y: 120}
	}, time.Second, 5*time.Millisecond)
}

func TestPointerPanAndZoom(t *testing.T) {
	e := openEditor(t, Deps{Projects: memory.NewStore()}, valueobjects.RoleOwner)
	ctx := context.Background()

	e.PointerDown(ctx, interaction.PointerEvent{Screen: valueobjects.Position{X: 100, Y: 100}})
	e.PointerMove(ctx, interaction.PointerEvent{Screen: valueobjects.Position{X: 150, Y: 130}})
	e.PointerUp(ctx, interaction.PointerEvent{Screen: valueobjects.Position{X: 150, Y: 130}})
	assert.Equal(t, valueobjects.Viewport{X: 50, Y: 30, Zoom: 1}, e.Viewport())

	e.Wheel(ctx, -100000)
	assert.Equal(t, valueobjects.MaxZoom, e.Viewport().Zoom)
	e.Pinch(ctx, 0.0001)
	assert.Equal(t, valueobjects.MinZoom, e.Viewport().Zoom)
}

func TestDeleteControl(t *testing.T) {
	e := openEditor(t, Deps{Projects: memory.NewStore()}, valueobjects.RoleOwner)
	ctx := context.Background()

	n, err := e.AddNode(ctx, entities.NodeTypeNote, &valueobjects.Position{X: 100, Y: 100})
	require.NoError(t, err)

	out := e.PointerDown(ctx, interaction.PointerEvent{Screen: valueobjects.Position{X: 390, Y: 125}})
	assert.True(t, out.Has(interaction.EffectActivateControl))
	assert.False(t, e.Snapshot().HasNode(n.ID))
}

func TestFitView(t *testing.T) {
	e := openEditor(t, Deps{Projects: memory.NewStore()}, valueobjects.RoleOwner)
	assert.Equal(t, valueobjects.IdentityViewport(), e.FitView())

	ctx := context.Background()
	_, err := e.AddNode(ctx, entities.NodeTypeNote, &valueobjects.Position{X: 0, Y: 0})
	require.NoError(t, err)
	_, err = e.AddNode(ctx, entities.NodeTypeNote, &valueobjects.Position{X: 2000, Y: 1000})
	require.NoError(t, err)

	vp := e.FitView()
	assert.Less(t, vp.Zoom, 1.0)
	assert.GreaterOrEqual(t, vp.Zoom, valueobjects.MinZoom)
}

func TestCloseDropsPendingSave(t *testing.T) {
	repo := memory.NewStore()
	e := openEditor(t, Deps{Projects: repo}, valueobjects.RoleOwner)
	ctx := context.Background()

	require.NoError(t, e.Rename(ctx, "Renamed"))
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, repo.Saves())

	_, err := e.AddNode(ctx, entities.NodeTypeNote, nil)
	assert.Error(t, err)
}

func TestEditorsConverge(t *testing.T) {
	bus := realtime.NewBus(nil)
	repo := memory.NewStore()
	a := openEditor(t, Deps{Projects: repo, Transport: bus}, valueobjects.RoleOwner)
	b := openEditor(t, Deps{Projects: repo, Transport: bus}, valueobjects.RoleEditor)
	require.Eventually(t, func() bool { return a.Live() && b.Live() }, time.Second, 5*time.Millisecond)
	ctx := context.Background()

	n, err := a.AddNode(ctx, entities.NodeTypeNote, &valueobjects.Position{X: 0, Y: 0})
	require.NoError(t, err)
	m, err := b.AddNode(ctx, entities.NodeTypeNote, &valueobjects.Position{X: 500, Y: 0})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return a.Snapshot().HasNode(m.ID) && b.Snapshot().HasNode(n.ID)
	}, time.Second, 5*time.Millisecond)

	_, err = a.Connect(ctx, n.ID, m.ID)
	require.NoError(t, err)
	content := "shared text"
	_, err = b.UpdateNode(ctx, n.ID, entities.NodeDataPatch{Content: &content})
	require.NoError(t, err)
	require.NoError(t, a.Rename(ctx, "Team board"))

	require.Eventually(t, func() bool {
		sa, sb := a.Snapshot(), b.Snapshot()
		na, _ := sa.Node(n.ID)
		return len(sb.Edges) == 1 && na.Data.Content == content && sb.ProjectName == "Team board"
	}, time.Second, 5*time.Millisecond)

	assert.ElementsMatch(t, a.Snapshot().Nodes, b.Snapshot().Nodes)
	assert.Equal(t, a.Snapshot().Edges, b.Snapshot().Edges)
}

func TestCursorsReachPeers(t *testing.T) {
	bus := realtime.NewBus(nil)
	a := openEditor(t, Deps{Projects: memory.NewStore(), Transport: bus}, valueobjects.RoleOwner)
	b := openEditor(t, Deps{Projects: memory.NewStore(), Transport: bus}, valueobjects.RoleViewer)
	require.Eventually(t, func() bool { return a.Live() && b.Live() }, time.Second, 5*time.Millisecond)

	b.PointerMove(context.Background(), interaction.PointerEvent{Screen: valueobjects.Position{X: 42, Y: 24}})

	require.Eventually(t, func() bool { return len(a.RemoteCursors()) == 1 }, time.Second, 5*time.Millisecond)
	c := a.RemoteCursors()[0]
	assert.Equal(t, 42.0, c.X)
	assert.Equal(t, 24.0, c.Y)
	assert.Equal(t, "Ana", c.Name)
	assert.Contains(t, entities.CursorPalette, c.Color)
	assert.Empty(t, b.RemoteCursors())
}

func TestAutoPlan(t *testing.T) {
	tests := []struct {
		name       string
		steps      []ports.Step
		err        error
		wantTitles []string
	}{
		{
			name:       "plan from service",
			steps:      []ports.Step{{Title: "Research"}, {Title: "Build"}, {Title: "Ship"}},
			wantTitles: []string{"Research", "Build", "Ship"},
		},
		{
			name:       "unparseable answer",
			err:        ports.ErrUnparseablePlan,
			wantTitles: []string{"Step 1", "Step 2", "Step 3"},
		},
		{
			name:       "service failure",
			err:        errors.New("quota exceeded"),
			wantTitles: []string{"Error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ai := new(mockAI)
			ai.On("PlanSteps", mock.Anything, "launch a podcast").Return(tt.steps, tt.err)
			repo := memory.NewStore()
			e := openEditor(t, Deps{Projects: repo, AI: ai}, valueobjects.RoleOwner)
			e.SetScreenSize(valueobjects.Size{Width: 1000, Height: 800})

			nodes, err := e.AutoPlan(context.Background(), "  launch a podcast ")
			require.NoError(t, err)
			require.Len(t, nodes, len(tt.wantTitles))

			for i, n := range nodes {
				assert.Equal(t, tt.wantTitles[i], n.Data.Title)
				assert.Equal(t, valueobjects.Position{X: 500 + float64(i)*PlanSpacing, Y: 400}, n.Position)
				assert.Equal(t, float64(PlanNodeWidth), n.Width)
				assert.Equal(t, entities.NodeTypeNote, n.Type)
			}
			assert.Len(t, e.Snapshot().Edges, len(nodes)-1)
			if tt.err == ports.ErrUnparseablePlan {
				assert.Equal(t, "launch a podcast", nodes[0].Data.Content)
			}

			require.Eventually(t, func() bool {
				p, err := repo.GetByID(context.Background(), "p1")
				return err == nil && len(p.Nodes) == len(nodes)
			}, time.Second, 5*time.Millisecond)
			ai.AssertExpectations(t)
		})
	}

	e := openEditor(t, Deps{Projects: memory.NewStore()}, valueobjects.RoleOwner)
	_, err := e.AutoPlan(context.Background(), "   ")
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestFitViewAfterAutoPlan(t *testing.T) {
	ai := new(mockAI)
	ai.On("PlanSteps", mock.Anything, "plan a trip").
		Return([]ports.Step{{Title: "Book"}, {Title: "Pack"}, {Title: "Go"}}, nil)
	e := openEditor(t, Deps{Projects: memory.NewStore(), AI: ai}, valueobjects.RoleOwner)
	e.SetScreenSize(valueobjects.Size{Width: 1000, Height: 800})

	_, err := e.AutoPlan(context.Background(), "plan a trip")
	require.NoError(t, err)

	// one row: width 2*PlanSpacing+PlanNodeWidth, height PlanNodeHeight
	width := 2*PlanSpacing + float64(PlanNodeWidth)
	zoom := math.Min(800/width, 600/float64(PlanNodeHeight))
	vp := e.FitView()
	assert.InDelta(t, zoom, vp.Zoom, 1e-9)
	assert.InDelta(t, 500-(500+width/2)*zoom, vp.X, 1e-9)
	assert.InDelta(t, 400-(400+float64(PlanNodeHeight)/2)*zoom, vp.Y, 1e-9)
}

func TestExecuteGenerator(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		err    error
		want   string
	}{
		{"answer stored", "Here are ideas", nil, "Here are ideas"},
		{"empty answer", "", nil, EmptyResultText},
		{"service error", "", errors.New("401"), FailedResultText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ai := new(mockAI)
			ai.On("Generate", mock.Anything, "write a tagline").Return(tt.answer, tt.err)
			repo := memory.NewStore()
			e := openEditor(t, Deps{Projects: repo, AI: ai}, valueobjects.RoleOwner)
			ctx := context.Background()

			n, err := e.AddNode(ctx, entities.NodeTypeGenerator, &valueobjects.Position{})
			require.NoError(t, err)
			prompt := "write a tagline"
			_, err = e.UpdateNode(ctx, n.ID, entities.NodeDataPatch{Content: &prompt})
			require.NoError(t, err)

			got, err := e.ExecuteGenerator(ctx, n.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Data.Result)
			assert.False(t, got.Data.IsProcessing)

			require.Eventually(t, func() bool {
				p, err := repo.GetByID(ctx, "p1")
				return err == nil && len(p.Nodes) == 1 && p.Nodes[0].Data.Result == tt.want
			}, time.Second, 5*time.Millisecond)
		})
	}
}

func TestExecuteGeneratorWithoutContent(t *testing.T) {
	ai := new(mockAI)
	e := openEditor(t, Deps{Projects: memory.NewStore(), AI: ai}, valueobjects.RoleOwner)
	ctx := context.Background()

	n, err := e.AddNode(ctx, entities.NodeTypeGenerator, nil)
	require.NoError(t, err)
	got, err := e.ExecuteGenerator(ctx, n.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Data.Result)
	ai.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)

	_, err = e.ExecuteGenerator(ctx, "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
}
