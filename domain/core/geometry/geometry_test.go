package geometry

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
)

func node(id string, x, y, w, h float64) entities.Node {
	return entities.Node{ID: id, Type: entities.NodeTypeNote, Position: valueobjects.Position{X: x, Y: y}, Width: w, Height: h}
}

func TestScreenWorldRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("screenToWorld(worldToScreen(p)) == p", prop.ForAll(
		func(px, py, vx, vy, zoom float64) bool {
			p := valueobjects.Position{X: px, Y: py}
			vp := valueobjects.Viewport{X: vx, Y: vy, Zoom: zoom}
			back := ScreenToWorld(WorldToScreen(p, vp), vp)
			tol := 1e-6 * (1 + math.Abs(px) + math.Abs(py) + (math.Abs(vx)+math.Abs(vy))/zoom)
			return math.Abs(back.X-px) <= tol && math.Abs(back.Y-py) <= tol
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e4, 1e4),
		gen.Float64Range(-1e4, 1e4),
		gen.Float64Range(0.1, 5),
	))

	properties.TestingRun(t)
}

func TestScreenToWorld(t *testing.T) {
	vp := valueobjects.Viewport{X: 50, Y: 30, Zoom: 2}
	assert.Equal(t, valueobjects.Position{X: 25, Y: 35}, ScreenToWorld(valueobjects.Position{X: 100, Y: 100}, vp))
	assert.Equal(t, valueobjects.Position{X: 100, Y: 100}, WorldToScreen(valueobjects.Position{X: 25, Y: 35}, vp))
}

func TestZoom(t *testing.T) {
	tests := []struct {
		name   string
		start  float64
		deltaY float64
		want   float64
	}{
		{"zoom in", 1, -100, 1.1},
		{"zoom out", 1, 100, 0.9},
		{"clamped low", 0.15, 1000, 0.1},
		{"clamped high", 4.9, -1000, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp := ZoomBy(valueobjects.Viewport{X: 7, Y: 9, Zoom: tt.start}, tt.deltaY)
			assert.InDelta(t, tt.want, vp.Zoom, 1e-9)
			assert.Equal(t, 7.0, vp.X, "zoom is anchored at the screen origin")
			assert.Equal(t, 9.0, vp.Y)
		})
	}

	assert.InDelta(t, 5.0, ScaleBy(valueobjects.Viewport{Zoom: 4}, 2).Zoom, 1e-9)
	assert.Equal(t, 1.0, ScaleBy(valueobjects.Viewport{Zoom: 1}, 0).Zoom)
}

func TestFitView(t *testing.T) {
	current := valueobjects.Viewport{X: 12, Y: 34, Zoom: 0.7}
	screen := valueobjects.Size{Width: 1000, Height: 800}

	t.Run("no nodes resets to identity", func(t *testing.T) {
		assert.Equal(t, valueobjects.IdentityViewport(), FitView(nil, screen, current))
	})

	t.Run("single node leaves viewport unchanged", func(t *testing.T) {
		nodes := []entities.Node{node("a", 0, 0, 300, 200)}
		assert.Equal(t, current, FitView(nodes, screen, current))
	})

	t.Run("stacked nodes leave viewport unchanged", func(t *testing.T) {
		nodes := []entities.Node{node("a", 40, 40, 300, 200), node("b", 40, 40, 320, 240)}
		assert.Equal(t, current, FitView(nodes, screen, current))
	})

	t.Run("row of nodes is fitted", func(t *testing.T) {
		nodes := []entities.Node{node("a", 0, 0, 320, 200), node("b", 350, 0, 320, 200), node("c", 700, 0, 320, 200)}
		vp := FitView(nodes, screen, current)

		// bbox 1020x200: zoomX = 800/1020 wins over zoomY = 600/200
		zoom := 800.0 / 1020.0
		assert.InDelta(t, zoom, vp.Zoom, 1e-9)
		assert.InDelta(t, 500-510*zoom, vp.X, 1e-9)
		assert.InDelta(t, 400-100*zoom, vp.Y, 1e-9)
	})

	t.Run("column of nodes is fitted", func(t *testing.T) {
		nodes := []entities.Node{node("a", 0, 0, 300, 200), node("b", 0, 300, 300, 200), node("c", 0, 600, 300, 200)}
		vp := FitView(nodes, screen, current)

		// bbox 300x800: zoomY = 600/800
		assert.InDelta(t, 0.75, vp.Zoom, 1e-9)
		assert.InDelta(t, 387.5, vp.X, 1e-9)
		assert.InDelta(t, 100.0, vp.Y, 1e-9)
	})

	t.Run("two nodes are fitted and centred", func(t *testing.T) {
		nodes := []entities.Node{node("a", 0, 0, 300, 200), node("b", 500, 400, 300, 200)}
		vp := FitView(nodes, screen, current)

		// bbox 800x600: zoomX = 800/800, zoomY = 600/600
		assert.InDelta(t, 1.0, vp.Zoom, 1e-9)
		assert.InDelta(t, 100.0, vp.X, 1e-9)
		assert.InDelta(t, 100.0, vp.Y, 1e-9)
	})

	t.Run("zoom is capped at 1.5", func(t *testing.T) {
		nodes := []entities.Node{node("a", 0, 0, 10, 10), node("b", 10, 10, 10, 10)}
		assert.InDelta(t, FitMaxZoom, FitView(nodes, screen, current).Zoom, 1e-9)
	})

	t.Run("zoom floors at 0.1", func(t *testing.T) {
		nodes := []entities.Node{node("a", 0, 0, 10, 10), node("b", 1e6, 1e6, 10, 10)}
		assert.InDelta(t, FitMinZoom, FitView(nodes, screen, current).Zoom, 1e-9)
	})
}

func TestAnchors(t *testing.T) {
	n := node("a", 10, 20, 320, 200)
	assert.Equal(t, valueobjects.Position{X: 10, Y: 96}, InboundAnchor(n))
	assert.Equal(t, valueobjects.Position{X: 330, Y: 96}, OutboundAnchor(n))
	assert.Equal(t, HandleTarget, HandleSource.Opposite())

	from, to := EdgePath(n, node("b", 500, 0, 320, 200))
	assert.Equal(t, OutboundAnchor(n), from)
	assert.Equal(t, valueobjects.Position{X: 500, Y: 76}, to)
}

func TestHitTest(t *testing.T) {
	generator := entities.NewNode("g", entities.NodeTypeGenerator, valueobjects.Position{X: 0, Y: 0})
	top := node("top", 200, 150, 320, 200)
	nodes := []entities.Node{generator, top}

	tests := []struct {
		name     string
		point    valueobjects.Position
		wantKind RegionKind
		wantNode string
		check    func(t *testing.T, h Hit)
	}{
		{name: "empty canvas", point: valueobjects.Position{X: -500, Y: -500}, wantKind: RegionEmpty},
		{name: "inbound handle", point: valueobjects.Position{X: 2, Y: 78}, wantKind: RegionHandle, wantNode: "g",
			check: func(t *testing.T, h Hit) { assert.Equal(t, HandleTarget, h.Handle) }},
		{name: "outbound handle outside body", point: valueobjects.Position{X: 330, Y: 76}, wantKind: RegionHandle, wantNode: "g",
			check: func(t *testing.T, h Hit) {
				assert.Equal(t, HandleSource, h.Handle)
				assert.Equal(t, valueobjects.Position{X: 320, Y: 76}, h.Anchor)
			}},
		{name: "delete button", point: valueobjects.Position{X: 290, Y: 20}, wantKind: RegionControl, wantNode: "g",
			check: func(t *testing.T, h Hit) { assert.Equal(t, ControlDelete, h.Control) }},
		{name: "generate button", point: valueobjects.Position{X: 250, Y: 20}, wantKind: RegionControl, wantNode: "g",
			check: func(t *testing.T, h Hit) { assert.Equal(t, ControlGenerate, h.Control) }},
		{name: "title input", point: valueobjects.Position{X: 60, Y: 30}, wantKind: RegionTextInput, wantNode: "g"},
		{name: "body below content", point: valueobjects.Position{X: 100, Y: 190}, wantKind: RegionBody, wantNode: "g"},
		{name: "overlap resolves to topmost", point: valueobjects.Position{X: 260, Y: 195}, wantKind: RegionBody, wantNode: "top"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HitTest(nodes, tt.point)
			assert.Equal(t, tt.wantKind, h.Kind, "got %s", h.Kind)
			assert.Equal(t, tt.wantNode, h.NodeID)
			if tt.check != nil {
				tt.check(t, h)
			}
		})
	}
}

func TestHandleAt(t *testing.T) {
	nodes := []entities.Node{node("a", 0, 0, 320, 200)}
	h, ok := HandleAt(nodes, valueobjects.Position{X: 320, Y: 80})
	assert.True(t, ok)
	assert.Equal(t, HandleSource, h.Handle)

	_, ok = HandleAt(nodes, valueobjects.Position{X: 160, Y: 80})
	assert.False(t, ok)
}
