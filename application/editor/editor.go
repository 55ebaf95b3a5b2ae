// Package editor drives one open project: local edits, pointer input and
// remote changes all run as turns against a single graph store.
package editor

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/application/persistence"
	"github.com/Jovicsi/flowminds.ai/application/ports"
	"github.com/Jovicsi/flowminds.ai/application/session"
	appsync "github.com/Jovicsi/flowminds.ai/application/sync"
	"github.com/Jovicsi/flowminds.ai/domain/core/aggregates"
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/geometry"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	"github.com/Jovicsi/flowminds.ai/domain/events"
	"github.com/Jovicsi/flowminds.ai/domain/interaction"
	pkgerrors "github.com/Jovicsi/flowminds.ai/pkg/errors"
	"github.com/Jovicsi/flowminds.ai/pkg/observability"
)

// DefaultScreen is assumed until the host reports its canvas size.
var DefaultScreen = valueobjects.Size{Width: 1280, Height: 800}

// Deps are the collaborators of an Editor. Transport and AI may be nil:
// without a transport the editor works offline, without AI the generator
// and auto-plan operations fail.
type Deps struct {
	Projects     ports.ProjectRepository
	Transport    ports.Transport
	AI           ports.TextGenerator
	SaveListener ports.SaveListener
	Policy       persistence.Policy
	Sync         appsync.Options
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// Editor is one open project.
type Editor struct {
	// turn serialises every entry point that reads or mutates editor state.
	turn sync.Mutex
	// send is taken before a turn ends and held until its changes are out,
	// so peers receive them in commit order.
	send sync.Mutex

	store     *aggregates.Store
	machine   *interaction.Machine
	viewport  valueobjects.Viewport
	screen    valueobjects.Size
	projectID string
	role      valueobjects.Role
	user      session.User
	closed    bool

	sync      *appsync.Engine
	scheduler *persistence.Scheduler
	ai        ports.TextGenerator
	logger    *zap.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer
}

// Open builds an editor for a project the gate has already admitted the
// user to. It loads the graph, binds the save scheduler and, when a
// transport is configured, joins the project's channel.
func Open(ctx context.Context, deps Deps, opened *session.Opened, user session.User) (*Editor, error) {
	if opened == nil || opened.Project.ID == "" {
		return nil, pkgerrors.NewValidationError("no project to open")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("projectID", opened.Project.ID), zap.String("userID", user.ID))

	e := &Editor{
		store:     aggregates.NewStore(),
		machine:   interaction.NewMachine(),
		viewport:  valueobjects.IdentityViewport(),
		screen:    DefaultScreen,
		projectID: opened.Project.ID,
		role:      opened.Role,
		user:      user,
		ai:        deps.AI,
		logger:    logger,
		metrics:   deps.Metrics,
		tracer:    observability.Tracer(),
	}

	if dropped := e.store.Load(opened.Project); dropped > 0 {
		logger.Warn("Dropped invalid edges while loading", zap.Int("dropped", dropped))
	}

	var opts []persistence.Option
	if deps.SaveListener != nil {
		opts = append(opts, persistence.WithSaveListener(deps.SaveListener))
	}
	e.scheduler = persistence.NewScheduler(deps.Projects, e, deps.Policy, logger, deps.Metrics, opts...)
	e.scheduler.Activate(persistence.Session{
		ProjectID: opened.Project.ID,
		ActorID:   user.ID,
		OwnerID:   opened.Project.OwnerID,
		Role:      opened.Role,
		Baseline:  e.store.Revision(),
		Persisted: opened.Exists,
		UpdatedAt: opened.Project.UpdatedAt,
	})

	if deps.Transport != nil {
		identity := appsync.Identity{
			InstanceID: valueobjects.NewInstanceID(),
			Name:       user.Name(),
			Color:      entities.RandomCursorColor(),
		}
		e.sync = appsync.NewEngine(deps.Transport, deps.Projects, identity, deps.Sync, logger, deps.Metrics)
		if err := e.sync.Start(ctx, opened.Project.ID, e); err != nil {
			e.scheduler.Close()
			return nil, pkgerrors.NewNetworkError("failed to join project channel", err)
		}
	}

	logger.Info("Project opened",
		zap.String("role", opened.Role.String()),
		zap.Bool("exists", opened.Exists),
		zap.Int("nodes", len(opened.Project.Nodes)))
	return e, nil
}

// Snapshot returns the current graph. It is safe to call at any time and
// never blocks on a turn.
func (e *Editor) Snapshot() *aggregates.Snapshot {
	return e.store.Snapshot()
}

// ProjectID returns the open project's id
func (e *Editor) ProjectID() string {
	return e.projectID
}

// Role returns the user's role on the open project
func (e *Editor) Role() valueobjects.Role {
	return e.role
}

// Viewport returns the current viewport
func (e *Editor) Viewport() valueobjects.Viewport {
	e.turn.Lock()
	defer e.turn.Unlock()
	return e.viewport
}

// RemoteCursors returns the peers' cursors. It is empty when offline.
func (e *Editor) RemoteCursors() []entities.RemoteCursor {
	if e.sync == nil {
		return nil
	}
	return e.sync.Cursors()
}

// Live reports whether the realtime channel is joined
func (e *Editor) Live() bool {
	return e.sync != nil && e.sync.Live()
}

// LastSaved returns when the project was last written
func (e *Editor) LastSaved() time.Time {
	return e.scheduler.LastSaved()
}

// Interaction exposes the gesture state, for rendering the draft line
func (e *Editor) Interaction() (interaction.DragItem, bool) {
	e.turn.Lock()
	defer e.turn.Unlock()
	return e.machine.Drag()
}

func (e *Editor) writableLocked() error {
	if e.closed {
		return pkgerrors.NewUnavailableError("editor")
	}
	if !e.role.CanEdit() {
		return pkgerrors.NewForbiddenError("read-only access")
	}
	return nil
}

// handOff ends a turn whose changes must go out. The caller follows with
// publish or finish, which release send.
func (e *Editor) handOff() {
	e.send.Lock()
	e.turn.Unlock()
}

// publish sends local changes to peers and schedules the save. It runs
// after handOff.
func (e *Editor) publish(ctx context.Context, trigger persistence.Trigger, evts ...events.Event) {
	defer e.send.Unlock()
	e.emit(ctx, trigger, evts...)
}

func (e *Editor) emit(ctx context.Context, trigger persistence.Trigger, evts ...events.Event) {
	if len(evts) == 0 {
		return
	}
	if e.sync != nil {
		for _, evt := range evts {
			e.sync.Broadcast(ctx, evt)
		}
	}
	e.scheduler.Trigger(trigger)
	e.scheduler.NotifyChange()
}

// AddNode creates a node. A nil position places it at the centre of the
// visible canvas.
func (e *Editor) AddNode(ctx context.Context, t entities.NodeType, pos *valueobjects.Position) (entities.Node, error) {
	if !t.IsValid() {
		return entities.Node{}, pkgerrors.NewValidationError("unknown node type: " + string(t))
	}
	e.turn.Lock()
	if err := e.writableLocked(); err != nil {
		e.turn.Unlock()
		return entities.Node{}, err
	}
	at := geometry.ViewCenter(e.screen, e.viewport)
	if pos != nil {
		at = *pos
	}
	n, evt := e.store.CreateNode(t, at)
	e.handOff()

	e.publish(ctx, persistence.TriggerStructural, evt)
	return n, nil
}

// UpdateNode merges patch into a node's data. Text edits are saved after
// the content debounce.
func (e *Editor) UpdateNode(ctx context.Context, id string, patch entities.NodeDataPatch) (entities.Node, error) {
	e.turn.Lock()
	if err := e.writableLocked(); err != nil {
		e.turn.Unlock()
		return entities.Node{}, err
	}
	n, evt, ok := e.store.UpdateNode(id, patch)
	if !ok {
		e.turn.Unlock()
		return entities.Node{}, pkgerrors.NewNotFoundError("node")
	}
	e.handOff()

	e.publish(ctx, persistence.TriggerContent, evt)
	return n, nil
}

// DeleteNode removes a node and its edges
func (e *Editor) DeleteNode(ctx context.Context, id string) error {
	e.turn.Lock()
	if err := e.writableLocked(); err != nil {
		e.turn.Unlock()
		return err
	}
	evt, ok := e.store.DeleteNode(id)
	if !ok {
		e.turn.Unlock()
		return pkgerrors.NewNotFoundError("node")
	}
	e.handOff()

	e.publish(ctx, persistence.TriggerStructural, evt)
	return nil
}

// Connect creates a directed edge
func (e *Editor) Connect(ctx context.Context, source, target string) (entities.Edge, error) {
	e.turn.Lock()
	if err := e.writableLocked(); err != nil {
		e.turn.Unlock()
		return entities.Edge{}, err
	}
	edge, evt, ok := e.store.CreateEdge(source, target)
	if !ok {
		e.turn.Unlock()
		return entities.Edge{}, pkgerrors.NewValidationError("edge rejected")
	}
	e.handOff()

	e.publish(ctx, persistence.TriggerStructural, evt)
	return edge, nil
}

// DeleteEdge removes an edge
func (e *Editor) DeleteEdge(ctx context.Context, id string) error {
	e.turn.Lock()
	if err := e.writableLocked(); err != nil {
		e.turn.Unlock()
		return err
	}
	evt, ok := e.store.DeleteEdge(id)
	if !ok {
		e.turn.Unlock()
		return pkgerrors.NewNotFoundError("edge")
	}
	e.handOff()

	e.publish(ctx, persistence.TriggerStructural, evt)
	return nil
}

// Rename sets the project name
func (e *Editor) Rename(ctx context.Context, name string) error {
	e.turn.Lock()
	if err := e.writableLocked(); err != nil {
		e.turn.Unlock()
		return err
	}
	evt, ok := e.store.RenameProject(name)
	if !ok {
		e.turn.Unlock()
		return nil
	}
	e.handOff()

	e.publish(ctx, persistence.TriggerContent, evt)
	return nil
}

// SetScreenSize records the canvas size in pixels
func (e *Editor) SetScreenSize(size valueobjects.Size) {
	e.turn.Lock()
	defer e.turn.Unlock()
	if !size.IsZero() {
		e.screen = size
	}
}

// SetViewport replaces the viewport, clamping zoom
func (e *Editor) SetViewport(vp valueobjects.Viewport) {
	e.turn.Lock()
	defer e.turn.Unlock()
	vp.Zoom = geometry.ClampZoom(vp.Zoom)
	e.viewport = vp
}

// FitView frames every node on screen and returns the new viewport
func (e *Editor) FitView() valueobjects.Viewport {
	e.turn.Lock()
	defer e.turn.Unlock()
	e.viewport = geometry.FitView(e.store.Snapshot().Nodes, e.screen, e.viewport)
	return e.viewport
}

// SetSavePolicy replaces the autosave delays, for configuration reloads
func (e *Editor) SetSavePolicy(p persistence.Policy) {
	e.scheduler.SetPolicy(p)
}

// Save writes the project now. A failure is returned as SaveFailure.
func (e *Editor) Save(ctx context.Context) error {
	e.turn.Lock()
	closed := e.closed
	e.turn.Unlock()
	if closed {
		return nil
	}
	return e.scheduler.SaveNow(ctx)
}

// Close leaves the channel and drops any pending save.
func (e *Editor) Close() error {
	e.turn.Lock()
	if e.closed {
		e.turn.Unlock()
		return nil
	}
	e.closed = true
	e.machine.Cancel()
	e.turn.Unlock()

	e.scheduler.Close()
	if e.sync != nil {
		return e.sync.Close()
	}
	return nil
}

// ApplyRemote implements the sync engine's Applier. Remote changes are
// never re-broadcast but do restart the idle save.
func (e *Editor) ApplyRemote(evt events.Event) aggregates.ApplyResult {
	e.turn.Lock()
	if e.closed {
		e.turn.Unlock()
		return aggregates.ApplyResult{}
	}
	res := e.store.Apply(evt)
	e.turn.Unlock()

	if res.Changed {
		e.scheduler.NotifyChange()
	}
	return res
}

// ReconcileName implements the sync engine's Applier
func (e *Editor) ReconcileName(name string) {
	e.turn.Lock()
	defer e.turn.Unlock()
	if e.closed {
		return
	}
	if _, ok := e.store.RenameProject(name); ok {
		e.logger.Debug("Project name reconciled", zap.String("name", name))
	}
}
