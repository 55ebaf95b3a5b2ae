// Package sync keeps one open project consistent with its peers over a
// broadcast channel.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	gosync "sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Jovicsi/flowminds.ai/application/ports"
	"github.com/Jovicsi/flowminds.ai/domain/core/aggregates"
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	"github.com/Jovicsi/flowminds.ai/domain/events"
	"github.com/Jovicsi/flowminds.ai/pkg/observability"
)

// Channel event names. Cursor updates travel on their own event so they can
// be handled without decoding the change union.
const (
	EventCursorMove = "cursor-move"
	EventAppChange  = "app-change"
)

const (
	DefaultThrottleInterval = 50 * time.Millisecond
	DefaultCursorTTL        = 30 * time.Second
)

// Topic returns the channel name for a project
func Topic(projectID string) string {
	return topicPrefix + projectID
}

const topicPrefix = "room:"

// ProjectFromTopic returns the project a topic belongs to
func ProjectFromTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, topicPrefix)
	return id, ok && id != ""
}

// Identity is how this editor session appears to its peers
type Identity struct {
	InstanceID string
	Name       string
	Color      string
}

// Applier receives remote changes. The editor implements it.
type Applier interface {
	ApplyRemote(evt events.Event) aggregates.ApplyResult
	ReconcileName(name string)
}

// NameSource reads the authoritative project name
type NameSource interface {
	GetName(ctx context.Context, projectID string) (string, error)
}

// Options tunes an Engine
type Options struct {
	ThrottleInterval time.Duration
	// CursorTTL removes cursors not heard from for this long. Zero keeps them forever.
	CursorTTL time.Duration
	Clock     func() time.Time
}

// DefaultOptions returns the standard tuning
func DefaultOptions() Options {
	return Options{
		ThrottleInterval: DefaultThrottleInterval,
		CursorTTL:        DefaultCursorTTL,
		Clock:            time.Now,
	}
}

// Engine owns the realtime subscription of one open project.
type Engine struct {
	transport ports.Transport
	names     NameSource
	identity  Identity
	opts      Options
	logger    *zap.Logger
	metrics   *observability.Metrics
	validate  *validator.Validate

	mu        gosync.Mutex
	projectID string
	applier   Applier
	sub       ports.Subscription
	live      bool
	closed    bool
	cancel    context.CancelFunc
	cursors   map[string]entities.RemoteCursor
	cursorLim *rate.Limiter
	dragLim   *rate.Limiter
}

// NewEngine creates an engine. names may be nil, in which case the project
// name is never reconciled on subscription. logger should already carry
// the project id.
func NewEngine(transport ports.Transport, names NameSource, identity Identity, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Engine {
	if opts.ThrottleInterval <= 0 {
		opts.ThrottleInterval = DefaultThrottleInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if identity.InstanceID == "" {
		identity.InstanceID = valueobjects.NewInstanceID()
	}
	return &Engine{
		transport: transport,
		names:     names,
		identity:  identity,
		opts:      opts,
		logger:    logger.With(zap.String("instanceID", identity.InstanceID)),
		metrics:   metrics,
		validate:  validator.New(),
		cursors:   make(map[string]entities.RemoteCursor),
		cursorLim: rate.NewLimiter(rate.Every(opts.ThrottleInterval), 1),
		dragLim:   rate.NewLimiter(rate.Every(opts.ThrottleInterval), 1),
	}
}

// Identity returns the session identity
func (e *Engine) Identity() Identity {
	return e.identity
}

// Start subscribes to the project's topic. Remote changes go to applier.
func (e *Engine) Start(ctx context.Context, projectID string, applier Applier) error {
	e.mu.Lock()
	if e.sub != nil || e.closed {
		e.mu.Unlock()
		return fmt.Errorf("sync engine already started or closed")
	}
	runCtx, cancel := context.WithCancel(context.Background())
	e.projectID = projectID
	e.applier = applier
	e.cancel = cancel
	e.mu.Unlock()

	sub, err := e.transport.Subscribe(ctx, Topic(projectID), ports.SubscribeOptions{Self: false}, ports.Handler{
		OnMessage: e.receive,
		OnStatus: func(status ports.ChannelStatus, err error) {
			e.onStatus(runCtx, status, err)
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", Topic(projectID), err)
	}

	e.mu.Lock()
	e.sub = sub
	e.mu.Unlock()
	return nil
}

// Live reports whether the channel is currently subscribed
func (e *Engine) Live() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live && !e.closed
}

func (e *Engine) onStatus(ctx context.Context, status ports.ChannelStatus, err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.live = status == ports.StatusSubscribed
	e.mu.Unlock()

	switch status {
	case ports.StatusSubscribed:
		e.logger.Info("Joined project channel")
		go e.reconcileName(ctx)
	case ports.StatusChannelError, ports.StatusTimedOut:
		e.logger.Warn("Project channel unavailable", zap.String("status", string(status)), zap.Error(err))
	default:
		e.logger.Debug("Project channel status", zap.String("status", string(status)))
	}
}

// reconcileName reads the stored name once, so a rename made while this
// session was not subscribed is not lost.
func (e *Engine) reconcileName(ctx context.Context) {
	if e.names == nil {
		return
	}
	e.mu.Lock()
	projectID, applier := e.projectID, e.applier
	e.mu.Unlock()

	name, err := e.names.GetName(ctx, projectID)
	if err != nil {
		e.logger.Debug("Project name not reconciled", zap.Error(err))
		return
	}
	if name == "" || ctx.Err() != nil {
		return
	}
	applier.ReconcileName(name)
}

// Broadcast sends one change to peers. It is never throttled.
func (e *Engine) Broadcast(ctx context.Context, evt events.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		e.logger.Error("Failed to encode change", zap.String("type", string(evt.Type)), zap.Error(err))
		return
	}
	e.send(ctx, ports.Envelope{Event: EventAppChange, Payload: payload}, string(evt.Type))
}

// BroadcastNodeMove sends a node-update for a node being dragged. Calls
// within the throttle window of the previous send are discarded.
func (e *Engine) BroadcastNodeMove(ctx context.Context, n entities.Node) bool {
	if !e.dragLim.AllowN(e.opts.Clock(), 1) {
		e.metrics.BroadcastThrottled(string(events.TypeNodeUpdate))
		return false
	}
	e.Broadcast(ctx, events.NodeUpdated(n))
	return true
}

// BroadcastCursor sends this session's pointer position in world space,
// subject to the same throttle as node moves.
func (e *Engine) BroadcastCursor(ctx context.Context, pos valueobjects.Position) bool {
	if !e.cursorLim.AllowN(e.opts.Clock(), 1) {
		e.metrics.BroadcastThrottled(EventCursorMove)
		return false
	}
	c := entities.Cursor{
		ID:    e.identity.InstanceID,
		X:     pos.X,
		Y:     pos.Y,
		Color: e.identity.Color,
		Name:  e.identity.Name,
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return false
	}
	e.send(ctx, ports.Envelope{Event: EventCursorMove, Payload: payload}, EventCursorMove)
	return true
}

func (e *Engine) send(ctx context.Context, env ports.Envelope, label string) {
	e.mu.Lock()
	sub, closed := e.sub, e.closed
	e.mu.Unlock()
	if sub == nil || closed {
		return
	}
	if err := sub.Send(ctx, env); err != nil {
		e.logger.Debug("Broadcast not sent", zap.String("event", label), zap.Error(err))
		return
	}
	e.metrics.BroadcastSent(label)
}

func (e *Engine) receive(env ports.Envelope) {
	e.mu.Lock()
	closed, applier := e.closed, e.applier
	e.mu.Unlock()
	if closed {
		return
	}

	switch env.Event {
	case EventCursorMove:
		e.receiveCursor(env.Payload)
	case EventAppChange:
		e.receiveChange(applier, env.Payload)
	default:
		e.logger.Debug("Ignoring unknown channel event", zap.String("event", env.Event))
	}
}

func (e *Engine) receiveCursor(payload json.RawMessage) {
	var c entities.Cursor
	if err := json.Unmarshal(payload, &c); err != nil {
		e.drop("malformed", err)
		return
	}
	if err := e.validate.Struct(c); err != nil {
		e.drop("invalid", err)
		return
	}
	if c.ID == e.identity.InstanceID {
		return
	}

	now := e.opts.Clock()
	e.mu.Lock()
	e.cursors[c.ID] = entities.RemoteCursor{Cursor: c, LastSeen: now}
	e.pruneLocked(now)
	e.mu.Unlock()
}

func (e *Engine) receiveChange(applier Applier, payload json.RawMessage) {
	var evt events.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		e.drop("malformed", err)
		return
	}
	if err := e.validateEvent(evt); err != nil {
		e.drop("invalid", err)
		return
	}

	e.mu.Lock()
	e.pruneLocked(e.opts.Clock())
	e.mu.Unlock()

	res := applier.ApplyRemote(evt)
	switch {
	case res.Changed:
		e.metrics.RemoteEventApplied(string(evt.Type))
	case res.Dropped != aggregates.DropNone:
		e.metrics.RemoteEventDropped(string(res.Dropped))
		e.logger.Debug("Remote change dropped",
			zap.String("type", string(evt.Type)),
			zap.String("subject", evt.Subject()),
			zap.String("reason", string(res.Dropped)))
	}
}

func (e *Engine) validateEvent(evt events.Event) error {
	switch evt.Type {
	case events.TypeNodeCreate, events.TypeNodeUpdate:
		return e.validate.Struct(evt.Node)
	case events.TypeEdgeCreate:
		return e.validate.Struct(evt.Edge)
	case events.TypeNodeDelete, events.TypeEdgeDelete:
		return e.validate.Var(evt.ID, "required")
	case events.TypeProjectRename:
		return nil
	default:
		return fmt.Errorf("event %s is not a change", evt.Type)
	}
}

func (e *Engine) drop(reason string, err error) {
	e.metrics.RemoteEventDropped(reason)
	e.logger.Debug("Discarding channel message", zap.String("reason", reason), zap.Error(err))
}

func (e *Engine) pruneLocked(now time.Time) {
	if e.opts.CursorTTL <= 0 {
		return
	}
	for id, c := range e.cursors {
		if now.Sub(c.LastSeen) > e.opts.CursorTTL {
			delete(e.cursors, id)
		}
	}
}

// Cursors returns the live remote cursors ordered by id
func (e *Engine) Cursors() []entities.RemoteCursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneLocked(e.opts.Clock())

	out := make([]entities.RemoteCursor, 0, len(e.cursors))
	for _, c := range e.cursors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close leaves the channel and forgets every remote cursor. It is safe to
// call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.live = false
	sub, cancel := e.sub, e.cancel
	e.cursors = make(map[string]entities.RemoteCursor)
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		return sub.Close()
	}
	return nil
}
