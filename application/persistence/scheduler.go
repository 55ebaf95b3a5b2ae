// Package persistence debounces graph changes into whole-project writes.
package persistence

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/application/ports"
	"github.com/Jovicsi/flowminds.ai/domain/core/aggregates"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	pkgerrors "github.com/Jovicsi/flowminds.ai/pkg/errors"
	"github.com/Jovicsi/flowminds.ai/pkg/observability"
)

// Trigger says why a save was requested.
type Trigger string

const (
	TriggerStructural Trigger = "structural"
	TriggerContent    Trigger = "content"
	TriggerIdle       Trigger = "idle"
	TriggerExplicit   Trigger = "explicit"
)

// Policy holds the debounce delay for each trigger.
type Policy struct {
	Structural  time.Duration
	ContentEdit time.Duration
	Idle        time.Duration
	// WriteTimeout bounds one autosave write.
	WriteTimeout time.Duration
}

// DefaultPolicy saves structural changes at once, content edits after one
// second of quiet, and anything else after three.
func DefaultPolicy() Policy {
	return Policy{
		Structural:   0,
		ContentEdit:  time.Second,
		Idle:         3 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Delay returns the policy delay for t
func (p Policy) Delay(t Trigger) time.Duration {
	switch t {
	case TriggerContent:
		return p.ContentEdit
	case TriggerIdle:
		return p.Idle
	default:
		return p.Structural
	}
}

// Source supplies the snapshot to write. It must not call back into the
// scheduler.
type Source interface {
	Snapshot() *aggregates.Snapshot
}

// Session is the project the scheduler writes to and who is writing.
type Session struct {
	ProjectID string
	ActorID   string
	// OwnerID is empty for a project that has never been saved.
	OwnerID string
	Role    valueobjects.Role
	// Baseline is the store revision already persisted, when the project
	// was loaded from the backend.
	Baseline  uint64
	Persisted bool
	UpdatedAt time.Time
}

// Scheduler holds at most one pending debounced save and one idle save.
type Scheduler struct {
	repo     ports.ProjectRepository
	source   Source
	policy   Policy
	logger   *zap.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	clock    func() time.Time
	listener ports.SaveListener

	mu          sync.Mutex
	session     Session
	active      bool
	closed      bool
	timer       *time.Timer
	timerGen    uint64
	timerKind   Trigger
	idleTimer   *time.Timer
	idleGen     uint64
	lastWritten uint64
	wroteOnce   bool
	lastStamp   time.Time

	writeMu sync.Mutex
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock overrides the source of updated_at stamps
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithSaveListener registers a listener for successful writes
func WithSaveListener(l ports.SaveListener) Option {
	return func(s *Scheduler) { s.listener = l }
}

// NewScheduler creates an inactive scheduler; Activate binds it to a project.
// logger is expected to already carry the project id.
func NewScheduler(repo ports.ProjectRepository, source Source, policy Policy, logger *zap.Logger, metrics *observability.Metrics, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.WriteTimeout <= 0 {
		policy.WriteTimeout = DefaultPolicy().WriteTimeout
	}
	s := &Scheduler{
		repo:    repo,
		source:  source,
		policy:  policy,
		logger:  logger,
		metrics: metrics,
		tracer:  observability.Tracer(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Activate binds the scheduler to an open project
func (s *Scheduler) Activate(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess
	s.active = sess.ProjectID != ""
	s.lastWritten = sess.Baseline
	s.wroteOnce = sess.Persisted
	s.lastStamp = sess.UpdatedAt
}

// SetPolicy replaces the debounce delays for future triggers
func (s *Scheduler) SetPolicy(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.WriteTimeout <= 0 {
		p.WriteTimeout = s.policy.WriteTimeout
	}
	s.policy = p
}

// OwnerID returns the owner that will be written with the next save
func (s *Scheduler) OwnerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.OwnerID
}

// LastSaved returns the updated_at of the last successful write
func (s *Scheduler) LastSaved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStamp
}

// Pending reports whether a debounced save is waiting
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Scheduler) canWriteLocked() bool {
	return s.active && !s.closed && s.session.Role.CanEdit()
}

// Trigger schedules a save with the policy delay for t
func (s *Scheduler) Trigger(t Trigger) {
	s.mu.Lock()
	delay := s.policy.Delay(t)
	s.mu.Unlock()
	s.schedule(t, delay)
}

// Schedule cancels any pending debounced save and starts a new one that
// fires after delay.
func (s *Scheduler) Schedule(delay time.Duration) {
	s.schedule(TriggerStructural, delay)
}

func (s *Scheduler) schedule(t Trigger, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canWriteLocked() {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerGen++
	gen := s.timerGen
	s.timerKind = t
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if gen != s.timerGen || s.closed {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		kind := s.timerKind
		s.mu.Unlock()
		s.autosave(kind)
	})
}

// NotifyChange restarts the idle fallback timer. Every local or remote
// graph or name change calls it.
func (s *Scheduler) NotifyChange() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canWriteLocked() {
		return
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleGen++
	gen := s.idleGen
	s.idleTimer = time.AfterFunc(s.policy.Idle, func() {
		s.mu.Lock()
		if gen != s.idleGen || s.closed {
			s.mu.Unlock()
			return
		}
		s.idleTimer = nil
		s.mu.Unlock()
		s.autosave(TriggerIdle)
	})
}

func (s *Scheduler) autosave(t Trigger) {
	s.mu.Lock()
	timeout := s.policy.WriteTimeout
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.write(ctx, t); err != nil {
		s.logger.Warn("Autosave failed", zap.String("trigger", string(t)), zap.Error(err))
	}
}

// SaveNow writes the current snapshot immediately. Errors come back as
// SaveFailure.
func (s *Scheduler) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
		s.timerGen++
	}
	s.mu.Unlock()
	return s.write(ctx, TriggerExplicit)
}

func (s *Scheduler) write(ctx context.Context, t Trigger) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.canWriteLocked() {
		s.mu.Unlock()
		return nil
	}
	sess := s.session
	s.mu.Unlock()

	snap := s.source.Snapshot()

	s.mu.Lock()
	stale := s.wroteOnce && snap.Revision < s.lastWritten
	unchanged := s.wroteOnce && snap.Revision == s.lastWritten && t != TriggerExplicit
	if stale || unchanged {
		s.mu.Unlock()
		s.metrics.SaveCompleted(string(t), "skipped", 0)
		s.logger.Debug("Save skipped", zap.String("trigger", string(t)), zap.Uint64("revision", snap.Revision))
		return nil
	}
	stamp := s.clock().UTC()
	if !stamp.After(s.lastStamp) {
		stamp = s.lastStamp.Add(time.Millisecond)
	}
	owner := sess.OwnerID
	if owner == "" {
		owner = sess.ActorID
	}
	s.mu.Unlock()

	project := snap.ToProject(sess.ProjectID, owner, stamp)

	ctx, span := s.tracer.Start(ctx, "persistence.Save", trace.WithAttributes(
		attribute.String("project.id", sess.ProjectID),
		attribute.String("trigger", string(t)),
		attribute.Int("nodes", len(project.Nodes)),
		attribute.Int("edges", len(project.Edges)),
	))
	defer span.End()

	start := time.Now()
	err := s.repo.Save(ctx, &project)
	took := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		s.metrics.SaveCompleted(string(t), "failed", took)
		return pkgerrors.NewSaveFailureError(sess.ProjectID, err)
	}

	s.mu.Lock()
	if snap.Revision > s.lastWritten || !s.wroteOnce {
		s.lastWritten = snap.Revision
	}
	s.wroteOnce = true
	s.lastStamp = stamp
	if s.session.OwnerID == "" {
		s.session.OwnerID = owner
	}
	s.mu.Unlock()

	s.metrics.SaveCompleted(string(t), "ok", took)
	s.logger.Debug("Project saved",
		zap.String("trigger", string(t)),
		zap.Uint64("revision", snap.Revision),
		zap.Duration("took", took))

	if s.listener != nil {
		if err := s.listener.ProjectSaved(ctx, &project); err != nil {
			s.logger.Warn("Save listener failed", zap.Error(err))
		}
	}
	return nil
}

// Close cancels both timers. Pending saves are dropped, not flushed.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	s.timerGen++
	s.idleGen++
}
