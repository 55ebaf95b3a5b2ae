// Package resilient wraps the storage ports in circuit breakers so a failing
// backend is given time to recover instead of absorbing every autosave.
package resilient

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/application/ports"
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	pkgerrors "github.com/Jovicsi/flowminds.ai/pkg/errors"
	"github.com/Jovicsi/flowminds.ai/pkg/observability"
)

// Settings configures a breaker
type Settings struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultSettings returns the breaker settings used when none are configured
func DefaultSettings(name string) Settings {
	return Settings{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// countsAsFailure reports whether err says something about backend health.
// Not-found, conflict and validation answers mean the backend is up.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch {
	case pkgerrors.IsNotFound(err),
		pkgerrors.IsValidation(err),
		pkgerrors.IsType(err, pkgerrors.ErrorTypeConflict),
		pkgerrors.IsForbidden(err):
		return false
	}
	return true
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func newBreaker(s Settings, logger *zap.Logger, metrics *observability.Metrics) *gobreaker.CircuitBreaker {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.SetBreakerState(name, stateValue(to))
		},
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
	})
}

// run executes fn through cb and maps the breaker's own refusals to an
// Unavailable error.
func run[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, pkgerrors.NewUnavailableError(cb.Name()).WithCause(err)
	}
	if out == nil {
		var zero T
		return zero, err
	}
	return out.(T), err
}

func exec(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := run(cb, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// ProjectRepository guards a ports.ProjectRepository
type ProjectRepository struct {
	next ports.ProjectRepository
	cb   *gobreaker.CircuitBreaker
}

// NewProjectRepository wraps next in a breaker
func NewProjectRepository(next ports.ProjectRepository, s Settings, logger *zap.Logger, metrics *observability.Metrics) *ProjectRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectRepository{next: next, cb: newBreaker(s, logger, metrics)}
}

// State returns the breaker state
func (r *ProjectRepository) State() gobreaker.State { return r.cb.State() }

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*entities.Project, error) {
	return run(r.cb, func() (*entities.Project, error) { return r.next.GetByID(ctx, id) })
}

func (r *ProjectRepository) Save(ctx context.Context, project *entities.Project) error {
	return exec(r.cb, func() error { return r.next.Save(ctx, project) })
}

func (r *ProjectRepository) GetName(ctx context.Context, id string) (string, error) {
	return run(r.cb, func() (string, error) { return r.next.GetName(ctx, id) })
}

func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID string) ([]entities.Project, error) {
	return run(r.cb, func() ([]entities.Project, error) { return r.next.ListByOwner(ctx, ownerID) })
}

func (r *ProjectRepository) ListByIDs(ctx context.Context, ids []string) ([]entities.Project, error) {
	return run(r.cb, func() ([]entities.Project, error) { return r.next.ListByIDs(ctx, ids) })
}

// MemberRepository guards a ports.MemberRepository
type MemberRepository struct {
	next ports.MemberRepository
	cb   *gobreaker.CircuitBreaker
}

// NewMemberRepository wraps next in a breaker
func NewMemberRepository(next ports.MemberRepository, s Settings, logger *zap.Logger, metrics *observability.Metrics) *MemberRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemberRepository{next: next, cb: newBreaker(s, logger, metrics)}
}

type roleResult struct {
	role  valueobjects.Role
	found bool
}

func (r *MemberRepository) FindRole(ctx context.Context, projectID, userID, email string) (valueobjects.Role, bool, error) {
	res, err := run(r.cb, func() (roleResult, error) {
		role, found, err := r.next.FindRole(ctx, projectID, userID, email)
		return roleResult{role, found}, err
	})
	return res.role, res.found, err
}

func (r *MemberRepository) ListByProject(ctx context.Context, projectID string) ([]entities.Member, error) {
	return run(r.cb, func() ([]entities.Member, error) { return r.next.ListByProject(ctx, projectID) })
}

func (r *MemberRepository) ListByUser(ctx context.Context, userID, email string) ([]entities.Member, error) {
	return run(r.cb, func() ([]entities.Member, error) { return r.next.ListByUser(ctx, userID, email) })
}

func (r *MemberRepository) Add(ctx context.Context, member *entities.Member) error {
	return exec(r.cb, func() error { return r.next.Add(ctx, member) })
}

func (r *MemberRepository) UpdateRole(ctx context.Context, projectID, memberID string, role valueobjects.Role) error {
	return exec(r.cb, func() error { return r.next.UpdateRole(ctx, projectID, memberID, role) })
}

func (r *MemberRepository) Remove(ctx context.Context, projectID, memberID string) error {
	return exec(r.cb, func() error { return r.next.Remove(ctx, projectID, memberID) })
}

var (
	_ ports.ProjectRepository = (*ProjectRepository)(nil)
	_ ports.MemberRepository  = (*MemberRepository)(nil)
)
