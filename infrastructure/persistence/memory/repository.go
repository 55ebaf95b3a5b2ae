// Package memory implements the project and member stores in process
// memory. It is used by tests and by the relay when no backend is configured.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	pkgerrors "github.com/Jovicsi/flowminds.ai/pkg/errors"
)

// Store holds projects, members and known user emails.
type Store struct {
	mu       sync.RWMutex
	projects map[string]entities.Project
	members  map[string]entities.Member
	users    map[string]string
	saves    []entities.Project

	writeErr error
	readErr  error
	clock    func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		projects: make(map[string]entities.Project),
		members:  make(map[string]entities.Member),
		users:    make(map[string]string),
		clock:    time.Now,
	}
}

// SetWriteError makes every following Save fail with err (nil to clear)
func (s *Store) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// SetReadError makes every following project read fail with err (nil to clear)
func (s *Store) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// RegisterUser records an account so invitations can resolve its id
func (s *Store) RegisterUser(id, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(email)] = id
}

// Saves returns a copy of every project written, oldest first
func (s *Store) Saves() []entities.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entities.Project, len(s.saves))
	copy(out, s.saves)
	return out
}

// deepCopy detaches a project from the caller's slices
func deepCopy(p entities.Project) entities.Project {
	data, _ := json.Marshal(p)
	var out entities.Project
	_ = json.Unmarshal(data, &out)
	out.UpdatedAt = p.UpdatedAt
	return out
}

// GetByID implements ports.ProjectRepository
func (s *Store) GetByID(ctx context.Context, id string) (*entities.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	p, ok := s.projects[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("project")
	}
	cp := deepCopy(p)
	return &cp, nil
}

// Save implements ports.ProjectRepository
func (s *Store) Save(ctx context.Context, project *entities.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	cp := deepCopy(*project)
	s.projects[project.ID] = cp
	s.saves = append(s.saves, cp)
	return nil
}

// GetName implements ports.ProjectRepository
func (s *Store) GetName(ctx context.Context, id string) (string, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

// ListByOwner implements ports.ProjectRepository
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]entities.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []entities.Project
	for _, p := range s.projects {
		if p.OwnerID == ownerID {
			out = append(out, deepCopy(p))
		}
	}
	sortProjects(out)
	return out, nil
}

// ListByIDs implements ports.ProjectRepository
func (s *Store) ListByIDs(ctx context.Context, ids []string) ([]entities.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []entities.Project
	for _, id := range ids {
		if p, ok := s.projects[id]; ok {
			out = append(out, deepCopy(p))
		}
	}
	sortProjects(out)
	return out, nil
}

func sortProjects(ps []entities.Project) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].UpdatedAt.After(ps[j].UpdatedAt) })
}

// FindRole implements ports.MemberRepository
func (s *Store) FindRole(ctx context.Context, projectID, userID, email string) (valueobjects.Role, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return "", false, s.readErr
	}
	for _, m := range s.members {
		if m.ProjectID == projectID && m.Matches(userID, strings.ToLower(email)) {
			return m.Role, true, nil
		}
	}
	return "", false, nil
}

// ListByProject implements ports.MemberRepository
func (s *Store) ListByProject(ctx context.Context, projectID string) ([]entities.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entities.Member
	for _, m := range s.members {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	sortMembers(out)
	return out, nil
}

// ListByUser implements ports.MemberRepository
func (s *Store) ListByUser(ctx context.Context, userID, email string) ([]entities.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entities.Member
	for _, m := range s.members {
		if m.Matches(userID, strings.ToLower(email)) {
			out = append(out, m)
		}
	}
	sortMembers(out)
	return out, nil
}

func sortMembers(ms []entities.Member) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].ID < ms[j].ID
		}
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}

// Add implements ports.MemberRepository
func (s *Store) Add(ctx context.Context, member *entities.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.ProjectID == member.ProjectID && m.UserEmail == member.UserEmail {
			return pkgerrors.NewConflictError("user already has access to this project")
		}
	}
	if member.ID == "" {
		member.ID = uuid.New().String()
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = s.clock().UTC()
	}
	s.members[member.ID] = *member
	return nil
}

// UpdateRole implements ports.MemberRepository
func (s *Store) UpdateRole(ctx context.Context, projectID, memberID string, role valueobjects.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberID]
	if !ok || m.ProjectID != projectID {
		return pkgerrors.NewNotFoundError("member")
	}
	m.Role = role
	s.members[memberID] = m
	return nil
}

// Remove implements ports.MemberRepository
func (s *Store) Remove(ctx context.Context, projectID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberID]
	if !ok || m.ProjectID != projectID {
		return pkgerrors.NewNotFoundError("member")
	}
	delete(s.members, memberID)
	return nil
}

// FindUserIDByEmail implements ports.UserDirectory
func (s *Store) FindUserIDByEmail(ctx context.Context, email string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.users[strings.ToLower(email)]
	return id, ok, nil
}
