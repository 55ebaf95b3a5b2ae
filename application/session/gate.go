// Package session decides who may open a project and with which role, and
// manages project membership.
package session

import (
	"context"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/application/ports"
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	pkgerrors "github.com/Jovicsi/flowminds.ai/pkg/errors"
)

// Opened is the result of a successful Open.
type Opened struct {
	Project entities.Project
	Role    valueobjects.Role
	// Exists is false for a project id that has never been saved. Such a
	// project starts empty and the opener becomes its owner on first save.
	Exists bool
}

// Gate resolves access to projects.
type Gate struct {
	projects ports.ProjectRepository
	members  ports.MemberRepository
	users    ports.UserDirectory
	validate *validator.Validate
	logger   *zap.Logger
}

// NewGate creates a new access gate
func NewGate(
	projects ports.ProjectRepository,
	members ports.MemberRepository,
	users ports.UserDirectory,
	logger *zap.Logger,
) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		projects: projects,
		members:  members,
		users:    users,
		validate: validator.New(),
		logger:   logger,
	}
}

// Open loads a project and resolves the user's role on it.
func (g *Gate) Open(ctx context.Context, projectID string, user User) (*Opened, error) {
	if projectID == "" {
		return nil, pkgerrors.NewValidationError("project id is required")
	}
	if err := g.validate.Struct(user); err != nil {
		return nil, pkgerrors.NewUnauthorizedError("invalid user").WithCause(err)
	}

	project, err := g.projects.GetByID(ctx, projectID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			g.logger.Debug("Opening new project", zap.String("projectID", projectID))
			return &Opened{
				Project: entities.Project{ID: projectID, Name: entities.DefaultProjectName},
				Role:    valueobjects.RoleOwner,
			}, nil
		}
		return nil, pkgerrors.NewLoadFailureError(projectID, err)
	}

	role, err := g.resolveRole(ctx, project, user)
	if err != nil {
		return nil, err
	}
	if project.Name == "" {
		project.Name = entities.DefaultProjectName
	}
	return &Opened{Project: *project, Role: role, Exists: true}, nil
}

// Authorize returns the user's role without keeping the loaded graph.
// The relay calls it before admitting a socket to a room.
func (g *Gate) Authorize(ctx context.Context, projectID string, user User) (valueobjects.Role, error) {
	opened, err := g.Open(ctx, projectID, user)
	if err != nil {
		return "", err
	}
	return opened.Role, nil
}

func (g *Gate) resolveRole(ctx context.Context, project *entities.Project, user User) (valueobjects.Role, error) {
	if !project.HasOwner() || project.OwnerID == user.ID {
		return valueobjects.RoleOwner, nil
	}
	role, found, err := g.members.FindRole(ctx, project.ID, user.ID, user.NormalizedEmail())
	if err != nil {
		return "", pkgerrors.NewLoadFailureError(project.ID, err)
	}
	if !found {
		g.logger.Info("Access denied",
			zap.String("projectID", project.ID),
			zap.String("userID", user.ID))
		return "", pkgerrors.NewAccessDeniedError(project.ID)
	}
	return role, nil
}

// ListProjects returns the projects the user owns or is a member of,
// newest first. A non-empty query keeps only names containing it, ignoring
// case. Failing to read shared projects only hides them.
func (g *Gate) ListProjects(ctx context.Context, user User, query string) ([]entities.ProjectSummary, error) {
	owned, err := g.projects.ListByOwner(ctx, user.ID)
	if err != nil {
		return nil, pkgerrors.NewLoadFailureError("*", err)
	}

	seen := make(map[string]bool, len(owned))
	out := make([]entities.ProjectSummary, 0, len(owned))
	for _, p := range owned {
		seen[p.ID] = true
		out = append(out, p.Summary(valueobjects.RoleOwner))
	}

	memberships, err := g.members.ListByUser(ctx, user.ID, user.NormalizedEmail())
	if err != nil {
		g.logger.Warn("Failed to list shared projects", zap.String("userID", user.ID), zap.Error(err))
		memberships = nil
	}
	roles := make(map[string]valueobjects.Role, len(memberships))
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		if seen[m.ProjectID] {
			continue
		}
		if _, dup := roles[m.ProjectID]; !dup {
			ids = append(ids, m.ProjectID)
		}
		roles[m.ProjectID] = m.Role
	}
	if len(ids) > 0 {
		shared, err := g.projects.ListByIDs(ctx, ids)
		if err != nil {
			g.logger.Warn("Failed to load shared projects", zap.Error(err))
		}
		for _, p := range shared {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p.Summary(roles[p.ID]))
		}
	}

	if q := strings.ToLower(strings.TrimSpace(query)); q != "" {
		filtered := out[:0]
		for _, s := range out {
			if strings.Contains(strings.ToLower(s.Name), q) {
				filtered = append(filtered, s)
			}
		}
		out = filtered
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (g *Gate) requireOwner(ctx context.Context, projectID string, user User) error {
	role, err := g.Authorize(ctx, projectID, user)
	if err != nil {
		return err
	}
	if !role.CanManageMembers() {
		return pkgerrors.NewForbiddenError("only the owner can manage members")
	}
	return nil
}

// ListMembers returns the members of a project. Any user with access may
// read the list.
func (g *Gate) ListMembers(ctx context.Context, projectID string, user User) ([]entities.Member, error) {
	if _, err := g.Authorize(ctx, projectID, user); err != nil {
		return nil, err
	}
	return g.members.ListByProject(ctx, projectID)
}

// Invite adds email to the project as a viewer. The account id is filled
// in when one already exists for that email.
func (g *Gate) Invite(ctx context.Context, projectID string, owner User, email string) (*entities.Member, error) {
	if err := g.requireOwner(ctx, projectID, owner); err != nil {
		return nil, err
	}

	member := &entities.Member{
		ProjectID: projectID,
		UserEmail: strings.ToLower(strings.TrimSpace(email)),
		Role:      valueobjects.RoleViewer,
	}
	if err := g.validate.Struct(member); err != nil {
		return nil, pkgerrors.NewValidationError("invalid invitation").WithCause(err)
	}
	if member.UserEmail == owner.NormalizedEmail() {
		return nil, pkgerrors.NewConflictError("the owner already has access")
	}

	if g.users != nil {
		id, found, err := g.users.FindUserIDByEmail(ctx, member.UserEmail)
		if err != nil {
			g.logger.Warn("User lookup failed", zap.String("email", member.UserEmail), zap.Error(err))
		} else if found {
			member.UserID = id
		}
	}

	if err := g.members.Add(ctx, member); err != nil {
		return nil, err
	}
	g.logger.Info("Member invited",
		zap.String("projectID", projectID),
		zap.String("email", member.UserEmail))
	return member, nil
}

// ChangeRole sets a member's role. Members can be editors or viewers.
func (g *Gate) ChangeRole(ctx context.Context, projectID string, owner User, memberID string, role valueobjects.Role) error {
	if err := g.requireOwner(ctx, projectID, owner); err != nil {
		return err
	}
	if role != valueobjects.RoleEditor && role != valueobjects.RoleViewer {
		return pkgerrors.NewValidationError("members can only be editors or viewers")
	}
	return g.members.UpdateRole(ctx, projectID, memberID, role)
}

// RemoveMember revokes a membership
func (g *Gate) RemoveMember(ctx context.Context, projectID string, owner User, memberID string) error {
	if err := g.requireOwner(ctx, projectID, owner); err != nil {
		return err
	}
	return g.members.Remove(ctx, projectID, memberID)
}
