// Package supabase stores projects and memberships in the Supabase
// workflows and project_members tables through PostgREST.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	pkgerrors "github.com/Jovicsi/flowminds.ai/pkg/errors"
)

// Table names
const (
	WorkflowsTable = "workflows"
	MembersTable   = "project_members"
	ProfilesTable  = "profiles"
)

// Querier builds PostgREST queries. Both *supabase.Client and
// *postgrest.Client satisfy it.
type Querier interface {
	From(table string) *postgrest.QueryBuilder
}

// Repository implements the project, member and user ports.
type Repository struct {
	db     Querier
	logger *zap.Logger
}

// NewClient connects to a Supabase project
func NewClient(url, key string) (*supabase.Client, error) {
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return client, nil
}

// NewRepository creates a repository over db
func NewRepository(db Querier, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, logger: logger}
}

type workflowRow struct {
	ID        string          `json:"id"`
	UserID    *string         `json:"user_id"`
	Name      *string         `json:"name"`
	Nodes     []entities.Node `json:"nodes"`
	Edges     []entities.Edge `json:"edges"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (r workflowRow) toProject() entities.Project {
	p := entities.Project{
		ID:        r.ID,
		Nodes:     r.Nodes,
		Edges:     r.Edges,
		UpdatedAt: r.UpdatedAt,
	}
	if r.UserID != nil {
		p.OwnerID = *r.UserID
	}
	if r.Name != nil {
		p.Name = *r.Name
	}
	if p.Nodes == nil {
		p.Nodes = []entities.Node{}
	}
	if p.Edges == nil {
		p.Edges = []entities.Edge{}
	}
	return p
}

func (r *Repository) selectWorkflows(ctx context.Context, build func(*postgrest.FilterBuilder) *postgrest.FilterBuilder) ([]entities.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []workflowRow
	q := build(r.db.From(WorkflowsTable).Select("*", "", false))
	if _, err := q.ExecuteTo(&rows); err != nil {
		return nil, pkgerrors.NewDatabaseError("select workflows", err)
	}
	out := make([]entities.Project, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toProject())
	}
	return out, nil
}

// GetByID implements ports.ProjectRepository
func (r *Repository) GetByID(ctx context.Context, id string) (*entities.Project, error) {
	projects, err := r.selectWorkflows(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return q.Eq("id", id).Limit(1, "")
	})
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, pkgerrors.NewNotFoundError("project")
	}
	return &projects[0], nil
}

// GetName implements ports.ProjectRepository
func (r *Repository) GetName(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var rows []struct {
		Name *string `json:"name"`
	}
	if _, err := r.db.From(WorkflowsTable).Select("name", "", false).Eq("id", id).Limit(1, "").ExecuteTo(&rows); err != nil {
		return "", pkgerrors.NewDatabaseError("select workflow name", err)
	}
	if len(rows) == 0 {
		return "", pkgerrors.NewNotFoundError("project")
	}
	if rows[0].Name == nil {
		return "", nil
	}
	return *rows[0].Name, nil
}

// Save upserts the whole project. Older schemas without a name column are
// retried without it.
func (r *Repository) Save(ctx context.Context, project *entities.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := map[string]interface{}{
		"id":         project.ID,
		"user_id":    project.OwnerID,
		"name":       project.Name,
		"nodes":      nonNilNodes(project.Nodes),
		"edges":      nonNilEdges(project.Edges),
		"updated_at": project.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	_, _, err := r.db.From(WorkflowsTable).Upsert(row, "id", "minimal", "").Execute()
	if err != nil && isMissingNameColumn(err) {
		r.logger.Warn("workflows table has no name column, saving without it", zap.String("projectID", project.ID))
		delete(row, "name")
		_, _, err = r.db.From(WorkflowsTable).Upsert(row, "id", "minimal", "").Execute()
	}
	if err != nil {
		return pkgerrors.NewDatabaseError("upsert workflow", err)
	}
	return nil
}

func isMissingNameColumn(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, `column "name"`) && strings.Contains(msg, "does not exist")
}

func nonNilNodes(n []entities.Node) []entities.Node {
	if n == nil {
		return []entities.Node{}
	}
	return n
}

func nonNilEdges(e []entities.Edge) []entities.Edge {
	if e == nil {
		return []entities.Edge{}
	}
	return e
}

// ListByOwner implements ports.ProjectRepository
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]entities.Project, error) {
	return r.selectWorkflows(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return q.Eq("user_id", ownerID).Order("updated_at", &postgrest.OrderOpts{Ascending: false})
	})
}

// ListByIDs implements ports.ProjectRepository
func (r *Repository) ListByIDs(ctx context.Context, ids []string) ([]entities.Project, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.selectWorkflows(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return q.In("id", ids).Order("updated_at", &postgrest.OrderOpts{Ascending: false})
	})
}

// userFilter matches a membership by account id or email
func userFilter(userID, email string) string {
	var parts []string
	if userID != "" {
		parts = append(parts, "user_id.eq."+userID)
	}
	if email != "" {
		parts = append(parts, "user_email.eq."+strings.ToLower(email))
	}
	return strings.Join(parts, ",")
}

// FindRole implements ports.MemberRepository
func (r *Repository) FindRole(ctx context.Context, projectID, userID, email string) (valueobjects.Role, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	filter := userFilter(userID, email)
	if filter == "" {
		return "", false, nil
	}
	var rows []struct {
		Role string `json:"role"`
	}
	_, err := r.db.From(MembersTable).Select("role", "", false).
		Eq("workflow_id", projectID).
		Or(filter, "").
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return "", false, pkgerrors.NewDatabaseError("select member role", err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	role, err := valueobjects.ParseRole(rows[0].Role)
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

func (r *Repository) selectMembers(ctx context.Context, build func(*postgrest.FilterBuilder) *postgrest.FilterBuilder) ([]entities.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var members []entities.Member
	q := build(r.db.From(MembersTable).Select("*", "", false))
	if _, err := q.Order("created_at", &postgrest.OrderOpts{Ascending: true}).ExecuteTo(&members); err != nil {
		return nil, pkgerrors.NewDatabaseError("select members", err)
	}
	return members, nil
}

// ListByProject implements ports.MemberRepository
func (r *Repository) ListByProject(ctx context.Context, projectID string) ([]entities.Member, error) {
	return r.selectMembers(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return q.Eq("workflow_id", projectID)
	})
}

// ListByUser implements ports.MemberRepository
func (r *Repository) ListByUser(ctx context.Context, userID, email string) ([]entities.Member, error) {
	filter := userFilter(userID, email)
	if filter == "" {
		return nil, nil
	}
	return r.selectMembers(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return q.Or(filter, "")
	})
}

// Add implements ports.MemberRepository
func (r *Repository) Add(ctx context.Context, member *entities.Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := map[string]interface{}{
		"workflow_id": member.ProjectID,
		"user_email":  member.UserEmail,
		"role":        member.Role,
	}
	if member.UserID != "" {
		row["user_id"] = member.UserID
	}

	var created []entities.Member
	_, err := r.db.From(MembersTable).Insert(row, false, "", "representation", "").ExecuteTo(&created)
	if err != nil {
		if strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "duplicate key") {
			return pkgerrors.NewConflictError("user already has access to this project")
		}
		return pkgerrors.NewDatabaseError("insert member", err)
	}
	if len(created) > 0 {
		member.ID = created[0].ID
		member.CreatedAt = created[0].CreatedAt
	}
	return nil
}

// UpdateRole implements ports.MemberRepository
func (r *Repository) UpdateRole(ctx context.Context, projectID, memberID string, role valueobjects.Role) error {
	return r.mutateMember(ctx, "update member role", projectID, memberID, func(q *postgrest.QueryBuilder) *postgrest.FilterBuilder {
		return q.Update(map[string]interface{}{"role": role}, "representation", "")
	})
}

// Remove implements ports.MemberRepository
func (r *Repository) Remove(ctx context.Context, projectID, memberID string) error {
	return r.mutateMember(ctx, "delete member", projectID, memberID, func(q *postgrest.QueryBuilder) *postgrest.FilterBuilder {
		return q.Delete("representation", "")
	})
}

func (r *Repository) mutateMember(ctx context.Context, op, projectID, memberID string, build func(*postgrest.QueryBuilder) *postgrest.FilterBuilder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, _, err := build(r.db.From(MembersTable)).
		Eq("id", memberID).
		Eq("workflow_id", projectID).
		Execute()
	if err != nil {
		return pkgerrors.NewDatabaseError(op, err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err == nil && len(rows) == 0 {
		return pkgerrors.NewNotFoundError("member")
	}
	return nil
}

// FindUserIDByEmail implements ports.UserDirectory using the profiles table
func (r *Repository) FindUserIDByEmail(ctx context.Context, email string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var rows []struct {
		ID string `json:"id"`
	}
	_, err := r.db.From(ProfilesTable).Select("id", "", false).
		Eq("email", strings.ToLower(email)).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return "", false, pkgerrors.NewDatabaseError("select profile", err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].ID, true, nil
}
