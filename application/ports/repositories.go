package ports

import (
	"context"

	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
)

// ProjectRepository defines persistence for whole-project documents.
// Writes are full-snapshot upserts keyed by project id.
type ProjectRepository interface {
	// GetByID returns the project or a NotFound error
	GetByID(ctx context.Context, id string) (*entities.Project, error)

	// Save inserts or replaces the project
	Save(ctx context.Context, project *entities.Project) error

	// GetName reads only the authoritative project name
	GetName(ctx context.Context, id string) (string, error)

	// ListByOwner returns the projects owned by a user
	ListByOwner(ctx context.Context, ownerID string) ([]entities.Project, error)

	// ListByIDs returns the projects with the given ids; missing ids are skipped
	ListByIDs(ctx context.Context, ids []string) ([]entities.Project, error)
}

// MemberRepository defines persistence for project sharing.
type MemberRepository interface {
	// FindRole returns the role granted to a user on a project, matching by
	// user id or email. found is false when there is no membership.
	FindRole(ctx context.Context, projectID, userID, email string) (role valueobjects.Role, found bool, err error)

	// ListByProject returns every member of a project
	ListByProject(ctx context.Context, projectID string) ([]entities.Member, error)

	// ListByUser returns every membership held by a user id or email
	ListByUser(ctx context.Context, userID, email string) ([]entities.Member, error)

	// Add inserts a membership. A duplicate (project, email) is a Conflict error.
	Add(ctx context.Context, member *entities.Member) error

	// UpdateRole changes a member's role
	UpdateRole(ctx context.Context, projectID, memberID string, role valueobjects.Role) error

	// Remove deletes a membership
	Remove(ctx context.Context, projectID, memberID string) error
}

// UserDirectory resolves account ids from emails, for invitations.
type UserDirectory interface {
	// FindUserIDByEmail returns the account id, or found=false when no
	// account uses that email yet.
	FindUserIDByEmail(ctx context.Context, email string) (id string, found bool, err error)
}

// SaveListener is notified after every successful project write.
type SaveListener interface {
	ProjectSaved(ctx context.Context, project *entities.Project) error
}
