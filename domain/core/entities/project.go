package entities

import (
	"time"

	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
)

// DefaultProjectName is used when a project has never been named
const DefaultProjectName = "Untitled Project"

// Project is the persisted form of one canvas
type Project struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"user_id,omitempty"`
	Name      string    `json:"name"`
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasOwner reports whether the project has been saved at least once
func (p Project) HasOwner() bool {
	return p.OwnerID != ""
}

// ProjectSummary is a gallery row
type ProjectSummary struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	OwnerID   string            `json:"user_id"`
	UpdatedAt time.Time         `json:"updated_at"`
	NodeCount int               `json:"nodes_count"`
	Role      valueobjects.Role `json:"role"`
}

// Summary builds the gallery row for p as seen with the given role
func (p Project) Summary(role valueobjects.Role) ProjectSummary {
	name := p.Name
	if name == "" {
		name = DefaultProjectName
	}
	return ProjectSummary{
		ID:        p.ID,
		Name:      name,
		OwnerID:   p.OwnerID,
		UpdatedAt: p.UpdatedAt,
		NodeCount: len(p.Nodes),
		Role:      role,
	}
}

// Member grants a user (by id or email) a role on a project
type Member struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"workflow_id"`
	UserID    string            `json:"user_id,omitempty"`
	UserEmail string            `json:"user_email" validate:"required,email"`
	Role      valueobjects.Role `json:"role" validate:"required,oneof=owner editor viewer"`
	CreatedAt time.Time         `json:"created_at"`
}

// Matches reports whether the membership applies to the given user
func (m Member) Matches(userID, email string) bool {
	if userID != "" && m.UserID == userID {
		return true
	}
	return email != "" && m.UserEmail == email
}
