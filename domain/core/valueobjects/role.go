package valueobjects

import (
	"strings"

	pkgerrors "github.com/Jovicsi/flowminds.ai/pkg/errors"
)

// Role is a user's access level on a project.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ParseRole converts a stored role string into a Role
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOwner, RoleEditor, RoleViewer:
		return r, nil
	default:
		return "", pkgerrors.NewValidationError("unknown role: " + s)
	}
}

// CanEdit reports whether the role may mutate the graph and trigger saves.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// CanManageMembers reports whether the role may invite, re-role and remove members.
func (r Role) CanManageMembers() bool {
	return r == RoleOwner
}

// IsReadOnly is the inverse of CanEdit
func (r Role) IsReadOnly() bool {
	return !r.CanEdit()
}

func (r Role) String() string {
	return string(r)
}
