package session

import "strings"

// User is the authenticated account opening a project.
type User struct {
	ID          string `json:"id" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	DisplayName string `json:"display_name,omitempty"`
	FullName    string `json:"full_name,omitempty"`
}

// NormalizedEmail is the lower-cased email used for membership matching
func (u User) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(u.Email))
}

// Name is the label shown to peers next to the user's cursor. It prefers
// the display name, then the full name, then the local part of the email.
func (u User) Name() string {
	if n := strings.TrimSpace(u.DisplayName); n != "" {
		return n
	}
	if n := strings.TrimSpace(u.FullName); n != "" {
		return n
	}
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	return "User"
}
