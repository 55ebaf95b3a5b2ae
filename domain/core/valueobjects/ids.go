package valueobjects

import (
	"github.com/google/uuid"
)

// NewNodeID creates a new random node identifier
func NewNodeID() string {
	return uuid.New().String()
}

// NewEdgeID creates a new random edge identifier
func NewEdgeID() string {
	return uuid.New().String()
}

// NewProjectID creates a new random project identifier
func NewProjectID() string {
	return uuid.New().String()
}

// NewInstanceID identifies one editor session among the peers of a room.
func NewInstanceID() string {
	return uuid.New().String()
}

// IsValidUUID reports whether id parses as a UUID
func IsValidUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
