package session

import (
	"net/url"

	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	pkgerrors "github.com/Jovicsi/flowminds.ai/pkg/errors"
)

// RoomParam is the query parameter carrying the project id in a share link
const RoomParam = "room"

// ShareLink returns base with the room parameter set to projectID. Other
// query parameters on base are kept.
func ShareLink(base, projectID string) (string, error) {
	if projectID == "" {
		return "", pkgerrors.NewValidationError("project id is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", pkgerrors.NewValidationError("invalid base url").WithCause(err)
	}
	q := u.Query()
	q.Set(RoomParam, projectID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ProjectIDFromURL reads the room parameter back. ok is false when the
// link carries none.
func ProjectIDFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	id := u.Query().Get(RoomParam)
	return id, id != ""
}

// NewProjectID allocates the id for a brand-new, not yet saved project
func NewProjectID() string {
	return valueobjects.NewProjectID()
}
