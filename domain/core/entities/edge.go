package entities

// Edge is a directed connection from Source's outbound handle to Target's
// inbound handle.
type Edge struct {
	ID     string `json:"id" validate:"required"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// IsSelfLoop reports whether the edge starts and ends on the same node
func (e Edge) IsSelfLoop() bool {
	return e.Source == e.Target
}

// Touches reports whether nodeID is either endpoint
func (e Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}

// SamePair reports whether both edges connect the same ordered pair
func (e Edge) SamePair(other Edge) bool {
	return e.Source == other.Source && e.Target == other.Target
}
