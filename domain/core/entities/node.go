package entities

import (
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
)

// NodeType distinguishes what a node renders and which actions it offers
type NodeType string

const (
	NodeTypeNote      NodeType = "NOTE"
	NodeTypeGenerator NodeType = "GENERATOR"
	NodeTypeImage     NodeType = "IMAGE"
)

// DefaultColor is assigned to freshly created nodes
const DefaultColor = "slate"

// IsValid reports whether t is one of the known node types
func (t NodeType) IsValid() bool {
	switch t {
	case NodeTypeNote, NodeTypeGenerator, NodeTypeImage:
		return true
	}
	return false
}

// DefaultSize returns the initial dimensions of a node of this type
func (t NodeType) DefaultSize() valueobjects.Size {
	if t == NodeTypeImage {
		return valueobjects.Size{Width: 320, Height: 240}
	}
	return valueobjects.Size{Width: 320, Height: 200}
}

// DefaultTitle returns the initial title of a node of this type
func (t NodeType) DefaultTitle() string {
	switch t {
	case NodeTypeGenerator:
		return "AI Generator"
	case NodeTypeImage:
		return "Image"
	default:
		return "New Note"
	}
}

// NodeData is the user-editable payload of a node
type NodeData struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	IsProcessing bool   `json:"isProcessing,omitempty"`
	Result       string `json:"result,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty"`
	Color        string `json:"color,omitempty"`
}

// NodeDataPatch is a partial update of NodeData. Nil fields are left alone.
type NodeDataPatch struct {
	Title        *string `json:"title,omitempty"`
	Content      *string `json:"content,omitempty"`
	IsProcessing *bool   `json:"isProcessing,omitempty"`
	Result       *string `json:"result,omitempty"`
	ImageURL     *string `json:"imageUrl,omitempty"`
	Color        *string `json:"color,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p NodeDataPatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.IsProcessing == nil &&
		p.Result == nil && p.ImageURL == nil && p.Color == nil
}

// Merge applies a shallow merge of p over d and returns the result
func (d NodeData) Merge(p NodeDataPatch) NodeData {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.IsProcessing != nil {
		d.IsProcessing = *p.IsProcessing
	}
	if p.Result != nil {
		d.Result = *p.Result
	}
	if p.ImageURL != nil {
		d.ImageURL = *p.ImageURL
	}
	if p.Color != nil {
		d.Color = *p.Color
	}
	return d
}

// Node is a rectangle on the canvas. Nodes are values: every change
// produces a new Node that replaces the old one wholesale.
type Node struct {
	ID       string                `json:"id" validate:"required"`
	Type     NodeType              `json:"type" validate:"required,oneof=NOTE GENERATOR IMAGE"`
	Position valueobjects.Position `json:"position"`
	Data     NodeData              `json:"data"`
	Width    float64               `json:"width" validate:"gte=0"`
	Height   float64               `json:"height" validate:"gte=0"`
}

// NewNode creates a node of the given type with default size, title and colour
func NewNode(id string, t NodeType, pos valueobjects.Position) Node {
	size := t.DefaultSize()
	return Node{
		ID:       id,
		Type:     t,
		Position: pos,
		Data: NodeData{
			Title: t.DefaultTitle(),
			Color: DefaultColor,
		},
		Width:  size.Width,
		Height: size.Height,
	}
}

// Size returns the node dimensions
func (n Node) Size() valueobjects.Size {
	return valueobjects.Size{Width: n.Width, Height: n.Height}
}

// Contains reports whether the world point p lies inside the node rectangle
func (n Node) Contains(p valueobjects.Position) bool {
	return p.X >= n.Position.X && p.X <= n.Position.X+n.Width &&
		p.Y >= n.Position.Y && p.Y <= n.Position.Y+n.Height
}
