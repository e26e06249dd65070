// Package native describes the browser side of synchronization: the native
// bookmark nodes a host exposes, the Platform used to read and write them and
// the change events the host emits.
package native

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Well-known Firefox root ids.
const (
	RootID    = "root________"
	MenuID    = "menu________"
	MobileID  = "mobile______"
	OtherID   = "unfiled_____"
	ToolbarID = "toolbar_____"
)

// ErrNodeNotFound is returned when a native id does not exist.
var ErrNodeNotFound = errors.New("native bookmark not found")

// NodeType is the browser's node classification.
type NodeType string

const (
	TypeBookmark  NodeType = "bookmark"
	TypeFolder    NodeType = "folder"
	TypeSeparator NodeType = "separator"
)

// Node is a browser bookmark as reported by the host.
type Node struct {
	ID          string   `json:"id"`
	ParentID    string   `json:"parentId,omitempty"`
	Index       int      `json:"index"`
	Title       string   `json:"title,omitempty"`
	URL         string   `json:"url,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	DateAdded   int64    `json:"dateAdded,omitempty"`
	Type        NodeType `json:"type,omitempty"`
	Children    []*Node  `json:"children,omitempty"`
}

// Kind returns the node type, inferring it from shape when the host did not
// report one.
func (n *Node) Kind() NodeType {
	if n.Type != "" {
		return n.Type
	}
	if n.URL != "" {
		return TypeBookmark
	}
	if n.Title == "" && len(n.Children) == 0 {
		return TypeSeparator
	}
	return TypeFolder
}

// Child returns the direct child with the given id.
func (n *Node) Child(id string) (*Node, bool) {
	for _, c := range n.Children {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// CreateDetails describes a node to create.
type CreateDetails struct {
	ParentID string
	// Index is the insert position; negative appends.
	Index int
	Title string
	URL   string
	Type  NodeType
}

// Destination is the target of a move. A negative Index appends.
type Destination struct {
	ParentID string
	Index    int
}

// Platform is the browser bookmark API the engine reads and writes.
type Platform interface {
	// GetTree returns the whole native tree rooted at the browser root.
	GetTree(ctx context.Context) (*Node, error)

	// GetSubtree returns the node with the given id and all its
	// descendants.
	GetSubtree(ctx context.Context, id string) (*Node, error)

	// Create adds a node and returns it as stored.
	Create(ctx context.Context, details CreateDetails) (*Node, error)

	// Move relocates a node and returns it with its new position.
	Move(ctx context.Context, id string, dest Destination) (*Node, error)

	// Remove deletes a node and its subtree.
	Remove(ctx context.Context, id string) error
}
