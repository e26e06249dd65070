package native

import (
	"fmt"
	"strings"
)

// ChangeType identifies the kind of a native change event.
type ChangeType int

const (
	ChangeAdd ChangeType = iota + 1
	ChangeModify
	ChangeRemove
	ChangeMove
	ChangeChildrenReordered
)

var changeTypeNames = map[ChangeType]string{
	ChangeAdd:               "add",
	ChangeModify:            "modify",
	ChangeRemove:            "remove",
	ChangeMove:              "move",
	ChangeChildrenReordered: "reorder",
}

func (t ChangeType) String() string {
	if s, ok := changeTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ChangeType(%d)", int(t))
}

// ParseChangeType maps a wire name to a ChangeType.
func ParseChangeType(s string) (ChangeType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range changeTypeNames {
		if name == s {
			return t, true
		}
	}
	switch s {
	case "created":
		return ChangeAdd, true
	case "changed":
		return ChangeModify, true
	case "removed":
		return ChangeRemove, true
	case "moved":
		return ChangeMove, true
	case "childrenreordered", "reordered":
		return ChangeChildrenReordered, true
	}
	return 0, false
}

// Change is a single browser bookmark change. The set of implementations is
// closed: *AddChange, *ModifyChange, *RemoveChange, *MoveChange and
// *ReorderChange.
type Change interface {
	Type() ChangeType
	// NativeID is the id of the node the change is about. For reorders it
	// is the parent whose children were reordered.
	NativeID() string
	isChange()
}

// AddChange reports a newly created node.
type AddChange struct {
	ID   string
	Node Node
}

// ModifyChange reports changed metadata. Node carries the node's current
// state.
type ModifyChange struct {
	ID   string
	Node Node
}

// RemoveChange reports a deleted node.
type RemoveChange struct {
	ID       string
	ParentID string
	Index    int
	Node     *Node
}

// MoveChange reports a relocated node.
type MoveChange struct {
	ID          string
	ParentID    string
	Index       int
	OldParentID string
	OldIndex    int
}

// ReorderChange reports the new child order of a folder.
type ReorderChange struct {
	ParentID string
	ChildIDs []string
}

func (*AddChange) Type() ChangeType     { return ChangeAdd }
func (*ModifyChange) Type() ChangeType  { return ChangeModify }
func (*RemoveChange) Type() ChangeType  { return ChangeRemove }
func (*MoveChange) Type() ChangeType    { return ChangeMove }
func (*ReorderChange) Type() ChangeType { return ChangeChildrenReordered }

func (c *AddChange) NativeID() string     { return c.ID }
func (c *ModifyChange) NativeID() string  { return c.ID }
func (c *RemoveChange) NativeID() string  { return c.ID }
func (c *MoveChange) NativeID() string    { return c.ID }
func (c *ReorderChange) NativeID() string { return c.ParentID }

func (*AddChange) isChange()     {}
func (*ModifyChange) isChange()  {}
func (*RemoveChange) isChange()  {}
func (*MoveChange) isChange()    {}
func (*ReorderChange) isChange() {}
