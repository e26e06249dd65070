package bookmark

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrBookmarkNotFound is returned when an id does not exist in the tree.
	ErrBookmarkNotFound = errors.New("bookmark not found")

	// ErrDuplicateID is returned when a node is inserted with an id already
	// present in the tree.
	ErrDuplicateID = errors.New("duplicate bookmark id")

	// ErrInvalidMove is returned when a node would be moved into its own
	// subtree.
	ErrInvalidMove = errors.New("cannot move bookmark into its own subtree")
)

// RootID is the parent id of top-level nodes.
const RootID = 0

// Node is one entry in the tree arena. Children holds ids in display order.
type Node struct {
	ID          int
	ParentID    int
	Title       string
	URL         string
	Description string
	Tags        []string
	DateAdded   int64
	Children    []int
}

// Kind derives the node kind from its shape.
func (n *Node) Kind() Kind {
	return kindOf(n.Title, n.URL, len(n.Children))
}

// IsContainer reports whether n is a top-level reserved container.
func (n *Node) IsContainer() bool {
	return n.ParentID == RootID && n.Kind() == KindContainer
}

// Metadata is the user visible part of a node.
type Metadata struct {
	Title       string
	URL         string
	Description string
	Tags        []string
}

// Tree is the synced bookmark tree stored as an arena keyed by id. Lookups
// are O(1); mutation methods keep parent and child links consistent.
// A Tree is not safe for concurrent use.
type Tree struct {
	nodes map[int]*Node
	roots []int
	maxID int
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{nodes: make(map[int]*Node)}
}

// FromBookmarks builds a tree from nested bookmarks. Nodes with id zero get
// fresh ids above the highest id present.
func FromBookmarks(bs []Bookmark) (*Tree, error) {
	t := NewTree()
	Walk(bs, func(b *Bookmark, _ int) bool {
		if b.ID > t.maxID {
			t.maxID = b.ID
		}
		return true
	})
	for i, b := range bs {
		if err := t.insertBookmark(RootID, i, b); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tree) insertBookmark(parentID, index int, b Bookmark) error {
	n, err := t.Insert(parentID, index, Node{
		ID:          b.ID,
		Title:       b.Title,
		URL:         b.URL,
		Description: b.Description,
		Tags:        append([]string(nil), b.Tags...),
		DateAdded:   b.DateAdded,
	})
	if err != nil {
		return err
	}
	for i, child := range b.Children {
		if err := t.insertBookmark(n.ID, i, child); err != nil {
			return err
		}
	}
	return nil
}

// InsertBookmark inserts b and its whole subtree under parentID at index.
// It returns the id assigned to b.
func (t *Tree) InsertBookmark(parentID, index int, b Bookmark) (int, error) {
	if b.ID == 0 {
		b.ID = t.NextID()
	}
	if err := t.insertBookmark(parentID, index, b); err != nil {
		return 0, err
	}
	return b.ID, nil
}

// Bookmarks converts the tree back into nested bookmarks.
func (t *Tree) Bookmarks() []Bookmark {
	out := make([]Bookmark, 0, len(t.roots))
	for _, id := range t.roots {
		out = append(out, t.toBookmark(id))
	}
	return out
}

func (t *Tree) toBookmark(id int) Bookmark {
	n := t.nodes[id]
	b := Bookmark{
		ID:          n.ID,
		Title:       n.Title,
		URL:         n.URL,
		Description: n.Description,
		Tags:        append([]string(nil), n.Tags...),
		DateAdded:   n.DateAdded,
	}
	if len(b.Tags) == 0 {
		b.Tags = nil
	}
	for _, c := range n.Children {
		b.Children = append(b.Children, t.toBookmark(c))
	}
	return b
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		nodes: make(map[int]*Node, len(t.nodes)),
		roots: append([]int(nil), t.roots...),
		maxID: t.maxID,
	}
	for id, n := range t.nodes {
		cp := *n
		cp.Tags = append([]string(nil), n.Tags...)
		cp.Children = append([]int(nil), n.Children...)
		c.nodes[id] = &cp
	}
	return c
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// Roots returns the ids of the top-level nodes.
func (t *Tree) Roots() []int { return append([]int(nil), t.roots...) }

// Get returns the node with the given id.
func (t *Tree) Get(id int) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// NextID reserves and returns a fresh id one above the current maximum.
func (t *Tree) NextID() int {
	t.maxID++
	return t.maxID
}

// MaxID returns the highest id ever seen by the tree.
func (t *Tree) MaxID() int { return t.maxID }

// Container returns the top-level container node for c.
func (t *Tree) Container(c Container) (*Node, bool) {
	for _, id := range t.roots {
		n := t.nodes[id]
		if n.Title == string(c) && n.URL == "" {
			return n, true
		}
	}
	return nil, false
}

// EnsureContainer returns the container node for c, appending an empty one
// at the top level when it does not exist yet.
func (t *Tree) EnsureContainer(c Container) *Node {
	if n, ok := t.Container(c); ok {
		return n
	}
	n, _ := t.Insert(RootID, len(t.roots), Node{Title: string(c)})
	return n
}

// ContainerOf returns the container that holds id. A container holds itself.
func (t *Tree) ContainerOf(id int) (Container, bool) {
	n, ok := t.nodes[id]
	for ok && n.ParentID != RootID {
		n, ok = t.nodes[n.ParentID]
	}
	if !ok {
		return "", false
	}
	return ContainerForTitle(n.Title)
}

// IndexOf returns the position of id among its siblings, or -1.
func (t *Tree) IndexOf(id int) int {
	n, ok := t.nodes[id]
	if !ok {
		return -1
	}
	for i, c := range t.siblings(n.ParentID) {
		if c == id {
			return i
		}
	}
	return -1
}

func (t *Tree) siblings(parentID int) []int {
	if parentID == RootID {
		return t.roots
	}
	if p, ok := t.nodes[parentID]; ok {
		return p.Children
	}
	return nil
}

func (t *Tree) setSiblings(parentID int, ids []int) {
	if parentID == RootID {
		t.roots = ids
		return
	}
	t.nodes[parentID].Children = ids
}

// Insert adds n as a leaf under parentID at index. The index is clamped to
// the valid range. A zero n.ID is replaced with a fresh id.
func (t *Tree) Insert(parentID, index int, n Node) (*Node, error) {
	if parentID != RootID {
		if _, ok := t.nodes[parentID]; !ok {
			return nil, errors.Wrapf(ErrBookmarkNotFound, "parent %d", parentID)
		}
	}
	if n.ID == 0 {
		n.ID = t.NextID()
	} else if _, dup := t.nodes[n.ID]; dup {
		return nil, errors.Wrapf(ErrDuplicateID, "id %d", n.ID)
	}
	if n.ID > t.maxID {
		t.maxID = n.ID
	}
	n.ParentID = parentID
	n.Children = nil
	stored := &n
	t.nodes[n.ID] = stored
	t.setSiblings(parentID, insertAt(t.siblings(parentID), index, n.ID))
	return stored, nil
}

// Update overwrites the metadata of id.
func (t *Tree) Update(id int, m Metadata) error {
	n, ok := t.nodes[id]
	if !ok {
		return errors.Wrapf(ErrBookmarkNotFound, "id %d", id)
	}
	n.Title = m.Title
	n.URL = m.URL
	n.Description = m.Description
	n.Tags = append([]string(nil), m.Tags...)
	return nil
}

// Descendants returns the ids of every node below id, depth first. The id
// itself is not included.
func (t *Tree) Descendants(id int) []int {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	var out []int
	for _, c := range n.Children {
		out = append(out, c)
		out = append(out, t.Descendants(c)...)
	}
	return out
}

// Remove deletes id and its subtree. It returns the removed ids, id first.
func (t *Tree) Remove(id int) ([]int, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, errors.Wrapf(ErrBookmarkNotFound, "id %d", id)
	}
	removed := append([]int{id}, t.Descendants(id)...)
	t.setSiblings(n.ParentID, without(t.siblings(n.ParentID), id))
	for _, r := range removed {
		delete(t.nodes, r)
	}
	return removed, nil
}

// Move detaches id and inserts it under parentID at index. The index is
// clamped to the destination's bounds after detaching.
func (t *Tree) Move(id, parentID, index int) error {
	n, ok := t.nodes[id]
	if !ok {
		return errors.Wrapf(ErrBookmarkNotFound, "id %d", id)
	}
	if parentID != RootID {
		if _, ok := t.nodes[parentID]; !ok {
			return errors.Wrapf(ErrBookmarkNotFound, "parent %d", parentID)
		}
		for p := parentID; p != RootID; p = t.nodes[p].ParentID {
			if p == id {
				return errors.Wrapf(ErrInvalidMove, "move %d under %d", id, parentID)
			}
		}
	}
	t.setSiblings(n.ParentID, without(t.siblings(n.ParentID), id))
	n.ParentID = parentID
	t.setSiblings(parentID, insertAt(t.siblings(parentID), index, id))
	return nil
}

// SetChildren replaces the child order of parentID with ids. Ids that are
// not current children are ignored. Current children missing from ids are
// removed along with their subtrees; their ids are returned.
func (t *Tree) SetChildren(parentID int, ids []int) ([]int, error) {
	if parentID != RootID {
		if _, ok := t.nodes[parentID]; !ok {
			return nil, errors.Wrapf(ErrBookmarkNotFound, "parent %d", parentID)
		}
	}
	current := t.siblings(parentID)
	isChild := make(map[int]bool, len(current))
	for _, c := range current {
		isChild[c] = true
	}
	kept := make([]int, 0, len(ids))
	keep := make(map[int]bool, len(ids))
	for _, id := range ids {
		if isChild[id] && !keep[id] {
			kept = append(kept, id)
			keep[id] = true
		}
	}
	var dropped []int
	for _, c := range current {
		if keep[c] {
			continue
		}
		dropped = append(dropped, c)
		dropped = append(dropped, t.Descendants(c)...)
	}
	for _, d := range dropped {
		delete(t.nodes, d)
	}
	t.setSiblings(parentID, kept)
	return dropped, nil
}

// Walk visits every node depth first in display order.
func (t *Tree) Walk(fn func(n *Node, depth int)) {
	var visit func(ids []int, depth int)
	visit = func(ids []int, depth int) {
		for _, id := range ids {
			n := t.nodes[id]
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(t.roots, 0)
}

func insertAt(ids []int, index, id int) []int {
	if index < 0 || index > len(ids) {
		index = len(ids)
	}
	out := make([]int, 0, len(ids)+1)
	out = append(out, ids[:index]...)
	out = append(out, id)
	return append(out, ids[index:]...)
}

func without(ids []int, id int) []int {
	out := make([]int, 0, len(ids))
	for _, c := range ids {
		if c != id {
			out = append(out, c)
		}
	}
	return out
}
