package native

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Listener receives changes made through a MemoryPlatform.
type Listener func(Change)

type memNode struct {
	Node
	children []string
}

// MemoryPlatform is an in-process Platform. The daemon keeps the host's
// native tree snapshot in one and tests drive it directly. Every mutation is
// reported to subscribed listeners, the same way a browser reports changes.
type MemoryPlatform struct {
	mu        sync.Mutex
	nodes     map[string]*memNode
	seq       int
	listeners []Listener
	now       func() time.Time
}

// NewMemoryPlatform returns a platform holding the browser root and the four
// Firefox root folders.
func NewMemoryPlatform() *MemoryPlatform {
	p := newEmptyPlatform()
	for _, r := range []struct{ id, title string }{
		{MenuID, "Bookmarks Menu"},
		{ToolbarID, "Bookmarks Toolbar"},
		{OtherID, "Other Bookmarks"},
		{MobileID, "Mobile Bookmarks"},
	} {
		p.addLocked(RootID, -1, &Node{ID: r.id, Title: r.title, Type: TypeFolder})
	}
	return p
}

func newEmptyPlatform() *MemoryPlatform {
	p := &MemoryPlatform{
		nodes: make(map[string]*memNode),
		now:   time.Now,
	}
	p.nodes[RootID] = &memNode{Node: Node{ID: RootID, Type: TypeFolder}}
	return p
}

// Subscribe registers fn for every subsequent change.
func (p *MemoryPlatform) Subscribe(fn Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *MemoryPlatform) emit(c Change) {
	p.mu.Lock()
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// GetTree implements Platform.
func (p *MemoryPlatform) GetTree(ctx context.Context) (*Node, error) {
	return p.GetSubtree(ctx, RootID)
}

// GetSubtree implements Platform.
func (p *MemoryPlatform) GetSubtree(_ context.Context, id string) (*Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.nodes[id]; !ok {
		return nil, errors.Wrapf(ErrNodeNotFound, "id %s", id)
	}
	return p.snapshotLocked(id), nil
}

func (p *MemoryPlatform) snapshotLocked(id string) *Node {
	m := p.nodes[id]
	n := m.Node
	n.Tags = append([]string(nil), m.Tags...)
	n.Children = nil
	if len(n.Tags) == 0 {
		n.Tags = nil
	}
	for _, c := range m.children {
		n.Children = append(n.Children, p.snapshotLocked(c))
	}
	return &n
}

// Create implements Platform.
func (p *MemoryPlatform) Create(_ context.Context, d CreateDetails) (*Node, error) {
	p.mu.Lock()
	if _, ok := p.nodes[d.ParentID]; !ok {
		p.mu.Unlock()
		return nil, errors.Wrapf(ErrNodeNotFound, "parent %s", d.ParentID)
	}
	n := &Node{Title: d.Title, URL: d.URL, Type: d.Type, DateAdded: p.now().UnixMilli()}
	if n.Type == "" {
		n.Type = n.Kind()
	}
	p.addLocked(d.ParentID, d.Index, n)
	created := p.snapshotLocked(n.ID)
	p.mu.Unlock()

	p.emit(&AddChange{ID: created.ID, Node: *created})
	return created, nil
}

func (p *MemoryPlatform) addLocked(parentID string, index int, n *Node) {
	if n.ID == "" {
		p.seq++
		n.ID = "n" + strconv.Itoa(p.seq)
	}
	parent := p.nodes[parentID]
	parent.children = insertID(parent.children, index, n.ID)
	p.nodes[n.ID] = &memNode{Node: Node{
		ID:          n.ID,
		ParentID:    parentID,
		Title:       n.Title,
		URL:         n.URL,
		Description: n.Description,
		Tags:        append([]string(nil), n.Tags...),
		DateAdded:   n.DateAdded,
		Type:        n.Type,
	}}
	p.reindexLocked(parentID)
}

func (p *MemoryPlatform) reindexLocked(parentID string) {
	for i, c := range p.nodes[parentID].children {
		p.nodes[c].Index = i
	}
}

// Move implements Platform.
func (p *MemoryPlatform) Move(_ context.Context, id string, dest Destination) (*Node, error) {
	p.mu.Lock()
	m, ok := p.nodes[id]
	if !ok || id == RootID {
		p.mu.Unlock()
		return nil, errors.Wrapf(ErrNodeNotFound, "id %s", id)
	}
	if _, ok := p.nodes[dest.ParentID]; !ok {
		p.mu.Unlock()
		return nil, errors.Wrapf(ErrNodeNotFound, "parent %s", dest.ParentID)
	}
	for a := dest.ParentID; a != ""; a = p.nodes[a].ParentID {
		if a == id {
			p.mu.Unlock()
			return nil, errors.Newf("cannot move %s into its own subtree", id)
		}
	}
	oldParent, oldIndex := m.ParentID, m.Index
	p.nodes[oldParent].children = removeID(p.nodes[oldParent].children, id)
	p.reindexLocked(oldParent)
	p.nodes[dest.ParentID].children = insertID(p.nodes[dest.ParentID].children, dest.Index, id)
	m.ParentID = dest.ParentID
	p.reindexLocked(dest.ParentID)
	moved := p.snapshotLocked(id)
	p.mu.Unlock()

	p.emit(&MoveChange{
		ID:          id,
		ParentID:    moved.ParentID,
		Index:       moved.Index,
		OldParentID: oldParent,
		OldIndex:    oldIndex,
	})
	return moved, nil
}

// Remove implements Platform.
func (p *MemoryPlatform) Remove(_ context.Context, id string) error {
	p.mu.Lock()
	m, ok := p.nodes[id]
	if !ok || id == RootID {
		p.mu.Unlock()
		return errors.Wrapf(ErrNodeNotFound, "id %s", id)
	}
	removed := p.snapshotLocked(id)
	parentID, index := m.ParentID, m.Index
	p.nodes[parentID].children = removeID(p.nodes[parentID].children, id)
	p.reindexLocked(parentID)
	p.deleteLocked(id)
	p.mu.Unlock()

	p.emit(&RemoveChange{ID: id, ParentID: parentID, Index: index, Node: removed})
	return nil
}

func (p *MemoryPlatform) deleteLocked(id string) {
	for _, c := range p.nodes[id].children {
		p.deleteLocked(c)
	}
	delete(p.nodes, id)
}

// Update changes the title and url of a node.
func (p *MemoryPlatform) Update(_ context.Context, id, title, url string) (*Node, error) {
	p.mu.Lock()
	m, ok := p.nodes[id]
	if !ok || id == RootID {
		p.mu.Unlock()
		return nil, errors.Wrapf(ErrNodeNotFound, "id %s", id)
	}
	m.Title = title
	m.URL = url
	updated := p.snapshotLocked(id)
	p.mu.Unlock()

	p.emit(&ModifyChange{ID: id, Node: *updated})
	return updated, nil
}

// Reorder sets the child order of parentID. Ids that are not children are
// ignored; children not listed keep their relative order at the end.
func (p *MemoryPlatform) Reorder(_ context.Context, parentID string, childIDs []string) error {
	p.mu.Lock()
	parent, ok := p.nodes[parentID]
	if !ok {
		p.mu.Unlock()
		return errors.Wrapf(ErrNodeNotFound, "id %s", parentID)
	}
	listed := make(map[string]bool, len(childIDs))
	var order []string
	for _, c := range childIDs {
		if m, ok := p.nodes[c]; ok && m.ParentID == parentID && !listed[c] {
			order = append(order, c)
			listed[c] = true
		}
	}
	for _, c := range parent.children {
		if !listed[c] {
			order = append(order, c)
		}
	}
	parent.children = order
	p.reindexLocked(parentID)
	final := append([]string(nil), order...)
	p.mu.Unlock()

	p.emit(&ReorderChange{ParentID: parentID, ChildIDs: final})
	return nil
}

// Replace swaps the whole tree for root without emitting changes. root must
// be the browser root.
func (p *MemoryPlatform) Replace(root *Node) error {
	if root == nil || root.ID != RootID {
		return errors.Newf("snapshot root must be %q", RootID)
	}
	fresh := newEmptyPlatform()
	fresh.seq = p.seqFloor(root)
	for i, c := range root.Children {
		fresh.loadLocked(RootID, i, c)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes = fresh.nodes
	if fresh.seq > p.seq {
		p.seq = fresh.seq
	}
	return nil
}

func (p *MemoryPlatform) loadLocked(parentID string, index int, n *Node) {
	p.addLocked(parentID, index, n)
	for i, c := range n.Children {
		p.loadLocked(n.ID, i, c)
	}
}

// seqFloor returns the highest numeric suffix among generated ids so new
// ids never collide with loaded ones.
func (p *MemoryPlatform) seqFloor(n *Node) int {
	highest := 0
	if len(n.ID) > 1 && n.ID[0] == 'n' {
		if v, err := strconv.Atoi(n.ID[1:]); err == nil {
			highest = v
		}
	}
	for _, c := range n.Children {
		if v := p.seqFloor(c); v > highest {
			highest = v
		}
	}
	return highest
}

// LoadFile replaces the tree with the JSON snapshot at path.
func (p *MemoryPlatform) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read native tree")
	}
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return errors.Wrap(err, "failed to parse native tree")
	}
	return p.Replace(&root)
}

// SaveFile writes the tree as a JSON snapshot to path.
func (p *MemoryPlatform) SaveFile(path string) error {
	root, err := p.GetTree(context.Background())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal native tree")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create native tree directory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write native tree")
	}
	return errors.Wrap(os.Rename(tmp, path), "failed to rename native tree")
}

func insertID(ids []string, index int, id string) []string {
	if index < 0 || index > len(ids) {
		index = len(ids)
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:index]...)
	out = append(out, id)
	return append(out, ids[index:]...)
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, c := range ids {
		if c != id {
			out = append(out, c)
		}
	}
	return out
}
