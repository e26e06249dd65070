// Package bookmark defines the synced bookmark model shared by every other
// package: the portable Bookmark value, the reserved top-level containers and
// an arena-backed Tree used by the reconciliation engine.
package bookmark

import (
	"strings"
)

// Container is the reserved title of a top-level synced folder.
type Container string

const (
	ContainerMenu    Container = "[xbs] Menu"
	ContainerMobile  Container = "[xbs] Mobile"
	ContainerOther   Container = "[xbs] Other"
	ContainerToolbar Container = "[xbs] Toolbar"
)

// Containers lists every container in canonical order.
var Containers = []Container{
	ContainerMenu,
	ContainerMobile,
	ContainerOther,
	ContainerToolbar,
}

// DisplayName returns the human readable name used in log messages.
func (c Container) DisplayName() string {
	switch c {
	case ContainerMenu:
		return "menu bookmarks"
	case ContainerMobile:
		return "mobile bookmarks"
	case ContainerOther:
		return "other bookmarks"
	case ContainerToolbar:
		return "toolbar bookmarks"
	default:
		return string(c)
	}
}

// Valid reports whether c is one of the reserved containers.
func (c Container) Valid() bool {
	for _, known := range Containers {
		if c == known {
			return true
		}
	}
	return false
}

// ContainerForTitle returns the container whose reserved title is title.
func ContainerForTitle(title string) (Container, bool) {
	c := Container(title)
	return c, c.Valid()
}

// Kind classifies a bookmark node by shape.
type Kind int

const (
	KindBookmark Kind = iota
	KindFolder
	KindSeparator
	KindContainer
)

func (k Kind) String() string {
	switch k {
	case KindBookmark:
		return "bookmark"
	case KindFolder:
		return "folder"
	case KindSeparator:
		return "separator"
	case KindContainer:
		return "container"
	default:
		return "unknown"
	}
}

// Bookmark is the portable, nested form of a synced node. It is what gets
// exported, cached and written to backups.
type Bookmark struct {
	ID          int        `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string     `json:"title,omitempty" yaml:"title,omitempty"`
	URL         string     `json:"url,omitempty" yaml:"url,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	DateAdded   int64      `json:"dateAdded,omitempty" yaml:"dateAdded,omitempty"`
	Children    []Bookmark `json:"children,omitempty" yaml:"children,omitempty"`
}

// Kind derives the node kind. A node with neither title nor url nor children
// is a separator; a node without url is a folder.
func (b Bookmark) Kind() Kind {
	return kindOf(b.Title, b.URL, len(b.Children))
}

func kindOf(title, url string, children int) Kind {
	if _, ok := ContainerForTitle(title); ok && url == "" {
		return KindContainer
	}
	if url != "" {
		return KindBookmark
	}
	if title == "" && children == 0 {
		return KindSeparator
	}
	return KindFolder
}

// Walk visits bs depth first, parents before children. Returning false from
// fn skips the node's children.
func Walk(bs []Bookmark, fn func(b *Bookmark, depth int) bool) {
	walk(bs, 0, fn)
}

func walk(bs []Bookmark, depth int, fn func(b *Bookmark, depth int) bool) {
	for i := range bs {
		if fn(&bs[i], depth) {
			walk(bs[i].Children, depth+1, fn)
		}
	}
}

// Count returns the number of nodes in bs, containers included.
func Count(bs []Bookmark) int {
	n := 0
	Walk(bs, func(*Bookmark, int) bool {
		n++
		return true
	})
	return n
}

// NormalizeTags trims, lowercases and de-duplicates tags, preserving the
// first occurrence order. Empty tags are dropped.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
