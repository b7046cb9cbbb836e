package vfs

import (
	"sort"

	"github.com/objectfs/snapfs/pkg/types"
)

// Tree is one position in the namespace. It is one of *RealNode,
// *SyntheticDir or *Link. Trees are built once and never mutated afterwards,
// so they are shared freely between concurrent requests.
type Tree interface {
	isTree()
}

// RealNode wraps a repository node. Children of a real directory are looked
// up in the repository on demand.
type RealNode struct {
	Node types.Node
}

// SyntheticDir is an in-memory directory created from template grouping.
type SyntheticDir struct {
	children map[string]Tree
	names    []string
}

// LinkKind distinguishes the two kinds of synthetic link entries.
type LinkKind int

const (
	// LinkLatest points at the newest snapshot of its group.
	LinkLatest LinkKind = iota
	// LinkIdentical points at an earlier snapshot with the same root tree.
	LinkIdentical
)

// String returns the string representation of the link kind
func (k LinkKind) String() string {
	if k == LinkLatest {
		return "latest"
	}
	return "identical"
}

// LinkPolicy selects how link entries are presented.
type LinkPolicy int

const (
	// AsDir presents the link as a directory exposing the target's children.
	AsDir LinkPolicy = iota
	// AsSymlink presents the link as a symbolic link to the sibling name.
	AsSymlink
)

// Link is a synthetic alias for a snapshot directory of the same group.
// Target is the sibling name the link refers to; Resolved is the real
// snapshot root it ends up at, so lookups never chase link chains.
type Link struct {
	Kind     LinkKind
	Policy   LinkPolicy
	Target   string
	Resolved *RealNode
}

func (*RealNode) isTree()     {}
func (*SyntheticDir) isTree() {}
func (*Link) isTree()         {}

func newSyntheticDir() *SyntheticDir {
	return &SyntheticDir{children: make(map[string]Tree)}
}

// Child returns the entry called name.
func (d *SyntheticDir) Child(name string) (Tree, bool) {
	child, ok := d.children[name]
	return child, ok
}

// Names returns the child names in lexical order.
func (d *SyntheticDir) Names() []string {
	return d.names
}

// Len returns the number of children.
func (d *SyntheticDir) Len() int {
	return len(d.children)
}

// freeze fixes the listing order of d and every synthetic directory below it.
func (d *SyntheticDir) freeze() {
	d.names = make([]string, 0, len(d.children))
	for name, child := range d.children {
		d.names = append(d.names, name)
		if sub, ok := child.(*SyntheticDir); ok {
			sub.freeze()
		}
	}
	sort.Strings(d.names)
}

// FsTree is the immutable namespace served to protocol adapters.
type FsTree struct {
	root  Tree
	stats BuildStats
}

// BuildStats summarizes a namespace construction.
type BuildStats struct {
	Snapshots int
	Groups    int
	Identical int
	Replaced  int
}

// Root returns the root entry.
func (t *FsTree) Root() Tree {
	return t.root
}

// Stats returns the construction summary.
func (t *FsTree) Stats() BuildStats {
	return t.stats
}
