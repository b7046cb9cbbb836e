package vfs

import (
	"context"
	"path"

	"go.uber.org/zap"

	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/types"
	"github.com/objectfs/snapfs/pkg/utils"
)

// Entry is a resolved namespace position together with the name and path it
// was reached by.
type Entry struct {
	Name string
	Path string
	Tree Tree
}

// Metadata describes the entry. Links in symlink mode appear as symlinks to
// their sibling target; links in directory mode appear as the snapshot
// directory they alias.
func (e Entry) Metadata() Metadata {
	switch v := e.Tree.(type) {
	case *RealNode:
		return MetadataOf(v.Node.Rename(e.Name))
	case *SyntheticDir:
		return syntheticDirMetadata(e.Name)
	case *Link:
		if v.Policy == AsSymlink {
			meta := MetadataOf(types.NewSymlinkNode(e.Name, v.Target))
			meta.Synthetic = true
			return meta
		}
		return MetadataOf(v.Resolved.Node.Rename(e.Name))
	default:
		return Metadata{Name: e.Name}
	}
}

// Resolver walks paths through an FsTree, asking the repository for the
// children of real directories one segment at a time.
type Resolver struct {
	tree   *FsTree
	repo   types.Repository
	bridge *Bridge
	logger *zap.Logger
}

// NewResolver creates a resolver. A nil bridge runs repository calls inline.
func NewResolver(tree *FsTree, repo types.Repository, bridge *Bridge, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = logging.Named("resolver")
	}
	return &Resolver{tree: tree, repo: repo, bridge: bridge, logger: logger}
}

// Resolve returns the entry at p. A link in the final position is returned
// as is; links in intermediate positions are followed.
func (r *Resolver) Resolve(ctx context.Context, p string) (Entry, error) {
	return r.walk(ctx, p, false)
}

// Follow is like Resolve but also follows a link in the final position.
func (r *Resolver) Follow(ctx context.Context, p string) (Entry, error) {
	return r.walk(ctx, p, true)
}

// List returns the children of the directory at p, in lexical order for
// synthetic directories and repository order for real ones.
func (r *Resolver) List(ctx context.Context, p string) ([]Entry, error) {
	dir, err := r.walk(ctx, p, true)
	if err != nil {
		return nil, err
	}

	switch v := dir.Tree.(type) {
	case *SyntheticDir:
		entries := make([]Entry, 0, v.Len())
		for _, name := range v.Names() {
			child, _ := v.Child(name)
			entries = append(entries, Entry{Name: name, Path: path.Join(dir.Path, name), Tree: child})
		}
		return entries, nil

	case *RealNode:
		if !v.Node.IsDir() {
			return nil, errors.WrongType(dir.Path, "not a directory")
		}
		if v.Node.Subtree == nil {
			return []Entry{}, nil
		}
		subtree := *v.Node.Subtree
		nodes, err := Run(ctx, r.bridge, func(ctx context.Context) ([]types.Node, error) {
			return r.repo.ReadDir(ctx, subtree)
		})
		if err != nil {
			return nil, r.translate("list", dir.Path, err)
		}
		entries := make([]Entry, 0, len(nodes))
		for _, node := range nodes {
			entries = append(entries, Entry{
				Name: node.Name,
				Path: path.Join(dir.Path, node.Name),
				Tree: &RealNode{Node: node},
			})
		}
		return entries, nil

	default:
		return nil, errors.NotFound(dir.Path)
	}
}

func (r *Resolver) walk(ctx context.Context, p string, followFinal bool) (Entry, error) {
	segments, err := utils.SplitPath(p)
	if err != nil {
		return Entry{}, errors.NotFound(p)
	}

	current := Entry{Name: "/", Path: "/", Tree: r.tree.root}
	for _, segment := range segments {
		next := path.Join(current.Path, segment)

		switch v := deref(current.Tree).(type) {
		case *SyntheticDir:
			child, ok := v.Child(segment)
			if !ok {
				return Entry{}, errors.NotFound(next)
			}
			current = Entry{Name: segment, Path: next, Tree: child}

		case *RealNode:
			if !v.Node.IsDir() {
				return Entry{}, errors.WrongType(current.Path, "not a directory")
			}
			node, err := r.lookup(ctx, v.Node, segment, next)
			if err != nil {
				return Entry{}, err
			}
			current = Entry{Name: segment, Path: next, Tree: &RealNode{Node: node}}

		default:
			return Entry{}, errors.NotFound(next)
		}
	}

	if followFinal {
		current.Tree = deref(current.Tree)
	}
	return current, nil
}

func (r *Resolver) lookup(ctx context.Context, dir types.Node, name, p string) (types.Node, error) {
	if dir.Subtree == nil {
		return types.Node{}, errors.NotFound(p)
	}
	subtree := *dir.Subtree
	node, err := Run(ctx, r.bridge, func(ctx context.Context) (types.Node, error) {
		return r.repo.Lookup(ctx, subtree, name)
	})
	if err != nil {
		return types.Node{}, r.translate("lookup", p, err)
	}
	return node, nil
}

// translate collapses a repository error at the namespace boundary.
func (r *Resolver) translate(op, p string, err error) error {
	if errors.IsNotExist(err) {
		return errors.NotFound(p)
	}
	r.logger.Warn("repository error", logging.Op(op), logging.Path(p), logging.Err(err))
	return errors.GeneralFailure(op, p, err)
}

// deref replaces a link by the snapshot directory it resolves to.
func deref(t Tree) Tree {
	if link, ok := t.(*Link); ok {
		return link.Resolved
	}
	return t
}
