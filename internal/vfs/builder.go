package vfs

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/internal/template"
	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/types"
)

// LatestName is the entry added to every snapshot group.
const LatestName = "latest"

// BuildOptions configures BuildFromSnapshots.
type BuildOptions struct {
	PathTemplate string
	TimeTemplate string
	Latest       LinkPolicy
	Identical    LinkPolicy
	Logger       *zap.Logger
}

// BuildFromNode wraps a single repository node as the namespace root.
func BuildFromNode(node types.Node) *FsTree {
	return &FsTree{root: &RealNode{Node: node}}
}

// group collects the snapshots sharing one parent directory.
type group struct {
	path    string
	dir     *SyntheticDir
	members map[string]types.SnapshotFile
}

// BuildFromSnapshots lays the snapshots out along their rendered template
// paths. Within every group of snapshots sharing a parent directory, a
// snapshot whose root tree equals its predecessor's becomes an identical
// link, and a "latest" entry points at the newest member.
//
// When two snapshots render to the same path the later one (by time, then
// id) wins and a warning is logged.
func BuildFromSnapshots(snapshots []types.SnapshotFile, opts BuildOptions) (*FsTree, error) {
	if opts.PathTemplate == "" {
		opts.PathTemplate = template.DefaultPathTemplate
	}
	if opts.TimeTemplate == "" {
		opts.TimeTemplate = template.DefaultTimeTemplate
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Named("namespace")
	}

	tmpl, err := template.Compile(opts.PathTemplate, opts.TimeTemplate)
	if err != nil {
		return nil, err
	}

	sorted := make([]types.SnapshotFile, len(snapshots))
	copy(sorted, snapshots)
	types.SortSnapshots(sorted)

	root := newSyntheticDir()
	groups := make(map[*SyntheticDir]*group)
	stats := BuildStats{Snapshots: len(sorted)}

	for _, snap := range sorted {
		segments := tmpl.Segments(&snap)
		if len(segments) == 0 {
			return nil, errors.ConfigurationError("path template %q renders an empty path for snapshot %s",
				opts.PathTemplate, snap.ID.Short())
		}

		parent, err := ensureDirs(root, segments[:len(segments)-1])
		if err != nil {
			return nil, err
		}

		leaf := segments[len(segments)-1]
		leafPath := "/" + strings.Join(segments, "/")
		g := groups[parent]
		if g == nil {
			g = &group{
				path:    "/" + strings.Join(segments[:len(segments)-1], "/"),
				dir:     parent,
				members: make(map[string]types.SnapshotFile),
			}
			groups[parent] = g
		}

		if existing, ok := parent.children[leaf]; ok {
			if _, isDir := existing.(*SyntheticDir); isDir {
				return nil, errors.NameCollision(leafPath).
					WithDetail("snapshot", snap.ID.String())
			}
			previous := g.members[leaf]
			logger.Warn("snapshots render to the same path, keeping the later one",
				zap.String("path", leafPath),
				zap.String("replaced", previous.ID.Short()),
				zap.String("kept", snap.ID.Short()))
			stats.Replaced++
		}

		g.members[leaf] = snap
		parent.children[leaf] = &RealNode{Node: snap.RootNode(leaf)}
	}

	paths := make([]string, 0, len(groups))
	byPath := make(map[string]*group, len(groups))
	for _, g := range groups {
		paths = append(paths, g.path)
		byPath[g.path] = g
	}
	sort.Strings(paths)

	for _, p := range paths {
		identical, err := foldGroup(byPath[p], opts)
		if err != nil {
			return nil, err
		}
		stats.Identical += identical
	}
	stats.Groups = len(groups)

	root.freeze()

	logger.Info("namespace built",
		zap.Int("snapshots", stats.Snapshots),
		zap.Int("groups", stats.Groups),
		zap.Int("identical", stats.Identical),
		zap.Int("replaced", stats.Replaced))

	return &FsTree{root: root, stats: stats}, nil
}

// ensureDirs walks or creates the synthetic directories along segments.
func ensureDirs(root *SyntheticDir, segments []string) (*SyntheticDir, error) {
	dir := root
	for i, segment := range segments {
		child, ok := dir.children[segment]
		if !ok {
			sub := newSyntheticDir()
			dir.children[segment] = sub
			dir = sub
			continue
		}
		sub, isDir := child.(*SyntheticDir)
		if !isDir {
			return nil, errors.NameCollision("/" + strings.Join(segments[:i+1], "/"))
		}
		dir = sub
	}
	return dir, nil
}

// foldGroup replaces repeated root trees with identical links and adds the
// latest entry. It returns the number of folded snapshots.
func foldGroup(g *group, opts BuildOptions) (int, error) {
	names := make([]string, 0, len(g.members))
	for name := range g.members {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := g.members[names[i]], g.members[names[j]]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return a.ID.String() < b.ID.String()
	})

	var (
		folded   int
		previous string
		origin   *RealNode
	)
	for i, name := range names {
		snap := g.members[name]
		if i > 0 && snap.Tree == g.members[previous].Tree {
			g.dir.children[name] = &Link{
				Kind:     LinkIdentical,
				Policy:   opts.Identical,
				Target:   previous,
				Resolved: origin,
			}
			folded++
		} else {
			origin = g.dir.children[name].(*RealNode)
		}
		previous = name
	}

	if _, taken := g.dir.children[LatestName]; taken {
		return 0, errors.NameCollision(strings.TrimSuffix(g.path, "/") + "/" + LatestName)
	}
	g.dir.children[LatestName] = &Link{
		Kind:     LinkLatest,
		Policy:   opts.Latest,
		Target:   previous,
		Resolved: resolvedOf(g.dir.children[previous]),
	}
	return folded, nil
}

func resolvedOf(t Tree) *RealNode {
	switch v := t.(type) {
	case *RealNode:
		return v
	case *Link:
		return v.Resolved
	default:
		return nil
	}
}
