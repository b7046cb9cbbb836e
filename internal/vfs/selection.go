package vfs

import (
	"context"
	"fmt"
	"strings"

	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/types"
	"github.com/objectfs/snapfs/pkg/utils"
)

// SnapshotFilter selects the snapshots making up a namespace. Empty fields
// match everything.
type SnapshotFilter struct {
	Hostnames []string `yaml:"hostnames"`
	Labels    []string `yaml:"labels"`
	Tags      []string `yaml:"tags"`
	Paths     []string `yaml:"paths"`
}

// Matches reports whether snap passes the filter: its hostname and label
// are among the listed ones, and it carries every listed tag and path.
func (f SnapshotFilter) Matches(snap *types.SnapshotFile) bool {
	if len(f.Hostnames) > 0 && !contains(f.Hostnames, snap.Hostname) {
		return false
	}
	if len(f.Labels) > 0 && !contains(f.Labels, snap.Label) {
		return false
	}
	for _, tag := range f.Tags {
		if !snap.Tags.Contains(tag) {
			return false
		}
	}
	for _, p := range f.Paths {
		if !contains(snap.Paths, p) {
			return false
		}
	}
	return true
}

// Apply returns the matching snapshots in their original order.
func (f SnapshotFilter) Apply(snapshots []types.SnapshotFile) []types.SnapshotFile {
	var result []types.SnapshotFile
	for i := range snapshots {
		if f.Matches(&snapshots[i]) {
			result = append(result, snapshots[i])
		}
	}
	return result
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// Specifier names a directly mounted snapshot subtree: SNAPSHOT[:PATH].
type Specifier struct {
	Snapshot string
	Path     string
}

// ParseSpecifier splits "SNAPSHOT[:PATH]".
func ParseSpecifier(s string) (Specifier, error) {
	snapshot, subpath, _ := strings.Cut(s, ":")
	if snapshot == "" {
		return Specifier{}, errors.ConfigurationError("empty snapshot in %q", s)
	}
	return Specifier{Snapshot: snapshot, Path: subpath}, nil
}

// String returns the specifier in SNAPSHOT[:PATH] form.
func (s Specifier) String() string {
	if s.Path == "" {
		return s.Snapshot
	}
	return s.Snapshot + ":" + s.Path
}

// FindSnapshot picks the snapshot named by ref among snapshots: "latest"
// selects the newest one, anything else is an id prefix that must match
// exactly one snapshot.
func FindSnapshot(snapshots []types.SnapshotFile, ref string) (types.SnapshotFile, error) {
	if len(snapshots) == 0 {
		return types.SnapshotFile{}, errors.NotFound(ref).WithDetail("reason", "no snapshots")
	}

	if ref == LatestName {
		sorted := make([]types.SnapshotFile, len(snapshots))
		copy(sorted, snapshots)
		types.SortSnapshots(sorted)
		return sorted[len(sorted)-1], nil
	}

	ref = strings.ToLower(ref)
	var matches []types.SnapshotFile
	for _, snap := range snapshots {
		if strings.HasPrefix(snap.ID.String(), ref) {
			matches = append(matches, snap)
		}
	}
	switch len(matches) {
	case 0:
		return types.SnapshotFile{}, errors.NotFound(ref)
	case 1:
		return matches[0], nil
	default:
		return types.SnapshotFile{}, errors.ConfigurationError("snapshot id prefix %q is ambiguous (%d matches)", ref, len(matches))
	}
}

// ResolveSpecifier finds the repository node a specifier points at: the
// root of the selected snapshot, or the entry at Path inside it.
func ResolveSpecifier(ctx context.Context, repo types.Repository, snapshots []types.SnapshotFile, spec Specifier) (types.Node, error) {
	snap, err := FindSnapshot(snapshots, spec.Snapshot)
	if err != nil {
		return types.Node{}, err
	}

	segments, err := utils.SplitPath(spec.Path)
	if err != nil {
		return types.Node{}, errors.ConfigurationError("invalid path in %q: %v", spec.String(), err)
	}

	node := snap.RootNode(snap.ID.Short())
	for i, segment := range segments {
		if !node.IsDir() || node.Subtree == nil {
			return types.Node{}, errors.WrongType(utils.JoinPath(segments[:i]...), "not a directory")
		}
		child, err := repo.Lookup(ctx, *node.Subtree, segment)
		if err != nil {
			if errors.IsNotExist(err) {
				return types.Node{}, errors.NotFound(utils.JoinPath(segments[:i+1]...))
			}
			return types.Node{}, fmt.Errorf("resolving %s: %w", spec.String(), err)
		}
		node = child
	}
	return node, nil
}
