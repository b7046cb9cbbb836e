package vfs

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/objectfs/snapfs/internal/template"
	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/types"
)

func names(t *testing.T, fsys *Filesystem, p string) []string {
	t.Helper()
	entries, err := fsys.ListDir(context.Background(), p)
	require.NoError(t, err)
	result := make([]string, len(entries))
	for i, e := range entries {
		result[i] = e.Name
	}
	sort.Strings(result)
	return result
}

func readAll(t *testing.T, fsys *Filesystem, p string) string {
	t.Helper()
	ctx := context.Background()
	f, err := fsys.Open(ctx, p, Access{})
	require.NoError(t, err)
	data, err := f.ReadAt(ctx, 0, int(f.Size()))
	require.NoError(t, err)
	return string(data)
}

func TestWorkedExample(t *testing.T) {
	repo := newMemRepo()
	root := repo.tree(
		repo.dir("etc", repo.file("hosts", "127.0.0.1 localhost\n")),
		repo.file("notes.txt", "remember the milk"),
	)
	snapshots := []types.SnapshotFile{
		snapshot(2, "h1", "default", day(2), root),
		snapshot(1, "h1", "default", day(1), root),
	}

	tests := []struct {
		name     string
		template string
		group    string
	}{
		{name: "plain template", template: "{hostname}/{label}/{time}", group: "/h1/default"},
		{name: "default template", template: template.DefaultPathTemplate, group: "/[h1]/[default]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tree, err := BuildFromSnapshots(snapshots, BuildOptions{
				PathTemplate: tt.template,
				TimeTemplate: "%Y-%m-%d",
				Latest:       AsSymlink,
				Identical:    AsSymlink,
			})
			require.NoError(t, err)
			fsys := New(tree, repo, Options{})

			assert.Equal(t, []string{"2023-01-01", "2023-01-02", "latest"}, names(t, fsys, tt.group))

			first, err := fsys.Metadata(ctx, tt.group+"/2023-01-01")
			require.NoError(t, err)
			assert.True(t, first.IsDir())
			assert.False(t, first.Synthetic)

			second, err := fsys.Metadata(ctx, tt.group+"/2023-01-02")
			require.NoError(t, err)
			assert.True(t, second.IsSymlink())
			assert.Equal(t, "2023-01-01", second.LinkTarget)

			latest, err := fsys.Readlink(ctx, tt.group+"/latest")
			require.NoError(t, err)
			assert.Equal(t, "2023-01-02", latest)

			for _, file := range []string{"/etc/hosts", "/notes.txt"} {
				a := readAll(t, fsys, tt.group+"/2023-01-01"+file)
				b := readAll(t, fsys, tt.group+"/2023-01-02"+file)
				c := readAll(t, fsys, tt.group+"/latest"+file)
				assert.Equal(t, a, b)
				assert.Equal(t, a, c)
			}

			stats := tree.Stats()
			assert.Equal(t, 2, stats.Snapshots)
			assert.Equal(t, 1, stats.Groups)
			assert.Equal(t, 1, stats.Identical)
		})
	}
}

func TestBuild_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()

	var snapshots []types.SnapshotFile
	for i, host := range []string{"alpha", "beta", "gamma"} {
		for d := 1; d <= 3; d++ {
			root := repo.tree(repo.file("f", host))
			snapshots = append(snapshots, snapshot(byte(i*10+d), host, "", day(d), root))
		}
	}

	tree, err := BuildFromSnapshots(snapshots, BuildOptions{
		PathTemplate: "{hostname}/{id}",
		Latest:       AsDir,
		Identical:    AsDir,
	})
	require.NoError(t, err)
	resolver := NewResolver(tree, repo, nil, zap.NewNop())
	tmpl, err := template.Compile("{hostname}/{id}", template.DefaultTimeTemplate)
	require.NoError(t, err)

	for i := range snapshots {
		snap := snapshots[i]
		p := "/" + strings.Join(tmpl.Segments(&snap), "/")
		entry, err := resolver.Follow(ctx, p)
		require.NoError(t, err, p)
		rn, ok := entry.Tree.(*RealNode)
		require.True(t, ok)
		require.NotNil(t, rn.Node.Subtree)
		assert.Equal(t, snap.Tree, *rn.Node.Subtree, p)
	}
}

func TestBuild_DotSegments(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()

	snapshots := []types.SnapshotFile{
		snapshot(1, "h1", "..", day(1), repo.tree(repo.file("f", "dotdot"))),
		snapshot(2, ".", "l", day(2), repo.tree(repo.file("f", "dot"))),
		snapshot(3, "h1", "l", day(3), repo.tree(repo.file("f", "plain"))),
	}
	const pathTemplate = "{hostname}/{label}/{time}"
	tree, err := BuildFromSnapshots(snapshots, BuildOptions{
		PathTemplate: pathTemplate,
		TimeTemplate: "%d",
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, tree.Stats().Groups)

	fsys := New(tree, repo, Options{})
	assert.Equal(t, []string{"%2E", "h1"}, names(t, fsys, "/"))
	assert.Equal(t, []string{"%2E%2E", "l"}, names(t, fsys, "/h1"))
	assert.Equal(t, []string{"l"}, names(t, fsys, "/%2E"))

	// Every listed name resolves, and every snapshot is reachable at its
	// rendered path.
	for _, name := range names(t, fsys, "/h1") {
		_, err := fsys.Metadata(ctx, "/h1/"+name)
		assert.NoError(t, err, name)
	}
	tmpl, err := template.Compile(pathTemplate, "%d")
	require.NoError(t, err)
	for i, want := range []string{"dotdot", "dot", "plain"} {
		p := "/" + strings.Join(tmpl.Segments(&snapshots[i]), "/")
		assert.Equal(t, want, readAll(t, fsys, p+"/f"), p)
	}
	assert.Equal(t, "dotdot", readAll(t, fsys, "/h1/%2E%2E/01/f"))
	assert.Equal(t, "dot", readAll(t, fsys, "/%2E/l/02/f"))
}

func TestBuild_IdenticalFolding(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	a := repo.tree(repo.file("x", "version a"))
	b := repo.tree(repo.file("x", "version b"))

	snapshots := []types.SnapshotFile{
		snapshot(1, "h", "l", day(1), a),
		snapshot(2, "h", "l", day(2), a),
		snapshot(3, "h", "l", day(3), b),
		snapshot(4, "h", "l", day(4), b),
		snapshot(5, "h", "l", day(5), a),
	}
	tree, err := BuildFromSnapshots(snapshots, BuildOptions{
		PathTemplate: "{time}",
		TimeTemplate: "%d",
		Latest:       AsDir,
		Identical:    AsDir,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, tree.Stats().Identical)

	root := tree.Root().(*SyntheticDir)
	kinds := map[string]string{}
	for _, name := range root.Names() {
		child, _ := root.Child(name)
		switch v := child.(type) {
		case *RealNode:
			kinds[name] = "real"
		case *Link:
			kinds[name] = v.Kind.String() + "->" + v.Target
		}
	}
	assert.Equal(t, map[string]string{
		"01":     "real",
		"02":     "identical->01",
		"03":     "real",
		"04":     "identical->03",
		"05":     "real",
		"latest": "latest->05",
	}, kinds)

	// Directory mode: the alias lists the same children and serves the
	// same content.
	fsys := New(tree, repo, Options{})
	assert.Equal(t, names(t, fsys, "/01"), names(t, fsys, "/02"))
	assert.Equal(t, readAll(t, fsys, "/03/x"), readAll(t, fsys, "/04/x"))
	assert.Equal(t, "version a", readAll(t, fsys, "/latest/x"))

	meta, err := fsys.Metadata(ctx, "/02")
	require.NoError(t, err)
	assert.True(t, meta.IsDir())
	assert.Equal(t, "02", meta.Name)
	assert.Equal(t, day(1), meta.Mtime)
}

func TestBuild_LatestFollowsFoldedMember(t *testing.T) {
	repo := newMemRepo()
	root := repo.tree()
	snapshots := []types.SnapshotFile{
		snapshot(1, "h", "", day(1), root),
		snapshot(2, "h", "", day(2), root),
	}
	tree, err := BuildFromSnapshots(snapshots, BuildOptions{PathTemplate: "{time}", TimeTemplate: "%d"})
	require.NoError(t, err)

	dir := tree.Root().(*SyntheticDir)
	child, ok := dir.Child(LatestName)
	require.True(t, ok)
	latest := child.(*Link)
	assert.Equal(t, "02", latest.Target)
	origin, _ := dir.Child("01")
	assert.Same(t, origin, latest.Resolved)
}

func TestBuild_DuplicatePathLastWins(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	repo := newMemRepo()
	older := repo.tree(repo.file("f", "older"))
	newer := repo.tree(repo.file("f", "newer"))

	snapshots := []types.SnapshotFile{
		snapshot(2, "h", "", day(2), newer),
		snapshot(1, "h", "", day(1), older),
	}
	tree, err := BuildFromSnapshots(snapshots, BuildOptions{
		PathTemplate: "{hostname}",
		Logger:       zap.New(core),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Stats().Replaced)
	assert.Equal(t, 1, logs.FilterMessageSnippet("same path").Len())

	fsys := New(tree, repo, Options{})
	assert.Equal(t, "newer", readAll(t, fsys, "/h/f"))
	assert.Equal(t, "newer", readAll(t, fsys, "/latest/f"))
	assert.Equal(t, []string{"h", "latest"}, names(t, fsys, "/"))
}

func TestBuild_Errors(t *testing.T) {
	repo := newMemRepo()
	root := repo.tree()

	tests := []struct {
		name      string
		snapshots []types.SnapshotFile
		template  string
		code      errors.ErrorCode
	}{
		{
			name:      "unknown placeholder",
			snapshots: []types.SnapshotFile{snapshot(1, "h", "", day(1), root)},
			template:  "{hostname}/{nonexistent}",
			code:      errors.ErrCodeConfigurationError,
		},
		{
			name:      "empty rendering",
			snapshots: []types.SnapshotFile{snapshot(1, "", "", day(1), root)},
			template:  "{label}",
			code:      errors.ErrCodeConfigurationError,
		},
		{
			name: "leaf then directory",
			snapshots: []types.SnapshotFile{
				snapshot(1, "h", "", day(1), root),
				snapshot(2, "h", "x", day(2), root),
			},
			template: "{hostname}/{label}",
			code:     errors.ErrCodeNameCollision,
		},
		{
			name: "directory then leaf",
			snapshots: []types.SnapshotFile{
				snapshot(1, "h", "x", day(1), root),
				snapshot(2, "h", "", day(2), root),
			},
			template: "{hostname}/{label}",
			code:     errors.ErrCodeNameCollision,
		},
		{
			name:      "literal parent segment",
			snapshots: []types.SnapshotFile{snapshot(1, "h", "", day(1), root)},
			template:  "{hostname}/../{time}",
			code:      errors.ErrCodeConfigurationError,
		},
		{
			name:      "snapshot named latest",
			snapshots: []types.SnapshotFile{snapshot(1, "latest", "", day(1), root)},
			template:  "{hostname}",
			code:      errors.ErrCodeNameCollision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := BuildFromSnapshots(tt.snapshots, BuildOptions{PathTemplate: tt.template, Logger: zap.NewNop()})
			require.Error(t, err)
			assert.Nil(t, tree)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}
}

func TestBuild_NoSnapshots(t *testing.T) {
	tree, err := BuildFromSnapshots(nil, BuildOptions{Logger: zap.NewNop()})
	require.NoError(t, err)
	fsys := New(tree, newMemRepo(), Options{})
	assert.Empty(t, names(t, fsys, "/"))
}

func TestBuildFromNode(t *testing.T) {
	repo := newMemRepo()
	root := repo.dir("snap", repo.file("a", "alpha"), repo.dir("sub", repo.file("b", "beta")))

	fsys := New(BuildFromNode(root), repo, Options{})
	assert.Equal(t, []string{"a", "sub"}, names(t, fsys, "/"))
	assert.Equal(t, "beta", readAll(t, fsys, "/sub/b"))

	fileRoot := New(BuildFromNode(repo.file("single", "xyz")), repo, Options{})
	_, err := fileRoot.ListDir(context.Background(), "/")
	assert.Equal(t, errors.ErrCodeWrongType, errors.CodeOf(err))
}
