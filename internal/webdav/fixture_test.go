package webdav

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/objectfs/snapfs/internal/cache"
	"github.com/objectfs/snapfs/internal/repository"
	"github.com/objectfs/snapfs/internal/storage/local"
	"github.com/objectfs/snapfs/internal/vfs"
	"github.com/objectfs/snapfs/pkg/types"
)

const (
	helloContent  = "hello snapshot\n"
	readmeContent = "read me first"
	changedHello  = "hello again, snapshot\n"
)

func day(d int) time.Time {
	return time.Date(2023, 1, d, 10, 0, 0, 0, time.UTC)
}

// newTestFilesystem writes three snapshots of host h1 into a local
// repository: the first two identical, the third with a changed hello.txt.
// The namespace is laid out as /h1/default/<date> with links as symlinks.
func newTestFilesystem(t *testing.T) *vfs.Filesystem {
	t.Helper()
	ctx := context.Background()

	backend, err := local.NewBackend(t.TempDir())
	require.NoError(t, err)
	writer := repository.NewWriter(backend, repository.WriterOptions{ChunkSize: 4, Compression: repository.CompressionLZ4})
	require.NoError(t, writer.Init(ctx))

	for d, hello := range []string{helloContent, helloContent, changedHello} {
		file, err := writer.File(ctx, "hello.txt", []byte(hello), nil, nil)
		require.NoError(t, err)
		readme, err := writer.File(ctx, "readme.md", []byte(readmeContent), nil, nil)
		require.NoError(t, err)
		docs, err := writer.Dir(ctx, "docs", []types.Node{readme}, nil)
		require.NoError(t, err)
		tree, err := writer.Tree(ctx, []types.Node{file, docs, types.NewSymlinkNode("link", "hello.txt")})
		require.NoError(t, err)
		_, err = writer.Snapshot(ctx, types.SnapshotFile{Time: day(d + 1), Hostname: "h1", Label: "default", Tree: tree})
		require.NoError(t, err)
	}

	repo, err := repository.Open(ctx, backend, repository.Options{Cache: cache.NewLRUCache(nil)})
	require.NoError(t, err)
	snapshots, err := repo.Snapshots(ctx)
	require.NoError(t, err)

	tree, err := vfs.BuildFromSnapshots(snapshots, vfs.BuildOptions{
		PathTemplate: "{hostname}/{label}/{time}",
		TimeTemplate: "%Y-%m-%d",
		Latest:       vfs.AsSymlink,
		Identical:    vfs.AsSymlink,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	return vfs.New(tree, repo, vfs.Options{Bridge: vfs.NewBridge(vfs.BridgeOffload, 4), Logger: zap.NewNop()})
}
