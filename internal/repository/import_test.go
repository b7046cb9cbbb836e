package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/snapfs/internal/storage/local"
	"github.com/objectfs/snapfs/pkg/errors"
)

func TestWriter_ImportDir(t *testing.T) {
	ctx := context.Background()

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "etc", "conf.d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "etc", "hosts"), []byte("127.0.0.1 localhost\n"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(src, "etc", "conf.d", "empty"), nil, 0o600))
	require.NoError(t, os.Symlink("etc/hosts", filepath.Join(src, "hosts")))

	backend, err := local.NewBackend(t.TempDir())
	require.NoError(t, err)
	writer := NewWriter(backend, WriterOptions{ChunkSize: 8, Compression: CompressionZstd})
	require.NoError(t, writer.Init(ctx))

	tree, stats, err := writer.ImportDir(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 2, stats.Dirs)
	assert.Equal(t, 1, stats.Symlinks)
	assert.Equal(t, int64(20), stats.Bytes)

	repo, err := Open(ctx, backend, Options{Verify: true})
	require.NoError(t, err)

	link, err := repo.Lookup(ctx, tree, "hosts")
	require.NoError(t, err)
	assert.True(t, link.IsSymlink())
	assert.Equal(t, "etc/hosts", link.LinkTarget)

	etc, err := repo.Lookup(ctx, tree, "etc")
	require.NoError(t, err)
	require.True(t, etc.IsDir())
	require.NotNil(t, etc.Meta.Mode)
	assert.Equal(t, uint32(0o755), *etc.Meta.Mode&0o777)

	hosts, err := repo.Lookup(ctx, *etc.Subtree, "hosts")
	require.NoError(t, err)
	require.NotNil(t, hosts.Meta.Mode)
	assert.Equal(t, uint32(0o640), *hosts.Meta.Mode)
	assert.Len(t, hosts.Content, 3)

	opened, err := repo.OpenFile(ctx, hosts)
	require.NoError(t, err)
	data, err := repo.ReadFileAt(ctx, opened, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost\n", string(data))
}

func TestWriter_ImportDirErrors(t *testing.T) {
	ctx := context.Background()
	backend, err := local.NewBackend(t.TempDir())
	require.NoError(t, err)
	writer := NewWriter(backend, WriterOptions{})

	_, _, err = writer.ImportDir(ctx, filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeStorageRead))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, _, err = writer.ImportDir(ctx, file)
	assert.True(t, errors.HasCode(err, errors.ErrCodeWrongType))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a"), []byte("a"), 0o644))
	_, _, err = writer.ImportDir(cancelled, src)
	assert.ErrorIs(t, err, context.Canceled)
}
