/*
Package fuse mounts a snapshot namespace as a read-only kernel filesystem.

Two implementations are selected with build constraints:

	go build ./...               // github.com/hanwen/go-fuse/v2 (Linux, macOS)
	go build -tags cgofuse ./... // github.com/winfsp/cgofuse (macOS, Windows)

Both translate kernel requests into calls on a vfs.Filesystem:

	lookup, getattr  → Metadata (a final link is not followed)
	readdir          → ListDir
	readlink         → Readlink
	open             → Open, then ReadAt per read request
	create, mkdir,
	unlink, rename,
	setattr, ...     → EROFS

Namespace errors become errno values:

	NOT_FOUND        ENOENT
	WRONG_TYPE       ENOTDIR, or EISDIR when opening a directory
	FORBIDDEN        EROFS
	INVALID_SEEK     EINVAL
	NOT_IMPLEMENTED  ENOSYS
	anything else    EIO (logged at warn level)

Snapshot content is immutable, so files are opened with FOPEN_KEEP_CACHE and
attribute and entry timeouts default to one minute.

# Usage

	mgr := fuse.CreatePlatformMountManager(fsys, &fuse.MountConfig{
		Mountpoint: "/mnt/snapshots",
		AllowOther: true,
	})
	if err := mgr.Mount(ctx); err != nil {
		return err
	}
	defer mgr.Unmount()
	mgr.Wait()
*/
package fuse
