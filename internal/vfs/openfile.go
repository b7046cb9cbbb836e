package vfs

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/types"
)

// OpenFile is a read handle on one file node with its own cursor. Handles
// never share state, so concurrent reads on different handles of the same
// file do not interfere.
type OpenFile struct {
	path   string
	meta   Metadata
	file   *types.OpenedFile
	repo   types.Repository
	bridge *Bridge

	// observe, when set, receives the outcome of every read.
	observe func(op string, start time.Time, size int, err error)

	mu     sync.Mutex
	cursor uint64
}

// Path returns the namespace path the handle was opened with.
func (f *OpenFile) Path() string { return f.path }

// Metadata returns the metadata of the opened file.
func (f *OpenFile) Metadata() Metadata { return f.meta }

// Size returns the file size.
func (f *OpenFile) Size() uint64 { return f.file.Size }

// Cursor returns the current offset.
func (f *OpenFile) Cursor() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor
}

// Seek moves the cursor. whence is io.SeekStart, io.SeekCurrent or
// io.SeekEnd. A target before the start of the file is rejected with
// INVALID_SEEK and leaves the cursor unchanged. Seeking past the end is
// allowed; reads there return no data. OpenFile implements io.Seeker.
func (f *OpenFile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var base uint64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = f.cursor
	case io.SeekEnd:
		base = f.file.Size
	default:
		return int64(f.cursor), errors.NewError(errors.ErrCodeInvalidSeek, "invalid whence").WithPath(f.path)
	}

	target, ok := addOffset(base, offset)
	if !ok {
		return int64(f.cursor), errors.NewError(errors.ErrCodeInvalidSeek, "seek before start of file").
			WithPath(f.path).
			WithDetail("base", base).
			WithDetail("offset", offset)
	}
	f.cursor = target
	return int64(target), nil
}

// addOffset returns base+offset when the result is in [0, MaxInt64].
func addOffset(base uint64, offset int64) (uint64, bool) {
	if base > math.MaxInt64 {
		return 0, false
	}
	b := int64(base)
	if offset > 0 && b > math.MaxInt64-offset {
		return 0, false
	}
	sum := b + offset
	if sum < 0 {
		return 0, false
	}
	return uint64(sum), true
}

// Read returns up to count bytes from the cursor and advances it by the
// number of bytes returned. At end of file it returns an empty slice and no
// error.
func (f *OpenFile) Read(ctx context.Context, count int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.readAt(ctx, f.cursor, count)
	if err != nil {
		return nil, err
	}
	f.cursor += uint64(len(data))
	return data, nil
}

// ReadAt returns up to count bytes at offset without touching the cursor.
func (f *OpenFile) ReadAt(ctx context.Context, offset uint64, count int) ([]byte, error) {
	return f.readAt(ctx, offset, count)
}

func (f *OpenFile) readAt(ctx context.Context, offset uint64, count int) ([]byte, error) {
	start := time.Now()
	if count <= 0 || offset >= f.file.Size {
		f.report(start, 0, nil)
		return []byte{}, nil
	}
	if remaining := f.file.Size - offset; uint64(count) > remaining {
		count = int(remaining)
	}

	data, err := Run(ctx, f.bridge, func(ctx context.Context) ([]byte, error) {
		return f.repo.ReadFileAt(ctx, f.file, offset, count)
	})
	if err != nil {
		err = errors.GeneralFailure("read", f.path, err)
	}
	f.report(start, len(data), err)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *OpenFile) report(start time.Time, size int, err error) {
	if f.observe != nil {
		f.observe("read", start, size, err)
	}
}
