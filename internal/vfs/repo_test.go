package vfs

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/objectfs/snapfs/pkg/types"
)

// memRepo is an in-memory types.Repository. Each file is stored as one blob
// per chunkSize bytes.
type memRepo struct {
	mu        sync.Mutex
	trees     map[types.ID][]types.Node
	blobs     map[types.ID][]byte
	next      uint32
	chunkSize int

	// failLookup makes Lookup of the given name fail with a storage error.
	failLookup string
	lookups    atomic.Int64
	reads      atomic.Int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		trees:     make(map[types.ID][]types.Node),
		blobs:     make(map[types.ID][]byte),
		chunkSize: 4,
	}
}

func (r *memRepo) newID() types.ID {
	r.next++
	var id types.ID
	id[0] = byte(r.next >> 24)
	id[1] = byte(r.next >> 16)
	id[2] = byte(r.next >> 8)
	id[3] = byte(r.next)
	return id
}

// tree stores nodes and returns the tree id.
func (r *memRepo) tree(nodes ...types.Node) types.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := append([]types.Node(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	id := r.newID()
	r.trees[id] = sorted
	return id
}

func (r *memRepo) dir(name string, nodes ...types.Node) types.Node {
	id := r.tree(nodes...)
	return types.NewDirNode(name, &id, types.NodeMeta{})
}

func (r *memRepo) file(name, content string) types.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	node := types.Node{Name: name, Kind: types.NodeFile, Meta: types.NodeMeta{Size: uint64(len(content))}}
	for start := 0; start < len(content); start += r.chunkSize {
		end := start + r.chunkSize
		if end > len(content) {
			end = len(content)
		}
		id := r.newID()
		r.blobs[id] = []byte(content[start:end])
		node.Content = append(node.Content, types.Blob{ID: id, Length: uint32(end - start)})
	}
	return node
}

func (r *memRepo) Snapshots(context.Context) ([]types.SnapshotFile, error) {
	return nil, nil
}

func (r *memRepo) Lookup(_ context.Context, tree types.ID, name string) (types.Node, error) {
	r.lookups.Add(1)
	if name == r.failLookup {
		return types.Node{}, fmt.Errorf("backend unavailable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, node := range r.trees[tree] {
		if node.Name == name {
			return node, nil
		}
	}
	return types.Node{}, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
}

func (r *memRepo) ReadDir(_ context.Context, tree types.ID) ([]types.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nodes, ok := r.trees[tree]
	if !ok {
		return nil, fmt.Errorf("tree %s: %w", tree.Short(), fs.ErrNotExist)
	}
	return nodes, nil
}

func (r *memRepo) OpenFile(_ context.Context, node types.Node) (*types.OpenedFile, error) {
	return types.NewOpenedFile(node)
}

func (r *memRepo) ReadFileAt(_ context.Context, file *types.OpenedFile, offset uint64, count int) ([]byte, error) {
	r.reads.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []byte
	for i := file.Locate(offset); i >= 0 && i < len(file.Blobs) && len(out) < count; i++ {
		chunk := r.blobs[file.Blobs[i].ID]
		start := uint64(0)
		if offset > file.Offsets[i] {
			start = offset - file.Offsets[i]
		}
		chunk = chunk[start:]
		if rest := count - len(out); len(chunk) > rest {
			chunk = chunk[:rest]
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// snapshot returns a snapshot with the given tree and a deterministic id.
func snapshot(id byte, host, label string, at time.Time, tree types.ID) types.SnapshotFile {
	var sid types.ID
	sid[0] = 0xee
	sid[1] = id
	return types.SnapshotFile{
		ID:       sid,
		Time:     at,
		Hostname: host,
		Label:    label,
		Tree:     tree,
	}
}

func day(d int) time.Time {
	return time.Date(2023, 1, d, 10, 0, 0, 0, time.UTC)
}
