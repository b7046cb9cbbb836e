package types

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// IDSize is the length in bytes of a repository object id.
const IDSize = 32

// ID addresses an object in the repository by its content hash.
type ID [IDSize]byte

// String returns the full hex representation.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first eight hex characters, used for display.
func (id ID) Short() string {
	return id.String()[:8]
}

// IsNull reports whether the id is all zeros.
func (id ID) IsNull() bool {
	return id == ID{}
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID parses a full hex id.
func ParseID(s string) (ID, error) {
	var id ID
	if len(s) != 2*IDSize {
		return id, fmt.Errorf("invalid id length %d: %q", len(s), s)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

// NodeKind is the type of a repository tree entry.
type NodeKind uint8

const (
	NodeFile NodeKind = iota + 1
	NodeDir
	NodeSymlink
)

// String returns the string representation of the node kind
func (k NodeKind) String() string {
	switch k {
	case NodeFile:
		return "file"
	case NodeDir:
		return "dir"
	case NodeSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Blob is one content chunk of a file, in reconstruction order.
type Blob struct {
	ID     ID     `cbor:"id" json:"id"`
	Length uint32 `cbor:"length" json:"length"`
}

// NodeMeta carries the optional POSIX metadata of a node.
type NodeMeta struct {
	Size  uint64     `cbor:"size" json:"size"`
	Mode  *uint32    `cbor:"mode,omitempty" json:"mode,omitempty"`
	Mtime *time.Time `cbor:"mtime,omitempty" json:"mtime,omitempty"`
	Atime *time.Time `cbor:"atime,omitempty" json:"atime,omitempty"`
	Ctime *time.Time `cbor:"ctime,omitempty" json:"ctime,omitempty"`
}

// Node is an entry of a repository directory tree. Nodes are owned by the
// repository and treated as immutable values everywhere else.
type Node struct {
	Name       string   `cbor:"name" json:"name"`
	Kind       NodeKind `cbor:"kind" json:"kind"`
	Meta       NodeMeta `cbor:"meta" json:"meta"`
	Subtree    *ID      `cbor:"subtree,omitempty" json:"subtree,omitempty"`
	Content    []Blob   `cbor:"content,omitempty" json:"content,omitempty"`
	LinkTarget string   `cbor:"link_target,omitempty" json:"link_target,omitempty"`
}

// NewDirNode returns a directory node pointing at subtree.
func NewDirNode(name string, subtree *ID, meta NodeMeta) Node {
	return Node{Name: name, Kind: NodeDir, Meta: meta, Subtree: subtree}
}

// NewSymlinkNode returns a symlink node whose size is the target length.
func NewSymlinkNode(name, target string) Node {
	return Node{
		Name:       name,
		Kind:       NodeSymlink,
		Meta:       NodeMeta{Size: uint64(len(target))},
		LinkTarget: target,
	}
}

func (n *Node) IsDir() bool     { return n.Kind == NodeDir }
func (n *Node) IsFile() bool    { return n.Kind == NodeFile }
func (n *Node) IsSymlink() bool { return n.Kind == NodeSymlink }

// Rename returns a copy of the node carrying a different name.
func (n Node) Rename(name string) Node {
	n.Name = name
	return n
}

// TagList is the tag set of a snapshot.
type TagList []string

// String joins the tags with commas.
func (t TagList) String() string {
	return strings.Join(t, ",")
}

// Contains reports whether tag is in the list.
func (t TagList) Contains(tag string) bool {
	for _, existing := range t {
		if existing == tag {
			return true
		}
	}
	return false
}

// Summary records when the backup run that produced a snapshot started and
// finished.
type Summary struct {
	BackupStart time.Time `cbor:"backup_start" json:"backup_start"`
	BackupEnd   time.Time `cbor:"backup_end" json:"backup_end"`
}

// SnapshotFile describes one immutable snapshot. ID is derived from the
// stored object and is not part of the encoding.
type SnapshotFile struct {
	ID       ID        `cbor:"-" json:"id"`
	Time     time.Time `cbor:"time" json:"time"`
	Hostname string    `cbor:"hostname" json:"hostname"`
	Username string    `cbor:"username" json:"username"`
	Label    string    `cbor:"label" json:"label"`
	Tags     TagList   `cbor:"tags,omitempty" json:"tags,omitempty"`
	Paths    []string  `cbor:"paths,omitempty" json:"paths,omitempty"`
	Summary  *Summary  `cbor:"summary,omitempty" json:"summary,omitempty"`
	Tree     ID        `cbor:"tree" json:"tree"`
}

// RootNode returns the directory node for the snapshot root, named name.
func (s *SnapshotFile) RootNode(name string) Node {
	mtime := s.Time
	tree := s.Tree
	return NewDirNode(name, &tree, NodeMeta{Mtime: &mtime})
}

// SortSnapshots orders snapshots by time, breaking ties by id.
func SortSnapshots(snapshots []SnapshotFile) {
	sort.SliceStable(snapshots, func(i, j int) bool {
		if !snapshots[i].Time.Equal(snapshots[j].Time) {
			return snapshots[i].Time.Before(snapshots[j].Time)
		}
		return snapshots[i].ID.String() < snapshots[j].ID.String()
	})
}

// OpenedFile is a file prepared for ranged reads: its chunk list together
// with the starting offset of every chunk.
type OpenedFile struct {
	Size    uint64
	Blobs   []Blob
	Offsets []uint64
}

// NewOpenedFile computes the chunk offsets of a file node.
func NewOpenedFile(node Node) (*OpenedFile, error) {
	if !node.IsFile() {
		return nil, fmt.Errorf("node %q is a %s, not a file", node.Name, node.Kind)
	}
	offsets := make([]uint64, len(node.Content))
	var cumulative uint64
	for i, blob := range node.Content {
		offsets[i] = cumulative
		cumulative += uint64(blob.Length)
	}
	if cumulative != node.Meta.Size {
		return nil, fmt.Errorf("chunk sizes of %q sum to %d bytes, but node says %d",
			node.Name, cumulative, node.Meta.Size)
	}
	return &OpenedFile{Size: node.Meta.Size, Blobs: node.Content, Offsets: offsets}, nil
}

// Locate returns the index of the chunk containing offset, or -1 when the
// offset lies at or past the end of the file.
func (f *OpenedFile) Locate(offset uint64) int {
	if offset >= f.Size || len(f.Offsets) == 0 {
		return -1
	}
	index := sort.Search(len(f.Offsets), func(i int) bool {
		return f.Offsets[i] > offset
	}) - 1
	if index < 0 {
		return -1
	}
	return index
}

// ObjectInfo represents metadata about a stored object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag"`
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}
