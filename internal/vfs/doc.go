// Package vfs builds and serves the read-only snapshot namespace.
//
// A namespace is an FsTree: an immutable graph whose entries are one of
//
//	*RealNode      a repository node; its children are looked up on demand
//	*SyntheticDir  a directory created by grouping snapshots on their
//	               rendered template path
//	*Link          "latest" or an identical-content alias of a sibling
//	               snapshot, presented as a symlink or as a directory
//
// BuildFromSnapshots lays out a set of snapshots; BuildFromNode mounts a
// single repository node. The tree is never mutated after construction and
// is shared by every request.
//
// Filesystem is the surface protocol adapters translate to. Every repository
// call it makes goes through a Bridge, which either runs the call inline or
// offloads it to a bounded set of goroutines. Repository failures surface as
// GENERAL_FAILURE; missing entries as NOT_FOUND.
package vfs
