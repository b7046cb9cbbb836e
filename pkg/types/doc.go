/*
Package types provides the core interfaces and data structures shared by the
snapfs packages.

# Architecture Overview

snapfs layers a read-only virtual namespace over the snapshots of a
content-addressed backup repository:

	┌─────────────────────────────────────────────┐
	│        FUSE / WebDAV protocol adapters      │
	│     (internal/fuse, internal/webdav)        │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│   Virtual filesystem (namespace, resolver,  │
	│     open files, blocking bridge)            │
	│              (internal/vfs)                 │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│    Repository (snapshots, trees, chunks)    │
	│          (internal/repository)              │
	└─────────────────────────────────────────────┘
	          │                     │
	┌─────────┴───┐          ┌──────┴──────┐
	│   Backend   │          │    Cache    │
	│ local / S3  │          │    (LRU)    │
	└─────────────┘          └─────────────┘

# Core Interfaces

Repository:
The read-only view of a repository: snapshot enumeration, directory
lookups and listings, and ranged file reads. Missing entries are reported
with errors wrapping fs.ErrNotExist.

Backend:
Blob storage holding the repository objects. A local directory and S3 are
provided.

Cache:
Byte-slice cache with hit/miss statistics, used for decoded trees and
decompressed chunks.

MetricsCollector:
Operation counters and latencies recorded by the virtual filesystem.

# Data Structures

ID is a 32-byte content hash. Node is an immutable entry of a repository
directory tree; directories reference their children by Subtree id and
files list their chunks in Content. SnapshotFile carries the snapshot
metadata rendered by path templates. OpenedFile is a file prepared for
ranged reads.
*/
package types
