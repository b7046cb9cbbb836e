// Package repository reads and writes content-addressed backup
// repositories stored in a blob backend.
//
// A repository holds three object classes, each under its own key prefix:
//
//	snapshots/<id>  CBOR snapshot description
//	trees/<id>      CBOR list of directory nodes, sorted by name
//	data/<id>       raw file chunk
//
// Object ids are keyed BLAKE3 hashes of the uncompressed bytes. Stored
// objects are framed with a compression tag and the uncompressed length
// and may be LZ4 or zstd compressed.
//
// Repository implements types.Repository for the virtual filesystem.
// Writer creates repositories and is mainly used to seed fixtures.
package repository
