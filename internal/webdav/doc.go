// Package webdav serves a snapshot namespace over WebDAV using
// golang.org/x/net/webdav.
//
// The namespace is read-only: write methods (PUT, DELETE, MKCOL, COPY, MOVE,
// PROPPATCH) are answered with 403 before reaching the WebDAV handler, and
// the FileSystem refuses every write-class open with os.ErrPermission.
// WebDAV has no symlinks, so latest and identical entries are always
// presented as the collection they point to.
package webdav
