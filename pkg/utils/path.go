package utils

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// SplitPath breaks a slash-separated namespace path into its segments.
// Empty segments and "." are dropped; ".." is rejected because the
// namespace has no parent traversal.
//
// Example:
//
//	SplitPath("/h1//default/./latest/") // ["h1", "default", "latest"]
func SplitPath(p string) ([]string, error) {
	var segments []string
	for _, segment := range strings.Split(p, "/") {
		switch segment {
		case "", ".":
			continue
		case "..":
			return nil, fmt.Errorf("path contains directory traversal: %s", p)
		}
		segments = append(segments, segment)
	}
	return segments, nil
}

// JoinPath renders segments as an absolute namespace path.
func JoinPath(segments ...string) string {
	return "/" + path.Join(segments...)
}

// SecureJoin safely joins path elements and ensures the result stays within the base directory.
// Unlike filepath.Join, this function validates that the result doesn't escape the base through
// directory traversal.
//
// Example usage:
//
//	safePath, err := SecureJoin("/srv/repo", "data", key)
//	if err != nil {
//		return fmt.Errorf("invalid object key: %w", err)
//	}
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	if !strings.HasPrefix(fullPath, cleanBase+string(filepath.Separator)) && fullPath != cleanBase {
		return "", fmt.Errorf("path escapes base directory")
	}

	return fullPath, nil
}
