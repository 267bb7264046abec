package utils

import (
	"path/filepath"
	"strings"
)

// ResolvePath returns the absolute, symlink-resolved form of path. Paths that
// no longer exist are resolved lexically.
func ResolvePath(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return filepath.Clean(resolved)
	}
	return abs
}

// IsPathWithin returns true if the given path is one of the roots or lies
// beneath one of them.
func IsPathWithin(path string, roots []string) bool {
	absPath := ResolvePath(path)
	for _, root := range roots {
		if root == "" {
			continue
		}
		if isWithin(absPath, ResolvePath(root)) {
			return true
		}
	}
	return false
}

func isWithin(absPath, absRoot string) bool {
	rel, err := filepath.Rel(absRoot, absPath)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
