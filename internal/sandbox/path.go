package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathSandbox validates user-supplied paths against a fixed root,
// rejecting traversal via absolute paths, `..` segments, NUL bytes, and
// symlinks whose real target escapes the root. One instance per root
// (workspace, clone directory, notes directory, ...) — the rule is
// identical, only the root differs.
type PathSandbox struct {
	Root string
}

// NewPathSandbox returns a sandbox rooted at root (defaulting to the
// current directory when root is empty).
func NewPathSandbox(root string) PathSandbox {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	return PathSandbox{Root: root}
}

// Resolve validates userPath against the sandbox root and returns the
// absolute, cleaned path. It denies absolute input, `..` segments, and NUL
// bytes outright; if the resolved target exists on disk, its real path
// (with symlinks followed) must still be within the canonical root.
func (s PathSandbox) Resolve(userPath string) (string, error) {
	clean := strings.TrimSpace(userPath)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.ContainsRune(clean, 0) {
		return "", fmt.Errorf("path contains a NUL byte")
	}
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("Path traversal: absolute paths are not allowed")
	}
	if containsParentSegment(clean) {
		return "", fmt.Errorf("Path traversal: parent-directory segments are not allowed")
	}

	rootAbs, err := filepath.Abs(s.Root)
	if err != nil {
		return "", fmt.Errorf("resolve sandbox root: %w", err)
	}
	rootReal, err := realPath(rootAbs)
	if err != nil {
		return "", fmt.Errorf("resolve sandbox root: %w", err)
	}

	target := filepath.Join(rootAbs, clean)
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !withinRoot(rootReal, targetAbs) {
		return "", fmt.Errorf("Path traversal: escapes workspace")
	}

	if _, err := os.Lstat(targetAbs); err == nil {
		real, err := realPath(targetAbs)
		if err != nil {
			return "", fmt.Errorf("resolve real path: %w", err)
		}
		if !withinRoot(rootReal, real) {
			return "", fmt.Errorf("path escapes via symlink")
		}
	}

	return targetAbs, nil
}

func containsParentSegment(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// realPath resolves symlinks in components that exist; for components
// that do not yet exist (e.g. a file about to be created), it walks up to
// the nearest existing ancestor and resolves that, then rejoins the
// remaining (not-yet-created) suffix unresolved.
func realPath(p string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved, nil
	}

	dir := filepath.Dir(p)
	base := filepath.Base(p)
	if dir == p {
		return p, nil
	}
	resolvedDir, err := realPath(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}

func withinRoot(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
