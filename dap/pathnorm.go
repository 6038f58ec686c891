package dap

import (
	"path/filepath"
	"runtime"
	"strings"
)

// normalizePath canonicalizes a source path to an absolute, symlink-
// resolved, (on case-insensitive filesystems) case-folded form. This is
// the SAME function SetBreakpoints and BeforeStep both run a path
// through, per invariant 5: breakpoint lookups must use identical
// normalization to the one used at registration time.
func normalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if real, err := filepath.EvalSymlinks(path); err == nil {
		path = real
	}
	if caseInsensitiveFS() {
		path = strings.ToLower(path)
	}
	return path
}

// caseInsensitiveFS reports whether the host OS's default filesystem
// folds case, matching the case-insensitive branch of the normalization
// rule in spec §6.
func caseInsensitiveFS() bool {
	switch runtime.GOOS {
	case "windows", "darwin":
		return true
	default:
		return false
	}
}
