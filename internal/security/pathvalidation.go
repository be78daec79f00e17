// Package security validates caller-supplied identifiers before they become
// filesystem paths.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsafeVersion is returned for a model version that cannot be used as a
// single directory name.
var ErrUnsafeVersion = errors.New("unsafe model version")

const maxVersionLen = 64

// ValidateVersion accepts identifiers made of ASCII letters, digits, dot,
// underscore and dash, such as "v0.3". "." and ".." are rejected.
func ValidateVersion(v string) error {
	if v == "" {
		return fmt.Errorf("%w: empty", ErrUnsafeVersion)
	}
	if len(v) > maxVersionLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrUnsafeVersion, maxVersionLen)
	}
	if v == "." || v == ".." {
		return fmt.Errorf("%w: %q", ErrUnsafeVersion, v)
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrUnsafeVersion, v, r)
		}
	}
	return nil
}

// ValidatePathWithinDirectory checks that filePath, after resolving symlinks
// of its deepest existing ancestor, stays inside safeDir.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalPath := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		canonicalPath = resolved
	} else {
		// Walk up to the first existing parent so a symlinked directory
		// cannot redirect a file that does not exist yet.
		for checkPath := absPath; ; {
			parentDir := filepath.Dir(checkPath)
			if parentDir == checkPath {
				break
			}
			if resolved, err := filepath.EvalSymlinks(parentDir); err == nil {
				rel, _ := filepath.Rel(parentDir, absPath)
				canonicalPath = filepath.Join(resolved, rel)
				break
			}
			checkPath = parentDir
		}
	}

	canonicalSafeDir := absSafeDir
	if resolved, err := filepath.EvalSymlinks(absSafeDir); err == nil {
		canonicalSafeDir = resolved
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}
