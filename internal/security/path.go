// Package security guards file access against paths escaping a directory.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinBoundary ensures targetPath is boundaryPath or lies below
// it, so "../" sequences cannot escape the boundary.
func ValidatePathWithinBoundary(boundaryPath, targetPath string) error {
	absBoundary, err := filepath.Abs(boundaryPath)
	if err != nil {
		return fmt.Errorf("failed to resolve boundary path %q: %w", boundaryPath, err)
	}

	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return fmt.Errorf("failed to resolve target path %q: %w", targetPath, err)
	}

	rel, err := filepath.Rel(absBoundary, absTarget)
	if err != nil {
		return fmt.Errorf("invalid path relationship between %q and %q: %w", absBoundary, absTarget, err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected: %q escapes boundary %q", targetPath, boundaryPath)
	}

	return nil
}

// ResolveWithinBoundary follows symlinks in targetPath and checks that the
// real file still lies within boundaryPath. It returns the resolved path.
func ResolveWithinBoundary(boundaryPath, targetPath string) (string, error) {
	realBoundary, err := filepath.EvalSymlinks(boundaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve boundary path %q: %w", boundaryPath, err)
	}
	realTarget, err := filepath.EvalSymlinks(targetPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %q: %w", targetPath, err)
	}
	if err := ValidatePathWithinBoundary(realBoundary, realTarget); err != nil {
		return "", err
	}
	return realTarget, nil
}
