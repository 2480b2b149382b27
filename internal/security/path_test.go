package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinBoundary_Valid(t *testing.T) {
	boundary := "/srv/apps"
	validPaths := []string{
		"/srv/apps",
		"/srv/apps/tickets.yaml",
		"/srv/apps/nested/survey.json",
		"/srv/apps/..hidden.yaml",
		"/srv/apps/nested/../orders.yaml",
	}

	for _, path := range validPaths {
		if err := ValidatePathWithinBoundary(boundary, path); err != nil {
			t.Errorf("Expected path %q to be valid within %q, got error: %v", path, boundary, err)
		}
	}
}

func TestValidatePathWithinBoundary_PathTraversal(t *testing.T) {
	boundary := "/srv/apps"
	maliciousPaths := []string{
		"/srv/apps/../../etc/passwd",
		"/srv/apps/../secrets.yaml",
		"/srv",
		"/etc/passwd",
	}

	for _, path := range maliciousPaths {
		if err := ValidatePathWithinBoundary(boundary, path); err == nil {
			t.Errorf("Expected path %q to be rejected, but it was allowed", path)
		}
	}
}

func TestValidatePathWithinBoundary_Relative(t *testing.T) {
	if err := ValidatePathWithinBoundary("apps", filepath.Join("apps", "a.yaml")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePathWithinBoundary("apps", filepath.Join("apps", "..", "a.yaml")); err == nil {
		t.Error("expected relative traversal to be rejected")
	}
}

func TestResolveWithinBoundary_Symlinks(t *testing.T) {
	root := t.TempDir()
	apps := filepath.Join(root, "apps")
	if err := os.Mkdir(apps, 0o755); err != nil {
		t.Fatal(err)
	}

	inside := filepath.Join(apps, "tickets.yaml")
	outside := filepath.Join(root, "secret.yaml")
	for _, f := range []string{inside, outside} {
		if err := os.WriteFile(f, []byte("id: x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := ResolveWithinBoundary(apps, inside); err != nil {
		t.Errorf("regular file rejected: %v", err)
	}

	link := filepath.Join(apps, "escape.yaml")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if _, err := ResolveWithinBoundary(apps, link); err == nil {
		t.Error("expected symlink leaving the boundary to be rejected")
	}

	if _, err := ResolveWithinBoundary(apps, filepath.Join(apps, "missing.yaml")); err == nil {
		t.Error("expected missing file to fail")
	}
}
