package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestSandbox(t *testing.T) (*PathSandbox, string) {
	t.Helper()
	root := t.TempDir()
	s, err := NewPathSandbox(root)
	if err != nil {
		t.Fatalf("NewPathSandbox: %v", err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolvedRoot = root
	}
	return s, resolvedRoot
}

func TestPathSandbox_ValidRelativePath(t *testing.T) {
	s, root := newTestSandbox(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	resolved, err := s.Validate("a.txt")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := filepath.Join(root, "a.txt")
	if resolved != want {
		t.Errorf("resolved = %q, want %q", resolved, want)
	}
}

func TestPathSandbox_TraversalRejected(t *testing.T) {
	s, _ := newTestSandbox(t)

	for _, p := range []string{
		"../etc/passwd",
		"../../etc/passwd",
		`..\windows\system32`,
		"%2e%2e/etc/passwd",
		"%252e%252e/etc/passwd",
	} {
		if _, err := s.Validate(p); err == nil {
			t.Errorf("Validate(%q) = nil error, want SECURITY_ERROR", p)
		}
	}
}

func TestPathSandbox_OutsideWorkspaceRejected(t *testing.T) {
	s, _ := newTestSandbox(t)
	if _, err := s.Validate("/etc/passwd"); err == nil {
		t.Error("Validate(/etc/passwd) = nil error, want rejection")
	}
}

func TestPathSandbox_DefaultIgnorePatterns(t *testing.T) {
	s, root := newTestSandbox(t)
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref: refs/heads/main"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Validate(".git/HEAD"); err == nil {
		t.Error("Validate(.git/HEAD) = nil error, want ignore-pattern rejection")
	}
}

func TestPathSandbox_CustomIgnoreFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".gambiarraignore"), []byte("secrets/**\n# comment\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "secrets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "secrets", "key.pem"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewPathSandbox(root)
	if err != nil {
		t.Fatalf("NewPathSandbox: %v", err)
	}
	if _, err := s.Validate("secrets/key.pem"); err == nil {
		t.Error("Validate(secrets/key.pem) = nil error, want ignore-pattern rejection")
	}
}

func TestPathSandbox_IsDescendantOfWorkspaceRoot(t *testing.T) {
	s, root := newTestSandbox(t)
	if err := os.MkdirAll(filepath.Join(root, "sub", "dir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "dir", "f.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	resolved, err := s.Validate("sub/dir/f.txt")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !isDescendant(root, resolved) {
		t.Errorf("resolved %q is not a descendant of %q", resolved, root)
	}
}
