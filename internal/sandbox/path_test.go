package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathSandbox_RejectsAbsoluteAndParent(t *testing.T) {
	s := NewPathSandbox(t.TempDir())

	for _, p := range []string{"/etc/passwd", "../outside", "a/../../b", "a\x00b"} {
		if _, err := s.Resolve(p); err == nil {
			t.Errorf("Resolve(%q) = nil error, want rejection", p)
		}
	}
}

func TestPathSandbox_AllowsPlainRelativePath(t *testing.T) {
	root := t.TempDir()
	s := NewPathSandbox(root)

	got, err := s.Resolve("notes/todo.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(root, "notes/todo.txt")
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestPathSandbox_DeniesSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("shh"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	s := NewPathSandbox(root)
	if _, err := s.Resolve("escape/secret.txt"); err == nil {
		t.Errorf("Resolve via symlink = nil error, want escape rejection")
	}
}

func TestPathSandbox_AllowsSymlinkWithinRoot(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real")
	if err := os.Mkdir(target, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	link := filepath.Join(root, "alias")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	s := NewPathSandbox(root)
	if _, err := s.Resolve("alias"); err != nil {
		t.Errorf("Resolve(alias) = %v, want allowed", err)
	}
}
