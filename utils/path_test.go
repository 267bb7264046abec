package utils

import (
	"path/filepath"
	"testing"
)

func TestIsPathWithin(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "a", "b.txt")
	outside := filepath.Join(filepath.Dir(root), "outside.txt")

	if !IsPathWithin(child, []string{root}) {
		t.Fatalf("expected %s to be within %s", child, root)
	}
	if !IsPathWithin(root, []string{root}) {
		t.Fatal("root should contain itself")
	}
	if IsPathWithin(outside, []string{root}) {
		t.Fatalf("did not expect %s to be within %s", outside, root)
	}
	if IsPathWithin(root+"-sibling", []string{root}) {
		t.Fatal("prefix sibling must not match")
	}
}

func TestIsPathWithinMultipleRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	inB := filepath.Join(rootB, "nested", "file.txt")

	if !IsPathWithin(inB, []string{"", rootA, rootB}) {
		t.Fatalf("expected path under second root to match")
	}
}
