package doctree

import (
	"path/filepath"
	"testing"
)

func TestSameTree(t *testing.T) {
	r := New()
	r.Add("/w/notes")

	if !r.SameTree("/w/notes/a.wly", "/w/notes/sub/b.wly") {
		t.Error("documents under the same root should share a tree")
	}
	if r.SameTree("/w/notes/a.wly", "/w/other/b.wly") {
		t.Error("documents under different roots should not share a tree")
	}
}

func TestSameTreeIdentity(t *testing.T) {
	r := New()
	if !r.SameTree("/w/a.wly", "/w/a.wly") {
		t.Error("a document always shares a tree with itself")
	}
	if r.SameTree("/w/a.wly", "/w/b.wly") {
		t.Error("unrooted documents are standalone")
	}
}

func TestContainmentNeedsSeparator(t *testing.T) {
	r := New()
	r.Add("/w/foo")

	if r.SameTree("/w/foo/a.wly", "/w/foo-bar/b.wly") {
		t.Error("/w/foo-bar must not count as inside /w/foo")
	}
	if trees := r.TreesOf("/w/foo-bar/b.wly"); len(trees) != 0 {
		t.Errorf("TreesOf(/w/foo-bar/b.wly) = %v, want none", trees)
	}
}

func TestNestedRoots(t *testing.T) {
	r := New()
	r.Add("/w")
	r.Add("/w/inner")

	trees := r.TreesOf("/w/inner/doc.wly")
	if len(trees) != 2 || trees[0] != "/w" || trees[1] != filepath.Clean("/w/inner") {
		t.Errorf("TreesOf = %v, want [/w /w/inner]", trees)
	}
	if !r.SameTree("/w/top.wly", "/w/inner/doc.wly") {
		t.Error("outer root should join nested documents")
	}
}

func TestRemove(t *testing.T) {
	r := New()
	r.Add("/w/notes")
	r.Remove("/w/notes")

	if r.SameTree("/w/notes/a.wly", "/w/notes/b.wly") {
		t.Error("removed root should no longer join documents")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestIsMarkerAndIsDocument(t *testing.T) {
	if !IsMarker("/w/notes/__parent.wly") {
		t.Error("__parent.wly is a marker")
	}
	if IsDocument("/w/notes/__parent.wly") {
		t.Error("the marker is not a document")
	}
	if !IsDocument("/w/notes/a.wly") {
		t.Error("a.wly is a document")
	}
	if IsDocument("/w/notes/a.txt") {
		t.Error("a.txt is not a document")
	}
}
