package identity

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestResolver(t *testing.T) *Resolver {
	t.Helper()
	root := t.TempDir()
	resolver, err := Open(filepath.Join(root, ".cellrun", "fileid.db"), root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = resolver.Close() })
	return resolver
}

func TestIndexIsStable(t *testing.T) {
	resolver := openTestResolver(t)

	first, err := resolver.Index("notes/a.ipynb")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if first == "" {
		t.Fatal("empty id for indexed path")
	}

	second, err := resolver.Index("notes/a.ipynb")
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if second != first {
		t.Fatalf("id changed on reindex: %s then %s", first, second)
	}

	other, err := resolver.Index("notes/b.ipynb")
	if err != nil {
		t.Fatalf("index second path: %v", err)
	}
	if other == first {
		t.Fatal("distinct paths share an id")
	}
}

func TestIndexEmptyPath(t *testing.T) {
	resolver := openTestResolver(t)

	id, err := resolver.Index("")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if id != "" {
		t.Fatalf("empty path minted id %s", id)
	}
}

func TestPathResolvesIdentity(t *testing.T) {
	resolver := openTestResolver(t)

	id, err := resolver.Index("a.ipynb")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	path, err := resolver.Path(id)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if path != "a.ipynb" {
		t.Fatalf("unexpected path %s", path)
	}

	if _, err := resolver.Path("no-such-id"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestMoveKeepsIdentity(t *testing.T) {
	resolver := openTestResolver(t)

	id, err := resolver.Index("old.ipynb")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := resolver.Move("old.ipynb", "new.ipynb"); err != nil {
		t.Fatalf("move: %v", err)
	}

	path, err := resolver.Path(id)
	if err != nil {
		t.Fatalf("path after move: %v", err)
	}
	if path != "new.ipynb" {
		t.Fatalf("move not applied: %s", path)
	}

	again, err := resolver.Index("new.ipynb")
	if err != nil {
		t.Fatalf("index new path: %v", err)
	}
	if again != id {
		t.Fatalf("move minted a new id: %s vs %s", again, id)
	}

	// Moving an untracked path is a no-op.
	if err := resolver.Move("ghost.ipynb", "elsewhere.ipynb"); err != nil {
		t.Fatalf("move untracked: %v", err)
	}
}

func TestTouchRecordsSaveTime(t *testing.T) {
	resolver := openTestResolver(t)

	if _, err := resolver.Index("a.ipynb"); err != nil {
		t.Fatalf("index: %v", err)
	}

	before, err := resolver.LastTouched("a.ipynb")
	if err != nil {
		t.Fatalf("last touched: %v", err)
	}
	if !before.IsZero() {
		t.Fatalf("untouched path reports save time %v", before)
	}

	start := time.Now().Add(-time.Second)
	if err := resolver.Touch("a.ipynb"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	touched, err := resolver.LastTouched("a.ipynb")
	if err != nil {
		t.Fatalf("last touched: %v", err)
	}
	if touched.Before(start) {
		t.Fatalf("stale touch time %v", touched)
	}
}

func TestNormalizePath(t *testing.T) {
	resolver := openTestResolver(t)

	if got := resolver.NormalizePath("./notes/../a.ipynb"); got != "a.ipynb" {
		t.Fatalf("clean failed: %s", got)
	}
	if got := resolver.NormalizePath(filepath.Join(resolver.root, "sub", "b.ipynb")); got != "sub/b.ipynb" {
		t.Fatalf("absolute path not made root-relative: %s", got)
	}
	if got := resolver.NormalizePath("  "); got != "" {
		t.Fatalf("blank path normalized to %q", got)
	}
}
