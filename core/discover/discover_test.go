package discover

import (
	"reflect"
	"testing"
	"testing/fstest"
)

func TestDiscoverFSDefaultPatterns(t *testing.T) {
	fsys := fstest.MapFS{
		"specs/b.md":             {Data: []byte("b")},
		"specs/a.md":             {Data: []byte("a")},
		"specs/nested/c.md":      {Data: []byte("c")},
		"specs/nested/deep/d.md": {Data: []byte("d")},
		"specs/notes.txt":        {Data: []byte("x")},
		"docs/e.md":              {Data: []byte("e")},
		"specs/dir.md/inner.md":  {Data: []byte("f")},
	}

	matches, err := NewGlobber(nil).DiscoverFS(fsys)
	if err != nil {
		t.Fatalf("DiscoverFS: %v", err)
	}
	want := []string{
		"specs/a.md",
		"specs/b.md",
		"specs/dir.md/inner.md",
		"specs/nested/c.md",
		"specs/nested/deep/d.md",
	}
	if !reflect.DeepEqual(matches, want) {
		t.Fatalf("unexpected matches: %#v", matches)
	}
}

func TestDiscoverFSCustomPatterns(t *testing.T) {
	fsys := fstest.MapFS{
		"docs/guide.md": {Data: []byte("g")},
		"specs/a.md":    {Data: []byte("a")},
	}
	matches, err := NewGlobber([]string{"./docs/*.md", "docs/**/*.md"}).DiscoverFS(fsys)
	if err != nil {
		t.Fatalf("DiscoverFS: %v", err)
	}
	if !reflect.DeepEqual(matches, []string{"docs/guide.md"}) {
		t.Fatalf("unexpected matches: %#v", matches)
	}
}

func TestDiscoverFSInvalidPattern(t *testing.T) {
	if _, err := NewGlobber([]string{"specs/[.md"}).DiscoverFS(fstest.MapFS{}); err == nil {
		t.Fatalf("expected invalid pattern error")
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	matches, err := NewGlobber(nil).Discover(t.TempDir())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %#v", matches)
	}
}
