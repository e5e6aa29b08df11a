package fileset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"index.html", "index.html"},
		{`docs\guide\index.html`, "docs/guide/index.html"},
		{"./about/index.html", "about/index.html"},
		{"././a.html", "a.html"},
		// NFD "e" + combining acute becomes NFC "é".
		{"cafe\u0301.html", "caf\u00e9.html"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := NormalizePath(tt.in); got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	set := New(map[string][]byte{
		`blog\post.html`: []byte("<a href=x>"),
		"index.html":     []byte("<p>hi</p>"),
	})

	if set.Len() != 2 {
		t.Fatalf("expected 2 documents, got %d", set.Len())
	}
	if !set.Has("blog/post.html") {
		t.Error("expected backslash path to be normalized")
	}
	paths := set.Paths()
	if paths[0] != "blog/post.html" || paths[1] != "index.html" {
		t.Errorf("expected sorted paths, got %v", paths)
	}
	doc, ok := set.Get("index.html")
	if !ok || string(doc.Contents) != "<p>hi</p>" {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write := func(rel, contents string) {
		t.Helper()
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(contents), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("index.html", "<a href=about/>about</a>")
	write("about/index.html", "about")
	write("img/logo.png", "PNG")
	write(".git/HEAD", "ref")

	t.Run("records every file and filters contents", func(t *testing.T) {
		t.Parallel()

		set, err := Load(context.Background(), root,
			WithContentFilter(func(p string) bool { return filepath.Ext(p) == ".html" }),
			WithSkipHidden(true),
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if set.Len() != 3 {
			t.Fatalf("expected 3 files, got %d: %v", set.Len(), set.Paths())
		}
		img, ok := set.Get("img/logo.png")
		if !ok {
			t.Fatal("expected image path to be recorded")
		}
		if img.Contents != nil {
			t.Error("expected image contents to be skipped")
		}
		idx, _ := set.Get("index.html")
		if string(idx.Contents) != "<a href=about/>about</a>" {
			t.Errorf("unexpected index contents %q", idx.Contents)
		}
	})

	t.Run("hidden files are kept by default", func(t *testing.T) {
		t.Parallel()

		set, err := Load(context.Background(), root)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !set.Has(".git/HEAD") {
			t.Error("expected hidden file to be loaded")
		}
	})

	t.Run("missing root is an error", func(t *testing.T) {
		t.Parallel()
		if _, err := Load(context.Background(), filepath.Join(root, "missing")); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("cancelled context aborts the walk", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := Load(ctx, root); err == nil {
			t.Error("expected error from cancelled context")
		}
	})
}

func TestDigest(t *testing.T) {
	t.Parallel()

	a := New(map[string][]byte{"a.html": []byte("x"), "b.html": []byte("y")})
	b := New(map[string][]byte{"b.html": []byte("y"), "a.html": []byte("x")})
	c := New(map[string][]byte{"a.html": []byte("x"), "b.html": []byte("z")})

	if a.Digest() != b.Digest() {
		t.Error("expected digest to be independent of insertion order")
	}
	if a.Digest() == c.Digest() {
		t.Error("expected digest to change with contents")
	}
	if len(a.Digest()) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a.Digest()))
	}
}
