// Package fileset holds the in-memory set of documents a link check runs
// against.
//
// Paths are the identity of documents. They are normalized to forward-slash
// separators, stripped of a leading "./" and converted to Unicode NFC so that
// file names produced on different platforms compare equal to the references
// written in HTML.
package fileset

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"
	"golang.org/x/text/unicode/norm"
)

// Document is a path-identified unit of content.
type Document struct {
	// Path is the normalized, slash-separated path relative to the root.
	Path string

	// Contents is the raw document content. It is nil for files whose
	// contents were not loaded.
	Contents []byte
}

// FileSet is an immutable set of documents keyed by normalized path.
type FileSet struct {
	docs map[string]*Document
}

// NormalizePath converts a host path to document identity form.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return norm.NFC.String(p)
}

// New builds a FileSet from a path to contents mapping supplied by a host
// pipeline. Paths may use either separator convention.
func New(files map[string][]byte) *FileSet {
	set := &FileSet{docs: make(map[string]*Document, len(files))}
	for p, contents := range files {
		np := NormalizePath(p)
		set.docs[np] = &Document{Path: np, Contents: contents}
	}
	return set
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	contentFilter func(path string) bool
	skipHidden    bool
}

// WithContentFilter restricts which files have their contents read.
// The filter receives the normalized path. Paths of all files are recorded
// regardless, because local references may point at any file.
func WithContentFilter(filter func(path string) bool) LoadOption {
	return func(o *loadOptions) {
		o.contentFilter = filter
	}
}

// WithSkipHidden skips files and directories whose names start with a dot.
func WithSkipHidden(skip bool) LoadOption {
	return func(o *loadOptions) {
		o.skipHidden = skip
	}
}

// Load walks root and builds a FileSet from the regular files below it.
func Load(ctx context.Context, root string, opts ...LoadOption) (*FileSet, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	set := &FileSet{docs: make(map[string]*Document)}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if o.skipHidden && p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		np := NormalizePath(filepath.ToSlash(rel))
		doc := &Document{Path: np}
		if o.contentFilter == nil || o.contentFilter(np) {
			contents, err := os.ReadFile(p) //nolint:gosec // Walking a user-selected tree is intentional
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", np, err)
			}
			doc.Contents = contents
		}
		set.docs[np] = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// Has reports whether a document with the normalized path exists.
func (s *FileSet) Has(path string) bool {
	_, ok := s.docs[path]
	return ok
}

// Get returns the document at path.
func (s *FileSet) Get(path string) (*Document, bool) {
	doc, ok := s.docs[path]
	return doc, ok
}

// Paths returns all document paths in sorted order.
func (s *FileSet) Paths() []string {
	paths := make([]string, 0, len(s.docs))
	for p := range s.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of documents.
func (s *FileSet) Len() int {
	return len(s.docs)
}

// Digest returns a hex SHA3-256 fingerprint of the set's paths and loaded
// contents. Two sets with equal digests produce identical local results.
func (s *FileSet) Digest() string {
	h := sha3.New256()
	for _, p := range s.Paths() {
		doc := s.docs[p]
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write(doc.Contents)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
