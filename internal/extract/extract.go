package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/net/html"

	"github.com/nao1215/linkcheck/internal/fileset"
)

// Extractor pulls reference strings out of HTML documents.
type Extractor struct {
	// pattern selects which documents are scanned.
	pattern string

	// tags maps a lower-case tag name to the lower-case attribute names
	// that hold references, in the order they are read.
	tags map[string][]string

	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used to report unparsable documents.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an Extractor. It returns an error if pattern is not a valid
// doublestar glob.
//
// Tag and attribute names are matched case-insensitively, as the HTML parser
// lower-cases them.
func New(pattern string, tags map[string][]string, opts ...Option) (*Extractor, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid html pattern %q", pattern)
	}

	e := &Extractor{
		pattern: pattern,
		tags:    make(map[string][]string, len(tags)),
	}
	for tag, attrs := range tags {
		lower := make([]string, 0, len(attrs))
		for _, attr := range attrs {
			lower = append(lower, strings.ToLower(attr))
		}
		e.tags[strings.ToLower(tag)] = lower
	}

	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Matches reports whether the document at path is scanned.
func (e *Extractor) Matches(path string) bool {
	ok, err := doublestar.Match(e.pattern, path)
	return err == nil && ok
}

// Extract scans every matching document in set and returns the references of
// each, keyed by document path. References keep document order and
// duplicates. A matching document without references maps to an empty list.
func (e *Extractor) Extract(set *fileset.FileSet) map[string][]string {
	result := make(map[string][]string)
	for _, path := range set.Paths() {
		if !e.Matches(path) {
			continue
		}
		doc, _ := set.Get(path)
		result[path] = e.ExtractDocument(path, doc.Contents)
	}
	return result
}

// ExtractDocument returns the references found in one document's contents.
func (e *Extractor) ExtractDocument(path string, contents []byte) []string {
	refs := make([]string, 0)
	if len(contents) == 0 {
		return refs
	}

	root, err := html.Parse(bytes.NewReader(contents))
	if err != nil {
		e.logger.Warn("failed to parse document", "document", path, "error", err)
		return refs
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			refs = e.appendRefs(refs, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return refs
}

// appendRefs appends the non-empty reference attributes of n.
func (e *Extractor) appendRefs(refs []string, n *html.Node) []string {
	attrs, ok := e.tags[n.Data]
	if !ok {
		return refs
	}
	for _, name := range attrs {
		val, ok := getAttr(n, name)
		if !ok {
			continue
		}
		// Values are kept as written, so whitespace-only values are checked too.
		if val == "" {
			continue
		}
		refs = append(refs, val)
	}
	return refs
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
