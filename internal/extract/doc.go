// Package extract finds reference strings in HTML documents.
//
// The Extractor selects documents with a doublestar glob and reads the
// configured attributes of the configured tags, for example href on <a> and
// src on <img>. Documents are parsed with golang.org/x/net/html, which
// follows the HTML5 parsing algorithm, so malformed markup degrades to
// best-effort extraction instead of failing.
//
// # Usage
//
//	ex, err := extract.New("**/*.html", map[string][]string{"a": {"href"}})
//	refs := ex.Extract(set) // document path -> references in document order
package extract
