package model

import (
	"sort"
	"strings"
)

// LinkReport maps document paths to the broken references they cite.
// Only documents with at least one broken reference are present.
type LinkReport struct {
	// Broken maps a document path to its "<reference> (<reason>)" lines.
	Broken map[string][]string `json:"broken"`
}

// NewLinkReport creates an empty report.
func NewLinkReport() *LinkReport {
	return &LinkReport{Broken: make(map[string][]string)}
}

// FormatLine formats a broken reference as it appears in the report.
func FormatLine(ref, reason string) string {
	return ref + " (" + reason + ")"
}

// Add records that doc cites ref, which is broken for the given reason.
// Adding the same line twice for one document has no effect.
func (r *LinkReport) Add(doc, ref, reason string) {
	line := FormatLine(ref, reason)
	for _, existing := range r.Broken[doc] {
		if existing == line {
			return
		}
	}
	r.Broken[doc] = append(r.Broken[doc], line)
}

// Empty reports whether no document cites a broken reference.
func (r *LinkReport) Empty() bool {
	return r == nil || len(r.Broken) == 0
}

// Documents returns the paths of documents with broken references, sorted.
func (r *LinkReport) Documents() []string {
	if r == nil {
		return nil
	}
	docs := make([]string, 0, len(r.Broken))
	for doc := range r.Broken {
		docs = append(docs, doc)
	}
	sort.Strings(docs)
	return docs
}

// Lines returns the report lines of doc, sorted.
func (r *LinkReport) Lines(doc string) []string {
	if r == nil {
		return nil
	}
	lines := append([]string(nil), r.Broken[doc]...)
	sort.Strings(lines)
	return lines
}

// BrokenCount returns the total number of report lines across all documents.
func (r *LinkReport) BrokenCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, lines := range r.Broken {
		n += len(lines)
	}
	return n
}

// String renders the report: documents sorted by path, each followed by its
// sorted lines indented by two spaces, with a blank line between documents.
// The output does not depend on the order in which lines were added.
func (r *LinkReport) String() string {
	docs := r.Documents()
	blocks := make([]string, 0, len(docs))
	for _, doc := range docs {
		var b strings.Builder
		b.WriteString(doc)
		for _, line := range r.Lines(doc) {
			b.WriteString("\n  ")
			b.WriteString(line)
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}
