// Package index inverts per-document reference lists into a mapping from
// each distinct reference to the documents citing it, so that every distinct
// reference is validated once no matter how often it is cited.
package index

import "sort"

// Index maps each distinct reference to the documents that cite it.
// References and documents keep first-seen order.
type Index struct {
	refs []string
	docs map[string][]string
}

// Build inverts a document to references mapping.
//
// Documents are visited in sorted path order so that the first-seen order of
// references is deterministic. A document citing the same reference twice is
// listed once for it.
func Build(refsByDoc map[string][]string) *Index {
	paths := make([]string, 0, len(refsByDoc))
	for p := range refsByDoc {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	idx := &Index{docs: make(map[string][]string)}
	for _, doc := range paths {
		for _, ref := range refsByDoc[doc] {
			cited, seen := idx.docs[ref]
			if !seen {
				idx.refs = append(idx.refs, ref)
			}
			if len(cited) > 0 && cited[len(cited)-1] == doc {
				continue
			}
			idx.docs[ref] = append(cited, doc)
		}
	}
	return idx
}

// Refs returns the distinct references in first-seen order.
func (i *Index) Refs() []string {
	return append([]string(nil), i.refs...)
}

// Docs returns the documents citing ref in first-seen order.
func (i *Index) Docs(ref string) []string {
	return append([]string(nil), i.docs[ref]...)
}

// Len returns the number of distinct references.
func (i *Index) Len() int {
	return len(i.refs)
}

// Without returns a new Index without the references for which drop returns
// true. The receiver is not modified.
func (i *Index) Without(drop func(ref string) bool) *Index {
	out := &Index{docs: make(map[string][]string, len(i.docs))}
	for _, ref := range i.refs {
		if drop(ref) {
			continue
		}
		out.refs = append(out.refs, ref)
		out.docs[ref] = append([]string(nil), i.docs[ref]...)
	}
	return out
}
