// Package resolve decides whether same-tree references point at a known
// document.
//
// Resolution is purely against the in-memory path set; the filesystem is
// never consulted.
package resolve

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/linkcheck/internal/model"
)

// ReasonNotFound is the failure reason for unresolvable local references.
const ReasonNotFound = "not found"

// indexDocument is the document a directory-style reference resolves to.
const indexDocument = "index.html"

// PathSet answers whether a normalized document path exists.
// *fileset.FileSet satisfies it.
type PathSet interface {
	Has(path string) bool
}

// Local resolves references relative to the citing document.
type Local struct {
	paths PathSet
}

// NewLocal creates a resolver over paths.
func NewLocal(paths PathSet) *Local {
	return &Local{paths: paths}
}

// Resolve reports whether ref, as cited by the document at doc, points at a
// document in the path set.
//
// The fragment is stripped first. The empty reference, "." and "./" are
// self-references and always valid, as is any reference that resolves to
// the citing document's own directory. Otherwise the reference is joined onto
// the document's directory (a leading "/" resolves from the root) and is
// valid if the result, or the result followed by "/index.html", is a known
// path. Query strings are kept: "page.html?v=2" only resolves if a document
// with that literal name exists.
func (l *Local) Resolve(doc, ref string) model.Outcome {
	ref = stripFragment(ref)
	if isSelf(ref) {
		return model.Valid()
	}

	dir := path.Dir(doc)
	var joined string
	if strings.HasPrefix(ref, "/") {
		joined = path.Clean(strings.TrimLeft(ref, "/"))
	} else {
		joined = path.Join(dir, ref)
	}
	if isSelf(joined) || joined == dir {
		return model.Valid()
	}

	for _, candidate := range candidates(joined) {
		if l.paths.Has(candidate) || l.paths.Has(candidate+"/"+indexDocument) {
			return model.Valid()
		}
	}
	return model.Broken(ReasonNotFound)
}

// candidates returns the path forms tried for a joined reference: the literal
// form and, when it differs, the percent-decoded form.
func candidates(joined string) []string {
	literal := norm.NFC.String(joined)
	out := []string{literal}
	if decoded, err := url.PathUnescape(joined); err == nil {
		decoded = norm.NFC.String(decoded)
		if decoded != literal {
			out = append(out, decoded)
		}
	}
	return out
}

// stripFragment removes a trailing "#..." fragment.
func stripFragment(ref string) string {
	if i := strings.IndexByte(ref, '#'); i >= 0 {
		return ref[:i]
	}
	return ref
}

// isSelf reports whether p denotes the current directory.
func isSelf(p string) bool {
	return p == "" || p == "." || p == "./"
}
