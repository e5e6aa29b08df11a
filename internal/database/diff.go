package database

import (
	"slices"

	"github.com/nao1215/linkcheck/internal/model"
)

// RunDiff lists how broken references changed between two runs.
type RunDiff struct {
	// Introduced holds report lines present in the newer run only.
	Introduced *model.LinkReport

	// Fixed holds report lines present in the older run only.
	Fixed *model.LinkReport
}

// Unchanged reports whether both runs have the same broken references.
func (d *RunDiff) Unchanged() bool {
	return d.Introduced.Empty() && d.Fixed.Empty()
}

// Diff compares the reports of two runs. Lines are compared per document, so
// a reference that moves from one document to another is both introduced and
// fixed.
func Diff(older, newer *model.Run) *RunDiff {
	return &RunDiff{
		Introduced: subtract(newer.Report, older.Report),
		Fixed:      subtract(older.Report, newer.Report),
	}
}

// subtract returns the lines of a that are not in b.
func subtract(a, b *model.LinkReport) *model.LinkReport {
	out := model.NewLinkReport()
	for _, doc := range a.Documents() {
		other := b.Lines(doc)
		for _, line := range a.Lines(doc) {
			if _, found := slices.BinarySearch(other, line); !found {
				out.Broken[doc] = append(out.Broken[doc], line)
			}
		}
	}
	return out
}
