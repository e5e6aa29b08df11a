package report

import (
	"github.com/nao1215/linkcheck/internal/index"
	"github.com/nao1215/linkcheck/internal/model"
)

// Aggregate maps outcomes back onto the documents that cite them.
//
// refsByDoc is the per-document reference list, idx the reference index and
// outcomes the validation results. Every broken citation is added to the
// report as "<reference> (<reason>)". A reference cited several times by the
// same document is reported once for that document. References without an
// outcome (for example ignored ones absent from idx) are skipped.
func Aggregate(refsByDoc map[string][]string, idx *index.Index, outcomes *model.Outcomes) *model.LinkReport {
	report := model.NewLinkReport()

	for doc, refs := range refsByDoc {
		for _, ref := range refs {
			if len(idx.Docs(ref)) == 0 {
				continue
			}
			outcome, ok := outcomes.Lookup(ref, doc)
			if !ok || outcome.Valid {
				continue
			}
			report.Add(doc, ref, outcome.Reason)
		}
	}
	return report
}
