package checker

import "github.com/nao1215/linkcheck/internal/model"

// BrokenLinksError is returned by Check when at least one reference is
// broken. Its message is the rendered report.
type BrokenLinksError struct {
	Report *model.LinkReport
}

// Error implements error.
func (e *BrokenLinksError) Error() string {
	return e.Report.String()
}
