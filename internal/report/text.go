package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/linkcheck/internal/model"
)

// TextWriter writes the rendered link report as plain text.
// A successful run produces no output unless a summary is requested.
type TextWriter struct {
	baseWriter

	// summary appends a one-line run summary.
	summary bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithSummary appends a line with document, reference, and failure counts.
func WithSummary(summary bool) TextWriterOption {
	return func(w *TextWriter) {
		w.summary = summary
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report message followed by the optional summary.
func (w *TextWriter) Write(run *model.Run) (int, error) {
	var b strings.Builder

	if run.Failed() {
		b.WriteString(run.Report.String())
		b.WriteString("\n")
	}

	if w.summary {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d documents, %d references (%d ignored), %d broken, %d probes in %s\n",
			run.Documents,
			run.References,
			run.Ignored,
			run.Report.BrokenCount(),
			run.RemoteProbes,
			run.Duration.Round(1e6),
		)
	}

	if b.Len() == 0 {
		return 0, nil
	}
	return io.WriteString(w.output, b.String())
}
