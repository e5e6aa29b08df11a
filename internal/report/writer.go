package report

import (
	"io"

	"github.com/nao1215/linkcheck/internal/model"
)

// Writer outputs the result of a run in one format.
type Writer interface {
	// Write outputs the run and returns the number of bytes written.
	Write(run *model.Run) (int, error)
}

// MultiWriter writes a run to several Writers, for example the terminal and
// a report file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the run to all Writers and stops at the first error.
func (m *MultiWriter) Write(run *model.Run) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
