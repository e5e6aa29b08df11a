package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/linkcheck/internal/model"
)

// JSONWriter outputs runs in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// version is the linkcheck version recorded in the output.
	version string

	indentPrefix string
	indentString string
	indent       bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint enables indented JSON output.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = ""
		w.indentString = "  "
	}
}

// WithVersion records the tool version in the output.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is the document written by JSONWriter.
type JSONReport struct {
	// Version is the linkcheck version that produced the run.
	Version string `json:"version,omitempty"`

	// Success is true when no broken references were found.
	Success bool `json:"success"`

	// Run is the run summary, including the report.
	Run *model.Run `json:"run"`
}

// Write outputs the run wrapped in a JSONReport.
func (w *JSONWriter) Write(run *model.Run) (int, error) {
	return w.writeJSON(&JSONReport{
		Version: w.version,
		Success: !run.Failed(),
		Run:     run,
	})
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
