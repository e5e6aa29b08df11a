package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/linkcheck/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs runs in Markdown, suitable for CI job summaries and
// pull request comments.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the run summary followed by one section per document that
// cites broken references.
func (w *MarkdownWriter) Write(run *model.Run) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, run)
	w.writeSummary(md, run)
	w.writeDocuments(md, run)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, run *model.Run) {
	md.H1("Link Check Report")
	md.PlainText("")

	root := run.Root
	if root == "" {
		root = "-"
	}
	status := "✅ Passed"
	if run.Failed() {
		status = "❌ Failed"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Root", "`" + root + "`"},
			{"Run Date", run.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", run.Duration.Round(1e6).String()},
			{"Status", status},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, run *model.Run) {
	md.H2("Summary")
	md.PlainText("")

	broken := run.Report.BrokenCount()
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Documents", strconv.Itoa(run.Documents)},
			{"References", strconv.Itoa(run.References)},
			{"Ignored", strconv.Itoa(run.Ignored)},
			{"Remote probes", strconv.Itoa(run.RemoteProbes)},
			{"**Broken**", "**" + strconv.Itoa(broken) + "**"},
		},
	})
	md.PlainText("")

	if broken > 0 {
		w.writePieChart(md, run.Report)
		md.Cautionf("%d broken reference(s) found in %d document(s).",
			broken, len(run.Report.Documents()))
	} else {
		md.Tip("All references resolve.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of broken references by cause.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.LinkReport) {
	counts := make(map[string]int)
	for _, doc := range report.Documents() {
		for _, line := range report.Lines(doc) {
			counts[lineCategory(line)]++
		}
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Broken References by Cause"),
		piechart.WithShowData(true),
	)
	for _, category := range categories {
		if n := counts[category]; n > 0 {
			chart.LabelAndIntValue(category, uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// Cause categories shown in the pie chart, in display order.
const (
	categoryMissingFile = "Missing file"
	categoryClientError = "HTTP 4xx"
	categoryServerError = "HTTP 5xx"
	categoryNetwork     = "Network"
)

var categories = []string{categoryMissingFile, categoryClientError, categoryServerError, categoryNetwork}

// lineCategory classifies a report line by the reason in its suffix.
func lineCategory(line string) string {
	switch {
	case strings.HasSuffix(line, " (not found)"):
		return categoryMissingFile
	case strings.Contains(line, " (HTTP 4"):
		return categoryClientError
	case strings.Contains(line, " (HTTP 5"):
		return categoryServerError
	default:
		return categoryNetwork
	}
}

func (w *MarkdownWriter) writeDocuments(md *markdown.Markdown, run *model.Run) {
	md.H2("Broken References")
	md.PlainText("")

	if !run.Failed() {
		md.PlainText("No broken references.")
		md.PlainText("")
		return
	}

	for _, doc := range run.Report.Documents() {
		md.H3("`" + doc + "`")
		md.PlainText("")

		lines := run.Report.Lines(doc)
		rows := make([][]string, len(lines))
		for i, line := range lines {
			rows[i] = []string{"`" + line + "`"}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Reference (reason)"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [linkcheck](https://github.com/nao1215/linkcheck)*")
}
