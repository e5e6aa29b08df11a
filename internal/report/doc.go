// Package report aggregates validation outcomes into a per-document report
// and writes run results in text, JSON, or Markdown form.
package report
