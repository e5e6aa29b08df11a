// Package model defines the data structures shared by the link checker.
//
// This package contains the following main types:
//   - Outcome: the validation result of one reference
//   - Outcomes: the write-once outcome store filled during a run
//   - LinkReport: broken references grouped by citing document
//   - Run: a summary of one checker invocation, used for history and JSON output
//
// Several packages (checker, resolve, remote, report, database) exchange these
// types, so they live here to avoid import cycles.
package model
