package model

import "time"

// Run summarizes one invocation of the link checker.
type Run struct {
	// ID uniquely identifies the run in the history store.
	ID string `json:"id"`

	// Root is the directory the file set was loaded from.
	// It is empty when the file set was supplied in memory.
	Root string `json:"root,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the run took.
	Duration time.Duration `json:"duration"`

	// Documents is the number of documents scanned for references.
	Documents int `json:"documents"`

	// References is the number of distinct references validated.
	// Ignored references are not counted.
	References int `json:"references"`

	// Ignored is the number of distinct references skipped by ignore patterns.
	Ignored int `json:"ignored"`

	// RemoteProbes is the number of network requests issued.
	RemoteProbes int `json:"remote_probes"`

	// Digest fingerprints the file set contents.
	Digest string `json:"digest,omitempty"`

	// Steps lists the pipeline steps that completed.
	Steps []string `json:"steps,omitempty"`

	// Report holds the broken references found by the run.
	Report *LinkReport `json:"report"`
}

// Failed reports whether the run found broken references.
func (r *Run) Failed() bool {
	return r != nil && !r.Report.Empty()
}
