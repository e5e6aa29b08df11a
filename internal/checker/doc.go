// Package checker runs a complete link check over a file set.
//
// A run extracts references from the matching documents, builds the
// reference index, drops ignored references, dispatches each distinct
// reference to the local resolver or the remote validator by scheme, and
// aggregates the outcomes into a per-document report. The stages run as a
// pipeline; any operational error aborts the run and no partial report is
// returned.
//
// # Usage
//
//	c, err := checker.New(cfg)
//	if err != nil {
//	    return err
//	}
//	if err := c.Check(ctx, fileset.New(files)); err != nil {
//	    // *checker.BrokenLinksError carries the rendered report.
//	    return err
//	}
package checker
