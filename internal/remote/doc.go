// Package remote validates http and https references by probing them over
// the network.
//
// Each distinct reference is probed at most once per run, regardless of how
// many documents cite it. A probe sends HEAD and falls back to a single GET
// when the server answers 405 Method Not Allowed. Redirects are not followed.
//
// Network failures and error statuses are findings, returned as broken
// model.Outcome values. Only cancellation of the caller's context is returned
// as an error.
package remote
