// Package pipeline runs a sequence of named steps over shared state.
//
// Execute checks for cancellation before each step, stops at the first
// failing step and wraps its error with the step name. State types that
// implement Recorder are told about every completed step.
package pipeline
