// Package main provides the entry point for the linkcheck CLI.
//
// linkcheck validates every hyperlink, image, stylesheet and script
// reference in a directory of generated HTML documents and reports the
// broken ones grouped by document.
//
// Usage:
//
//	linkcheck check public/
//	linkcheck compare public/
//
// See --help for all available options.
package main

func main() {
	Execute()
}
