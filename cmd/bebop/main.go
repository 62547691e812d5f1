// Package main provides the entry point for the bebop CLI.
//
// bebop is a terminal client for the Gemini protocol. It also speaks
// Gopher and Finger, and opens local files.
//
// Usage:
//
//	bebop browse gemini://geminiprotocol.net/
//	bebop fetch --json gemini://example.org/
//
// See --help for all available options.
package main

// main is the entry point for bebop.
func main() {
	Execute()
}
