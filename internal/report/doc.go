// Package report renders parsed pages for output.
//
// This package contains renderers for different output formats:
//   - TextWriter: wrapped, optionally styled text for terminal display
//   - JSONWriter: structured JSON output for tool integration
//   - MarkdownWriter: Markdown documents for sharing and archiving
//
// Renderers implement the Renderer interface, allowing them to be used
// interchangeably and composed with MultiRenderer.
package report
