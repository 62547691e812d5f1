// Package parser turns response bodies into model.Page values.
//
// The MIME type of a success response selects the parser:
//
//   - text/gemini is split into typed gemtext lines and links.
//   - text/html is reduced to its text and anchors when HTML rendering is
//     enabled, and shown as plain text otherwise.
//   - Any other text/* type is shown line by line as plain text.
//   - Everything else becomes a single informational line naming the type
//     and size; bebop does not save or open downloads.
//
// Bodies are decoded from the charset parameter of the MIME type with
// golang.org/x/text/encoding/htmlindex. An unknown charset falls back to
// UTF-8, replacing invalid sequences with U+FFFD.
package parser
