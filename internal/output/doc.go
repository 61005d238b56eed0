// Package output formats review rounds for display or machine consumption.
//
// Three formats are supported:
//   - text: terminal output with one mark per result (default)
//   - json: the full [Report] as indented JSON
//   - markdown: a summary table followed by one section per suggested fix
//
// Use [GetWriter] to obtain a [Writer] for a format string, or
// [WriteReport] to render straight to a file or stdout.
package output
