// Package ui holds the terminal styles used by CLI output.
//
// [Palette] wraps a handful of [lipgloss] styles and knows how to render sync outcomes,
// connectivity, and pass summaries. Colors degrade to plain text when output is not a terminal.
package ui
