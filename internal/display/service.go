package display

import (
	"io"
)

// DisplayService provides centralized formatting and output management
type DisplayService interface {
	// Output formatting
	PrintHeader(title string)
	PrintSection(title string, content interface{})
	PrintTable(headers []string, rows [][]string)
	PrintValue(value interface{})

	// Live backup status
	StartStatusLine(source StatusSource) *StatusLine

	// Status messages
	Success(message string)
	Warning(message string)
	Error(message string)
	Info(message string)

	// Icon rendering
	RenderIcon(name string) string
	RenderIconWithColor(name string) string

	// Configuration
	SetOutput(writer io.Writer)
	GetConfig() *DisplayConfig
}

// OutputFormat represents different output format options
type OutputFormat string

const (
	FormatTable   OutputFormat = "table"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatCompact OutputFormat = "compact"
)

// IsStructured reports whether the format is meant for machines
func (f OutputFormat) IsStructured() bool {
	return f == FormatJSON || f == FormatYAML || f == FormatCompact
}

// Color represents terminal color options
type Color int

const (
	ColorReset Color = iota
	ColorBlack
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightMagenta
	ColorBrightCyan
	ColorBrightWhite
)

// ColorTheme defines color scheme for different message types
type ColorTheme struct {
	Primary   Color
	Success   Color
	Warning   Color
	Error     Color
	Info      Color
	Muted     Color
	Highlight Color
}
