package display

import (
	"fmt"
	"io"
	"os"
	"strings"
)

type displayService struct {
	config            *DisplayConfig
	colorSystem       ColorSystem
	iconSystem        IconSystem
	writer            io.Writer
	formatterRegistry *FormatterRegistry
}

// NewDisplayService creates a new display service with the given configuration
func NewDisplayService(config *DisplayConfig) DisplayService {
	if config == nil {
		config = DefaultDisplayConfig()
	}
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	ds := &displayService{
		config:            config,
		formatterRegistry: NewFormatterRegistry(),
	}
	ds.SetOutput(config.Writer)
	return ds
}

func (ds *displayService) colorize(text string, clr Color) string {
	if !ds.config.IsColorEnabled() {
		return text
	}
	return ds.colorSystem.Colorize(text, clr)
}

// writeStructured prints output of a machine format. It reports false when
// the configured format is the human table format.
func (ds *displayService) writeStructured(format func(OutputFormatter) (string, error)) bool {
	if !ds.config.Format().IsStructured() {
		return false
	}
	formatter, err := ds.formatterRegistry.GetFormatter(ds.config.Format())
	if err == nil {
		var output string
		if output, err = format(formatter); err == nil {
			fmt.Fprintln(ds.writer, output)
			return true
		}
	}
	fmt.Fprintf(ds.writer, "Error formatting output: %v\n", err)
	return true
}

// PrintHeader prints a formatted header
func (ds *displayService) PrintHeader(title string) {
	if ds.config.QuietMode || ds.config.Format().IsStructured() {
		return
	}
	separator := strings.Repeat("=", len(title)+4)
	fmt.Fprint(ds.writer, ds.colorize(fmt.Sprintf("\n%s\n  %s  \n%s\n", separator, title, separator), ds.config.GetColorTheme().Primary))
}

// PrintSection prints a titled block of content
func (ds *displayService) PrintSection(title string, content interface{}) {
	if ds.config.QuietMode && !ds.config.Format().IsStructured() {
		return
	}
	if ds.writeStructured(func(f OutputFormatter) (string, error) { return f.FormatSection(title, content) }) {
		return
	}

	fmt.Fprint(ds.writer, ds.colorize(fmt.Sprintf("\n--- %s ---\n", title), ds.config.GetColorTheme().Highlight))
	switch v := content.(type) {
	case []string:
		for _, line := range v {
			fmt.Fprintf(ds.writer, "  %s\n", line)
		}
	default:
		fmt.Fprintf(ds.writer, "%v\n", content)
	}
}

// PrintTable prints a formatted table
func (ds *displayService) PrintTable(headers []string, rows [][]string) {
	if ds.config.QuietMode && !ds.config.Format().IsStructured() {
		return
	}
	if ds.writeStructured(func(f OutputFormatter) (string, error) { return f.FormatTable(headers, rows) }) {
		return
	}

	formatter := NewTableFormatter(ds.colorSystem, ds.config.GetColorTheme())
	formatter.SetStyle(TableStyleByName(ds.config.TableStyle))
	width := ds.config.MaxTableWidth
	if tw := terminalWidth(ds.writer); tw > 0 && (width == 0 || tw < width) {
		width = tw
	}
	formatter.SetMaxWidth(width)
	formatter.SetHeaders(headers)
	for _, row := range rows {
		formatter.AddRow(row)
	}
	formatter.RenderTo(ds.writer)
}

// PrintValue prints a value in the structured format, or as YAML for the
// table format
func (ds *displayService) PrintValue(value interface{}) {
	if ds.writeStructured(func(f OutputFormatter) (string, error) { return f.FormatValue(value) }) {
		return
	}
	output, err := NewYAMLFormatter().FormatValue(value)
	if err != nil {
		fmt.Fprintf(ds.writer, "Error formatting output: %v\n", err)
		return
	}
	fmt.Fprintln(ds.writer, output)
}

// StartStatusLine starts rendering source. With progress disabled the
// returned status line only prints the final status on Stop.
func (ds *displayService) StartStatusLine(source StatusSource) *StatusLine {
	line := NewStatusLine(source, ds.writer, ds.statusColors(), ds.iconSystem)
	if !ds.config.IsProgressEnabled() {
		line.SetInteractive(false)
		return line
	}
	line.Start()
	return line
}

func (ds *displayService) statusColors() ColorSystem {
	if ds.config.IsColorEnabled() {
		return ds.colorSystem
	}
	return NewColorSystem(PlainTextTheme(), io.Discard)
}

// Success prints a success message
func (ds *displayService) Success(message string) {
	ds.printStatusMessage("SUCCESS", "success", message, ds.config.GetColorTheme().Success)
}

// Warning prints a warning message
func (ds *displayService) Warning(message string) {
	ds.printStatusMessage("WARNING", "warning", message, ds.config.GetColorTheme().Warning)
}

// Error prints an error message, even in quiet mode
func (ds *displayService) Error(message string) {
	ds.printStatusMessage("ERROR", "error", message, ds.config.GetColorTheme().Error)
}

// Info prints an info message
func (ds *displayService) Info(message string) {
	if ds.config.QuietMode {
		return
	}
	ds.printStatusMessage("INFO", "info", message, ds.config.GetColorTheme().Info)
}

func (ds *displayService) printStatusMessage(level, icon, message string, clr Color) {
	if ds.writeStructured(func(f OutputFormatter) (string, error) { return f.FormatStatusMessage(level, message) }) {
		return
	}

	prefix := fmt.Sprintf("[%s]", level)
	if ds.config.IsIconsEnabled() {
		prefix = ds.iconSystem.RenderIcon(icon)
	}
	fmt.Fprintf(ds.writer, "%s %s\n", ds.colorize(prefix, clr), message)
}

// RenderIcon returns the appropriate icon representation (Unicode or ASCII)
func (ds *displayService) RenderIcon(name string) string {
	if !ds.config.IsIconsEnabled() {
		return ""
	}
	return ds.iconSystem.RenderIcon(name)
}

// RenderIconWithColor returns the icon with color applied
func (ds *displayService) RenderIconWithColor(name string) string {
	if !ds.config.IsIconsEnabled() {
		return ""
	}
	if !ds.config.IsColorEnabled() {
		return ds.iconSystem.RenderIcon(name)
	}
	return ds.iconSystem.RenderIconWithColor(name, ds.colorSystem)
}

// SetOutput sets the output writer and redetects its capabilities
func (ds *displayService) SetOutput(writer io.Writer) {
	ds.writer = writer
	ds.config.Writer = writer
	ds.colorSystem = NewColorSystem(ds.config.GetColorTheme(), writer)
	ds.iconSystem = NewIconSystem(writer)
}

// GetConfig returns the current configuration
func (ds *displayService) GetConfig() *DisplayConfig {
	return ds.config
}
