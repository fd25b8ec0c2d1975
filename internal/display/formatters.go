package display

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormatter renders output for machines
type OutputFormatter interface {
	FormatSection(title string, content interface{}) (string, error)
	FormatTable(headers []string, rows [][]string) (string, error)
	FormatStatusMessage(level, message string) (string, error)
	FormatValue(value interface{}) (string, error)
}

// tableRecords turns rows into one map per row keyed by header
func tableRecords(headers []string, rows [][]string) []map[string]string {
	records := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		record := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(row) {
				record[header] = row[i]
			} else {
				record[header] = ""
			}
		}
		records = append(records, record)
	}
	return records
}

// JSONFormatter implements OutputFormatter for JSON output
type JSONFormatter struct {
	indent string
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{indent: "  "}
}

func (f *JSONFormatter) marshal(what string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", f.indent)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", what, err)
	}
	return string(data), nil
}

// FormatSection formats a section as JSON
func (f *JSONFormatter) FormatSection(title string, content interface{}) (string, error) {
	return f.marshal("section", map[string]interface{}{"section": title, "content": content})
}

// FormatTable formats a table as a JSON array of objects
func (f *JSONFormatter) FormatTable(headers []string, rows [][]string) (string, error) {
	return f.marshal("table", tableRecords(headers, rows))
}

// FormatStatusMessage formats a status message as JSON
func (f *JSONFormatter) FormatStatusMessage(level, message string) (string, error) {
	return f.marshal("status message", map[string]string{"level": level, "message": message})
}

// FormatValue formats any value as JSON
func (f *JSONFormatter) FormatValue(value interface{}) (string, error) {
	return f.marshal("value", value)
}

// YAMLFormatter implements OutputFormatter for YAML output
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

func (f *YAMLFormatter) marshal(what string, v interface{}) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to YAML: %w", what, err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

// FormatSection formats a section as YAML
func (f *YAMLFormatter) FormatSection(title string, content interface{}) (string, error) {
	return f.marshal("section", map[string]interface{}{"section": title, "content": content})
}

// FormatTable formats a table as a YAML sequence of mappings
func (f *YAMLFormatter) FormatTable(headers []string, rows [][]string) (string, error) {
	return f.marshal("table", tableRecords(headers, rows))
}

// FormatStatusMessage formats a status message as YAML
func (f *YAMLFormatter) FormatStatusMessage(level, message string) (string, error) {
	return f.marshal("status message", map[string]string{"level": level, "message": message})
}

// FormatValue formats any value as YAML
func (f *YAMLFormatter) FormatValue(value interface{}) (string, error) {
	return f.marshal("value", value)
}

// CompactFormatter produces line oriented output for scripts
type CompactFormatter struct {
	separator      string
	includeHeaders bool
}

// NewCompactFormatter creates a compact formatter with tab separated columns
func NewCompactFormatter() *CompactFormatter {
	return &CompactFormatter{separator: "\t", includeHeaders: true}
}

// FormatSection formats a section as SECTION:title:key=value,key=value
func (f *CompactFormatter) FormatSection(title string, content interface{}) (string, error) {
	var b strings.Builder
	b.WriteString("SECTION:")
	b.WriteString(title)
	b.WriteString(":")

	switch v := content.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, key := range keys {
			pairs[i] = fmt.Sprintf("%s=%v", key, v[key])
		}
		b.WriteString(strings.Join(pairs, ","))
	case map[string]string:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, key := range keys {
			pairs[i] = key + "=" + v[key]
		}
		b.WriteString(strings.Join(pairs, ","))
	default:
		fmt.Fprintf(&b, "%v", content)
	}
	return b.String(), nil
}

// FormatTable formats a table as separator separated values
func (f *CompactFormatter) FormatTable(headers []string, rows [][]string) (string, error) {
	var b strings.Builder
	if f.includeHeaders && len(headers) > 0 {
		b.WriteString(strings.Join(headers, f.separator))
		b.WriteString("\n")
	}
	for _, row := range rows {
		padded := make([]string, max(len(headers), len(row)))
		copy(padded, row)
		b.WriteString(strings.Join(padded, f.separator))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

// FormatStatusMessage formats a status message as LEVEL:message
func (f *CompactFormatter) FormatStatusMessage(level, message string) (string, error) {
	return fmt.Sprintf("%s:%s", level, message), nil
}

// FormatValue formats any value as single line JSON
func (f *CompactFormatter) FormatValue(value interface{}) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return string(data), nil
}

// FormatterRegistry manages the structured output formatters
type FormatterRegistry struct {
	formatters map[OutputFormat]OutputFormatter
}

// NewFormatterRegistry creates a registry with the JSON, YAML and compact formatters
func NewFormatterRegistry() *FormatterRegistry {
	return &FormatterRegistry{
		formatters: map[OutputFormat]OutputFormatter{
			FormatJSON:    NewJSONFormatter(),
			FormatYAML:    NewYAMLFormatter(),
			FormatCompact: NewCompactFormatter(),
		},
	}
}

// Register registers a formatter for a specific output format
func (r *FormatterRegistry) Register(format OutputFormat, formatter OutputFormatter) {
	r.formatters[format] = formatter
}

// GetFormatter returns the formatter for the specified format
func (r *FormatterRegistry) GetFormatter(format OutputFormat) (OutputFormatter, error) {
	formatter, ok := r.formatters[format]
	if !ok {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return formatter, nil
}
