package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// TableFormatter builds a text table
type TableFormatter interface {
	SetHeaders(headers []string)
	AddRow(row []string)
	SetColumnAlignment(column int, alignment Alignment)
	SetStyle(style TableStyle)
	SetMaxWidth(width int)
	Render() string
	RenderTo(writer io.Writer)
}

// Alignment represents column alignment options
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

// TableStyle defines the visual style of a table
type TableStyle struct {
	Name            string
	BorderStyle     BorderStyle
	HeaderSeparator bool
	RowSeparator    bool
	Padding         int
}

// BorderStyle defines table border characters
type BorderStyle struct {
	TopLeft     string
	TopRight    string
	BottomLeft  string
	BottomRight string
	Horizontal  string
	Vertical    string
	Cross       string
	TopTee      string
	BottomTee   string
	LeftTee     string
	RightTee    string
}

// Border styles
var (
	ASCIIBorderStyle = BorderStyle{
		TopLeft: "+", TopRight: "+", BottomLeft: "+", BottomRight: "+",
		Horizontal: "-", Vertical: "|", Cross: "+",
		TopTee: "+", BottomTee: "+", LeftTee: "+", RightTee: "+",
	}

	RoundedBorderStyle = BorderStyle{
		TopLeft: "╭", TopRight: "╮", BottomLeft: "╰", BottomRight: "╯",
		Horizontal: "─", Vertical: "│", Cross: "┼",
		TopTee: "┬", BottomTee: "┴", LeftTee: "├", RightTee: "┤",
	}

	NoBorderStyle = BorderStyle{}
)

// Predefined table styles
var (
	DefaultTableStyle = TableStyle{Name: "default", BorderStyle: ASCIIBorderStyle, HeaderSeparator: true, Padding: 1}
	RoundedTableStyle = TableStyle{Name: "rounded", BorderStyle: RoundedBorderStyle, HeaderSeparator: true, Padding: 1}
	BorderTableStyle  = TableStyle{Name: "border", BorderStyle: ASCIIBorderStyle, HeaderSeparator: true, RowSeparator: true, Padding: 1}
	MinimalTableStyle = TableStyle{Name: "minimal", BorderStyle: NoBorderStyle, Padding: 1}
)

// TableStyleByName returns the style for a configured table_style name
func TableStyleByName(name string) TableStyle {
	switch TableStyleName(name) {
	case TableStyleRounded:
		return RoundedTableStyle
	case TableStyleBorder:
		return BorderTableStyle
	case TableStyleMinimal:
		return MinimalTableStyle
	default:
		return DefaultTableStyle
	}
}

type tableFormatter struct {
	headers     []string
	rows        [][]string
	alignments  map[int]Alignment
	style       TableStyle
	maxWidth    int
	colorSystem ColorSystem
	theme       ColorTheme
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(colorSystem ColorSystem, theme ColorTheme) TableFormatter {
	return &tableFormatter{
		alignments:  make(map[int]Alignment),
		style:       DefaultTableStyle,
		colorSystem: colorSystem,
		theme:       theme,
	}
}

func (tf *tableFormatter) SetHeaders(headers []string) {
	tf.headers = headers
}

func (tf *tableFormatter) AddRow(row []string) {
	tf.rows = append(tf.rows, row)
}

func (tf *tableFormatter) SetColumnAlignment(column int, alignment Alignment) {
	tf.alignments[column] = alignment
}

func (tf *tableFormatter) SetStyle(style TableStyle) {
	tf.style = style
}

// SetMaxWidth limits the rendered width; 0 means no limit
func (tf *tableFormatter) SetMaxWidth(width int) {
	tf.maxWidth = width
}

// Render returns the formatted table as a string
func (tf *tableFormatter) Render() string {
	if len(tf.headers) == 0 && len(tf.rows) == 0 {
		return ""
	}

	widths := tf.adjustForMaxWidth(tf.calculateColumnWidths())
	border := tf.style.BorderStyle
	var b strings.Builder

	line := func(left, middle, right string) {
		if border.Horizontal == "" {
			return
		}
		b.WriteString(left)
		for i, w := range widths {
			b.WriteString(strings.Repeat(border.Horizontal, w))
			if i < len(widths)-1 {
				b.WriteString(middle)
			}
		}
		b.WriteString(right)
		b.WriteString("\n")
	}

	line(border.TopLeft, border.TopTee, border.TopRight)
	if len(tf.headers) > 0 {
		b.WriteString(tf.renderRow(tf.headers, widths, true))
		if tf.style.HeaderSeparator {
			line(border.LeftTee, border.Cross, border.RightTee)
		}
	}
	for i, row := range tf.rows {
		b.WriteString(tf.renderRow(row, widths, false))
		if tf.style.RowSeparator && i < len(tf.rows)-1 {
			line(border.LeftTee, border.Cross, border.RightTee)
		}
	}
	line(border.BottomLeft, border.BottomTee, border.BottomRight)

	return b.String()
}

// RenderTo renders the table to the specified writer
func (tf *tableFormatter) RenderTo(writer io.Writer) {
	fmt.Fprint(writer, tf.Render())
}

func (tf *tableFormatter) calculateColumnWidths() []int {
	cols := len(tf.headers)
	for _, row := range tf.rows {
		cols = max(cols, len(row))
	}

	widths := make([]int, cols)
	for i, header := range tf.headers {
		widths[i] = utf8.RuneCountInString(header)
	}
	for _, row := range tf.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}
	for i := range widths {
		widths[i] += tf.style.Padding * 2
	}
	return widths
}

// adjustForMaxWidth shrinks the widest columns first until the table fits
func (tf *tableFormatter) adjustForMaxWidth(widths []int) []int {
	if tf.maxWidth <= 0 {
		return widths
	}
	minWidth := tf.style.Padding*2 + 4
	for tf.totalWidth(widths) > tf.maxWidth {
		widest := 0
		for i := range widths {
			if widths[i] > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minWidth {
			break
		}
		widths[widest]--
	}
	return widths
}

func (tf *tableFormatter) totalWidth(widths []int) int {
	total := 0
	for _, w := range widths {
		total += w
	}
	if tf.style.BorderStyle.Vertical != "" {
		total += len(widths) + 1
	}
	return total
}

func (tf *tableFormatter) renderRow(row []string, widths []int, isHeader bool) string {
	var b strings.Builder
	vertical := tf.style.BorderStyle.Vertical

	b.WriteString(vertical)
	for i, width := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		b.WriteString(tf.formatCell(cell, width, tf.alignments[i], isHeader))
		b.WriteString(vertical)
	}
	return strings.TrimRight(b.String(), " ") + "\n"
}

// formatCell truncates and pads content, then colors headers. Coloring
// comes last so escape codes do not count toward the width.
func (tf *tableFormatter) formatCell(content string, width int, alignment Alignment, isHeader bool) string {
	contentWidth := max(width-tf.style.Padding*2, 0)

	if utf8.RuneCountInString(content) > contentWidth {
		runes := []rune(content)
		if contentWidth > 3 {
			content = string(runes[:contentWidth-3]) + "..."
		} else {
			content = string(runes[:contentWidth])
		}
	}

	gap := contentWidth - utf8.RuneCountInString(content)
	var left, right int
	switch alignment {
	case AlignCenter:
		left = gap / 2
		right = gap - left
	case AlignRight:
		left = gap
	default:
		right = gap
	}

	if isHeader && tf.colorSystem != nil {
		content = tf.colorSystem.Colorize(content, tf.theme.Primary)
	}

	pad := strings.Repeat(" ", tf.style.Padding)
	return pad + strings.Repeat(" ", left) + content + strings.Repeat(" ", right) + pad
}

// terminalWidth returns the width of the terminal w writes to, or 0
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}
