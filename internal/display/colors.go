package display

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// ColorSystem handles color application and terminal detection
type ColorSystem interface {
	Colorize(text string, color Color) string
	Sprintf(color Color, format string, args ...interface{}) string
	IsColorSupported() bool
	GetTheme() ColorTheme
}

type colorSystem struct {
	theme          ColorTheme
	colorSupported bool
	colorMap       map[Color]*color.Color
}

// NewColorSystem creates a color system for output written to w. Colors are
// only applied when w is a terminal whose environment allows them.
func NewColorSystem(theme ColorTheme, w io.Writer) ColorSystem {
	cs := &colorSystem{
		theme:          theme,
		colorSupported: detectColorSupport(w),
	}
	cs.initializeColorMap()
	return cs
}

// isTerminal reports whether w writes to a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func detectColorSupport(w io.Writer) bool {
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if !isTerminal(w) {
		return false
	}
	// honors NO_COLOR, CLICOLOR and TERM=dumb
	return termenv.NewOutput(w).EnvColorProfile() != termenv.Ascii
}

func (cs *colorSystem) initializeColorMap() {
	cs.colorMap = map[Color]*color.Color{
		ColorReset:         color.New(color.Reset),
		ColorBlack:         color.New(color.FgBlack),
		ColorRed:           color.New(color.FgRed),
		ColorGreen:         color.New(color.FgGreen),
		ColorYellow:        color.New(color.FgYellow),
		ColorBlue:          color.New(color.FgBlue),
		ColorMagenta:       color.New(color.FgMagenta),
		ColorCyan:          color.New(color.FgCyan),
		ColorWhite:         color.New(color.FgWhite),
		ColorBrightRed:     color.New(color.FgHiRed),
		ColorBrightGreen:   color.New(color.FgHiGreen),
		ColorBrightYellow:  color.New(color.FgHiYellow),
		ColorBrightBlue:    color.New(color.FgHiBlue),
		ColorBrightMagenta: color.New(color.FgHiMagenta),
		ColorBrightCyan:    color.New(color.FgHiCyan),
		ColorBrightWhite:   color.New(color.FgHiWhite),
	}

	// fatih/color decides from stdout alone; the writer may be another file
	for _, c := range cs.colorMap {
		if cs.colorSupported {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// Colorize applies color to text if color is supported
func (cs *colorSystem) Colorize(text string, clr Color) string {
	if !cs.colorSupported {
		return text
	}
	if c, ok := cs.colorMap[clr]; ok {
		return c.Sprint(text)
	}
	return text
}

// Sprintf formats text with color using format string
func (cs *colorSystem) Sprintf(clr Color, format string, args ...interface{}) string {
	return cs.Colorize(fmt.Sprintf(format, args...), clr)
}

// IsColorSupported returns whether colors are supported
func (cs *colorSystem) IsColorSupported() bool {
	return cs.colorSupported
}

// GetTheme returns the current color theme
func (cs *colorSystem) GetTheme() ColorTheme {
	return cs.theme
}

// DarkColorTheme returns a color theme optimized for dark terminals
func DarkColorTheme() ColorTheme {
	return ColorTheme{
		Primary:   ColorBrightBlue,
		Success:   ColorBrightGreen,
		Warning:   ColorBrightYellow,
		Error:     ColorBrightRed,
		Info:      ColorCyan,
		Muted:     ColorWhite,
		Highlight: ColorBrightBlue,
	}
}

// LightColorTheme returns a color theme optimized for light terminals
func LightColorTheme() ColorTheme {
	return ColorTheme{
		Primary:   ColorBlue,
		Success:   ColorGreen,
		Warning:   ColorYellow,
		Error:     ColorRed,
		Info:      ColorCyan,
		Muted:     ColorMagenta,
		Highlight: ColorBlue,
	}
}

// HighContrastColorTheme returns a high-contrast color theme for accessibility
func HighContrastColorTheme() ColorTheme {
	return ColorTheme{
		Primary:   ColorBrightBlue,
		Success:   ColorBrightGreen,
		Warning:   ColorBrightYellow,
		Error:     ColorBrightRed,
		Info:      ColorBrightCyan,
		Muted:     ColorWhite,
		Highlight: ColorBrightWhite,
	}
}

// PlainTextTheme returns a theme that uses no colors
func PlainTextTheme() ColorTheme {
	return ColorTheme{}
}

// GetThemeByName returns a color theme by name. "auto" picks the light or
// dark theme from the terminal background.
func GetThemeByName(name string) ColorTheme {
	switch name {
	case "light":
		return LightColorTheme()
	case "high-contrast":
		return HighContrastColorTheme()
	case "plain", "none":
		return PlainTextTheme()
	case "auto":
		if !termenv.HasDarkBackground() {
			return LightColorTheme()
		}
		return DarkColorTheme()
	default:
		return DarkColorTheme()
	}
}
