package display

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Icon represents a visual icon with Unicode and ASCII fallbacks
type Icon struct {
	Unicode string
	ASCII   string
	Color   Color
}

// IconSystem handles icon rendering with fallbacks
type IconSystem interface {
	GetIcon(name string) Icon
	RenderIcon(name string) string
	RenderIconWithColor(name string, colorSystem ColorSystem) string
	IsUnicodeSupported() bool
	SetUnicodeSupport(enabled bool)
}

type iconSystem struct {
	unicodeSupported bool
	icons            map[string]Icon
}

// NewIconSystem creates an icon system for output written to w
func NewIconSystem(w io.Writer) IconSystem {
	return &iconSystem{
		unicodeSupported: detectUnicodeSupport(w),
		icons:            defaultIcons(),
	}
}

func detectUnicodeSupport(w io.Writer) bool {
	if os.Getenv("FORCE_UNICODE") != "" {
		return true
	}
	if os.Getenv("NO_UNICODE") != "" {
		return false
	}
	if os.Getenv("LANG") == "C" || os.Getenv("LC_ALL") == "C" {
		return false
	}
	if term := os.Getenv("TERM"); term == "dumb" || term == "vt100" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func defaultIcons() map[string]Icon {
	return map[string]Icon{
		"success":     {Unicode: "✓", ASCII: "[OK]", Color: ColorGreen},
		"error":       {Unicode: "✗", ASCII: "[ERR]", Color: ColorRed},
		"warning":     {Unicode: "⚠", ASCII: "[WARN]", Color: ColorYellow},
		"info":        {Unicode: "ℹ", ASCII: "[INFO]", Color: ColorCyan},
		"source":      {Unicode: "●", ASCII: "*", Color: ColorBlue},
		"redundant":   {Unicode: "○", ASCII: "-", Color: ColorWhite},
		"skipped":     {Unicode: "↷", ASCII: "~", Color: ColorYellow},
		"destination": {Unicode: "→", ASCII: "->", Color: ColorGreen},
		"archive":     {Unicode: "▣", ASCII: "[A]", Color: ColorMagenta},
		"upload":      {Unicode: "↑", ASCII: "^", Color: ColorCyan},
		"lock":        {Unicode: "⚿", ASCII: "[L]", Color: ColorYellow},
	}
}

// GetIcon returns the icon for the given name
func (is *iconSystem) GetIcon(name string) Icon {
	if icon, ok := is.icons[name]; ok {
		return icon
	}
	return Icon{Unicode: "?", ASCII: "?", Color: ColorWhite}
}

// RenderIcon returns the Unicode or ASCII form of the icon
func (is *iconSystem) RenderIcon(name string) string {
	icon := is.GetIcon(name)
	if is.unicodeSupported {
		return icon.Unicode
	}
	return icon.ASCII
}

// RenderIconWithColor returns the icon with color applied
func (is *iconSystem) RenderIconWithColor(name string, colorSystem ColorSystem) string {
	return colorSystem.Colorize(is.RenderIcon(name), is.GetIcon(name).Color)
}

// IsUnicodeSupported returns whether Unicode is supported
func (is *iconSystem) IsUnicodeSupported() bool {
	return is.unicodeSupported
}

// SetUnicodeSupport overrides terminal detection
func (is *iconSystem) SetUnicodeSupport(enabled bool) {
	is.unicodeSupported = enabled
}
