package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*DisplayConfig)
		wantErr string
	}{
		{name: "defaults", modify: func(*DisplayConfig) {}},
		{name: "auto theme", modify: func(c *DisplayConfig) { c.Theme = "auto" }},
		{name: "bad theme", modify: func(c *DisplayConfig) { c.Theme = "neon" }, wantErr: "invalid theme"},
		{name: "bad format", modify: func(c *DisplayConfig) { c.OutputFormat = "xml" }, wantErr: "invalid output format"},
		{name: "bad table style", modify: func(c *DisplayConfig) { c.TableStyle = "fancy" }, wantErr: "invalid table style"},
		{name: "narrow table", modify: func(c *DisplayConfig) { c.MaxTableWidth = 10 }, wantErr: "max table width"},
		{
			name:    "verbose and quiet",
			modify:  func(c *DisplayConfig) { c.VerboseMode, c.QuietMode = true, true },
			wantErr: "mutually exclusive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultDisplayConfig()
			tt.modify(config)
			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDisplayConfig_SetDefaults(t *testing.T) {
	config := &DisplayConfig{}
	config.SetDefaults()

	assert.Equal(t, string(ThemeDark), config.Theme)
	assert.Equal(t, FormatTable, config.Format())
	assert.Equal(t, string(TableStyleDefault), config.TableStyle)
	assert.Equal(t, 120, config.MaxTableWidth)
	assert.NotNil(t, config.Writer)
	assert.NoError(t, config.Validate())
}

func TestDisplayConfig_Switches(t *testing.T) {
	config := DefaultDisplayConfig()
	assert.True(t, config.IsColorEnabled())
	assert.True(t, config.IsProgressEnabled())
	assert.True(t, config.IsIconsEnabled())

	config.OutputFormat = string(FormatJSON)
	assert.False(t, config.IsProgressEnabled(), "no status line in machine output")

	config = DefaultDisplayConfig()
	config.QuietMode = true
	assert.False(t, config.IsColorEnabled())
	assert.False(t, config.IsProgressEnabled())
	assert.False(t, config.IsIconsEnabled())
}

func TestGetThemeByName(t *testing.T) {
	assert.Equal(t, LightColorTheme(), GetThemeByName("light"))
	assert.Equal(t, HighContrastColorTheme(), GetThemeByName("high-contrast"))
	assert.Equal(t, PlainTextTheme(), GetThemeByName("none"))
	assert.Equal(t, DarkColorTheme(), GetThemeByName("unknown"))
}
