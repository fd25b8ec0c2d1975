package config

import (
	"context"
	"strings"

	"github.com/spf13/viper"

	"mysql-hotbackup/internal/backup"
)

// StaticProvider answers variable lookups from a fixed map
type StaticProvider map[string]string

// Variable implements backup.ConfigProvider. Names match case-insensitively
// like server variables do.
func (p StaticProvider) Variable(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if value, ok := p[name]; ok {
		return value, true, nil
	}
	for key, value := range p {
		if strings.EqualFold(key, name) {
			return value, true, nil
		}
	}
	return "", false, nil
}

// ViperProvider reads variables from the directories section of a viper
// instance on every lookup, so environment overrides apply late
type ViperProvider struct {
	v *viper.Viper
}

// NewViperProvider creates a provider over v
func NewViperProvider(v *viper.Viper) *ViperProvider {
	return &ViperProvider{v: v}
}

// Variable implements backup.ConfigProvider
func (p *ViperProvider) Variable(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	key := "directories." + strings.ToLower(name)
	if !p.v.IsSet(key) {
		return "", false, nil
	}
	value := p.v.GetString(key)
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// OverrideProvider consults overrides first and falls back to the server
type OverrideProvider struct {
	overrides backup.ConfigProvider
	fallback  backup.ConfigProvider
}

// NewOverrideProvider layers overrides on top of fallback
func NewOverrideProvider(overrides, fallback backup.ConfigProvider) *OverrideProvider {
	return &OverrideProvider{overrides: overrides, fallback: fallback}
}

// Variable implements backup.ConfigProvider
func (p *OverrideProvider) Variable(ctx context.Context, name string) (string, bool, error) {
	value, ok, err := p.overrides.Variable(ctx, name)
	if err != nil || ok {
		return value, ok, err
	}
	return p.fallback.Variable(ctx, name)
}
