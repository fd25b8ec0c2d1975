package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mysql-hotbackup/internal/archive"
	"mysql-hotbackup/internal/backup"
	"mysql-hotbackup/internal/storage"
)

// Health states
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// HealthCheckResult represents the result of a preflight check
type HealthCheckResult struct {
	Timestamp       time.Time         `json:"timestamp" yaml:"timestamp"`
	OverallHealth   string            `json:"overall_health" yaml:"overall_health"`
	ComponentStatus map[string]string `json:"component_status" yaml:"component_status"`
	Issues          []string          `json:"issues" yaml:"issues"`
	Recommendations []string          `json:"recommendations" yaml:"recommendations"`
}

// Healthy reports whether nothing blocks a backup
func (r *HealthCheckResult) Healthy() bool {
	return r.OverallHealth != HealthUnhealthy
}

// Record stores the outcome of checking component. A failed blocking
// component makes the result unhealthy, any other failure degrades it.
func (r *HealthCheckResult) Record(component string, err error, blocking bool) {
	if err == nil {
		r.ComponentStatus[component] = HealthHealthy
		return
	}
	r.Issues = append(r.Issues, fmt.Sprintf("%s: %v", component, err))
	if blocking {
		r.ComponentStatus[component] = HealthUnhealthy
		r.OverallHealth = HealthUnhealthy
		return
	}
	r.ComponentStatus[component] = HealthDegraded
	if r.OverallHealth == HealthHealthy {
		r.OverallHealth = HealthDegraded
	}
}

// Preflight checks the environment a backup and its offload depend on
type Preflight struct {
	config  *Config
	storage storage.Provider
}

// NewPreflight creates a preflight check. provider may be nil, in which
// case storage is reported as unchecked.
func NewPreflight(config *Config, provider storage.Provider) *Preflight {
	return &Preflight{config: config, storage: provider}
}

// Run performs every check. Problems are reported in the result, never as
// an error.
func (p *Preflight) Run(ctx context.Context) *HealthCheckResult {
	result := &HealthCheckResult{
		Timestamp:       time.Now(),
		OverallHealth:   HealthHealthy,
		ComponentStatus: make(map[string]string),
		Issues:          []string{},
		Recommendations: []string{},
	}

	result.Record("configuration", p.config.Validate(), true)
	if p.config.Backup.Target != "" {
		result.Record("target", checkTargetRoot(p.config.Backup.Target), true)
	}
	result.Record("lock", checkWritableDir(filepath.Dir(p.config.Backup.LockFile)), true)

	if p.config.Archive.Encryption.Enabled {
		result.Record("encryption", checkEncryptionKey(&p.config.Archive.Encryption), false)
	}

	if p.storage != nil {
		result.Record("storage", p.storage.HealthCheck(ctx), false)
	} else {
		result.ComponentStatus["storage"] = "unchecked"
	}

	p.generateRecommendations(result)
	return result
}

func (p *Preflight) generateRecommendations(result *HealthCheckResult) {
	if p.config.Storage.Provider != storage.ProviderLocal && !p.config.Archive.Encryption.Enabled {
		result.Recommendations = append(result.Recommendations,
			"Enable archive encryption before offloading backups to remote storage")
	}
	if p.config.Backup.Throttle == 0 {
		result.Recommendations = append(result.Recommendations,
			"Set backup.throttle to limit the read load on the live server")
	}
	if p.config.Backup.ManifestFormat == string(backup.ManifestFormatNone) {
		result.Recommendations = append(result.Recommendations,
			"Write a manifest so archived backups can be checked later")
	}
	if status := result.ComponentStatus["encryption"]; status == HealthDegraded {
		result.Recommendations = append(result.Recommendations,
			"Create a key with: mysql-hotbackup keygen <path>")
	}
}

// checkTargetRoot mirrors what a run needs: an existing, writable directory
func checkTargetRoot(target string) error {
	if !filepath.IsAbs(target) {
		return fmt.Errorf("target %q is not absolute", target)
	}
	return checkWritableDir(target)
}

func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	marker, err := os.CreateTemp(dir, ".mysql-hotbackup-marker-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	marker.Close()
	return os.Remove(marker.Name())
}

func checkEncryptionKey(ec *archive.EncryptionConfig) error {
	switch ec.KeySource {
	case archive.KeySourceFile:
		_, err := archive.NewKeyManager(ec).LoadKeyFromFile(ec.KeyPath)
		return err
	case archive.KeySourceEnv:
		_, err := archive.NewKeyManager(ec).LoadKeyFromEnv(ec.KeyEnvVar)
		return err
	case archive.KeySourcePassphrase:
		if os.Getenv(ec.KeyEnvVar) == "" {
			return fmt.Errorf("passphrase variable %s is not set", ec.KeyEnvVar)
		}
		return nil
	}
	return fmt.Errorf("invalid key source %q", ec.KeySource)
}
