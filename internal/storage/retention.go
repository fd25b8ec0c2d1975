package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// RetentionConfig decides which archives survive a prune. An archive is
// kept when any rule keeps it; the newest archive is always kept.
type RetentionConfig struct {
	MaxArchives int           `mapstructure:"max_archives" yaml:"max_archives"`
	MaxAge      time.Duration `mapstructure:"max_age" yaml:"max_age"`
	KeepDaily   int           `mapstructure:"keep_daily" yaml:"keep_daily"`
	KeepWeekly  int           `mapstructure:"keep_weekly" yaml:"keep_weekly"`
	KeepMonthly int           `mapstructure:"keep_monthly" yaml:"keep_monthly"`
}

// Enabled reports whether at least one rule is configured
func (c RetentionConfig) Enabled() bool {
	return c.MaxArchives > 0 || c.MaxAge > 0 || c.KeepDaily > 0 || c.KeepWeekly > 0 || c.KeepMonthly > 0
}

// Validate rejects negative limits
func (c RetentionConfig) Validate() error {
	var problems []string
	if c.MaxArchives < 0 {
		problems = append(problems, "retention.max_archives cannot be negative")
	}
	if c.MaxAge < 0 {
		problems = append(problems, "retention.max_age cannot be negative")
	}
	if c.KeepDaily < 0 || c.KeepWeekly < 0 || c.KeepMonthly < 0 {
		problems = append(problems, "retention keep counts cannot be negative")
	}
	if len(problems) > 0 {
		return NewConfigError("invalid retention configuration: "+strings.Join(problems, "; "), nil)
	}
	return nil
}

// RetentionResult lists what a prune kept and removed
type RetentionResult struct {
	DryRun     bool     `json:"dry_run" yaml:"dry_run"`
	Kept       []Object `json:"kept" yaml:"kept"`
	Expired    []Object `json:"expired" yaml:"expired"`
	FreedBytes int64    `json:"freed_bytes" yaml:"freed_bytes"`
}

// IsArchiveKey reports whether key names an archive written by the
// archiver. Other objects under the prefix are never pruned.
func IsArchiveKey(key string) bool {
	name := key[strings.LastIndex(key, "/")+1:]
	name = strings.TrimSuffix(name, ".enc")
	for _, ext := range []string{".gz", ".lz4", ".zst"} {
		name = strings.TrimSuffix(name, ext)
	}
	return strings.HasSuffix(name, ".tar")
}

// SelectExpired splits objects into the ones config keeps and the ones it
// expires, both newest first
func SelectExpired(objects []Object, config RetentionConfig, now time.Time) (kept, expired []Object) {
	sorted := make([]Object, len(objects))
	copy(sorted, objects)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Modified.After(sorted[j].Modified)
	})
	if len(sorted) == 0 {
		return nil, nil
	}

	keep := make([]bool, len(sorted))
	keep[0] = true

	for i := 0; i < len(sorted) && i < config.MaxArchives; i++ {
		keep[i] = true
	}
	if config.MaxAge > 0 {
		cutoff := now.Add(-config.MaxAge)
		for i, obj := range sorted {
			if obj.Modified.After(cutoff) {
				keep[i] = true
			}
		}
	}
	keepPeriodic(sorted, keep, config.KeepDaily, 24*time.Hour, now)
	keepPeriodic(sorted, keep, config.KeepWeekly, 7*24*time.Hour, now)
	keepPeriodic(sorted, keep, config.KeepMonthly, 30*24*time.Hour, now)

	for i, obj := range sorted {
		if keep[i] {
			kept = append(kept, obj)
		} else {
			expired = append(expired, obj)
		}
	}
	return kept, expired
}

// keepPeriodic keeps the newest archive of each of the count most recent
// periods that hold one. sorted must be newest first.
func keepPeriodic(sorted []Object, keep []bool, count int, period time.Duration, now time.Time) {
	if count <= 0 {
		return
	}
	lastBucket := -1
	kept := 0
	for i, obj := range sorted {
		bucket := int(now.Sub(obj.Modified) / period)
		if bucket == lastBucket {
			continue
		}
		lastBucket = bucket
		keep[i] = true
		kept++
		if kept == count {
			return
		}
	}
}

// ApplyRetention expires the archives under prefix that config does not
// keep. With dryRun set nothing is deleted. A failed delete does not stop
// the prune; all failures are returned together.
func ApplyRetention(ctx context.Context, provider Provider, config RetentionConfig, prefix string, dryRun bool) (*RetentionResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !config.Enabled() {
		return nil, NewConfigError("no retention rule configured", nil)
	}

	objects, err := provider.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	archives := objects[:0:0]
	for _, obj := range objects {
		if IsArchiveKey(obj.Key) {
			archives = append(archives, obj)
		}
	}

	kept, expired := SelectExpired(archives, config, time.Now())
	result := &RetentionResult{DryRun: dryRun, Kept: kept}

	var errs []error
	for _, obj := range expired {
		if !dryRun {
			if err := provider.Delete(ctx, obj.Key); err != nil {
				errs = append(errs, err)
				result.Kept = append(result.Kept, obj)
				continue
			}
		}
		result.Expired = append(result.Expired, obj)
		result.FreedBytes += obj.Size
	}
	return result, errors.Join(errs...)
}
