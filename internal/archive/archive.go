// Package archive packs a finished backup directory into a single tar
// stream, optionally compressed and encrypted, and unpacks it again.
package archive

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"mysql-hotbackup/internal/logging"
)

const encryptedExtension = ".enc"

// Config selects the archive transformations
type Config struct {
	Compression CompressionType  `mapstructure:"compression" yaml:"compression"`
	Level       int              `mapstructure:"level" yaml:"level"`
	Encryption  EncryptionConfig `mapstructure:"encryption" yaml:"encryption"`
}

// SetDefaults sets default values for archive configuration
func (c *Config) SetDefaults() {
	if c.Compression == "" {
		c.Compression = CompressionTypeZstd
	}
	c.Encryption.SetDefaults()
}

// Validate normalizes the compression name and checks the encryption
// settings
func (c *Config) Validate() error {
	compression, err := ParseCompressionType(string(c.Compression))
	if err != nil {
		return err
	}
	c.Compression = compression
	return c.Encryption.Validate()
}

// Result describes a created archive
type Result struct {
	Name             string          `json:"name" yaml:"name"`
	Compression      CompressionType `json:"compression" yaml:"compression"`
	Encrypted        bool            `json:"encrypted" yaml:"encrypted"`
	Contents         PackStats       `json:"contents" yaml:"contents"`
	ArchiveBytes     int64           `json:"archive_bytes" yaml:"archive_bytes"`
	CompressionRatio float64         `json:"compression_ratio" yaml:"compression_ratio"`
	Duration         time.Duration   `json:"duration" yaml:"duration"`
}

// Archiver creates and extracts backup archives
type Archiver struct {
	config      Config
	compression *CompressionManager
	logger      *logging.Logger
}

// NewArchiver creates an archiver for a validated configuration
func NewArchiver(config Config, logger *logging.Logger) *Archiver {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Archiver{
		config:      config,
		compression: NewCompressionManager(),
		logger:      logger,
	}
}

// FileName returns the archive name for a backup directory
func (a *Archiver) FileName(backupDir string) string {
	name := filepath.Base(filepath.Clean(backupDir)) + ".tar" + a.config.Compression.Extension()
	if a.config.Encryption.Enabled {
		name += encryptedExtension
	}
	return name
}

// Create writes backupDir to w as tar, then compression, then encryption
func (a *Archiver) Create(ctx context.Context, backupDir string, w io.Writer, onFile FileFunc) (result *Result, err error) {
	start := time.Now()
	done := a.logger.LogOperationStart("archive_create", map[string]interface{}{
		"backup_dir":  backupDir,
		"compression": a.config.Compression,
		"encrypted":   a.config.Encryption.Enabled,
	})
	defer func() { done(err) }()

	counter := &countingWriter{w: w}
	var sink io.Writer = counter

	var encrypter io.WriteCloser
	if a.config.Encryption.Enabled {
		if encrypter, err = NewEncryptWriter(counter, &a.config.Encryption); err != nil {
			return nil, err
		}
		sink = encrypter
	}

	compressor, err := a.compression.NewWriter(sink, a.config.Compression, a.config.Level)
	if err != nil {
		return nil, err
	}

	stats, err := Pack(ctx, backupDir, compressor, onFile)
	if err != nil {
		compressor.Close()
		return nil, err
	}
	if err := compressor.Close(); err != nil {
		return nil, NewCompressionError("failed to finish compression", err)
	}
	if encrypter != nil {
		if err := encrypter.Close(); err != nil {
			return nil, err
		}
	}

	result = &Result{
		Name:             a.FileName(backupDir),
		Compression:      a.config.Compression,
		Encrypted:        a.config.Encryption.Enabled,
		Contents:         *stats,
		ArchiveBytes:     counter.n,
		CompressionRatio: CalculateCompressionRatio(stats.Bytes, counter.n),
		Duration:         time.Since(start),
	}

	a.logger.WithFields(map[string]interface{}{
		"files":         stats.Files,
		"bytes":         stats.Bytes,
		"archive_bytes": counter.n,
	}).Info("Archive created")
	return result, nil
}

// Extract reverses Create into dst. The compression and encryption of the
// stream are taken from name when it carries the usual extensions, and
// from the configuration otherwise.
func (a *Archiver) Extract(ctx context.Context, name string, r io.Reader, dst string, onFile FileFunc) (stats *PackStats, err error) {
	compression, encrypted, ok := ParseArchiveName(name)
	if !ok {
		compression, encrypted = a.config.Compression, a.config.Encryption.Enabled
	}

	done := a.logger.LogOperationStart("archive_extract", map[string]interface{}{
		"archive":     name,
		"target":      dst,
		"compression": compression,
		"encrypted":   encrypted,
	})
	defer func() { done(err) }()

	source := r
	if encrypted {
		if source, err = NewDecryptReader(r, &a.config.Encryption); err != nil {
			return nil, err
		}
	}

	decompressor, err := a.compression.NewReader(source, compression)
	if err != nil {
		return nil, err
	}
	defer decompressor.Close()

	return Unpack(ctx, decompressor, dst, onFile)
}

// ParseArchiveName reads the transformations from an archive file name.
// ok is false when the name has no .tar component.
func ParseArchiveName(name string) (compression CompressionType, encrypted bool, ok bool) {
	base := filepath.Base(name)
	if strings.HasSuffix(base, encryptedExtension) {
		encrypted = true
		base = strings.TrimSuffix(base, encryptedExtension)
	}

	for _, c := range []CompressionType{CompressionTypeGzip, CompressionTypeLZ4, CompressionTypeZstd} {
		if strings.HasSuffix(base, ".tar"+c.Extension()) {
			return c, encrypted, true
		}
	}
	if strings.HasSuffix(base, ".tar") {
		return CompressionTypeNone, encrypted, true
	}
	return "", false, false
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
