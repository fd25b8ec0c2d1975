package archive

import (
	"compress/gzip"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType names a compression algorithm
type CompressionType string

const (
	CompressionTypeNone CompressionType = "NONE"
	CompressionTypeGzip CompressionType = "GZIP"
	CompressionTypeLZ4  CompressionType = "LZ4"
	CompressionTypeZstd CompressionType = "ZSTD"
)

// ParseCompressionType accepts the algorithm name in any case
func ParseCompressionType(s string) (CompressionType, error) {
	switch CompressionType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", CompressionTypeNone:
		return CompressionTypeNone, nil
	case CompressionTypeGzip:
		return CompressionTypeGzip, nil
	case CompressionTypeLZ4:
		return CompressionTypeLZ4, nil
	case CompressionTypeZstd:
		return CompressionTypeZstd, nil
	}
	return "", NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", s), nil)
}

// Extension returns the file name suffix for archives of this type
func (c CompressionType) Extension() string {
	switch c {
	case CompressionTypeGzip:
		return ".gz"
	case CompressionTypeLZ4:
		return ".lz4"
	case CompressionTypeZstd:
		return ".zst"
	}
	return ""
}

// Compressor wraps streams for one algorithm
type Compressor interface {
	NewWriter(w io.Writer, level int) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
	GetAlgorithm() CompressionType
	GetDefaultLevel() int
	GetMaxLevel() int
	GetMinLevel() int
}

// CompressionManager manages compression operations
type CompressionManager struct {
	compressors map[CompressionType]Compressor
}

// NewCompressionManager creates a new compression manager
func NewCompressionManager() *CompressionManager {
	cm := &CompressionManager{
		compressors: make(map[CompressionType]Compressor),
	}

	cm.compressors[CompressionTypeGzip] = &GzipCompressor{}
	cm.compressors[CompressionTypeLZ4] = &LZ4Compressor{}
	cm.compressors[CompressionTypeZstd] = &ZstdCompressor{}

	return cm
}

// NewWriter returns a writer that compresses into w. An out-of-range level
// falls back to the algorithm default.
func (cm *CompressionManager) NewWriter(w io.Writer, algorithm CompressionType, level int) (io.WriteCloser, error) {
	if algorithm == CompressionTypeNone {
		return nopWriteCloser{w}, nil
	}

	compressor, err := cm.GetCompressor(algorithm)
	if err != nil {
		return nil, err
	}

	if level < compressor.GetMinLevel() || level > compressor.GetMaxLevel() {
		level = compressor.GetDefaultLevel()
	}

	return compressor.NewWriter(w, level)
}

// NewReader returns a reader that decompresses r
func (cm *CompressionManager) NewReader(r io.Reader, algorithm CompressionType) (io.ReadCloser, error) {
	if algorithm == CompressionTypeNone {
		return io.NopCloser(r), nil
	}

	compressor, err := cm.GetCompressor(algorithm)
	if err != nil {
		return nil, err
	}
	return compressor.NewReader(r)
}

// GetCompressor returns a compressor for the specified algorithm
func (cm *CompressionManager) GetCompressor(algorithm CompressionType) (Compressor, error) {
	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}
	return compressor, nil
}

// GetSupportedAlgorithms returns the registered algorithms in name order
func (cm *CompressionManager) GetSupportedAlgorithms() []CompressionType {
	algorithms := make([]CompressionType, 0, len(cm.compressors))
	for algorithm := range cm.compressors {
		algorithms = append(algorithms, algorithm)
	}
	sort.Slice(algorithms, func(i, j int) bool { return algorithms[i] < algorithms[j] })
	return algorithms
}

// CalculateCompressionRatio calculates the compression ratio
func CalculateCompressionRatio(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 1.0
	}
	return float64(compressedSize) / float64(originalSize)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// GzipCompressor implements gzip compression
type GzipCompressor struct{}

func (gc *GzipCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	writer, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, NewCompressionError("failed to create gzip writer", err)
	}
	return writer, nil
}

func (gc *GzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	reader, err := gzip.NewReader(r)
	if err != nil {
		return nil, NewCompressionError("failed to create gzip reader", err)
	}
	return reader, nil
}

func (gc *GzipCompressor) GetAlgorithm() CompressionType {
	return CompressionTypeGzip
}

func (gc *GzipCompressor) GetDefaultLevel() int {
	return gzip.DefaultCompression
}

func (gc *GzipCompressor) GetMaxLevel() int {
	return gzip.BestCompression
}

func (gc *GzipCompressor) GetMinLevel() int {
	return gzip.BestSpeed
}

// LZ4Compressor implements LZ4 compression
type LZ4Compressor struct{}

func (lc *LZ4Compressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	writer := lz4.NewWriter(w)
	// lz4 has a fast mode and a high compression mode
	if level > 6 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, NewCompressionError("failed to set LZ4 high compression", err)
		}
	}
	return writer, nil
}

func (lc *LZ4Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (lc *LZ4Compressor) GetAlgorithm() CompressionType {
	return CompressionTypeLZ4
}

func (lc *LZ4Compressor) GetDefaultLevel() int {
	return 1
}

func (lc *LZ4Compressor) GetMaxLevel() int {
	return 12
}

func (lc *LZ4Compressor) GetMinLevel() int {
	return 1
}

// ZstdCompressor implements Zstandard compression
type ZstdCompressor struct{}

func (zc *ZstdCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	var encoderLevel zstd.EncoderLevel
	switch {
	case level <= 1:
		encoderLevel = zstd.SpeedFastest
	case level <= 3:
		encoderLevel = zstd.SpeedDefault
	case level <= 6:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(encoderLevel))
	if err != nil {
		return nil, NewCompressionError("failed to create zstd encoder", err)
	}
	return encoder, nil
}

func (zc *ZstdCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, NewCompressionError("failed to create zstd decoder", err)
	}
	return decoder.IOReadCloser(), nil
}

func (zc *ZstdCompressor) GetAlgorithm() CompressionType {
	return CompressionTypeZstd
}

func (zc *ZstdCompressor) GetDefaultLevel() int {
	return 3
}

func (zc *ZstdCompressor) GetMaxLevel() int {
	return 22
}

func (zc *ZstdCompressor) GetMinLevel() int {
	return 1
}
