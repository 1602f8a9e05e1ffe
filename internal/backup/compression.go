package backup

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor turns an artifact into its stored form and back
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() CompressionType
}

// CompressionManager dispatches to the registered compressors
type CompressionManager struct {
	compressors map[CompressionType]Compressor
}

// NewCompressionManager creates a manager with every supported algorithm
func NewCompressionManager() *CompressionManager {
	return &CompressionManager{
		compressors: map[CompressionType]Compressor{
			CompressionTypeGzip: &gzipCompressor{},
			CompressionTypeLZ4:  &lz4Compressor{},
			CompressionTypeZstd: &zstdCompressor{},
		},
	}
}

// Compress compresses an artifact with the given algorithm
func (cm *CompressionManager) Compress(data []byte, algorithm CompressionType) ([]byte, error) {
	if algorithm == CompressionTypeNone || algorithm == "" {
		return data, nil
	}

	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}

	return compressor.Compress(data)
}

// Decompress reverses Compress for the given algorithm
func (cm *CompressionManager) Decompress(data []byte, algorithm CompressionType) ([]byte, error) {
	if algorithm == CompressionTypeNone || algorithm == "" {
		return data, nil
	}

	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}

	return compressor.Decompress(data)
}

// SupportedAlgorithms returns every algorithm the manager can dispatch to
func (cm *CompressionManager) SupportedAlgorithms() []CompressionType {
	algorithms := make([]CompressionType, 0, len(cm.compressors)+1)
	algorithms = append(algorithms, CompressionTypeNone)
	for algorithm := range cm.compressors {
		algorithms = append(algorithms, algorithm)
	}
	return algorithms
}

// gzipCompressor implements gzip compression
type gzipCompressor struct{}

func (gc *gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, NewCompressionError("failed to create gzip writer", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, NewCompressionError("failed to write data to gzip writer", err)
	}

	if err := writer.Close(); err != nil {
		return nil, NewCompressionError("failed to close gzip writer", err)
	}

	return buf.Bytes(), nil
}

func (gc *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, NewCompressionError("failed to create gzip reader", err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewCompressionError("failed to decompress gzip data", err)
	}

	return decompressed, nil
}

func (gc *gzipCompressor) Algorithm() CompressionType {
	return CompressionTypeGzip
}

// lz4Compressor implements LZ4 compression
type lz4Compressor struct{}

func (lc *lz4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, NewCompressionError("failed to write data to LZ4 writer", err)
	}

	if err := writer.Close(); err != nil {
		return nil, NewCompressionError("failed to close LZ4 writer", err)
	}

	return buf.Bytes(), nil
}

func (lc *lz4Compressor) Decompress(data []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewCompressionError("failed to decompress LZ4 data", err)
	}

	return decompressed, nil
}

func (lc *lz4Compressor) Algorithm() CompressionType {
	return CompressionTypeLZ4
}

// zstdCompressor implements Zstandard compression
type zstdCompressor struct{}

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, NewCompressionError("failed to create zstd encoder", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, NewCompressionError("failed to create zstd decoder", err)
	}
	defer decoder.Close()

	decompressed, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, NewCompressionError("failed to decompress zstd data", err)
	}

	return decompressed, nil
}

func (zc *zstdCompressor) Algorithm() CompressionType {
	return CompressionTypeZstd
}
