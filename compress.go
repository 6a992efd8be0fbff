package embeddb

import (
	"bytes"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4"
)

// CompressionAlgorithm selects how variable-length blobs are encoded before
// they are appended to the var-data log. Fixed-size records are never
// compressed: the in-page interpolated search depends on every record
// occupying exactly recordSize bytes.
type CompressionAlgorithm uint16

const (
	CompressionNone CompressionAlgorithm = iota
	CompressionSnappy
	CompressionLZ4
)

// Compressor transforms a blob before it is length-prefixed and written to
// the var-data log.
type Compressor func([]byte) []byte

// DeCompressor reverses a Compressor.
type DeCompressor func([]byte) ([]byte, error)

var (
	snappyCompress Compressor = func(in []byte) []byte {
		return snappy.Encode(nil, in)
	}
	snappyDecompress DeCompressor = func(in []byte) ([]byte, error) {
		return snappy.Decode(nil, in)
	}
)

var (
	lz4Compress Compressor = func(in []byte) []byte {
		buf := &bytes.Buffer{}
		writer := lz4.NewWriter(buf)
		writer.NoChecksum = true
		if _, err := writer.Write(in); err != nil {
			panic(err)
		}
		_ = writer.Close()
		return buf.Bytes()
	}

	lz4Decompress DeCompressor = func(in []byte) ([]byte, error) {
		buf := &bytes.Buffer{}
		reader := lz4.NewReader(bytes.NewReader(in))
		_, err := buf.ReadFrom(reader)
		return buf.Bytes(), err
	}
)

// codecFor resolves the Compressor/DeCompressor pair for an algorithm. A nil
// pair means "store blobs verbatim".
func codecFor(alg CompressionAlgorithm) (Compressor, DeCompressor) {
	switch alg {
	case CompressionSnappy:
		return snappyCompress, snappyDecompress
	case CompressionLZ4:
		return lz4Compress, lz4Decompress
	default:
		return nil, nil
	}
}
