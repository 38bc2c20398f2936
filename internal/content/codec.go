// internal/content/codec.go
package content

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Blobs at or above this size are stored zstd-compressed. Smaller files
// rarely win anything and stay readable on disk.
const compressMinSize = 1024

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

var (
	encoder, _ = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	decoder, _ = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
)

// Encode prepares content for blob storage, compressing when it pays off.
// The result round-trips through Decode to the exact original bytes.
// Content that already begins with a zstd frame is always wrapped, so a
// stored-raw blob can never be mistaken for a compressed one.
func Encode(content []byte) []byte {
	startsWithMagic := len(content) >= 4 && bytes.Equal(content[:4], zstdMagic)

	if len(content) < compressMinSize && !startsWithMagic {
		return content
	}

	compressed := encoder.EncodeAll(content, make([]byte, 0, len(content)))
	if len(compressed) >= len(content) && !startsWithMagic {
		return content
	}
	return compressed
}

// Decode reverses Encode. Compression is detected by the zstd frame magic.
func Decode(stored []byte) ([]byte, error) {
	if len(stored) < 4 || !bytes.Equal(stored[:4], zstdMagic) {
		return stored, nil
	}

	content, err := decoder.DecodeAll(stored, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing blob: %w", err)
	}
	return content, nil
}
