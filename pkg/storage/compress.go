package storage

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Frame tags written in front of every value when compression is enabled
const (
	frameRaw  byte = 0x00
	frameZstd byte = 0x01

	// values below this size are not worth compressing
	compressThreshold = 128
)

// compressor frames values with a one-byte tag and zstd-compresses the
// larger ones. EncodeAll and DecodeAll are safe for concurrent use.
type compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newCompressor() (*compressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &compressor{encoder: enc, decoder: dec}, nil
}

func (c *compressor) compress(value []byte) []byte {
	if len(value) < compressThreshold {
		out := make([]byte, 0, len(value)+1)
		out = append(out, frameRaw)
		return append(out, value...)
	}

	out := make([]byte, 1, len(value)/2+1)
	out[0] = frameZstd
	return c.encoder.EncodeAll(value, out)
}

func (c *compressor) decompress(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, fmt.Errorf("%w: empty value frame", ErrDecryption)
	}

	switch framed[0] {
	case frameRaw:
		return append([]byte{}, framed[1:]...), nil
	case frameZstd:
		out, err := c.decoder.DecodeAll(framed[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrDecryption, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown value frame 0x%02x", ErrDecryption, framed[0])
	}
}

func (c *compressor) close() {
	c.encoder.Close()
	c.decoder.Close()
}
